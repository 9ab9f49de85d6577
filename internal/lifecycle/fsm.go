// Package lifecycle drives appointments through their status machine.
package lifecycle

import (
	"slices"

	"carebridge/internal/models"
)

// edge describes how a status may be entered.
type edge struct {
	from  []models.Status
	roles []models.Role
}

// transitions is keyed by target status.
var transitions = map[models.Status]edge{
	models.StatusConfirmed: {
		from:  []models.Status{models.StatusRequested},
		roles: []models.Role{models.RoleProvider},
	},
	models.StatusInProgress: {
		from:  []models.Status{models.StatusConfirmed},
		roles: []models.Role{models.RoleProvider},
	},
	models.StatusCompleted: {
		from:  []models.Status{models.StatusConfirmed, models.StatusInProgress},
		roles: []models.Role{models.RoleProvider},
	},
	models.StatusCancelled: {
		from:  []models.Status{models.StatusRequested, models.StatusConfirmed},
		roles: []models.Role{models.RoleProvider, models.RoleRequester},
	},
	models.StatusNoShow: {
		from:  []models.Status{models.StatusConfirmed},
		roles: []models.Role{models.RoleSystem},
	},
}

// CanTransition checks if moving from one status to another is allowed.
func CanTransition(from, to models.Status) bool {
	e, ok := transitions[to]
	return ok && slices.Contains(e.from, from)
}

// CanAct reports whether role may move an appointment into status to.
func CanAct(role models.Role, to models.Status) bool {
	e, ok := transitions[to]
	return ok && slices.Contains(e.roles, role)
}
