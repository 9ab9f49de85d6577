package models

import "fmt"

// Role is the capability an actor holds for an operation.
type Role string

const (
	RoleProvider  Role = "provider"
	RoleRequester Role = "requester"
	RoleSystem    Role = "system"
)

// Actor identifies who drives an operation.
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: RoleSystem}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleProvider, RoleRequester, RoleSystem:
		return r, nil
	}
	return "", fmt.Errorf("%w: role %q", ErrValidation, s)
}
