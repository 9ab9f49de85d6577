package slots

import (
	"slices"
	"time"

	"carebridge/internal/models"
)

// DefaultDuration is the fixed appointment length.
const DefaultDuration = 30 * time.Minute

// Slot is a bookable interval for UI and API responses.
type Slot struct {
	Start models.Clock `json:"start"` // "09:00"
	End   models.Clock `json:"end"`   // "09:30"
}

// Generator derives bookable start times from a weekly rule.
// It holds no state besides the slot duration.
type Generator struct {
	duration time.Duration
}

// NewGenerator creates a generator. A non-positive duration means DefaultDuration.
func NewGenerator(duration time.Duration) *Generator {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Generator{duration: duration}
}

// Duration returns the slot length.
func (g *Generator) Duration() time.Duration {
	return g.duration
}

// Generate returns the ascending start times of slots that fit entirely inside
// the rule's window and do not collide with an active appointment. A nil or
// disabled rule yields no slots.
func (g *Generator) Generate(rule *models.AvailabilityRule, booked []models.Appointment) []models.Clock {
	if rule == nil || !rule.Enabled {
		return nil
	}

	var starts []models.Clock
	for cursor := rule.StartTime; cursor.Add(g.duration) <= rule.EndTime; cursor = cursor.Add(g.duration) {
		if isBooked(booked, cursor, cursor.Add(g.duration)) {
			continue
		}
		starts = append(starts, cursor)
	}
	return starts
}

// GenerateDay merges the slots of every window of one day. Enabled windows
// never overlap, so the result stays ascending.
func (g *Generator) GenerateDay(rules []models.AvailabilityRule, booked []models.Appointment) []models.Clock {
	ordered := slices.Clone(rules)
	slices.SortFunc(ordered, func(a, b models.AvailabilityRule) int { return int(a.StartTime - b.StartTime) })

	var starts []models.Clock
	for i := range ordered {
		starts = append(starts, g.Generate(&ordered[i], booked)...)
	}
	return starts
}

// Slots expands start times into intervals.
func (g *Generator) Slots(starts []models.Clock) []Slot {
	out := make([]Slot, len(starts))
	for i, s := range starts {
		out[i] = Slot{Start: s, End: s.Add(g.duration)}
	}
	return out
}

// Contains reports whether start is one of starts.
func Contains(starts []models.Clock, start models.Clock) bool {
	for _, s := range starts {
		if s == start {
			return true
		}
	}
	return false
}

func isBooked(booked []models.Appointment, start, end models.Clock) bool {
	for i := range booked {
		if !booked[i].Status.IsActive() {
			continue
		}
		if booked[i].Overlaps(start, end) {
			return true
		}
	}
	return false
}
