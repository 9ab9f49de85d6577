package slots

import (
	"testing"
	"time"

	"carebridge/internal/models"

	"github.com/stretchr/testify/assert"
)

func rule(start, end string) *models.AvailabilityRule {
	return &models.AvailabilityRule{
		ProviderID: 1,
		DayOfWeek:  0,
		StartTime:  models.MustClock(start),
		EndTime:    models.MustClock(end),
		Enabled:    true,
	}
}

func appointment(start, end string, status models.Status) models.Appointment {
	return models.Appointment{
		StartTime: models.MustClock(start),
		EndTime:   models.MustClock(end),
		Status:    status,
	}
}

func clocks(ss ...string) []models.Clock {
	out := make([]models.Clock, len(ss))
	for i, s := range ss {
		out[i] = models.MustClock(s)
	}
	return out
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		rule     *models.AvailabilityRule
		booked   []models.Appointment
		duration time.Duration
		expected []models.Clock
	}{
		{
			name:     "one hour window",
			rule:     rule("09:00", "10:00"),
			expected: clocks("09:00", "09:30"),
		},
		{
			name:     "no partial trailing slot",
			rule:     rule("09:00", "10:15"),
			expected: clocks("09:00", "09:30"),
		},
		{
			name:     "window shorter than a slot",
			rule:     rule("09:00", "09:20"),
			expected: nil,
		},
		{
			name:     "no rule",
			rule:     nil,
			expected: nil,
		},
		{
			name: "disabled rule",
			rule: func() *models.AvailabilityRule {
				r := rule("09:00", "12:00")
				r.Enabled = false
				return r
			}(),
			expected: nil,
		},
		{
			name: "active bookings removed",
			rule: rule("09:00", "11:00"),
			booked: []models.Appointment{
				appointment("09:30", "10:00", models.StatusRequested),
				appointment("10:00", "10:30", models.StatusConfirmed),
			},
			expected: clocks("09:00", "10:30"),
		},
		{
			name: "terminal bookings ignored",
			rule: rule("09:00", "10:00"),
			booked: []models.Appointment{
				appointment("09:00", "09:30", models.StatusCancelled),
				appointment("09:30", "10:00", models.StatusNoShow),
			},
			expected: clocks("09:00", "09:30"),
		},
		{
			name: "misaligned booking blocks both neighbours",
			rule: rule("09:00", "10:30"),
			booked: []models.Appointment{
				appointment("09:15", "09:45", models.StatusInProgress),
			},
			expected: clocks("10:00"),
		},
		{
			name:     "60 minute slots",
			rule:     rule("09:00", "12:00"),
			duration: time.Hour,
			expected: clocks("09:00", "10:00", "11:00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(tt.duration)
			assert.Equal(t, tt.expected, g.Generate(tt.rule, tt.booked))
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator(DefaultDuration)
	r := rule("08:00", "17:00")
	booked := []models.Appointment{appointment("12:00", "12:30", models.StatusConfirmed)}

	first := g.Generate(r, booked)
	second := g.Generate(r, booked)
	assert.Equal(t, first, second)
	assert.Len(t, first, 17)
	assert.IsIncreasing(t, first)
}

func TestSlotsAndContains(t *testing.T) {
	g := NewGenerator(0)
	assert.Equal(t, DefaultDuration, g.Duration())

	starts := clocks("09:00", "09:30")
	assert.Equal(t, []Slot{
		{Start: models.MustClock("09:00"), End: models.MustClock("09:30")},
		{Start: models.MustClock("09:30"), End: models.MustClock("10:00")},
	}, g.Slots(starts))

	assert.True(t, Contains(starts, models.MustClock("09:30")))
	assert.False(t, Contains(starts, models.MustClock("09:15")))
}

func TestGenerateDay_MergesWindows(t *testing.T) {
	g := NewGenerator(DefaultDuration)
	afternoon, morning := rule("14:00", "15:00"), rule("09:00", "10:00")
	closed := rule("11:00", "12:00")
	closed.Enabled = false
	booked := []models.Appointment{appointment("14:00", "14:30", models.StatusRequested)}

	got := g.GenerateDay([]models.AvailabilityRule{*afternoon, *closed, *morning}, booked)
	assert.Equal(t, clocks("09:00", "09:30", "14:30"), got)
	assert.Nil(t, g.GenerateDay(nil, booked))
}
