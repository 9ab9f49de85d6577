package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := counterValue(t, "carebridge_booking_attempts_total", map[string]string{"result": "slot_taken"})
	IncBookingAttempt("slot_taken")
	after := counterValue(t, "carebridge_booking_attempts_total", map[string]string{"result": "slot_taken"})
	assert.Equal(t, before+1, after)

	IncSlotCache("hit")
	IncSlotCache("hit")
	assert.GreaterOrEqual(t, counterValue(t, "carebridge_slot_cache_requests_total", map[string]string{"result": "hit"}), 2.0)

	IncTransition("confirmed", "ok")
	assert.GreaterOrEqual(t, counterValue(t, "carebridge_appointment_transitions_total",
		map[string]string{"to": "confirmed", "result": "ok"}), 1.0)

	IncHTTP("/appointments", 201)
	assert.GreaterOrEqual(t, counterValue(t, "carebridge_http_requests_total",
		map[string]string{"route": "/appointments", "code": "201"}), 1.0)

	IncEvent("appointment_confirmed", "emitted")
	IncJob("no_show", "ok")
	IncReservationRetry()
	ObserveReservation(0.01)
}
