package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"carebridge/internal/models"
)

// Type names a lifecycle event.
type Type string

const (
	AppointmentRequested Type = "appointment_requested"
	AppointmentConfirmed Type = "appointment_confirmed"
	AppointmentStarted   Type = "appointment_started"
	AppointmentCompleted Type = "appointment_completed"
	AppointmentCancelled Type = "appointment_cancelled"
	AppointmentNoShow    Type = "appointment_no_show"
	AppointmentReminder  Type = "appointment_reminder"
)

// TypeFor maps a target status to its event type.
func TypeFor(status models.Status) Type {
	switch status {
	case models.StatusRequested:
		return AppointmentRequested
	case models.StatusConfirmed:
		return AppointmentConfirmed
	case models.StatusInProgress:
		return AppointmentStarted
	case models.StatusCompleted:
		return AppointmentCompleted
	case models.StatusCancelled:
		return AppointmentCancelled
	case models.StatusNoShow:
		return AppointmentNoShow
	}
	return Type("appointment_" + string(status))
}

// Event is a fact about an appointment, consumed by notification delivery.
type Event struct {
	ID            int64         `json:"-"`
	Type          Type          `json:"type"`
	AppointmentID string        `json:"appointment_id"`
	ProviderID    int64         `json:"provider_id"`
	RequesterID   int64         `json:"requester_id"`
	Status        models.Status `json:"status"`
	Actor         models.Actor  `json:"actor"`
	Recipients    []int64       `json:"recipients"`
	Date          string        `json:"date"`
	StartTime     models.Clock  `json:"start_time"`
	Reason        string        `json:"reason,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// New builds an event for the appointment's current status.
func New(t Type, a *models.Appointment, actor models.Actor) Event {
	return Event{
		Type:          t,
		AppointmentID: a.PublicID,
		ProviderID:    a.ProviderID,
		RequesterID:   a.RequesterID,
		Status:        a.Status,
		Actor:         actor,
		Recipients:    Recipients(t, a, actor),
		Date:          a.DateString(),
		StartTime:     a.StartTime,
		OccurredAt:    time.Now(),
	}
}

// Recipients decides who is notified about an event.
func Recipients(t Type, a *models.Appointment, actor models.Actor) []int64 {
	switch t {
	case AppointmentRequested:
		return []int64{a.ProviderID}
	case AppointmentCancelled:
		if actor.Role == models.RoleRequester {
			return []int64{a.ProviderID}
		}
		if actor.Role == models.RoleProvider {
			return []int64{a.RequesterID}
		}
		return []int64{a.RequesterID, a.ProviderID}
	case AppointmentNoShow:
		return []int64{a.RequesterID, a.ProviderID}
	default:
		return []int64{a.RequesterID}
	}
}

// Emitter accepts events for asynchronous delivery.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Handler reacts to an event.
type Handler func(ctx context.Context, event Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[Type][]Handler
	all         []Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(t Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish runs the handlers synchronously and joins their errors.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", event.Type, err))
		}
	}
	return errors.Join(errs...)
}

// Emit publishes directly, so a Bus can stand in for the outbox.
func (b *Bus) Emit(ctx context.Context, event Event) error {
	return b.Publish(ctx, event)
}
