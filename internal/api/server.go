// Package api exposes the scheduling engine over JSON/HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"carebridge/internal/availability"
	"carebridge/internal/booking"
	"carebridge/internal/metrics"
	"carebridge/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// SlotService is the availability side of the engine.
type SlotService interface {
	ListAvailableSlots(ctx context.Context, providerID int64, date time.Time) (*availability.SlotList, error)
	ListRules(ctx context.Context, providerID int64) ([]models.AvailabilityRule, error)
	SetAvailability(ctx context.Context, providerID int64, day int, start, end models.Clock, enabled bool) (*models.AvailabilityRule, error)
	ToggleRule(ctx context.Context, ruleID int64, actor models.Actor) (*models.AvailabilityRule, error)
}

// BookingService reserves slots and answers appointment queries.
type BookingService interface {
	Book(ctx context.Context, req booking.Request) (*models.Appointment, error)
	Get(ctx context.Context, id string) (*models.Appointment, error)
	ForProvider(ctx context.Context, providerID int64, date *time.Time) ([]models.Appointment, error)
	ForRequester(ctx context.Context, requesterID int64, status *models.Status) ([]models.Appointment, error)
	Upcoming(ctx context.Context, requesterID int64) ([]models.Appointment, error)
	InDateRange(ctx context.Context, from, to time.Time) ([]models.Appointment, error)
}

// LifecycleService applies status transitions.
type LifecycleService interface {
	Confirm(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error)
	Start(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error)
	Complete(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error)
	Cancel(ctx context.Context, id string, actor models.Actor, reason string) (*models.Appointment, error)
}

// Server holds the HTTP handlers.
type Server struct {
	slots     SlotService
	booking   BookingService
	lifecycle LifecycleService
	logger    zerolog.Logger
}

func NewServer(slots SlotService, bookings BookingService, lifecycle LifecycleService, logger *zerolog.Logger) *Server {
	return &Server{
		slots:     slots,
		booking:   bookings,
		lifecycle: lifecycle,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Get("/slots", s.handleListSlots)
		r.Get("/availability", s.handleListRules)
		r.Put("/availability", s.handleSetAvailability)
		r.Get("/appointments", s.handleProviderAppointments)
	})
	r.Post("/availability/{ruleID}/toggle", s.handleToggleRule)

	r.Route("/requesters/{requesterID}", func(r chi.Router) {
		r.Get("/appointments", s.handleRequesterAppointments)
		r.Get("/appointments/upcoming", s.handleUpcoming)
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", s.handleAppointmentsInRange)
		r.Post("/", s.handleBook)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAppointment)
			r.Post("/confirm", s.transitionHandler(s.lifecycle.Confirm))
			r.Post("/start", s.transitionHandler(s.lifecycle.Start))
			r.Post("/complete", s.transitionHandler(s.lifecycle.Complete))
			r.Post("/cancel", s.handleCancel)
		})
	})

	return r
}

// requestLogger logs each request and counts it by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.IncHTTP(route, ww.Status())

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Dur("duration", time.Since(started)).
			Msg("HTTP request")
	})
}
