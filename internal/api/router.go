package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service AppointmentService
	History HistoryReader
	Health  *HealthHandler
	Logger  zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Route("/appointments/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(cfg.Service))
			r.Post("/reschedule", rescheduleAppointmentHandler(cfg.Service))
			r.Post("/cancel", cancelAppointmentHandler(cfg.Service))
			r.Post("/complete", completeAppointmentHandler(cfg.Service))
			r.Post("/reverse", reverseAppointmentHandler(cfg.Service))
			r.Post("/confirm", statusHandler(cfg.Service, appointment.TransitionConfirm))
			r.Post("/start", statusHandler(cfg.Service, appointment.TransitionStart))
			r.Post("/no-show", statusHandler(cfg.Service, appointment.TransitionNoShow))
		})
		r.Get("/conflicts", checkConflictHandler(cfg.Service))
		r.Get("/clinics/{clinicID}/slots", availableSlotsHandler(cfg.Service))

		if cfg.History != nil {
			r.Get("/referrals/{id}/history", referralHistoryHandler(cfg.History))
		}
	})

	return r
}
