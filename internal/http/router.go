package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Appointments *AppointmentHandler
	// Middleware wraps the whole router, outermost first.
	Middleware []func(http.Handler) http.Handler
	// Ready reports backend readiness for /readyz. Nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter mounts the appointment routes at the root and under /api.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(req); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	if cfg.Appointments != nil {
		routes := appointmentRoutes(cfg.Appointments)
		r.Mount("/api", routes)
		r.Mount("/", routes)
	}
	return r
}

func appointmentRoutes(h *AppointmentHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/appointments.ics", h.ExportICS)
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/upcoming", h.Upcoming)
		r.Get("/past", h.Past)
		r.Get("/missed", h.Missed)
		r.Get("/malformed", h.Malformed)
		r.Get("/summary", h.Summary)
		r.Delete("/{id}", h.Delete)
		r.Put("/{id}/complete", h.Complete)
	})
	return r
}
