package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aetos53t/ping/internal/api/middleware"
	"github.com/aetos53t/ping/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Identity registry
	r.Post("/agents", h.Register)
	r.Get("/agents/{id}", h.GetAgent)
	r.Patch("/agents/{id}", h.UpdateAgent)
	r.Delete("/agents/{id}", h.DeleteAgent)

	// Directory
	r.Get("/directory", h.Directory)
	r.Get("/directory/search", h.SearchDirectory)

	// Messages
	r.Post("/messages", h.SendMessage)
	r.Post("/messages/{id}/ack", h.Acknowledge)
	r.Get("/agents/{id}/inbox", h.Inbox)
	r.Get("/agents/{id}/messages/{otherId}", h.Conversation)

	// Contacts
	r.Get("/agents/{id}/contacts", h.ListContacts)
	r.Post("/agents/{id}/contacts", h.AddContact)
	r.Delete("/agents/{id}/contacts/{contactId}", h.RemoveContact)

	// Live push channel
	r.Get("/ws", h.PushChannel)

	return r
}
