package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft timeout applied to request contexts.
// Set to the Lambda timeout minus one second in production.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Admin-User",
}

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the /v1 group, and the unauthenticated health check.
//
// Ordering rationale for the global chain:
//  1. Recoverer       - outermost so every panic is caught
//  2. ContextTimeout  - soft deadline ahead of the Lambda hard timeout
//  3. RequestID       - correlation ID for everything downstream
//  4. SecurityHeaders - present on all responses, including errors
//  5. RequestLogger   - structured logging with redacted headers
//  6. Metrics         - request latency recording
//
// Authentication is per-group, not global: ingest and admin routes carry
// different keys, and /health carries none.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(s.MetricsMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}
