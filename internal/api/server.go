// Package api exposes the admin HTTP surface: manual checks, account import
// and subscription management.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	router   *chi.Mux
	checker  Checker
	accounts AccountPool
	registry Registry
	logger   *slog.Logger
}

func New(checker Checker, accounts AccountPool, registry Registry, logger *slog.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		checker:  checker,
		accounts: accounts,
		registry: registry,
		logger:   logger.With("component", "api"),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(requestLogger(s.logger))

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/check/{subscriber}", s.handleCheck)
		r.Post("/tick", s.handleTick)

		r.Get("/accounts", s.handleListAccounts)
		r.Post("/accounts", s.handleAddAccount)

		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Post("/subscriptions", s.handleAddSubscription)
		r.Delete("/subscriptions/{uid}/{kind}/{subscriber}", s.handleRemoveSubscription)
	})
}
