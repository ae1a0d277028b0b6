/**
 * @description
 * This file sets up the HTTP router for the assistant-service. It defines
 * the CRUD API endpoints for the browser UI, applies CORS and standard
 * middleware, and mounts the relay's WebSocket endpoint outside the request
 * timeout (relay sessions are long-lived duplex streams).
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser UI.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates the service router: REST endpoints under /api and the
// relay WebSocket at /ws.
func Routes(h *Handlers, relayHandler http.Handler, authSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Relay sessions are long-lived; no timeout middleware here.
	r.Handle("/ws", relayHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(AuthMiddleware(authSecret))

		r.Get("/user", h.GetUserHandler)
		r.Get("/accounts", h.ListAccountsHandler)
		r.Get("/cards", h.ListCardsHandler)
		r.Get("/transactions", h.ListTransactionsHandler)
		r.Post("/register", h.RegisterHandler)
	})

	return r
}
