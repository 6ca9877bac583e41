/**
 * @description
 * HTTP route definitions for the membership-service. Token-addressed transfer
 * lookups and confirmations are public (the unguessable token is the
 * credential); creating transfers and reading history require a member token;
 * the verification endpoints require the admin role on top.
 *
 * @dependencies
 * - net/http, time: Standard Go libraries.
 * - github.com/go-chi/chi/v5: HTTP router and built-in middleware.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 * - internal/config: JWT secret for the auth middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pitchside/membership-service/internal/config"
)

// NewRouter creates and configures the main HTTP router.
func NewRouter(handlers *TransferHandlers, cfg config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Public, token-addressed endpoints used from the payment page link.
	r.Get("/transfers/token/{token}", handlers.GetTransferByToken)
	r.Post("/transfers/token/{token}/confirm", handlers.ConfirmTransfer)

	// Member endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))
		r.Post("/transfers", handlers.CreateTransfer)
		r.Get("/transfers/mine", handlers.ListMyTransfers)
	})

	// Staff endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))
		r.Use(RequireAdmin)
		r.Get("/admin/transfers", handlers.ListTransfers)
		r.Get("/admin/transfers/awaiting-verification", handlers.ListAwaitingVerification)
		r.Post("/admin/transfers/{transferID}/verify", handlers.VerifyTransfer)
	})

	return r
}
