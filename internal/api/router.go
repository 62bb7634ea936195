/**
 * @description
 * HTTP router setup for the point service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers point routes.
func NewRouter(h *PointHandlers, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Point service is healthy"))
	})

	r.Route("/v1/points", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/grants", h.GrantPointsHandler)
		r.Post("/grants/{grantID}/cancellations", h.CancelGrantHandler)
		r.Post("/spends", h.SpendPointsHandler)
		r.Post("/spends/{spendID}/cancellations", h.CancelSpendHandler)
		r.Get("/customers/{customerID}/ledger", h.ListLedgerHandler)
	})

	return r
}
