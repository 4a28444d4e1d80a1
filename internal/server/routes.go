package server

import (
	"compress/gzip"
	"net/http"

	"github.com/VladKvetkin/keyflow/internal/handler"
	"github.com/VladKvetkin/keyflow/internal/metrics"
	"github.com/VladKvetkin/keyflow/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes(handler *handler.Handler) {
	s.setupMiddleware()

	auth := middleware.Auth(s.tokens)

	s.mux.Route("/", func(r chi.Router) {
		r.Handle("/metrics", promhttp.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Get("/catalog", http.HandlerFunc(handler.GetCatalog))

			r.Route("/user", func(r chi.Router) {
				r.Post("/login", http.HandlerFunc(handler.Login))

				r.Group(func(r chi.Router) {
					r.Use(auth)

					r.Get("/orders", http.HandlerFunc(handler.GetOrders))
					r.Post("/orders", http.HandlerFunc(handler.SaveOrder))
					r.Post("/orders/cart", http.HandlerFunc(handler.SaveCart))
					r.Post("/orders/{id}/claim", http.HandlerFunc(handler.ClaimOrder))
					r.Post("/orders/{id}/reorder", http.HandlerFunc(handler.Reorder))

					r.Get("/referral", http.HandlerFunc(handler.GetReferral))
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth)

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", http.HandlerFunc(handler.GetActiveOrders))
					r.Post("/{id}/confirm", http.HandlerFunc(handler.ConfirmOrder))
					r.Post("/{id}/reject", http.HandlerFunc(handler.RejectOrder))
					r.Post("/{id}/cancel", http.HandlerFunc(handler.CancelPaidOrder))
					r.Post("/{id}/deliver", http.HandlerFunc(handler.DeliverOrder))
				})

				r.Get("/balance", http.HandlerFunc(handler.GetBalance))
				r.Get("/stats", http.HandlerFunc(handler.GetStats))
				r.Get("/users", http.HandlerFunc(handler.GetUsers))

				r.Get("/withdrawals", http.HandlerFunc(handler.GetWithdrawals))
				r.Post("/withdrawals", http.HandlerFunc(handler.Withdraw))

				r.Get("/services", http.HandlerFunc(handler.GetServices))
				r.Post("/services/{id}/toggle", http.HandlerFunc(handler.ToggleService))

				r.Post("/broadcast", http.HandlerFunc(handler.Broadcast))
			})
		})
	})
}

func (s *Server) setupMiddleware() {
	s.mux.Use(
		chiMiddleware.RequestID,
		chiMiddleware.Recoverer,
		middleware.DecompressBodyReader,
		middleware.Logger,
		metrics.Middleware,
		chiMiddleware.Compress(gzip.BestCompression, "application/json", "text/html", "text/plain"),
	)
}
