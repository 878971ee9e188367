package http

import (
	"net/http"

	"github.com/jaksoftwares/opulence-payments/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/payments", func(r chi.Router) {
		r.Post("/initiate", handler.InitiatePayment)
		r.Post("/callback", handler.Callback)
		r.Get("/{checkoutId}/status", handler.PollStatus)
	})
	r.Get("/orders/{orderId}/payment", handler.OrderPayment)

	return &Server{Router: r}
}
