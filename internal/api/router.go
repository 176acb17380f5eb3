package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"smartshop/internal/logging"
)

// requestID tags every request with a correlation id, echoed in the
// X-Request-ID response header and attached to the api log line.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		logging.API("%s %s %s (%s)", r.Method, r.URL.Path, id, time.Since(start).Round(time.Millisecond))
	})
}

// NewRouter wires all routes. Routing is intentionally flat: one /api
// subtree, no versioning yet.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.NotFound(notFound)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.Products)
		r.Get("/products/{id}", h.ProductDetail)
		r.Post("/products/{id}/reviews", h.UpsertReview)

		r.Get("/purchases", h.Purchases)
		r.Post("/purchases", h.RecordPurchase)

		r.Get("/recommendations", h.Recommendations)
		r.Get("/search", h.Search)
		r.Get("/insights", h.Insights)

		r.Post("/assistant/chat", h.AssistantChat)
	})

	return r
}
