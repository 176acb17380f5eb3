// Package api is the thin HTTP surface over the engines. Handlers decode,
// delegate, and encode; all domain behavior lives below this layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"smartshop/internal/assistant"
	"smartshop/internal/catalog"
	"smartshop/internal/logging"
	"smartshop/internal/reco"
	"smartshop/internal/reviews"
	"smartshop/internal/search"
)

// Store is the slice of the SQLite store the handlers use.
type Store interface {
	catalog.Reader
	catalog.PurchaseReader
	RecordPurchase(ctx context.Context, userID, productID int64, quantity int) (int64, error)
	HasPurchased(ctx context.Context, userID, productID int64) (bool, error)
	UpsertReview(ctx context.Context, r catalog.Review) error
	ReviewsForProduct(ctx context.Context, productID int64, limit int) ([]catalog.Review, error)
}

// Handler carries the wired engines.
type Handler struct {
	store     Store
	reco      *reco.Engine
	search    *search.Engine
	reviews   *reviews.Service
	assistant *assistant.Service
}

func NewHandler(store Store, recoEngine *reco.Engine, searchEngine *search.Engine, reviewSvc *reviews.Service, assistantSvc *assistant.Service) *Handler {
	return &Handler{
		store:     store,
		reco:      recoEngine,
		search:    searchEngine,
		reviews:   reviewSvc,
		assistant: assistantSvc,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.APIError("Encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// userID resolves the acting user from the X-User-ID header, falling back
// to the user_id query parameter. Authentication proper is out of scope;
// the caller is trusted to identify itself.
func userID(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header or user_id query parameter is required")
	}
	return id, ok
}
