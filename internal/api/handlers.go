package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"smartshop/internal/assistant"
	"smartshop/internal/catalog"
	"smartshop/internal/logging"
	"smartshop/internal/reviews"
)

// Products returns the full catalog, newest first.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAll(r.Context())
	if err != nil {
		logging.APIError("List products: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load products")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": items})
}

// productDetailResponse bundles a product with its reviews and AI digest.
type productDetailResponse struct {
	catalog.Product
	AvgRating    float64          `json:"avg_rating"`
	RatingsCount int              `json:"ratings_count"`
	Reviews      []catalog.Review `json:"reviews"`
	ReviewDigest reviews.Digest   `json:"ai_review_digest"`
	CanReview    bool             `json:"can_review"`
}

// ProductDetail returns one product with rating stats and the cached
// review digest.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	products, err := h.store.ByIDs(r.Context(), []int64{id})
	if err != nil {
		logging.APIError("Load product %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	if len(products) == 0 {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	all, err := h.store.ReviewsForProduct(r.Context(), id, 0)
	if err != nil {
		logging.APIError("Load reviews for product %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load reviews")
		return
	}
	var avg float64
	for _, rv := range all {
		avg += float64(rv.Rating)
	}
	if len(all) > 0 {
		avg /= float64(len(all))
	}

	digest, err := h.reviews.Digest(r.Context(), id)
	if err != nil {
		logging.APIError("Review digest for product %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to build review digest")
		return
	}

	canReview := false
	if uid, ok := userID(r); ok {
		canReview, err = h.store.HasPurchased(r.Context(), uid, id)
		if err != nil {
			logging.APIError("Purchase check for product %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "failed to check purchases")
			return
		}
	}

	writeJSON(w, http.StatusOK, productDetailResponse{
		Product:      products[0],
		AvgRating:    avg,
		RatingsCount: len(all),
		Reviews:      all,
		ReviewDigest: digest,
		CanReview:    canReview,
	})
}

// RecordPurchase records a purchase for the acting user.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID <= 0 {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	id, err := h.store.RecordPurchase(r.Context(), uid, req.ProductID, req.Quantity)
	if err != nil {
		logging.APIError("Record purchase for user %d: %v", uid, err)
		writeError(w, http.StatusBadRequest, "failed to record purchase")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"purchase_id": id})
}

// Purchases returns the acting user's purchase history, most recent first.
func (h *Handler) Purchases(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	history, err := h.store.ForUser(r.Context(), uid, 0)
	if err != nil {
		logging.APIError("Load purchases for user %d: %v", uid, err)
		writeError(w, http.StatusInternalServerError, "failed to load purchases")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"purchases": history})
}

// Recommendations runs the recommendation pipeline.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	maxItems, _ := strconv.Atoi(r.URL.Query().Get("max_items"))
	force := r.URL.Query().Get("force") == "1"

	res, err := h.reco.Recommend(r.Context(), uid, maxItems, force)
	if err != nil {
		logging.APIError("Recommend for user %d: %v", uid, err)
		writeError(w, http.StatusInternalServerError, "failed to compute recommendations")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search answers a free-text catalog query.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	res, err := h.search.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		logging.APIError("Search: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Insights generates shopping-pattern bullets for the acting user.
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "1"
	res, err := h.reco.Insights(r.Context(), uid, force)
	if err != nil {
		logging.APIError("Insights for user %d: %v", uid, err)
		writeError(w, http.StatusInternalServerError, "failed to generate insights")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpsertReview creates or replaces the acting user's review of a product.
// Only buyers may review.
func (h *Handler) UpsertReview(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	purchased, err := h.store.HasPurchased(r.Context(), uid, id)
	if err != nil {
		logging.APIError("Purchase check for review: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to check purchases")
		return
	}
	if !purchased {
		writeError(w, http.StatusForbidden, "you can only review items you have purchased")
		return
	}

	var req struct {
		Rating int    `json:"rating"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	review := catalog.Review{
		ProductID: id,
		UserID:    uid,
		Rating:    req.Rating,
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
	}
	if err := h.store.UpsertReview(r.Context(), review); err != nil {
		logging.APIError("Upsert review for product %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to save review")
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// AssistantChat answers one chat message. The client owns the history: it
// sends the prior transcript and receives the updated one back.
func (h *Handler) AssistantChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string           `json:"message"`
		History []assistant.Turn `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reply, history, err := h.assistant.Chat(r.Context(), req.Message, req.History)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reply": reply, "history": history})
}

// notFound keeps error payloads JSON end to end.
func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
