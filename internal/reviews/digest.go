// Package reviews generates the AI review digest shown on product pages:
// grounded highlight bullets plus clearly labeled sample reviews. The
// digest is cached per product and gated by a signature over the recent
// review window, so it only regenerates when reviews actually change.
package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smartshop/internal/cache"
	"smartshop/internal/catalog"
	"smartshop/internal/logging"
	"smartshop/internal/oracle"
	"smartshop/internal/signature"
)

// ReviewReader is the slice of the store this service needs.
type ReviewReader interface {
	ReviewsForProduct(ctx context.Context, productID int64, limit int) ([]catalog.Review, error)
}

// SampleReview is an AI-generated illustrative review. Never presented as
// written by a real user; the Label field on Digest makes that explicit.
type SampleReview struct {
	Rating int    `json:"rating"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Digest is the cached per-product payload.
type Digest struct {
	Cached        bool           `json:"cached"`
	Signature     string         `json:"signature"`
	Highlights    []string       `json:"highlights"`
	SampleReviews []SampleReview `json:"sample_reviews"`
	Label         string         `json:"label"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type digestEntry struct {
	Signature     string         `json:"signature"`
	Highlights    []string       `json:"highlights"`
	SampleReviews []SampleReview `json:"sample_reviews"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// compactReview is the canonical review shape hashed for cache validity and
// offered to the oracle.
type compactReview struct {
	Rating int    `json:"rating"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

const (
	digestLabel        = "AI-generated highlights & sample reviews (not real user reviews)."
	reviewWindow       = 30
	maxHighlights      = 6
	maxSampleReviews   = 3
	maxSampleTitleLen  = 80
	maxSampleBodyLen   = 400
	defaultSampleScore = 5
)

// Service generates and caches review digests.
type Service struct {
	catalogs catalog.Reader
	reviews  ReviewReader
	store    cache.Cache
	client   oracle.Client
}

func NewService(catalogs catalog.Reader, reviews ReviewReader, store cache.Cache, client oracle.Client) *Service {
	return &Service{catalogs: catalogs, reviews: reviews, store: store, client: client}
}

func digestKey(productID int64) string { return fmt.Sprintf("reviews:digest:%d", productID) }

// Digest returns the review digest for one product, regenerating only when
// the recent review window changed. An unusable oracle yields an empty
// digest, not an error.
func (s *Service) Digest(ctx context.Context, productID int64) (Digest, error) {
	products, err := s.catalogs.ByIDs(ctx, []int64{productID})
	if err != nil {
		return Digest{}, fmt.Errorf("load product: %w", err)
	}
	if len(products) == 0 {
		return Digest{}, fmt.Errorf("product %d not found", productID)
	}
	product := products[0]

	recent, err := s.reviews.ReviewsForProduct(ctx, productID, reviewWindow)
	if err != nil {
		return Digest{}, fmt.Errorf("load reviews: %w", err)
	}
	compact := make([]compactReview, len(recent))
	for i, r := range recent {
		compact[i] = compactReview{Rating: r.Rating, Title: r.Title, Body: r.Body}
	}
	sig, err := signature.Hash(compact)
	if err != nil {
		return Digest{}, fmt.Errorf("compute signature: %w", err)
	}

	key := digestKey(productID)
	var entry digestEntry
	if cache.GetJSON(s.store, key, &entry) && entry.Signature == sig {
		return Digest{
			Cached:        true,
			Signature:     sig,
			Highlights:    entry.Highlights,
			SampleReviews: entry.SampleReviews,
			Label:         digestLabel,
			UpdatedAt:     entry.UpdatedAt,
		}, nil
	}

	highlights, samples := s.generate(ctx, product, compact)
	now := time.Now().UTC()
	entry = digestEntry{Signature: sig, Highlights: highlights, SampleReviews: samples, UpdatedAt: now}
	if err := cache.SetJSON(s.store, key, entry, 0); err != nil {
		logging.CacheDebug("Digest cache write failed for product %d: %v", productID, err)
	}
	return Digest{
		Cached:        false,
		Signature:     sig,
		Highlights:    highlights,
		SampleReviews: samples,
		Label:         digestLabel,
		UpdatedAt:     now,
	}, nil
}

func (s *Service) generate(ctx context.Context, product catalog.Product, reviews []compactReview) ([]string, []SampleReview) {
	if !s.client.Configured() {
		return []string{}, []SampleReview{}
	}

	productSmall := map[string]interface{}{
		"name":     product.Name,
		"category": product.Category,
		"price":    product.Price,
	}
	if product.Profile != nil {
		productSmall["ai_short_description"] = strings.TrimSpace(product.Profile.ShortDescription)
		productSmall["ai_review_summary"] = strings.TrimSpace(product.Profile.ReviewSummary)
	}
	productJSON, _ := json.Marshal(productSmall)
	reviewsJSON, _ := json.Marshal(reviews)

	prompt := fmt.Sprintf(`You are a product reviewer assistant for an e-commerce shop.

PRODUCT:
%s

REAL USER REVIEWS (rating/title/body). If empty, rely only on product fields:
%s

Task:
1) Write 4-6 "review highlights" bullets grounded in provided info.
2) Create 2-3 clearly AI-generated "sample reviews" (helpful examples), grounded in provided info.

Rules:
- Do NOT invent features not present in product fields or user reviews.
- If reviews are empty, be conservative and only reflect product fields.
- Highlights must be short and practical.
- Sample reviews must look realistic but MUST NOT claim to be real users.
- Output JSON ONLY. No extra text.

Schema:
{
  "highlights": ["...", "..."],
  "sample_reviews": [
    {"rating": 5, "title": "...", "body": "..."}
  ]
}`, productJSON, reviewsJSON)

	text, err := s.client.Complete(ctx, prompt)
	if err != nil {
		logging.OracleWarn("Review digest failed for product %d: %v", product.ID, err)
		return []string{}, []SampleReview{}
	}

	var answer struct {
		Highlights    []string       `json:"highlights"`
		SampleReviews []SampleReview `json:"sample_reviews"`
	}
	if !oracle.ExtractObject(text, &answer) {
		logging.OracleWarn("Unparsable digest answer for product %d", product.ID)
		return []string{}, []SampleReview{}
	}

	highlights := make([]string, 0, maxHighlights)
	for _, h := range answer.Highlights {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		highlights = append(highlights, h)
		if len(highlights) == maxHighlights {
			break
		}
	}

	samples := make([]SampleReview, 0, maxSampleReviews)
	for _, r := range answer.SampleReviews {
		if len(samples) == maxSampleReviews {
			break
		}
		if r.Rating == 0 {
			r.Rating = defaultSampleScore
		}
		r.Rating = clamp(r.Rating, 1, 5)
		r.Title = truncate(strings.TrimSpace(r.Title), maxSampleTitleLen)
		r.Body = truncate(strings.TrimSpace(r.Body), maxSampleBodyLen)
		if r.Title == "" && r.Body == "" {
			continue
		}
		samples = append(samples, r)
	}
	return highlights, samples
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncate cuts s to at most n runes, never splitting a multi-byte rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
