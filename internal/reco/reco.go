// Package reco is the recommendation pipeline: signature check, cache
// lookup, oracle ranking with defensive validation, deterministic fallback,
// and also-bought merge. Oracle failures never surface to callers; the
// worst case is a non-personalized but valid result.
package reco

import (
	"time"

	"smartshop/internal/catalog"
	"smartshop/internal/social"
)

// Item is one recommended product with its explanation and the
// non-authoritative co-purchase count.
type Item struct {
	catalog.Product
	Reason          string `json:"reason"`
	AlsoBoughtCount int    `json:"also_bought_count"`
}

// Result is the full recommendation payload.
type Result struct {
	Cached        bool            `json:"cached"`
	Signature     string          `json:"signature"`
	PurchaseCount int             `json:"purchase_count"`
	Recommended   []Item          `json:"recommended"`
	AlsoBought    []social.Signal `json:"also_bought"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// cacheEntry is the per-user persisted row. One entry per user, overwritten
// on every recompute, valid only while its signature matches the user's
// current purchase state.
type cacheEntry struct {
	Signature string       `json:"signature"`
	Items     []cachedItem `json:"items"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type cachedItem struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// compactPurchase is the canonical purchase representation hashed for cache
// validity. Field set and order sensitivity are load-bearing: any change to
// name, category, price, or quantity must change the signature.
type compactPurchase struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Qty      int     `json:"qty"`
}

const (
	defaultReason  = "Recommended based on your shopping patterns."
	fallbackReason = "Recommended based on similar categories you've purchased."
	maxReasonWords = 18
)
