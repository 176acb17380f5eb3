// Package catalog defines the product/purchase domain model and the reader
// contracts the ranking pipeline consumes. The pipeline only ever reads
// upstream state; writes exist so the store can be populated and exercised.
package catalog

import (
	"context"
	"time"
)

// Product is a read-only catalog snapshot supplied per request.
type Product struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Price    float64  `json:"price"`
	Profile  *Profile `json:"profile,omitempty"`
}

// Profile carries optional generated product signals used for reranking and
// grounded explanations. All fields may be empty.
type Profile struct {
	ShortDescription string   `json:"short_description,omitempty"`
	UseCases         []string `json:"use_cases,omitempty"`
	Features         []string `json:"features,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	Audience         []string `json:"audience,omitempty"`
	ReviewSummary    string   `json:"review_summary,omitempty"`
}

// Purchase is an immutable ledger record.
type Purchase struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ProductID   int64     `json:"product_id"`
	Quantity    int       `json:"quantity"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Review is one user's review of one product. Rating is 1..5.
type Review struct {
	ProductID int64     `json:"product_id"`
	UserID    int64     `json:"user_id"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reader provides catalog snapshots.
type Reader interface {
	ListAll(ctx context.Context) ([]Product, error)
	ByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
}

// PurchaseReader provides purchase-ledger reads. ForUser returns records
// most-recent-first.
type PurchaseReader interface {
	ForUser(ctx context.Context, userID int64, limit int) ([]Purchase, error)
	UsersWhoAlsoBought(ctx context.Context, productIDs []int64, excludeUser int64) ([]int64, error)
	ByUsers(ctx context.Context, userIDs []int64) ([]Purchase, error)
}
