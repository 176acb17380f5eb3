// Package social computes collaborative "also-bought" signals from the
// purchase ledger. Signals are recomputed per request and never persisted.
package social

import (
	"context"
	"sort"

	"smartshop/internal/catalog"
)

// Signal is one co-purchase aggregate: how many purchase rows similar
// shoppers hold for a product the querying user does not own.
type Signal struct {
	ProductID int64 `json:"product_id"`
	Count     int   `json:"count"`
}

// NamedSignal is a Signal enriched with catalog fields for prompt context.
type NamedSignal struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CategoryCount is one category's purchase-row count among similar shoppers.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// ProofContext is the compact social-proof payload embedded into ranking
// prompts as a supporting signal.
type ProofContext struct {
	AlsoBoughtNamed           []NamedSignal   `json:"also_bought_named"`
	TopCategoriesAmongSimilar []CategoryCount `json:"top_categories_among_similar"`
}

// Aggregator derives also-bought signals from ledger reads. It holds no
// state of its own.
type Aggregator struct {
	catalogs  catalog.Reader
	purchases catalog.PurchaseReader
}

func NewAggregator(catalogs catalog.Reader, purchases catalog.PurchaseReader) *Aggregator {
	return &Aggregator{catalogs: catalogs, purchases: purchases}
}

// AlsoBought returns the top N products that users sharing a purchase with
// userID also bought, excluding everything userID already owns. Counts are
// purchase-row occurrences, descending; ties break on ascending product id
// so repeated calls over the same ledger are stably ordered. A user with no
// purchases gets an empty result, not an error.
func (a *Aggregator) AlsoBought(ctx context.Context, userID int64, topN int) ([]Signal, error) {
	mine, err := a.purchases.ForUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	if len(mine) == 0 {
		return nil, nil
	}

	owned := make(map[int64]bool, len(mine))
	ownedIDs := make([]int64, 0, len(mine))
	for _, p := range mine {
		if !owned[p.ProductID] {
			owned[p.ProductID] = true
			ownedIDs = append(ownedIDs, p.ProductID)
		}
	}

	similar, err := a.purchases.UsersWhoAlsoBought(ctx, ownedIDs, userID)
	if err != nil {
		return nil, err
	}
	if len(similar) == 0 {
		return nil, nil
	}

	theirs, err := a.purchases.ByUsers(ctx, similar)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int)
	for _, p := range theirs {
		if owned[p.ProductID] {
			continue
		}
		counts[p.ProductID]++
	}

	signals := make([]Signal, 0, len(counts))
	for id, c := range counts {
		signals = append(signals, Signal{ProductID: id, Count: c})
	}
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Count != signals[j].Count {
			return signals[i].Count > signals[j].Count
		}
		return signals[i].ProductID < signals[j].ProductID
	})
	if topN > 0 && len(signals) > topN {
		signals = signals[:topN]
	}
	return signals, nil
}

// Proof assembles the prompt-facing social-proof context: the top also-bought
// products with catalog names, and the top three categories among similar
// shoppers. Signals that no longer resolve to a catalog row are dropped.
func (a *Aggregator) Proof(ctx context.Context, userID int64, topN int) (ProofContext, error) {
	proof := ProofContext{
		AlsoBoughtNamed:           []NamedSignal{},
		TopCategoriesAmongSimilar: []CategoryCount{},
	}

	signals, err := a.AlsoBought(ctx, userID, topN)
	if err != nil {
		return proof, err
	}
	if len(signals) > 0 {
		ids := make([]int64, len(signals))
		for i, s := range signals {
			ids[i] = s.ProductID
		}
		products, err := a.catalogs.ByIDs(ctx, ids)
		if err != nil {
			return proof, err
		}
		byID := make(map[int64]catalog.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}
		for _, s := range signals {
			p, ok := byID[s.ProductID]
			if !ok {
				continue
			}
			proof.AlsoBoughtNamed = append(proof.AlsoBoughtNamed, NamedSignal{
				ID:       s.ProductID,
				Name:     p.Name,
				Category: p.Category,
				Count:    s.Count,
			})
		}
	}

	mine, err := a.purchases.ForUser(ctx, userID, 0)
	if err != nil {
		return proof, err
	}
	if len(mine) == 0 {
		return proof, nil
	}
	ownedIDs := make([]int64, 0, len(mine))
	seen := make(map[int64]bool, len(mine))
	for _, p := range mine {
		if !seen[p.ProductID] {
			seen[p.ProductID] = true
			ownedIDs = append(ownedIDs, p.ProductID)
		}
	}
	similar, err := a.purchases.UsersWhoAlsoBought(ctx, ownedIDs, userID)
	if err != nil {
		return proof, err
	}
	if len(similar) == 0 {
		return proof, nil
	}
	theirs, err := a.purchases.ByUsers(ctx, similar)
	if err != nil {
		return proof, err
	}

	ids := make([]int64, 0, len(theirs))
	idSeen := make(map[int64]bool, len(theirs))
	for _, p := range theirs {
		if !idSeen[p.ProductID] {
			idSeen[p.ProductID] = true
			ids = append(ids, p.ProductID)
		}
	}
	products, err := a.catalogs.ByIDs(ctx, ids)
	if err != nil {
		return proof, err
	}
	categoryOf := make(map[int64]string, len(products))
	for _, p := range products {
		categoryOf[p.ID] = p.Category
	}

	catCounts := make(map[string]int)
	for _, p := range theirs {
		if c := categoryOf[p.ProductID]; c != "" {
			catCounts[c]++
		}
	}
	cats := make([]CategoryCount, 0, len(catCounts))
	for c, n := range catCounts {
		cats = append(cats, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Count != cats[j].Count {
			return cats[i].Count > cats[j].Count
		}
		return cats[i].Category < cats[j].Category
	})
	if len(cats) > 3 {
		cats = cats[:3]
	}
	proof.TopCategoriesAmongSimilar = cats
	return proof, nil
}
