package reco

import (
	"sort"

	"smartshop/internal/catalog"
)

// fallbackRanking is the deterministic no-oracle path. With purchase
// history, unpurchased items in an already-purchased category rank first,
// cheaper first within each band. Without history, the whole catalog ranks
// by ascending price. Ties preserve catalog order so repeated calls over
// the same state return identical lists.
func fallbackRanking(items []catalog.Product, purchases []catalog.Purchase, maxItems int) []catalog.Product {
	owned := make(map[int64]bool, len(purchases))
	for _, p := range purchases {
		owned[p.ProductID] = true
	}
	ownedCategories := make(map[string]bool)
	for _, item := range items {
		if owned[item.ID] {
			ownedCategories[item.Category] = true
		}
	}

	candidates := make([]catalog.Product, 0, len(items))
	for _, item := range items {
		if !owned[item.ID] {
			candidates = append(candidates, item)
		}
	}

	if len(ownedCategories) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			ci, cj := ownedCategories[candidates[i].Category], ownedCategories[candidates[j].Category]
			if ci != cj {
				return ci
			}
			return candidates[i].Price < candidates[j].Price
		})
	} else {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Price < candidates[j].Price
		})
	}

	if maxItems > 0 && len(candidates) > maxItems {
		candidates = candidates[:maxItems]
	}
	return candidates
}
