package reco

import (
	"encoding/json"
	"fmt"

	"smartshop/internal/catalog"
	"smartshop/internal/social"
)

// promptProduct is the bounded product shape sent to the oracle. Profiles
// stay out of this prompt to keep it small.
type promptProduct struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

const (
	promptCatalogWindow = 200
	proofItemsWindow    = 5
	proofCategoryWindow = 3
)

func toPromptProducts(items []catalog.Product, limit int) []promptProduct {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]promptProduct, len(items))
	for i, p := range items {
		out[i] = promptProduct{ID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price}
	}
	return out
}

// buildRankingPrompt assembles the selection prompt: purchased items to
// exclude, the catalog window to pick from, and compact social proof as a
// supporting signal only.
func buildRankingPrompt(purchased, catalogWindow []promptProduct, proof social.ProofContext, maxItems int) string {
	proofPayload := map[string]interface{}{
		"also_bought_top":              clipNamed(proof.AlsoBoughtNamed, proofItemsWindow),
		"top_categories_among_similar": clipCategories(proof.TopCategoriesAmongSimilar, proofCategoryWindow),
		"note":                         "Use these only as supporting signals; never invent purchases.",
	}

	purchasedJSON, _ := json.Marshal(purchased)
	catalogJSON, _ := json.Marshal(catalogWindow)
	proofJSON, _ := json.Marshal(proofPayload)

	return fmt.Sprintf(`You are an e-commerce recommendation engine.

Purchased products (do NOT recommend these):
%s

Full product catalog:
%s

Social proof signals from similar shoppers (optional supporting signal):
%s

Task:
Recommend up to %d products the user is likely to buy next.

Rules:
- Only recommend products from the catalog.
- Do NOT recommend any purchased product.
- You MAY use social proof signals to strengthen reasons (e.g., "popular with similar shoppers"),
  but do NOT invent purchases, users, or items not provided.
- Output MUST be valid JSON ONLY (no extra text).
- Each reason must be short (<= 18 words), friendly, and based on purchase patterns and/or social proof.
- Output schema:
{
  "recommended": [
    {"id": <int>, "reason": "<string>"}
  ]
}`, purchasedJSON, catalogJSON, proofJSON, maxItems)
}

func clipNamed(in []social.NamedSignal, n int) []social.NamedSignal {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func clipCategories(in []social.CategoryCount, n int) []social.CategoryCount {
	if len(in) > n {
		return in[:n]
	}
	return in
}
