// Package search is the smart search pipeline: query parsing into typed
// constraints, catalog filtering with a single broadening retry, optional
// oracle reranking, deterministic scoring, and whole-response caching keyed
// by a signature over the query and its parsed constraints.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"smartshop/internal/logging"
	"smartshop/internal/oracle"
)

// Constraints is the structured interpretation of a free-text query.
// Categories only ever contain values from the known catalog category list.
type Constraints struct {
	Intent      string   `json:"intent"`
	Categories  []string `json:"categories"`
	PriceMin    *float64 `json:"price_min"`
	PriceMax    *float64 `json:"price_max"`
	Keywords    []string `json:"keywords"`
	UseCases    []string `json:"use_cases"`
	Audience    []string `json:"audience"`
	MustInclude []string `json:"must_include"`
	Exclude     []string `json:"exclude"`
	Sort        string   `json:"sort"`
}

const (
	IntentSearch    = "search"
	IntentRecommend = "recommend"

	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
)

const (
	maxParsedCategories = 5
	maxParsedTokens     = 10
	maxHeuristicTokens  = 8
	promptCategoryCap   = 60
)

func defaultConstraints() Constraints {
	return Constraints{
		Intent:      IntentSearch,
		Categories:  []string{},
		Keywords:    []string{},
		UseCases:    []string{},
		Audience:    []string{},
		MustInclude: []string{},
		Exclude:     []string{},
		Sort:        SortRelevance,
	}
}

var tokenSplit = regexp.MustCompile(`[\s,]+`)

// heuristicParse is the no-oracle parser: lowercase tokens of length >= 3
// become keywords, and a literal "recommend" substring flips the intent.
// It never infers prices or categories.
func heuristicParse(query string) Constraints {
	c := defaultConstraints()
	lower := strings.ToLower(query)
	for _, tok := range tokenSplit.Split(lower, -1) {
		if len(tok) < 3 {
			continue
		}
		c.Keywords = append(c.Keywords, tok)
		if len(c.Keywords) == maxHeuristicTokens {
			break
		}
	}
	if strings.Contains(lower, "recommend") {
		c.Intent = IntentRecommend
	}
	return c
}

// parseQuery turns a query into constraints, via the oracle when one is
// configured and via the heuristic otherwise. Oracle output is normalized
// and never trusted: unknown categories are discarded, list fields are
// deduplicated case-insensitively and capped, and the sort mode must be
// one of the known values. Any oracle failure degrades to the heuristic.
func parseQuery(ctx context.Context, client oracle.Client, query string, categories []string) Constraints {
	if strings.TrimSpace(query) == "" {
		return defaultConstraints()
	}
	if !client.Configured() {
		return heuristicParse(query)
	}

	if len(categories) > promptCategoryCap {
		categories = categories[:promptCategoryCap]
	}
	catJSON, _ := json.Marshal(categories)
	prompt := fmt.Sprintf(`You are a smart search query parser for an e-commerce shop.

User query:
%s

Available categories (choose ONLY from this list if category applies):
%s

Task:
Convert the query into a structured JSON object used for search/recommendation.

Rules:
- DO NOT invent categories not in the list.
- If query implies "recommend for me", set intent="recommend". Otherwise "search".
- Detect budget like "under $30", "below 20", "cheap", "student" (set price_max reasonably if implied).
- Extract use case like "hiking", "study", "gaming", "travel", "office".
- Output MUST be valid JSON ONLY, no extra text.

Schema:
{
  "intent": "search" | "recommend",
  "categories": ["<category>", "..."],
  "price_min": <number|null>,
  "price_max": <number|null>,
  "keywords": ["<keyword>", "..."],
  "use_cases": ["<use case>", "..."],
  "audience": ["<audience>", "..."],
  "must_include": ["<term>", "..."],
  "exclude": ["<term>", "..."],
  "sort": "relevance" | "price_asc" | "price_desc" | "newest"
}`, strings.TrimSpace(query), catJSON)

	text, err := client.Complete(ctx, prompt)
	if err != nil {
		logging.SearchWarn("Query parse via oracle failed: %v", err)
		return heuristicParse(query)
	}

	var raw Constraints
	if !oracle.ExtractObject(text, &raw) {
		logging.SearchWarn("Unparsable oracle answer for query parse")
		return heuristicParse(query)
	}
	return normalize(raw, categories)
}

func normalize(raw Constraints, known []string) Constraints {
	c := defaultConstraints()

	if strings.EqualFold(raw.Intent, IntentRecommend) {
		c.Intent = IntentRecommend
	}

	valid := make(map[string]bool, len(known))
	for _, k := range known {
		valid[k] = true
	}
	for _, cat := range raw.Categories {
		if valid[cat] {
			c.Categories = append(c.Categories, cat)
		}
		if len(c.Categories) == maxParsedCategories {
			break
		}
	}

	c.PriceMin = raw.PriceMin
	c.PriceMax = raw.PriceMax

	c.Keywords = dedupeTokens(raw.Keywords)
	c.UseCases = dedupeTokens(raw.UseCases)
	c.Audience = dedupeTokens(raw.Audience)
	c.MustInclude = dedupeTokens(raw.MustInclude)
	c.Exclude = dedupeTokens(raw.Exclude)

	switch strings.ToLower(raw.Sort) {
	case SortPriceAsc, SortPriceDesc, SortNewest:
		c.Sort = strings.ToLower(raw.Sort)
	}
	return c
}

// dedupeTokens trims, drops empties, removes case-insensitive duplicates
// preserving first-seen order, and caps the list.
func dedupeTokens(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
		if len(out) == maxParsedTokens {
			break
		}
	}
	return out
}
