package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"smartshop/internal/cache"
	"smartshop/internal/catalog"
	"smartshop/internal/config"
	"smartshop/internal/logging"
	"smartshop/internal/oracle"
	"smartshop/internal/signature"
)

// Match is one search result with its grounded explanation.
type Match struct {
	catalog.Product
	MatchSummary string `json:"match_summary"`
}

// Result is the full search payload. InterpretedQuery is nil only for an
// empty query.
type Result struct {
	InterpretedQuery *Constraints `json:"interpreted_query"`
	Results          []Match      `json:"results"`
	Cached           bool         `json:"cached"`
}

// cachedPayload is what gets stored under the query signature. Shared
// across users; expires by TTL only.
type cachedPayload struct {
	InterpretedQuery Constraints `json:"interpreted_query"`
	Results          []Match     `json:"results"`
}

const (
	rerankCap           = 12
	defaultRerankReason = "Matches your needs and budget."
	maxSummaryWords     = 18
)

// Engine runs the smart search pipeline.
type Engine struct {
	catalogs catalog.Reader
	store    cache.Cache
	client   oracle.Client
	cfg      config.SearchConfig
	ttl      time.Duration
}

func NewEngine(catalogs catalog.Reader, store cache.Cache, client oracle.Client, cfg config.SearchConfig, ttl time.Duration) *Engine {
	return &Engine{catalogs: catalogs, store: store, client: client, cfg: cfg, ttl: ttl}
}

// cacheKey hashes the normalized query text together with its parsed
// constraints, so any change to either yields a fresh entry.
func cacheKey(query string, c Constraints) (string, error) {
	sig, err := signature.Hash(map[string]interface{}{
		"q":      strings.ToLower(strings.TrimSpace(query)),
		"parsed": c,
	})
	if err != nil {
		return "", err
	}
	return "smartsearch:" + sig, nil
}

// Search answers a free-text query. An empty query returns an empty result
// immediately, with no interpretation and no cache traffic.
func (e *Engine) Search(ctx context.Context, query string, limit int) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Results: []Match{}}, nil
	}

	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}

	categories, err := e.catalogs.Categories(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load categories: %w", err)
	}

	parsed := parseQuery(ctx, e.client, query, categories)

	key, err := cacheKey(query, parsed)
	if err != nil {
		return Result{}, fmt.Errorf("cache key: %w", err)
	}
	var payload cachedPayload
	if cache.GetJSON(e.store, key, &payload) {
		logging.SearchDebug("Cache hit for %q", query)
		interpreted := payload.InterpretedQuery
		return Result{InterpretedQuery: &interpreted, Results: payload.Results, Cached: true}, nil
	}

	items, err := e.catalogs.ListAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load catalog: %w", err)
	}

	candidates := e.buildPool(items, parsed, false)
	if len(candidates) == 0 {
		// Broaden once: drop category and token filters, keep the budget.
		logging.SearchDebug("Empty pool for %q, broadening", query)
		candidates = e.buildPool(items, parsed, true)
	}

	ranked := e.rerank(ctx, query, parsed, candidates, min(limit, rerankCap))
	if len(ranked) == 0 {
		sortByRelevance(candidates, parsed)
		for _, p := range candidates {
			ranked = append(ranked, rankedItem{ID: p.ID})
			if len(ranked) == min(limit, rerankCap) {
				break
			}
		}
	}

	byID := make(map[int64]catalog.Product, len(items))
	for _, p := range items {
		byID[p.ID] = p
	}
	results := make([]Match, 0, len(ranked))
	for _, r := range ranked {
		p, ok := byID[r.ID]
		if !ok {
			continue
		}
		summary := r.Reason
		if summary == "" {
			summary = synthesizeReason(p, parsed)
		}
		results = append(results, Match{Product: p, MatchSummary: oracle.LimitWords(summary, maxSummaryWords)})
		if len(results) == limit {
			break
		}
	}

	payload = cachedPayload{InterpretedQuery: parsed, Results: results}
	if err := cache.SetJSON(e.store, key, payload, e.ttl); err != nil {
		logging.SearchWarn("Cache write failed for %q: %v", query, err)
	}
	return Result{InterpretedQuery: &parsed, Results: results, Cached: false}, nil
}

// buildPool filters and orders the catalog into a bounded candidate pool.
// broadened keeps only the price ceiling, for the single retry after an
// empty strict pass.
func (e *Engine) buildPool(items []catalog.Product, c Constraints, broadened bool) []catalog.Product {
	tokens := matchTokens(c)

	pool := make([]catalog.Product, 0, len(items))
	for _, p := range items {
		if broadened {
			if c.PriceMax != nil && p.Price > *c.PriceMax {
				continue
			}
			pool = append(pool, p)
			continue
		}
		if len(c.Categories) > 0 && !containsString(c.Categories, p.Category) {
			continue
		}
		if c.PriceMin != nil && p.Price < *c.PriceMin {
			continue
		}
		if c.PriceMax != nil && p.Price > *c.PriceMax {
			continue
		}
		text := strings.ToLower(p.Name + " " + p.Category)
		if len(tokens) > 0 && !matchesAny(text, tokens) {
			continue
		}
		if matchesAny(text, c.Exclude) {
			continue
		}
		pool = append(pool, p)
	}

	switch c.Sort {
	case SortPriceAsc:
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Price < pool[j].Price })
	case SortPriceDesc:
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Price > pool[j].Price })
	default:
		// relevance and newest both start from newest-first
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].ID > pool[j].ID })
	}

	if len(pool) > e.cfg.CandidatePool {
		pool = pool[:e.cfg.CandidatePool]
	}
	return pool
}

// matchTokens merges every positive token list for name/category matching,
// lowercased and deduplicated, preserving order.
func matchTokens(c Constraints) []string {
	var out []string
	seen := map[string]bool{}
	for _, list := range [][]string{c.MustInclude, c.Keywords, c.UseCases, c.Audience} {
		for _, t := range list {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func matchesAny(text string, tokens []string) bool {
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type rankedItem struct {
	ID     int64
	Reason string
}

// candidateForPrompt is the compact candidate shape offered to the
// reranking oracle, including generated profile signals when present.
type candidateForPrompt struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	Price            float64 `json:"price"`
	ShortDescription string  `json:"ai_short_description"`
	ReviewSummary    string  `json:"ai_review_summary"`
}

// rerank asks the oracle to order the candidate window with grounded
// reasons. It only runs for recommend intent with a configured oracle;
// every failure mode returns nil so the caller falls back to scoring.
// Returned ids are validated against the exact window offered.
func (e *Engine) rerank(ctx context.Context, query string, c Constraints, candidates []catalog.Product, maxItems int) []rankedItem {
	if c.Intent != IntentRecommend || !e.client.Configured() || len(candidates) == 0 {
		return nil
	}

	window := candidates
	if len(window) > e.cfg.RerankWindow {
		window = window[:e.cfg.RerankWindow]
	}
	compact := make([]candidateForPrompt, len(window))
	valid := make(map[int64]bool, len(window))
	for i, p := range window {
		cand := candidateForPrompt{ID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price}
		if p.Profile != nil {
			cand.ShortDescription = strings.TrimSpace(p.Profile.ShortDescription)
			cand.ReviewSummary = strings.TrimSpace(p.Profile.ReviewSummary)
		}
		compact[i] = cand
		valid[p.ID] = true
	}

	constraintsJSON, _ := json.Marshal(c)
	candidatesJSON, _ := json.Marshal(compact)
	prompt := fmt.Sprintf(`You are a smart search reranker for an e-commerce shop.

USER QUERY:
%s

INTERPRETED CONSTRAINTS:
%s

CANDIDATE PRODUCTS (choose ONLY from these):
%s

Task:
Return the best %d products in ranked order.

Reason rules (STRICT):
- Each reason MUST be grounded ONLY in provided fields:
  name, category, price, ai_short_description, ai_review_summary, and interpreted constraints.
- Each reason MUST be <= 18 words.
- Avoid generic phrasing ("based on your intent", "great choice", "recommended for you").
- Prefer: use case + feature/benefit + review sentiment + budget fit (if applicable).

Output JSON ONLY (no extra text):
{
  "ranked": [
    {"id": 123, "reason": "..."}
  ]
}`, query, constraintsJSON, candidatesJSON, maxItems)

	text, err := e.client.Complete(ctx, prompt)
	if err != nil {
		logging.SearchWarn("Rerank failed for %q: %v", query, err)
		return nil
	}
	var answer struct {
		Ranked []struct {
			ID     int64  `json:"id"`
			Reason string `json:"reason"`
		} `json:"ranked"`
	}
	if !oracle.ExtractObject(text, &answer) {
		logging.SearchWarn("Unparsable rerank answer for %q", query)
		return nil
	}

	seen := make(map[int64]bool, len(answer.Ranked))
	out := make([]rankedItem, 0, maxItems)
	for _, it := range answer.Ranked {
		if !valid[it.ID] || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		reason := oracle.LimitWords(it.Reason, maxSummaryWords)
		if reason == "" {
			reason = defaultRerankReason
		}
		out = append(out, rankedItem{ID: it.ID, Reason: reason})
		if len(out) == maxItems {
			break
		}
	}
	return out
}
