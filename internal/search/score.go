package search

import (
	"sort"
	"strings"

	"smartshop/internal/catalog"
)

// Heuristic relevance weights. Exact requested terms dominate, general
// keywords matter more than soft signals, and category agreement adds a
// flat bonus.
const (
	mustIncludeWeight = 6
	keywordWeight     = 3
	useCaseWeight     = 2
	categoryBonus     = 2
)

// relevanceScore is the deterministic token-overlap score over a product's
// name and category.
func relevanceScore(p catalog.Product, c Constraints) int {
	text := strings.ToLower(p.Name + " " + p.Category)
	s := 0
	for _, t := range c.MustInclude {
		if strings.Contains(text, strings.ToLower(t)) {
			s += mustIncludeWeight
		}
	}
	for _, t := range c.Keywords {
		if strings.Contains(text, strings.ToLower(t)) {
			s += keywordWeight
		}
	}
	for _, t := range c.UseCases {
		if strings.Contains(text, strings.ToLower(t)) {
			s += useCaseWeight
		}
	}
	for _, cat := range c.Categories {
		if p.Category == cat {
			s += categoryBonus
			break
		}
	}
	return s
}

// sortByRelevance orders candidates by descending score. The sort is stable
// so ties keep their incoming (catalog) order and repeated calls produce
// identical lists. Only applied when the sort mode is "relevance"; explicit
// price/newest modes bypass scoring.
func sortByRelevance(candidates []catalog.Product, c Constraints) {
	if c.Sort != SortRelevance {
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return relevanceScore(candidates[i], c) > relevanceScore(candidates[j], c)
	})
}
