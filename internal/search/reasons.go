package search

import (
	"fmt"
	"strings"

	"smartshop/internal/catalog"
)

const genericMatchSummary = "Matched your search intent and keywords."

// synthesizeReason builds a grounded explanation for a result the oracle
// did not explain, from structured signals in priority order: query use
// case, profile use case, profile feature, audience fit, budget fit,
// review sentiment, then the short description. It never invents
// attributes absent from those signals.
func synthesizeReason(p catalog.Product, c Constraints) string {
	var parts []string

	if len(c.UseCases) > 0 {
		parts = append(parts, "Good for "+c.UseCases[0])
	}
	if prof := p.Profile; prof != nil {
		if len(prof.UseCases) > 0 {
			parts = append(parts, "Matches use case: "+prof.UseCases[0])
		}
		if len(prof.Features) > 0 {
			parts = append(parts, "Feature: "+prof.Features[0])
		}
	}
	if len(c.Audience) > 0 {
		parts = append(parts, "Fits "+c.Audience[0])
	}
	if c.PriceMax != nil {
		parts = append(parts, fmt.Sprintf("Within budget (<= $%d)", int(*c.PriceMax)))
	}
	if prof := p.Profile; prof != nil {
		if s := strings.TrimSpace(prof.ReviewSummary); s != "" {
			parts = append(parts, s)
		}
		if len(parts) == 0 {
			if s := strings.TrimSpace(prof.ShortDescription); s != "" {
				parts = append(parts, s)
			}
		}
	}

	if len(parts) == 0 {
		return genericMatchSummary
	}
	return strings.Join(parts, " • ")
}
