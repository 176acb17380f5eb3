package reco

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
)

// InsightsResult carries the generated shopping-pattern bullets.
type InsightsResult struct {
	Cached    bool      `json:"cached"`
	Signature string    `json:"signature"`
	Bullets   []string  `json:"bullets"`
	UpdatedAt time.Time `json:"updated_at"`
}

type insightsEntry struct {
	Signature string    `json:"signature"`
	Bullets   []string  `json:"bullets"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	maxInsightBullets    = 7
	insightsPromptWindow = 10
	insightsRecsWindow   = 4
	unconfiguredBullet   = "AI Insights unavailable: missing API key."
	unavailableBullet    = "AI Insights temporarily unavailable."
	emptyInsightsBullet  = "No insights generated."
)

func insightsKey(userID int64) string { return fmt.Sprintf("insights:user:%d", userID) }

// Insights generates readable bullets about a user's shopping patterns.
// Same shape as Recommend: signature-gated cache, oracle call, bounded
// validation, and a stock bullet when the oracle is unusable.
func (e *Engine) Insights(ctx context.Context, userID int64, force bool) (InsightsResult, error) {
	history, err := e.purchases.ForUser(ctx, userID, 0)
	if err != nil {
		return InsightsResult{}, fmt.Errorf("load purchase history: %w", err)
	}
	items, err := e.catalogs.ListAll(ctx)
	if err != nil {
		return InsightsResult{}, fmt.Errorf("load catalog: %w", err)
	}
	byID := make(map[int64]catalog.Product, len(items))
	for _, p := range items {
		byID[p.ID] = p
	}

	sig, err := e.purchaseSignature(history, byID)
	if err != nil {
		return InsightsResult{}, fmt.Errorf("compute signature: %w", err)
	}

	key := insightsKey(userID)
	if !force {
		var entry insightsEntry
		if cache.GetJSON(e.store, key, &entry) && entry.Signature == sig && len(entry.Bullets) > 0 {
			return InsightsResult{Cached: true, Signature: sig, Bullets: entry.Bullets, UpdatedAt: entry.UpdatedAt}, nil
		}
	}

	recs, err := e.Recommend(ctx, userID, 0, false)
	if err != nil {
		return InsightsResult{}, err
	}
	bullets := e.generateBullets(ctx, userID, history, byID, recs.Recommended)

	now := time.Now().UTC()
	if err := cache.SetJSON(e.store, key, insightsEntry{Signature: sig, Bullets: bullets, UpdatedAt: now}, 0); err != nil {
		logging.InsightsWarn("Cache write failed for user %d: %v", userID, err)
	}
	return InsightsResult{Cached: false, Signature: sig, Bullets: bullets, UpdatedAt: now}, nil
}

func (e *Engine) generateBullets(ctx context.Context, userID int64, history []catalog.Purchase, byID map[int64]catalog.Product, recs []Item) []string {
	if !e.client.Configured() {
		return []string{unconfiguredBullet}
	}

	window := history
	if len(window) > insightsPromptWindow {
		window = window[:insightsPromptWindow]
	}
	purchases := make([]compactPurchase, 0, len(window))
	for _, po := range window {
		p := byID[po.ProductID]
		purchases = append(purchases, compactPurchase{Name: p.Name, Category: p.Category, Price: p.Price, Qty: po.Quantity})
	}

	recWindow := recs
	if len(recWindow) > insightsRecsWindow {
		recWindow = recWindow[:insightsRecsWindow]
	}
	recsCompact := make([]promptProduct, len(recWindow))
	for i, r := range recWindow {
		recsCompact[i] = promptProduct{ID: r.ID, Name: r.Name, Category: r.Category, Price: r.Price}
	}

	purchasesJSON, _ := json.Marshal(purchases)
	recsJSON, _ := json.Marshal(recsCompact)
	prompt := fmt.Sprintf(`You are a shopping analyst.

Purchase history JSON:
%s

Recommendations JSON:
%s

Return ONLY valid JSON in this exact schema:
{
  "bullets": ["string", "string", "string", "string", "string"]
}

Rules:
- 5 to 7 bullets total.
- Each bullet <= 18 words.
- Do NOT invent products not in the JSON.
- Make it easy to read.`, purchasesJSON, recsJSON)

	text, err := e.client.Complete(ctx, prompt)
	if err != nil {
		logging.InsightsWarn("Oracle insights failed for user %d: %v", userID, err)
		return []string{unavailableBullet}
	}

	var answer struct {
		Bullets []string `json:"bullets"`
	}
	if oracle.ExtractObject(text, &answer) && len(answer.Bullets) > 0 {
		cleaned := cleanBullets(answer.Bullets)
		if len(cleaned) > 0 {
			return cleaned
		}
		return []string{emptyInsightsBullet}
	}

	// The model skipped JSON. Salvage plain lines before giving up.
	if lines := cleanBullets(strings.Split(text, "\n")); len(lines) > 0 {
		return lines
	}
	return []string{emptyInsightsBullet}
}

func cleanBullets(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		s := oracle.LimitWords(b, maxReasonWords)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxInsightBullets {
			break
		}
	}
	return out
}
