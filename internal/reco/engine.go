package reco

import (
	"context"
	"fmt"
	"time"

	"smartshop/internal/cache"
	"smartshop/internal/catalog"
	"smartshop/internal/config"
	"smartshop/internal/logging"
	"smartshop/internal/oracle"
	"smartshop/internal/signature"
	"smartshop/internal/social"
)

// Engine orchestrates the recommendation pipeline. It holds no per-request
// state; concurrent requests for the same user may both recompute and both
// write the cache, which is safe because recompute is idempotent.
type Engine struct {
	catalogs  catalog.Reader
	purchases catalog.PurchaseReader
	store     cache.Cache
	client    oracle.Client
	proof     *social.Aggregator
	cfg       config.RecoConfig
}

func NewEngine(catalogs catalog.Reader, purchases catalog.PurchaseReader, store cache.Cache, client oracle.Client, proof *social.Aggregator, cfg config.RecoConfig) *Engine {
	return &Engine{
		catalogs:  catalogs,
		purchases: purchases,
		store:     store,
		client:    client,
		proof:     proof,
		cfg:       cfg,
	}
}

func recoKey(userID int64) string { return fmt.Sprintf("reco:user:%d", userID) }

// oracleAnswer is the schema the ranking prompt asks for.
type oracleAnswer struct {
	Recommended []struct {
		ID     int64  `json:"id"`
		Reason string `json:"reason"`
	} `json:"recommended"`
}

// Recommend runs the full pipeline for one user. maxItems <= 0 uses the
// configured default. force bypasses the cache check but still overwrites
// the entry afterwards.
func (e *Engine) Recommend(ctx context.Context, userID int64, maxItems int, force bool) (Result, error) {
	if maxItems <= 0 {
		maxItems = e.cfg.MaxItems
	}

	// Snapshot reads happen once, up front.
	history, err := e.purchases.ForUser(ctx, userID, 0)
	if err != nil {
		return Result{}, fmt.Errorf("load purchase history: %w", err)
	}
	items, err := e.catalogs.ListAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load catalog: %w", err)
	}

	byID := make(map[int64]catalog.Product, len(items))
	for _, p := range items {
		byID[p.ID] = p
	}

	sig, err := e.purchaseSignature(history, byID)
	if err != nil {
		return Result{}, fmt.Errorf("compute signature: %w", err)
	}

	signals, err := e.proof.AlsoBought(ctx, userID, e.cfg.SocialTopN)
	if err != nil {
		return Result{}, fmt.Errorf("also-bought signals: %w", err)
	}

	key := recoKey(userID)
	if !force {
		var entry cacheEntry
		if cache.GetJSON(e.store, key, &entry) && entry.Signature == sig && len(entry.Items) > 0 {
			logging.RecoDebug("Cache hit for user %d (sig %.12s)", userID, sig)
			return Result{
				Cached:        true,
				Signature:     sig,
				PurchaseCount: len(history),
				Recommended:   e.resolve(entry.Items, byID, signals),
				AlsoBought:    signals,
				UpdatedAt:     entry.UpdatedAt,
			}, nil
		}
	}
	logging.Reco("Recomputing recommendations for user %d (force=%v)", userID, force)

	picked := e.rankWithOracle(ctx, userID, history, items, byID, maxItems)
	if len(picked) == 0 {
		logging.Reco("Oracle path yielded nothing for user %d, using fallback ranking", userID)
		for _, p := range fallbackRanking(items, history, maxItems) {
			picked = append(picked, cachedItem{ID: p.ID, Reason: fallbackReason})
		}
	}

	now := time.Now().UTC()
	entry := cacheEntry{Signature: sig, Items: picked, UpdatedAt: now}
	if err := cache.SetJSON(e.store, key, entry, 0); err != nil {
		// A failed cache write degrades the next request to a recompute.
		logging.RecoWarn("Cache write failed for user %d: %v", userID, err)
	}

	return Result{
		Cached:        false,
		Signature:     sig,
		PurchaseCount: len(history),
		Recommended:   e.resolve(picked, byID, signals),
		AlsoBought:    signals,
		UpdatedAt:     now,
	}, nil
}

// purchaseSignature hashes the compact form of the recent purchase window.
func (e *Engine) purchaseSignature(history []catalog.Purchase, byID map[int64]catalog.Product) (string, error) {
	window := history
	if len(window) > e.cfg.SignatureWindow {
		window = window[:e.cfg.SignatureWindow]
	}
	compact := make([]compactPurchase, 0, len(window))
	for _, po := range window {
		p := byID[po.ProductID]
		compact = append(compact, compactPurchase{
			Name:     p.Name,
			Category: p.Category,
			Price:    p.Price,
			Qty:      po.Quantity,
		})
	}
	return signature.Hash(compact)
}

// rankWithOracle asks the oracle for a ranking and validates its answer.
// Every failure mode collapses to an empty slice; the caller falls back.
func (e *Engine) rankWithOracle(ctx context.Context, userID int64, history []catalog.Purchase, items []catalog.Product, byID map[int64]catalog.Product, maxItems int) []cachedItem {
	if !e.client.Configured() {
		return nil
	}

	owned := make(map[int64]bool, len(history))
	for _, po := range history {
		owned[po.ProductID] = true
	}

	window := history
	if len(window) > e.cfg.PromptWindow {
		window = window[:e.cfg.PromptWindow]
	}
	purchased := make([]promptProduct, 0, len(window))
	for _, po := range window {
		p := byID[po.ProductID]
		purchased = append(purchased, promptProduct{ID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price})
	}

	proof, err := e.proof.Proof(ctx, userID, 6)
	if err != nil {
		logging.RecoWarn("Social proof context failed for user %d: %v", userID, err)
		proof = social.ProofContext{}
	}

	offered := toPromptProducts(items, promptCatalogWindow)
	valid := make(map[int64]bool, len(offered))
	for _, p := range offered {
		valid[p.ID] = true
	}

	prompt := buildRankingPrompt(purchased, offered, proof, maxItems)
	text, err := e.client.Complete(ctx, prompt)
	if err != nil {
		logging.RecoWarn("Oracle ranking failed for user %d: %v", userID, err)
		return nil
	}

	var answer oracleAnswer
	if !oracle.ExtractObject(text, &answer) {
		logging.RecoWarn("Unparsable oracle answer for user %d", userID)
		return nil
	}

	// Validation gauntlet: containment in the offered window, purchased
	// exclusion, dedup preserving order, word bound, size cap. Containment
	// is checked against the exact slice the prompt carried, not the full
	// catalog, so an id the oracle was never shown cannot pass.
	seen := make(map[int64]bool, len(answer.Recommended))
	out := make([]cachedItem, 0, maxItems)
	for _, it := range answer.Recommended {
		if !valid[it.ID] {
			continue
		}
		if owned[it.ID] || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		reason := oracle.LimitWords(it.Reason, maxReasonWords)
		if reason == "" {
			reason = defaultReason
		}
		out = append(out, cachedItem{ID: it.ID, Reason: reason})
		if len(out) == maxItems {
			break
		}
	}
	return out
}

// resolve turns cached id/reason pairs into full items, dropping ids that
// no longer exist in the catalog and annotating co-purchase counts.
func (e *Engine) resolve(picked []cachedItem, byID map[int64]catalog.Product, signals []social.Signal) []Item {
	counts := make(map[int64]int, len(signals))
	for _, s := range signals {
		counts[s.ProductID] = s.Count
	}
	out := make([]Item, 0, len(picked))
	for _, it := range picked {
		p, ok := byID[it.ID]
		if !ok {
			continue
		}
		reason := it.Reason
		if reason == "" {
			reason = defaultReason
		}
		out = append(out, Item{Product: p, Reason: reason, AlsoBoughtCount: counts[it.ID]})
	}
	return out
}
