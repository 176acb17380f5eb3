package reco

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartshop/internal/cache"
	"smartshop/internal/catalog"
	"smartshop/internal/config"
	"smartshop/internal/oracle"
	"smartshop/internal/social"
)

type fakeData struct {
	products  []catalog.Product
	purchases []catalog.Purchase
}

func (f *fakeData) ListAll(ctx context.Context) ([]catalog.Product, error) {
	return append([]catalog.Product(nil), f.products...), nil
}

func (f *fakeData) ByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []catalog.Product
	for _, p := range f.products {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeData) Categories(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeData) ForUser(ctx context.Context, userID int64, limit int) ([]catalog.Purchase, error) {
	var out []catalog.Purchase
	// stored oldest-first, served most-recent-first
	for i := len(f.purchases) - 1; i >= 0; i-- {
		if f.purchases[i].UserID == userID {
			out = append(out, f.purchases[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeData) UsersWhoAlsoBought(ctx context.Context, productIDs []int64, excludeUser int64) ([]int64, error) {
	want := map[int64]bool{}
	for _, id := range productIDs {
		want[id] = true
	}
	seen := map[int64]bool{}
	var out []int64
	for _, p := range f.purchases {
		if p.UserID != excludeUser && want[p.ProductID] && !seen[p.UserID] {
			seen[p.UserID] = true
			out = append(out, p.UserID)
		}
	}
	return out, nil
}

func (f *fakeData) ByUsers(ctx context.Context, userIDs []int64) ([]catalog.Purchase, error) {
	want := map[int64]bool{}
	for _, id := range userIDs {
		want[id] = true
	}
	var out []catalog.Purchase
	for _, p := range f.purchases {
		if want[p.UserID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// scriptedOracle returns a fixed response and counts calls.
type scriptedOracle struct {
	response string
	err      error
	calls    int
}

func (s *scriptedOracle) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *scriptedOracle) Configured() bool { return true }

func tenItemCatalog() []catalog.Product {
	var out []catalog.Product
	for i := 1; i <= 10; i++ {
		out = append(out, catalog.Product{
			ID:       int64(i),
			Name:     fmt.Sprintf("Item %d", i),
			Category: "General",
			Price:    float64(i * 5),
		})
	}
	return out
}

func newEngine(data *fakeData, client oracle.Client) (*Engine, cache.Cache) {
	store := cache.NewMemory()
	agg := social.NewAggregator(data, data)
	cfg := config.Default().Reco
	return NewEngine(data, data, store, client, agg, cfg), store
}

func TestRecommend_NoHistoryUnconfiguredOracle(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()}
	eng, _ := newEngine(data, oracle.Unconfigured())

	res, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 0, res.PurchaseCount)
	require.Len(t, res.Recommended, 4)
	// cheapest four, ascending
	for i, want := range []int64{1, 2, 3, 4} {
		assert.Equal(t, want, res.Recommended[i].ID)
	}
}

func TestRecommend_FallbackPrefersPurchasedCategories(t *testing.T) {
	products := []catalog.Product{
		{ID: 1, Name: "Mouse", Category: "Electronics", Price: 20},
		{ID: 2, Name: "Mug", Category: "Kitchen", Price: 5},
		{ID: 3, Name: "Keyboard", Category: "Electronics", Price: 40},
		{ID: 4, Name: "Pan", Category: "Kitchen", Price: 15},
	}
	data := &fakeData{
		products:  products,
		purchases: []catalog.Purchase{{ID: 1, UserID: 1, ProductID: 1, Quantity: 1}},
	}
	eng, _ := newEngine(data, oracle.Unconfigured())

	res, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	require.Len(t, res.Recommended, 3)
	// purchased-category item first despite higher price
	assert.Equal(t, int64(3), res.Recommended[0].ID)
	assert.Equal(t, int64(2), res.Recommended[1].ID)
	assert.Equal(t, int64(4), res.Recommended[2].ID)
}

func TestRecommend_CacheHitSkipsOracle(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()}
	client := &scriptedOracle{response: `{"recommended": [{"id": 2, "reason": "pairs nicely"}]}`}
	eng, _ := newEngine(data, client)

	first, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, client.calls)

	second, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, client.calls, "cache hit must not call the oracle")
	assert.Equal(t, first.Signature, second.Signature)

	ids := func(items []Item) []int64 {
		var out []int64
		for _, it := range items {
			out = append(out, it.ID)
		}
		return out
	}
	assert.Equal(t, ids(first.Recommended), ids(second.Recommended))
}

func TestRecommend_ForceBypassesCache(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()}
	client := &scriptedOracle{response: `{"recommended": [{"id": 2, "reason": "pairs nicely"}]}`}
	eng, _ := newEngine(data, client)

	_, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	res, err := eng.Recommend(context.Background(), 1, 4, true)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, client.calls)
}

func TestRecommend_SignatureChangeInvalidatesCache(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()}
	client := &scriptedOracle{response: `{"recommended": [{"id": 5, "reason": "good value"}]}`}
	eng, _ := newEngine(data, client)

	first, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)

	data.purchases = append(data.purchases, catalog.Purchase{ID: 1, UserID: 1, ProductID: 9, Quantity: 1})

	second, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.NotEqual(t, first.Signature, second.Signature)
	assert.Equal(t, 2, client.calls)
}

func TestRecommend_InventedIDFallsBack(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()}
	client := &scriptedOracle{response: "```json\n{\"recommended\": [{\"id\": 999, \"reason\": \"...\"}]}\n```"}
	eng, _ := newEngine(data, client)

	res, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	require.Len(t, res.Recommended, 4)
	for i, want := range []int64{1, 2, 3, 4} {
		assert.Equal(t, want, res.Recommended[i].ID)
	}
}

func TestRecommend_IDOutsidePromptWindowRejected(t *testing.T) {
	// 210 items, but the prompt only carries the first 200. An id beyond
	// the offered window must be rejected even though it exists in the
	// catalog.
	var products []catalog.Product
	for i := 1; i <= 210; i++ {
		products = append(products, catalog.Product{
			ID:       int64(i),
			Name:     fmt.Sprintf("Item %d", i),
			Category: "General",
			Price:    float64(i),
		})
	}
	data := &fakeData{products: products}
	client := &scriptedOracle{response: `{"recommended": [{"id": 205, "reason": "hidden pick"}, {"id": 2, "reason": "pairs nicely"}]}`}
	eng, _ := newEngine(data, client)

	res, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	require.Len(t, res.Recommended, 1)
	assert.Equal(t, int64(2), res.Recommended[0].ID)
	for _, it := range res.Recommended {
		assert.LessOrEqual(t, it.ID, int64(200))
	}
}

func TestRecommend_NeverReturnsPurchased(t *testing.T) {
	data := &fakeData{
		products: tenItemCatalog(),
		purchases: []catalog.Purchase{
			{ID: 1, UserID: 1, ProductID: 3, Quantity: 1},
		},
	}
	client := &scriptedOracle{response: `{"recommended": [{"id": 3, "reason": "you love it"}, {"id": 4, "reason": "new"}]}`}
	eng, _ := newEngine(data, client)

	res, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	for _, it := range res.Recommended {
		assert.NotEqual(t, int64(3), it.ID)
	}
}

func TestRecommend_DedupAndWordBound(t *testing.T) {
	long := strings.Repeat("word ", 30)
	data := &fakeData{products: tenItemCatalog()}
	client := &scriptedOracle{response: fmt.Sprintf(
		`{"recommended": [{"id": 2, "reason": "%s"}, {"id": 2, "reason": "again"}, {"id": 5, "reason": ""}]}`, long)}
	eng, _ := newEngine(data, client)

	res, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	require.Len(t, res.Recommended, 2)
	assert.Equal(t, int64(2), res.Recommended[0].ID)
	assert.LessOrEqual(t, len(strings.Fields(res.Recommended[0].Reason)), 18)
	assert.Equal(t, int64(5), res.Recommended[1].ID)
	assert.NotEmpty(t, res.Recommended[1].Reason)
}

func TestRecommend_AlsoBoughtAnnotation(t *testing.T) {
	data := &fakeData{
		products: tenItemCatalog(),
		purchases: []catalog.Purchase{
			{ID: 1, UserID: 1, ProductID: 7, Quantity: 1},
			{ID: 2, UserID: 2, ProductID: 7, Quantity: 1},
			{ID: 3, UserID: 2, ProductID: 9, Quantity: 1},
		},
	}
	client := &scriptedOracle{response: `{"recommended": [{"id": 9, "reason": "popular with similar shoppers"}]}`}
	eng, _ := newEngine(data, client)

	res, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	require.Len(t, res.Recommended, 1)
	assert.Equal(t, int64(9), res.Recommended[0].ID)
	assert.Equal(t, 1, res.Recommended[0].AlsoBoughtCount)
	require.Len(t, res.AlsoBought, 1)
	assert.Equal(t, int64(9), res.AlsoBought[0].ProductID)
}

func TestRecommend_FallbackDeterminism(t *testing.T) {
	data := &fakeData{
		products: tenItemCatalog(),
		purchases: []catalog.Purchase{
			{ID: 1, UserID: 1, ProductID: 2, Quantity: 1},
		},
	}
	eng, _ := newEngine(data, oracle.Unconfigured())

	first, err := eng.Recommend(context.Background(), 1, 4, true)
	require.NoError(t, err)
	second, err := eng.Recommend(context.Background(), 1, 4, true)
	require.NoError(t, err)

	require.Equal(t, len(first.Recommended), len(second.Recommended))
	for i := range first.Recommended {
		assert.Equal(t, first.Recommended[i].ID, second.Recommended[i].ID)
	}
}

func TestRecommend_SmallCatalogNeverPads(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()[:2]}
	eng, _ := newEngine(data, oracle.Unconfigured())

	res, err := eng.Recommend(context.Background(), 1, 4, false)
	require.NoError(t, err)
	assert.Len(t, res.Recommended, 2)
}

func TestInsights_UnconfiguredOracle(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()}
	eng, _ := newEngine(data, oracle.Unconfigured())

	res, err := eng.Insights(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Bullets, 1)
	assert.Contains(t, res.Bullets[0], "unavailable")
}

func TestInsights_BulletsParsedAndCached(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()}
	client := &scriptedOracle{response: `{"recommended": [], "bullets": ["- You favor low prices", "Great timing for upgrades", "", "Kitchen is trending", "Try bundles", "Watch for sales"]}`}
	eng, _ := newEngine(data, client)

	res, err := eng.Insights(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "You favor low prices", res.Bullets[0])
	for _, b := range res.Bullets {
		assert.NotEmpty(t, b)
		assert.LessOrEqual(t, len(strings.Fields(b)), 18)
	}

	again, err := eng.Insights(context.Background(), 1, false)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, res.Bullets, again.Bullets)
}

func TestInsights_PlainTextSalvage(t *testing.T) {
	data := &fakeData{products: tenItemCatalog()}
	client := &scriptedOracle{response: "no json here\njust some lines\n"}
	eng, _ := newEngine(data, client)

	res, err := eng.Insights(context.Background(), 1, false)
	require.NoError(t, err)
	require.NotEmpty(t, res.Bullets)
	assert.Equal(t, "no json here", res.Bullets[0])
}
