package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartshop/internal/cache"
	"smartshop/internal/catalog"
	"smartshop/internal/config"
	"smartshop/internal/oracle"
)

type fakeCatalog struct {
	products []catalog.Product
}

func (f *fakeCatalog) ListAll(ctx context.Context) ([]catalog.Product, error) {
	return append([]catalog.Product(nil), f.products...), nil
}

func (f *fakeCatalog) ByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error) {
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

func (f *fakeCatalog) Categories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range f.products {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out, nil
}

type scriptedOracle struct {
	responses []string
	calls     int
}

func (s *scriptedOracle) Complete(ctx context.Context, prompt string) (string, error) {
	resp := s.responses[s.calls%len(s.responses)]
	s.calls++
	return resp, nil
}

func (s *scriptedOracle) Configured() bool { return true }

func gearCatalog() []catalog.Product {
	return []catalog.Product{
		{ID: 1, Name: "Wireless Earbuds", Category: "Electronics", Price: 79},
		{ID: 2, Name: "Wired Earbuds", Category: "Electronics", Price: 19},
		{ID: 3, Name: "Hiking Boots", Category: "Outdoors", Price: 120},
		{ID: 4, Name: "Trail Backpack", Category: "Outdoors", Price: 60,
			Profile: &catalog.Profile{UseCases: []string{"hiking"}, Features: []string{"rain cover"}}},
		{ID: 5, Name: "Desk Lamp", Category: "Office", Price: 25},
	}
}

func newSearchEngine(products []catalog.Product, client oracle.Client) *Engine {
	cfg := config.Default()
	return NewEngine(&fakeCatalog{products: products}, cache.NewMemory(), client, cfg.Search, cfg.SearchTTL())
}

func TestSearch_EmptyQuery(t *testing.T) {
	e := newSearchEngine(gearCatalog(), oracle.Unconfigured())

	res, err := e.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Nil(t, res.InterpretedQuery)
	assert.Empty(t, res.Results)
	assert.False(t, res.Cached)
}

func TestSearch_HeuristicParse(t *testing.T) {
	e := newSearchEngine(gearCatalog(), oracle.Unconfigured())

	res, err := e.Search(context.Background(), "wireless earbuds under $100", 10)
	require.NoError(t, err)
	require.NotNil(t, res.InterpretedQuery)
	assert.Equal(t, IntentSearch, res.InterpretedQuery.Intent)
	// heuristic extracts tokens only, never prices
	assert.Nil(t, res.InterpretedQuery.PriceMax)
	assert.Contains(t, res.InterpretedQuery.Keywords, "wireless")
	assert.Contains(t, res.InterpretedQuery.Keywords, "earbuds")

	require.NotEmpty(t, res.Results)
	for _, m := range res.Results {
		text := strings.ToLower(m.Name + " " + m.Category)
		assert.True(t, strings.Contains(text, "earbuds") || strings.Contains(text, "wireless") ||
			strings.Contains(text, "under") || strings.Contains(text, "100"))
	}
}

func TestSearch_HeuristicRecommendIntent(t *testing.T) {
	e := newSearchEngine(gearCatalog(), oracle.Unconfigured())

	res, err := e.Search(context.Background(), "recommend earbuds", 10)
	require.NoError(t, err)
	require.NotNil(t, res.InterpretedQuery)
	assert.Equal(t, IntentRecommend, res.InterpretedQuery.Intent)
}

func TestSearch_CacheHitIsIdentical(t *testing.T) {
	e := newSearchEngine(gearCatalog(), oracle.Unconfigured())

	first, err := e.Search(context.Background(), "earbuds", 10)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.Search(context.Background(), "earbuds", 10)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.Equal(t, len(first.Results), len(second.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].ID, second.Results[i].ID)
	}
}

func TestSearch_CacheHitSkipsOracle(t *testing.T) {
	client := &scriptedOracle{responses: []string{
		`{"intent": "search", "keywords": ["earbuds"], "sort": "relevance"}`,
	}}
	e := newSearchEngine(gearCatalog(), client)

	_, err := e.Search(context.Background(), "earbuds", 10)
	require.NoError(t, err)
	callsAfterFirst := client.calls

	res, err := e.Search(context.Background(), "earbuds", 10)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	// one more parse call happens, but no rerank beyond it
	assert.Equal(t, callsAfterFirst+1, client.calls)
}

func TestSearch_OracleParseDiscardsUnknownCategories(t *testing.T) {
	client := &scriptedOracle{responses: []string{
		`{"intent": "search", "categories": ["Electronics", "Imaginary"], "keywords": ["earbuds"]}`,
	}}
	e := newSearchEngine(gearCatalog(), client)

	res, err := e.Search(context.Background(), "earbuds", 10)
	require.NoError(t, err)
	require.NotNil(t, res.InterpretedQuery)
	assert.Equal(t, []string{"Electronics"}, res.InterpretedQuery.Categories)
}

func TestSearch_BroadenOnceKeepsBudget(t *testing.T) {
	client := &scriptedOracle{responses: []string{
		`{"intent": "search", "categories": ["Office"], "keywords": ["earbuds"], "price_max": 30}`,
	}}
	e := newSearchEngine(gearCatalog(), client)

	// Office + "earbuds" matches nothing; broadened pool keeps price_max only.
	res, err := e.Search(context.Background(), "earbuds for the office", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	for _, m := range res.Results {
		assert.LessOrEqual(t, m.Price, 30.0)
	}
}

func TestSearch_RerankValidatesIDs(t *testing.T) {
	client := &scriptedOracle{responses: []string{
		`{"intent": "recommend", "keywords": ["earbuds"]}`,
		`{"ranked": [{"id": 999, "reason": "invented"}, {"id": 2, "reason": "budget friendly with solid sound"}, {"id": 2, "reason": "dup"}]}`,
	}}
	e := newSearchEngine(gearCatalog(), client)

	res, err := e.Search(context.Background(), "recommend earbuds", 10)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, int64(2), res.Results[0].ID)
	assert.Equal(t, "budget friendly with solid sound", res.Results[0].MatchSummary)
}

func TestSearch_RerankFailureFallsBackToScoring(t *testing.T) {
	client := &scriptedOracle{responses: []string{
		`{"intent": "recommend", "keywords": ["earbuds"], "must_include": ["wireless"]}`,
		`not json at all`,
	}}
	e := newSearchEngine(gearCatalog(), client)

	res, err := e.Search(context.Background(), "recommend wireless earbuds", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	// must_include outweighs everything else
	assert.Equal(t, int64(1), res.Results[0].ID)
}

func TestSearch_PriceSortBypassesScoring(t *testing.T) {
	client := &scriptedOracle{responses: []string{
		`{"intent": "search", "keywords": ["earbuds"], "sort": "price_asc"}`,
	}}
	e := newSearchEngine(gearCatalog(), client)

	res, err := e.Search(context.Background(), "earbuds cheapest first", 10)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, int64(2), res.Results[0].ID)
	assert.Equal(t, int64(1), res.Results[1].ID)
}

func TestSearch_SummariesAreBounded(t *testing.T) {
	e := newSearchEngine(gearCatalog(), oracle.Unconfigured())

	res, err := e.Search(context.Background(), "hiking gear", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	for _, m := range res.Results {
		assert.NotEmpty(t, m.MatchSummary)
		assert.LessOrEqual(t, len(strings.Fields(m.MatchSummary)), 18)
	}
}

func TestSearch_SynthesizedReasonUsesProfile(t *testing.T) {
	client := &scriptedOracle{responses: []string{
		`{"intent": "search", "keywords": ["backpack"], "use_cases": ["hiking"]}`,
	}}
	e := newSearchEngine(gearCatalog(), client)

	res, err := e.Search(context.Background(), "backpack for hiking", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, int64(4), res.Results[0].ID)
	assert.Contains(t, res.Results[0].MatchSummary, "Good for hiking")
}

func TestHeuristicParse_TokenRules(t *testing.T) {
	c := heuristicParse("a to buy red, gaming-mouse NOW recommend")
	assert.Equal(t, IntentRecommend, c.Intent)
	assert.NotContains(t, c.Keywords, "a")
	assert.NotContains(t, c.Keywords, "to")
	assert.Contains(t, c.Keywords, "buy")
	assert.Contains(t, c.Keywords, "red")
	assert.Contains(t, c.Keywords, "gaming-mouse")

	long := heuristicParse("one two three four five six seven eight nine ten eleven")
	assert.Len(t, long.Keywords, 8)
}

func TestNormalize_Caps(t *testing.T) {
	raw := Constraints{
		Intent:   "RECOMMEND",
		Keywords: []string{"A", "a", " b ", "", "c", "d", "e", "f", "g", "h", "i", "j", "k"},
		Sort:     "PRICE_DESC",
	}
	c := normalize(raw, []string{"Electronics"})
	assert.Equal(t, IntentRecommend, c.Intent)
	assert.Len(t, c.Keywords, 10)
	assert.Equal(t, "A", c.Keywords[0])
	assert.Equal(t, SortPriceDesc, c.Sort)

	bad := normalize(Constraints{Sort: "sideways"}, nil)
	assert.Equal(t, SortRelevance, bad.Sort)
}
