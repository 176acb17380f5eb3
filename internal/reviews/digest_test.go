package reviews

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartshop/internal/cache"
	"smartshop/internal/catalog"
	"smartshop/internal/oracle"
)

type fakeBackend struct {
	products map[int64]catalog.Product
	reviews  []catalog.Review
}

func (f *fakeBackend) ListAll(ctx context.Context) ([]catalog.Product, error) { return nil, nil }

func (f *fakeBackend) ByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) Categories(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeBackend) ReviewsForProduct(ctx context.Context, productID int64, limit int) ([]catalog.Review, error) {
	var out []catalog.Review
	for _, r := range f.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type scriptedOracle struct {
	response string
	calls    int
}

func (s *scriptedOracle) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.response, nil
}

func (s *scriptedOracle) Configured() bool { return true }

func newBackend() *fakeBackend {
	return &fakeBackend{
		products: map[int64]catalog.Product{
			1: {ID: 1, Name: "Kettle", Category: "Kitchen", Price: 30},
		},
		reviews: []catalog.Review{
			{ProductID: 1, UserID: 1, Rating: 5, Title: "Love it", Body: "Boils fast"},
		},
	}
}

func TestDigest_UnknownProduct(t *testing.T) {
	b := newBackend()
	svc := NewService(b, b, cache.NewMemory(), oracle.Unconfigured())

	_, err := svc.Digest(context.Background(), 99)
	assert.Error(t, err)
}

func TestDigest_UnconfiguredOracleYieldsEmpty(t *testing.T) {
	b := newBackend()
	svc := NewService(b, b, cache.NewMemory(), oracle.Unconfigured())

	d, err := svc.Digest(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, d.Cached)
	assert.Empty(t, d.Highlights)
	assert.Empty(t, d.SampleReviews)
	assert.NotEmpty(t, d.Label)
}

func TestDigest_GeneratesAndCaches(t *testing.T) {
	b := newBackend()
	client := &scriptedOracle{response: `{
		"highlights": ["Boils quickly", "  ", "Sturdy build"],
		"sample_reviews": [
			{"rating": 9, "title": "` + strings.Repeat("t", 100) + `", "body": "Good kettle"},
			{"rating": 0, "title": "", "body": ""},
			{"title": "Fine", "body": "Works"}
		]
	}`}
	svc := NewService(b, b, cache.NewMemory(), client)

	d, err := svc.Digest(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, d.Cached)
	assert.Equal(t, []string{"Boils quickly", "Sturdy build"}, d.Highlights)
	require.Len(t, d.SampleReviews, 2)
	assert.Equal(t, 5, d.SampleReviews[0].Rating) // clamped
	assert.Len(t, d.SampleReviews[0].Title, 80)
	assert.Equal(t, 5, d.SampleReviews[1].Rating) // defaulted
	assert.Equal(t, 1, client.calls)

	again, err := svc.Digest(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, d.Highlights, again.Highlights)
	assert.Equal(t, 1, client.calls, "cache hit must not call the oracle")
}

func TestDigest_TruncatesOnRuneBoundary(t *testing.T) {
	b := newBackend()
	client := &scriptedOracle{response: `{
		"highlights": [],
		"sample_reviews": [
			{"rating": 4, "title": "` + strings.Repeat("é", 100) + `", "body": "Chauffe vite"}
		]
	}`}
	svc := NewService(b, b, cache.NewMemory(), client)

	d, err := svc.Digest(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, d.SampleReviews, 1)
	title := d.SampleReviews[0].Title
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, 80, utf8.RuneCountInString(title))
}

func TestDigest_RegeneratesWhenReviewsChange(t *testing.T) {
	b := newBackend()
	client := &scriptedOracle{response: `{"highlights": ["Boils quickly"], "sample_reviews": []}`}
	svc := NewService(b, b, cache.NewMemory(), client)

	first, err := svc.Digest(context.Background(), 1)
	require.NoError(t, err)

	b.reviews = append(b.reviews, catalog.Review{ProductID: 1, UserID: 2, Rating: 2, Title: "Meh", Body: "Loud"})

	second, err := svc.Digest(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.NotEqual(t, first.Signature, second.Signature)
	assert.Equal(t, 2, client.calls)
}
