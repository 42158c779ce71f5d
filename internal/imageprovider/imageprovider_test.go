package imageprovider

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/observability/metrics"
)

// mockSearcher is a Searcher returning canned pages keyed by query.
type mockSearcher struct {
	mu      sync.Mutex
	pages   map[string][]ImageCandidate
	err     error
	calls   int
	queries []string
	perPage int
}

func (m *mockSearcher) Name() string { return "mock" }

func (m *mockSearcher) Search(_ context.Context, query string, perPage int) ([]ImageCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.queries = append(m.queries, query)
	m.perPage = perPage
	if m.err != nil {
		return nil, m.err
	}
	return m.pages[query], nil
}

func (m *mockSearcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func candidates(n int) []ImageCandidate {
	out := make([]ImageCandidate, n)
	for i := range out {
		out[i] = ImageCandidate{SourceURL: fmt.Sprintf("https://img.example/%d.jpg", i), Provider: "mock"}
	}
	return out
}

func TestResolve_FirstResultByDefault(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{pages: map[string][]ImageCandidate{"Fells Point": candidates(3)}}
	r := NewResolver(s)

	got, err := r.Resolve(t.Context(), "  Fells Point ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://img.example/0.jpg", got.SourceURL)
	assert.Equal(t, []string{"Fells Point"}, s.queries, "query is trimmed before searching")
	assert.Equal(t, DefaultPerPage, s.perPage)
}

func TestResolve_NoResultsIsNotAnError(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{pages: map[string][]ImageCandidate{}}
	r := NewResolver(s)

	got, err := r.Resolve(t.Context(), "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolve_BlankQuerySkipsSearch(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{}
	r := NewResolver(s)

	got, err := r.Resolve(t.Context(), "   ")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, s.callCount())
}

func TestResolve_SearchErrorIsProviderError(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{err: fmt.Errorf("dial tcp: connection refused")}
	r := NewResolver(s)

	got, err := r.Resolve(t.Context(), "Canton")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageProvider))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestResolve_TruncatesToPerPage(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{pages: map[string][]ImageCandidate{"Hampden": candidates(10)}}
	r := NewResolver(s, WithPerPage(2), WithSelection(RandomResult(7)))

	for range 50 {
		got, err := r.Resolve(t.Context(), "Hampden")
		require.NoError(t, err)
		assert.Contains(t, []string{"https://img.example/0.jpg", "https://img.example/1.jpg"}, got.SourceURL)
	}
	assert.Equal(t, 2, s.perPage)
}

func TestResolve_CacheAvoidsRepeatSearches(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	m, err := metrics.NewImageProviderMetrics(registry)
	require.NoError(t, err)

	s := &mockSearcher{pages: map[string][]ImageCandidate{"Canton": candidates(2)}}
	r := NewResolver(s, WithCache(time.Minute), WithMetrics(m))

	for _, q := range []string{"Canton", "canton", " CANTON "} {
		got, err := r.Resolve(t.Context(), q)
		require.NoError(t, err)
		require.NotNil(t, got)
	}
	// Only the first spelling reaches the searcher; the rest hit the cache.
	assert.Equal(t, 1, s.callCount())
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheHits), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheMisses), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SearchRequests.WithLabelValues("mock", "hit")), 0)
}

func TestResolve_CacheStoresEmptyPages(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{pages: map[string][]ImageCandidate{}}
	r := NewResolver(s, WithCache(time.Minute))

	for range 3 {
		got, err := r.Resolve(t.Context(), "Unknown Place")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, 1, s.callCount())
}

func TestResolve_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{err: fmt.Errorf("boom")}
	r := NewResolver(s, WithCache(time.Minute))

	for range 2 {
		_, err := r.Resolve(t.Context(), "Canton")
		require.Error(t, err)
	}
	assert.Equal(t, 2, s.callCount())
}

func TestResolve_RateLimiterHonoursContext(t *testing.T) {
	t.Parallel()
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	s := &mockSearcher{pages: map[string][]ImageCandidate{"A": candidates(1), "B": candidates(1)}}
	r := NewResolver(s, WithRateLimiter(limiter))

	_, err := r.Resolve(t.Context(), "A")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Resolve(ctx, "B")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageProvider))
	assert.Equal(t, 1, s.callCount())
}

func TestRandomResult_SeedIsReproducible(t *testing.T) {
	t.Parallel()
	a, b := RandomResult(42), RandomResult(42)
	for range 20 {
		assert.Equal(t, a.Pick(5), b.Pick(5))
	}
}

func TestRandomResult_CoversPage(t *testing.T) {
	t.Parallel()
	s := RandomResult(1)
	seen := map[int]bool{}
	for range 500 {
		i := s.Pick(3)
		require.GreaterOrEqual(t, i, 0)
		require.Less(t, i, 3)
		seen[i] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 0, s.Pick(1))
}

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "fells point", normalizeQuery("  Fells   Point "))
	assert.Equal(t, "canton", normalizeQuery("CANTON"))
}
