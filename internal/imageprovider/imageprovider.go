// Package imageprovider resolves an entity name to a candidate image URL by
// querying a stock photo or encyclopedia search API.
package imageprovider

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/logger"
	"github.com/wanderlist/imagebackfill/internal/observability/metrics"
)

// DefaultPerPage bounds how many results a single search asks for.
const DefaultPerPage = 5

// ImageCandidate is one search result usable as an entity image.
type ImageCandidate struct {
	SourceURL    string `json:"source_url"`
	Provider     string `json:"provider"`
	Photographer string `json:"photographer,omitempty"`
	PageURL      string `json:"page_url,omitempty"`
}

// Searcher runs one search request against an image provider. It never
// follows pagination; at most perPage candidates are returned, in the
// provider's ranking order. Zero results is not an error.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, perPage int) ([]ImageCandidate, error)
}

// ImageResolver picks one candidate for a query. A nil candidate with a nil
// error means the provider had no results.
type ImageResolver struct {
	searcher Searcher
	perPage  int
	selector Selector
	limiter  *rate.Limiter
	cache    *queryCache
	metrics  *metrics.ImageProviderMetrics
	log      logger.Logger
}

// Option configures an ImageResolver.
type Option func(*ImageResolver)

// WithPerPage sets the search page size. Values below 1 are ignored.
func WithPerPage(n int) Option {
	return func(r *ImageResolver) {
		if n > 0 {
			r.perPage = n
		}
	}
}

// WithSelection sets the selection policy. The default is FirstResult.
func WithSelection(s Selector) Option {
	return func(r *ImageResolver) {
		if s != nil {
			r.selector = s
		}
	}
}

// WithRateLimiter shares a limiter between every resolver call. Cache hits do
// not consume tokens.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(r *ImageResolver) { r.limiter = l }
}

// WithCache enables the query cache. A ttl of zero leaves it disabled.
func WithCache(ttl time.Duration) Option {
	return func(r *ImageResolver) {
		if ttl > 0 {
			r.cache = newQueryCache(ttl)
		}
	}
}

// WithMetrics records search and cache metrics.
func WithMetrics(m *metrics.ImageProviderMetrics) Option {
	return func(r *ImageResolver) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *ImageResolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver wraps a Searcher with selection, rate limiting and caching.
func NewResolver(s Searcher, opts ...Option) *ImageResolver {
	r := &ImageResolver{
		searcher: s,
		perPage:  DefaultPerPage,
		selector: FirstResult(),
		log:      logger.NewDiscard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the underlying provider name.
func (r *ImageResolver) Name() string {
	return r.searcher.Name()
}

// Resolve searches for query and returns the selected candidate, or nil when
// the search found nothing.
func (r *ImageResolver) Resolve(ctx context.Context, query string) (*ImageCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	candidates, err := r.candidates(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		r.log.Debug("no image candidates", logger.String("query", query))
		return nil, nil
	}

	picked := candidates[r.selector.Pick(len(candidates))]
	return &picked, nil
}

func (r *ImageResolver) candidates(ctx context.Context, query string) ([]ImageCandidate, error) {
	key := normalizeQuery(query)
	if r.cache != nil {
		if cached, ok := r.cache.get(key); ok {
			if r.metrics != nil {
				r.metrics.IncrementCacheHits()
			}
			return cached, nil
		}
		if r.metrics != nil {
			r.metrics.IncrementCacheMisses()
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, r.providerError(err, query, "rate_limit_wait")
		}
	}

	start := time.Now()
	candidates, err := r.searcher.Search(ctx, query, r.perPage)
	elapsed := time.Since(start)
	if err != nil {
		r.observe("error", elapsed)
		return nil, r.providerError(err, query, "search")
	}
	if len(candidates) > r.perPage {
		candidates = candidates[:r.perPage]
	}

	if len(candidates) == 0 {
		r.observe("empty", elapsed)
	} else {
		r.observe("hit", elapsed)
	}
	if r.cache != nil {
		r.cache.set(key, candidates)
	}
	return candidates, nil
}

func (r *ImageResolver) observe(result string, elapsed time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveSearch(r.searcher.Name(), result, elapsed.Seconds())
	}
}

func (r *ImageResolver) providerError(err error, query, operation string) error {
	if errors.IsCategory(err, errors.CategoryImageProvider) {
		return err
	}
	return errors.New(err).
		Component("imageprovider").
		Category(errors.CategoryImageProvider).
		Context("provider", r.searcher.Name()).
		Context("query", query).
		Context("operation", operation).
		Build()
}

// normalizeQuery folds case and whitespace so equivalent names share a cache entry.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
