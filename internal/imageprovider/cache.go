package imageprovider

import (
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// queryCache holds candidate pages per normalised query. Empty pages are
// cached too, so names without images are not searched again within the ttl.
type queryCache struct {
	c *cache.Cache
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{c: cache.New(ttl, 2*ttl)}
}

func (q *queryCache) get(key string) ([]ImageCandidate, bool) {
	v, found := q.c.Get(key)
	if !found {
		return nil, false
	}
	candidates, ok := v.([]ImageCandidate)
	if !ok {
		return nil, false
	}
	return slices.Clone(candidates), true
}

func (q *queryCache) set(key string, candidates []ImageCandidate) {
	q.c.SetDefault(key, slices.Clone(candidates))
}
