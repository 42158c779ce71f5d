package imageprovider

import (
	"math/rand/v2"
	"sync"
)

// Selector picks an index in [0, n) from a non-empty candidate page.
type Selector interface {
	Pick(n int) int
}

type firstSelector struct{}

func (firstSelector) Pick(int) int { return 0 }

// FirstResult always picks the provider's top-ranked candidate, so repeated
// runs over the same data produce the same image.
func FirstResult() Selector {
	return firstSelector{}
}

type randomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *randomSelector) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// RandomResult picks uniformly from the first page. A zero seed draws a
// fresh seed; any other seed makes the sequence reproducible.
func RandomResult(seed int64) Selector {
	s := uint64(seed)
	if seed == 0 {
		s = rand.Uint64()
	}
	return &randomSelector{rng: rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))}
}
