package window

import "sync"

// Cache memoizes periodic Hann windows by length with shared read access.
//
// Multiple goroutines may call Hann concurrently, for the same or
// different lengths. A cache miss computes the window with no lock held
// and then inserts it under a brief exclusive lock; readers never block on
// anything but that insert. If two
// goroutines race on an absent length, both may compute it — the result is
// identical either way since generation is pure, so the last write simply
// wins and all later readers observe a cached value.
type Cache struct {
	mu   sync.RWMutex
	byLn map[int][]float32
}

// NewCache returns an empty, ready-to-use Cache.
func NewCache() *Cache {
	return &Cache{byLn: make(map[int][]float32)}
}

// Hann returns a shared, read-only length-n periodic Hann window, generating
// and caching it on first request. Callers must not mutate the returned
// slice; it is shared across all callers that request the same length.
func (c *Cache) Hann(n int) []float32 {
	if n < 1 {
		return nil
	}

	c.mu.RLock()
	w, ok := c.byLn[n]
	c.mu.RUnlock()
	if ok {
		return w
	}

	w = generateHann32(n)

	c.mu.Lock()
	c.byLn[n] = w
	c.mu.Unlock()

	return w
}

// generateHann32 computes the periodic Hann window in float32 directly from
// Generate(TypeHann, n, WithPeriodic()), which already implements
// w[i] = 0.5*(1-cos(2*pi*i/n)).
func generateHann32(n int) []float32 {
	coeffs := Generate(TypeHann, n, WithPeriodic())

	out := make([]float32, len(coeffs))
	for i, v := range coeffs {
		out[i] = float32(v)
	}

	return out
}
