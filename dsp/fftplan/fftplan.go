package fftplan

import (
	"fmt"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Plan performs a forward complex DFT of a fixed length.
//
// A Plan is safe for concurrent use by multiple goroutines once obtained
// from a Planner: each call operates only on the buffers passed to it.
type Plan interface {
	// Len returns the transform length this plan was built for.
	Len() int
	// Forward writes the forward DFT of src into dst. len(src) and len(dst)
	// must both equal Len().
	Forward(dst, src []complex128) error
}

type plan64 struct {
	n     int
	inner *algofft.Plan64
}

func (p *plan64) Len() int { return p.n }

func (p *plan64) Forward(dst, src []complex128) error {
	if len(src) != p.n || len(dst) != p.n {
		return fmt.Errorf("fftplan: buffer length mismatch: len(src)=%d len(dst)=%d want=%d", len(src), len(dst), p.n)
	}
	return p.inner.Forward(dst, src)
}

// Planner caches one forward-FFT plan per transform length.
//
// Plan acquisition is serialized by a mutex held only for the map lookup (or
// the occasional build-and-insert on miss); the mutex is never held while a
// Plan's Forward runs, so transforms on already-cached plans never
// contend with each other regardless of how many goroutines share this
// Planner.
type Planner struct {
	mu    sync.Mutex
	plans map[int]Plan
}

// New returns an empty Planner ready for concurrent use.
func New() *Planner {
	return &Planner{plans: make(map[int]Plan)}
}

// Forward returns a cached (or newly built) Plan for length n.
func (p *Planner) Forward(n int) (Plan, error) {
	if n <= 0 {
		return nil, fmt.Errorf("fftplan: length must be > 0: %d", n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pl, ok := p.plans[n]; ok {
		return pl, nil
	}

	inner, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("fftplan: build plan for length %d: %w", n, err)
	}

	pl := &plan64{n: n, inner: inner}
	p.plans[n] = pl

	return pl, nil
}
