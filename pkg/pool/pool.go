// Package pool caches expensive cryptographic contexts, such as keyed HMAC
// instances and expanded AES key schedules, for reuse across chunks.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var ErrNilFactory = errors.New("pool factory is nil")

// Pool hands out instances of T built by a single factory. Idle instances
// live in a sync.Pool, so they are held per-P without a global lock and may
// be dropped by the garbage collector at any time.
type Pool[T any] struct {
	algorithm string
	factory   func() (T, error)
	reset     func(T)
	idle      sync.Pool

	leases        atomic.Int64
	constructions atomic.Int64
}

// Stats counts pool activity since creation.
type Stats struct {
	Leases        int64
	Constructions int64
}

// New builds a pool for algorithm. factory is called once immediately so an
// unusable algorithm or key fails here rather than inside Lease. reset, if
// non-nil, runs before an instance goes back to the pool.
func New[T any](algorithm string, factory func() (T, error), reset func(T)) (*Pool[T], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	first, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s: %w", algorithm, err)
	}
	p := &Pool[T]{
		algorithm: algorithm,
		factory:   factory,
		reset:     reset,
	}
	p.constructions.Add(1)
	p.idle.Put(&first)
	return p, nil
}

// Algorithm returns the name the pool was created with.
func (p *Pool[T]) Algorithm() string {
	return p.algorithm
}

// Lease returns a pooled instance or a freshly constructed one. The lease
// must be released exactly once, normally with defer. It fails only when the
// pool is empty and the factory fails, for example after the key it reads
// has been destroyed.
func (p *Pool[T]) Lease() (*Lease[T], error) {
	p.leases.Add(1)
	if v, ok := p.idle.Get().(*T); ok {
		return &Lease[T]{pool: p, item: v}, nil
	}
	item, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s: %w", p.algorithm, err)
	}
	p.constructions.Add(1)
	return &Lease[T]{pool: p, item: &item}, nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Leases:        p.leases.Load(),
		Constructions: p.constructions.Load(),
	}
}

func (p *Pool[T]) put(item *T) {
	if p.reset != nil {
		p.reset(*item)
	}
	p.idle.Put(item)
}

// Lease is a handle on a pooled instance.
type Lease[T any] struct {
	pool     *Pool[T]
	item     *T
	released bool
}

// Get returns the leased instance. It must not be used after Release.
func (l *Lease[T]) Get() T {
	if l.released {
		panic("pool: use of released lease")
	}
	return *l.item
}

// Release returns the instance to the pool. Later calls are no-ops.
func (l *Lease[T]) Release() {
	if l.released {
		return
	}
	l.released = true
	l.pool.put(l.item)
	l.item = nil
}
