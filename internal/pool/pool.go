package pool

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNoCapacity is returned by TryAcquire when every engine is busy.
	ErrNoCapacity = errors.New("no idle engine available")

	// ErrDraining is returned once the pool has begun shutting down.
	ErrDraining = errors.New("pool is draining")
)

// EnginePool hands out idle engines. Implementations must be safe for
// concurrent acquirers.
type EnginePool interface {
	// Acquire blocks until an engine is idle or ctx is done.
	Acquire(ctx context.Context) (Engine, error)

	// TryAcquire returns an idle engine or ErrNoCapacity without blocking.
	TryAcquire() (Engine, error)

	// Release returns an engine to the idle set.
	Release(e Engine)

	// Drain stops further acquisition. Engines released afterwards are
	// discarded instead of going back to the idle set.
	Drain()
}

// Pool is a fixed-size engine pool. An engine is idle while it sits in the
// channel, busy between Acquire and Release, and draining once Drain has
// been called.
type Pool struct {
	idle chan Engine
	size int

	mu       sync.Mutex
	draining bool
}

func New(engines ...Engine) *Pool {
	idle := make(chan Engine, len(engines))
	for _, e := range engines {
		idle <- e
	}
	return &Pool{idle: idle, size: len(engines)}
}

func (p *Pool) Acquire(ctx context.Context) (Engine, error) {
	if p.isDraining() {
		return nil, ErrDraining
	}
	select {
	case e := <-p.idle:
		if p.isDraining() {
			return nil, ErrDraining
		}
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) TryAcquire() (Engine, error) {
	if p.isDraining() {
		return nil, ErrDraining
	}
	select {
	case e := <-p.idle:
		return e, nil
	default:
		return nil, ErrNoCapacity
	}
}

func (p *Pool) Release(e Engine) {
	if p.isDraining() {
		return
	}
	select {
	case p.idle <- e:
	default:
		// Release of an engine the pool does not track; drop it.
	}
}

func (p *Pool) Drain() {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	// Empty the idle set so blocked acquirers cannot grab a slot after the
	// drain flag is up.
	for {
		select {
		case <-p.idle:
		default:
			return
		}
	}
}

// Size returns the total number of engines the pool was built with.
func (p *Pool) Size() int {
	return p.size
}

// IdleCount returns how many engines are currently idle.
func (p *Pool) IdleCount() int {
	return len(p.idle)
}

func (p *Pool) isDraining() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draining
}
