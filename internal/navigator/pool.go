// Package navigator owns everything that touches the network: the handle
// pool, the headless browser handles, and the static HTTP fallback.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"curatorscan/internal/crawl"
)

// ErrPoolClosed is returned by Acquire after Close has begun.
var ErrPoolClosed = errors.New("handle pool closed")

// Factory creates one navigation handle. Pools call it lazily, so the first
// N acquisitions pay the creation cost and later ones reuse idle handles.
type Factory func(ctx context.Context) (crawl.Handle, error)

// HandlePool is a fixed-capacity pool of reusable handles. Healthy handles
// are recycled; unhealthy ones are destroyed and their slot freed so the
// next Acquire creates a replacement.
type HandlePool struct {
	factory Factory
	slots   chan struct{}
	logger  *zap.Logger

	mu     sync.Mutex
	idle   []crawl.Handle
	closed bool
}

// NewHandlePool builds a pool of at most capacity live handles.
func NewHandlePool(capacity int, factory Factory, logger *zap.Logger) (*HandlePool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pool capacity must be positive, got %d", capacity)
	}
	if factory == nil {
		return nil, errors.New("pool factory must not be nil")
	}
	return &HandlePool{
		factory: factory,
		slots:   make(chan struct{}, capacity),
		logger:  logger,
	}, nil
}

// Acquire blocks until a slot is free, then returns an idle handle or a
// freshly created one. A factory failure frees the slot again so the error
// costs nothing but the attempt.
func (p *HandlePool) Acquire(ctx context.Context) (crawl.Handle, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("handle slot wait: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	h, err := p.factory(ctx)
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("create handle: %w", err)
	}
	return h, nil
}

// Release checks a handle back in. Unhealthy handles are destroyed instead
// of recycled; either way the slot becomes available.
func (p *HandlePool) Release(h crawl.Handle, healthy bool) {
	if h == nil {
		return
	}
	p.mu.Lock()
	recycle := healthy && !p.closed
	if recycle {
		p.idle = append(p.idle, h)
	}
	p.mu.Unlock()

	if !recycle {
		if err := h.Close(); err != nil {
			p.logger.Warn("closing discarded handle", zap.Error(err))
		}
	}
	<-p.slots
}

// Close waits for every leased handle to be checked back in, then destroys
// all idle handles. Acquire fails with ErrPoolClosed from this point on.
func (p *HandlePool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for i := 0; i < cap(p.slots); i++ {
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("waiting for leased handles: %w", ctx.Err())
		}
	}

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, h := range idle {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
