// Package clientregistry caches per-tenant resource handles keyed by their
// decrypted connection identity.
package clientregistry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ErrEvicted is returned to callers whose in-flight build was overtaken by
// an Evict or EvictAll for the same key. The stale handle is closed.
var ErrEvicted = errors.New("clientregistry: key evicted during build")

// Builder constructs a handle for key. It must honour ctx cancellation.
type Builder[H any] func(ctx context.Context, key string) (H, error)

// Closer releases a handle on eviction.
type Closer[H any] func(H) error

// Registry holds at most one live handle per key. Concurrent misses for the
// same key share a single Builder call; failed builds are not cached.
type Registry[H any] struct {
	name   string
	build  Builder[H]
	close  Closer[H]
	group  singleflight.Group
	mu     sync.RWMutex
	items  map[string]H
	builds atomic.Int64

	// gens and epoch advance on Evict and EvictAll; guarded by mu.
	gens  map[string]uint64
	epoch uint64
	hooks Hooks
}

// Hooks observe registry activity, typically for metrics.
type Hooks struct {
	OnBuild func(name string, err error)
	OnSize  func(name string, n int)
}

type Option[H any] func(*Registry[H])

func WithCloser[H any](c Closer[H]) Option[H] {
	return func(r *Registry[H]) { r.close = c }
}

func WithHooks[H any](h Hooks) Option[H] {
	return func(r *Registry[H]) { r.hooks = h }
}

func New[H any](name string, build Builder[H], opts ...Option[H]) *Registry[H] {
	r := &Registry[H]{
		name:  name,
		build: build,
		items: make(map[string]H),
		gens:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the cached handle for key or builds it.
func (r *Registry[H]) Get(ctx context.Context, key string) (H, error) {
	return r.GetFunc(ctx, key, r.build)
}

// GetFunc is Get with a per-call builder, for keys that do not carry
// everything needed to construct the handle.
func (r *Registry[H]) GetFunc(ctx context.Context, key string, build Builder[H]) (H, error) {
	var zero H
	if build == nil {
		return zero, errors.New("clientregistry: no builder")
	}

	r.mu.RLock()
	h, ok := r.items[key]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	// The flight keeps the first caller's deadline but not its cancellation,
	// since other callers may be waiting on the same build.
	ch := r.group.DoChan(key, func() (any, error) {
		r.mu.RLock()
		if existing, ok := r.items[key]; ok {
			r.mu.RUnlock()
			return existing, nil
		}
		gen, epoch := r.gens[key], r.epoch
		r.mu.RUnlock()

		buildCtx, cancel := detach(ctx)
		defer cancel()
		built, err := build(buildCtx, key)
		if r.hooks.OnBuild != nil {
			r.hooks.OnBuild(r.name, err)
		}
		if err != nil {
			return nil, err
		}
		r.builds.Add(1)

		r.mu.Lock()
		if r.gens[key] != gen || r.epoch != epoch {
			r.mu.Unlock()
			_ = r.closeHandle(built)
			return nil, ErrEvicted
		}
		if existing, ok := r.items[key]; ok {
			r.mu.Unlock()
			_ = r.closeHandle(built)
			return existing, nil
		}
		r.items[key] = built
		n := len(r.items)
		r.mu.Unlock()
		r.reportSize(n)
		return built, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(H), nil
	}
}

// Evict drops and closes the handle for key, if present. A build for key
// still in flight is discarded when it finishes.
func (r *Registry[H]) Evict(key string) error {
	r.mu.Lock()
	r.gens[key]++
	h, ok := r.items[key]
	if ok {
		delete(r.items, key)
	}
	n := len(r.items)
	r.mu.Unlock()
	r.group.Forget(key)

	if !ok {
		return nil
	}
	r.reportSize(n)
	return r.closeHandle(h)
}

// EvictAll closes every cached handle. Used on shutdown.
func (r *Registry[H]) EvictAll() error {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]H)
	r.epoch++
	r.mu.Unlock()

	var errs []error
	for key, h := range items {
		r.group.Forget(key)
		if err := r.closeHandle(h); err != nil {
			errs = append(errs, err)
		}
	}
	r.reportSize(0)
	return errors.Join(errs...)
}

func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Constructed counts successful builds over the registry lifetime.
func (r *Registry[H]) Constructed() int64 {
	return r.builds.Load()
}

func (r *Registry[H]) closeHandle(h H) error {
	if r.close == nil {
		return nil
	}
	return r.close(h)
}

func (r *Registry[H]) reportSize(n int) {
	if r.hooks.OnSize != nil {
		r.hooks.OnSize(r.name, n)
	}
}

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithCancel(base)
}
