// ============================================================================
// Aegis PoolRegistry - central coordinator over all deployed ThreadPools
// ============================================================================
//
// Package: internal/registry
// Purpose: the single place that knows about every model's ThreadPool,
// builds them lazily on first use, and fans out reload/destroy/listen
// operations across them.
//
// A central coordinator owning a map of subordinate workers behind a
// map+mutex, generalized from one job store to many named ThreadPools.
//
// ============================================================================

package registry

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aegis-run/poolrt/internal/broker"
	"github.com/aegis-run/poolrt/internal/pool"
	"github.com/aegis-run/poolrt/internal/worker"
	"github.com/aegis-run/poolrt/pkg/types"
)

// ErrPoolDestroyed is re-exported so callers of the registry do not
// need to import internal/pool to recognize a destroyed-pool error.
var ErrPoolDestroyed = pool.ErrPoolDestroyed

// ConfigFunc resolves per-model pool configuration. A nil ConfigFunc
// passed to New means every model gets pool.DefaultConfig().
type ConfigFunc func(model types.ModelName) pool.Config

// entry is the lazy façade over one model's ThreadPool: a pool is not
// constructed, nor are its Threads started, until the first call that
// needs it actually arrives. The transition from unconstructed to live
// happens exactly once, guarded by sync.Once, so concurrent first
// callers all observe the same pool and the same construction error.
type entry struct {
	once sync.Once
	pool *pool.ThreadPool
	err  error
}

func (e *entry) ensure(ctx context.Context, name types.ModelName, cfg pool.Config, factory worker.ExecutorFactory, events broker.Broker, metrics pool.Observer) (*pool.ThreadPool, error) {
	e.once.Do(func() {
		p := pool.New(ctx, name, cfg, factory, events, metrics)
		if err := p.StartThreads(ctx); err != nil {
			e.err = err
			return
		}
		if err := p.Open(ctx); err != nil {
			e.err = err
			return
		}
		e.pool = p
	})
	return e.pool, e.err
}

// Registry is the PoolRegistry: a map of model name to lazily
// constructed ThreadPool, plus the shared factory, config resolver,
// event broker, and metrics observer every pool it builds is wired to.
type Registry struct {
	ctx     context.Context
	factory worker.ExecutorFactory
	configs ConfigFunc
	events  broker.Broker
	metrics pool.Observer

	mu      sync.Mutex
	entries map[types.ModelName]*entry
}

// New constructs an empty registry. No pools exist until GetThreadPool
// is first called for a given model name.
func New(ctx context.Context, factory worker.ExecutorFactory, configs ConfigFunc, events broker.Broker, metrics pool.Observer) *Registry {
	return &Registry{
		ctx:     ctx,
		factory: factory,
		configs: configs,
		events:  events,
		metrics: metrics,
		entries: make(map[types.ModelName]*entry),
	}
}

func (r *Registry) configFor(name types.ModelName) pool.Config {
	if r.configs == nil {
		return pool.DefaultConfig()
	}
	return r.configs(name)
}

// GetThreadPool returns the ThreadPool for name, constructing and
// opening it on first use.
func (r *Registry) GetThreadPool(ctx context.Context, name types.ModelName) (*pool.ThreadPool, error) {
	name = name.Upper()

	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		e = &entry{}
		r.entries[name] = e
	}
	r.mu.Unlock()

	return e.ensure(ctx, name, r.configFor(name), r.factory, r.events, r.metrics)
}

// Submit is a convenience that resolves the model's pool and submits
// the job to it in one call.
func (r *Registry) Submit(ctx context.Context, model types.ModelName, jobName string, data any) (types.Result, error) {
	p, err := r.GetThreadPool(ctx, model)
	if err != nil {
		return types.Result{}, err
	}
	return p.Submit(ctx, jobName, data)
}

// snapshotLivePools returns every entry that has already completed
// construction, skipping ones still lazy or that failed to start.
func (r *Registry) snapshotLivePools() map[types.ModelName]*pool.ThreadPool {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := make(map[types.ModelName]*pool.ThreadPool, len(r.entries))
	for name, e := range r.entries {
		if e.pool != nil {
			live[name] = e.pool
		}
	}
	return live
}

// ReloadAll reloads every currently live pool. Failures are collected
// and returned together rather than aborting the sweep partway
// through, since an unrelated model's reload should not be blocked by
// another's failure.
func (r *Registry) ReloadAll(ctx context.Context) error {
	var errs []error
	for name, p := range r.snapshotLivePools() {
		if err := p.Reload(ctx); err != nil {
			errs = append(errs, errors.New(string(name)+": "+err.Error()))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Destroy gracefully tears down one model's pool: close, drain,
// stop its Threads, then permanently halt its actor loop and remove it
// from the registry. A submitter racing this call observes
// ErrPoolDestroyed rather than a hang or a silent no-op.
func (r *Registry) Destroy(ctx context.Context, name types.ModelName) error {
	name = name.Upper()

	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if !ok || e.pool == nil {
		return nil
	}

	_ = e.pool.Close(ctx)
	_ = e.pool.Drain(ctx)
	_ = e.pool.StopThreads(ctx)
	return e.pool.Destroy(ctx)
}

// RemoveUndeployedPools destroys every live pool whose model name is
// not present in deployed, for use after reconciling against a fresh
// model repository listing.
func (r *Registry) RemoveUndeployedPools(ctx context.Context, deployed []types.ModelName) error {
	keep := make(map[types.ModelName]bool, len(deployed))
	for _, name := range deployed {
		keep[name.Upper()] = true
	}

	var toDrop []types.ModelName
	for name := range r.snapshotLivePools() {
		if !keep[name] {
			toDrop = append(toDrop, name)
		}
	}

	var errs []error
	for _, name := range toDrop {
		if err := r.Destroy(ctx, name); err != nil {
			errs = append(errs, errors.New(string(name)+": "+err.Error()))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Statuses returns a point-in-time Status for every live pool, keyed
// by model name.
func (r *Registry) Statuses(ctx context.Context) map[types.ModelName]pool.Status {
	out := make(map[types.ModelName]pool.Status)
	for name, p := range r.snapshotLivePools() {
		if st, err := p.Status(ctx); err == nil {
			out[name] = st
		}
	}
	return out
}

// Listen subscribes cb to eventName for every pool whose model name
// matches pattern ("*" or "" matches every model; otherwise an exact,
// case-insensitive match). Pool lifecycle events carry the model name
// as their data payload, which is how a single process-wide broker
// subscription can be filtered down to one model's events.
func (r *Registry) Listen(pattern string, eventName string, cb func(model types.ModelName, data any)) {
	r.events.On(eventName, func(event string, data any) {
		model, _ := data.(types.ModelName)
		if matchModel(pattern, model) {
			cb(model, data)
		}
	})
}

func matchModel(pattern string, model types.ModelName) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return strings.EqualFold(pattern, string(model))
}
