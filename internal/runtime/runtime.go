// ============================================================================
// Aegis runtime supervisor - process-wide wiring of registry, router, mesh
// ============================================================================
//
// Package: internal/runtime
// Purpose: the one place that assembles the whole system: a broker, a
// PoolRegistry over it, a PortEventRouter with whatever RemoteSinks
// configuration turns on, and the metrics collector handed to the
// registry for its pools. Nothing here is business logic, only wiring, in the
// style of a single top-level constructor that assembles a set of
// subordinate components and hands back one object exposing their
// combined surface.
//
// ============================================================================

package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aegis-run/poolrt/internal/broker"
	"github.com/aegis-run/poolrt/internal/config"
	"github.com/aegis-run/poolrt/internal/mesh"
	"github.com/aegis-run/poolrt/internal/metrics"
	"github.com/aegis-run/poolrt/internal/pool"
	"github.com/aegis-run/poolrt/internal/registry"
	"github.com/aegis-run/poolrt/internal/router"
	"github.com/aegis-run/poolrt/internal/worker"
	"github.com/aegis-run/poolrt/pkg/types"
)

var log = slog.Default()

// Supervisor is the assembled runtime: a PoolRegistry, a
// PortEventRouter, and whichever mesh sinks configuration enabled.
type Supervisor struct {
	Registry *registry.Registry
	Router   *router.Router
	Metrics  *metrics.Collector

	uplink *mesh.Uplink
	cache  *mesh.CacheSink
}

// New assembles a Supervisor from cfg, dispatching jobs through
// factory and recording metrics on collector. collector may be nil,
// in which case pool.Observer calls are no-ops.
func New(ctx context.Context, cfg *config.Config, factory worker.ExecutorFactory, collector *metrics.Collector) *Supervisor {
	bus := broker.New()

	var observer pool.Observer
	if collector != nil {
		observer = collector
	}

	reg := registry.New(ctx, factory, func(model types.ModelName) pool.Config {
		return cfg.PoolConfigFor(model)
	}, bus, observer)

	preloadModels(ctx, reg, cfg)

	s := &Supervisor{
		Registry: reg,
		Metrics:  collector,
	}

	var sinks []router.RemoteSink
	if cfg.Webswitch.Enabled {
		s.uplink = mesh.NewUplink(cfg.Webswitch.Server, s.deliverRemote)
		sinks = append(sinks, s.uplink)
	}
	if cfg.DistributedCache.Enabled {
		s.cache = mesh.NewCacheSink(ctx, cfg.DistributedCache.Addr, cfg.Broadcast.Topic, s.deliverRemote)
		sinks = append(sinks, s.cache)
	}

	s.Router = router.New(sinks...)
	s.bridgeRegistryToRouter()

	bus.Notify(types.EventAegisUp, nil)
	return s
}

// preloadModels triggers the registry's one lazy-construction path,
// GetThreadPool, for every model configured with Preload, instead of
// leaving ThreadPool itself decide to self-start: that would race the
// registry's own first-reference construction over the same pool's
// control channel. Each model preloads on its own goroutine so one
// slow startThreads handshake cannot hold up the others or the
// Supervisor's own construction.
func preloadModels(ctx context.Context, reg *registry.Registry, cfg *config.Config) {
	for name, pc := range cfg.Pools {
		if !pc.Preload {
			continue
		}
		model := types.ModelName(name)
		go func() {
			if _, err := reg.GetThreadPool(ctx, model); err != nil {
				log.Error("runtime: preload failed", "model", model, "error", err)
			}
		}()
	}
}

// deliverRemote is the callback both mesh sinks invoke for frames
// arriving from outside this process; it hands them straight to the
// router's inbound path.
func (s *Supervisor) deliverRemote(msg types.BroadcastMessage) {
	s.Router.DeliverRemote(msg)
}

// bridgeRegistryToRouter forwards every pool lifecycle event the
// registry's broker sees into the router's local fan-out, so a remote
// mesh peer sees the same pool-open/pool-close/noJobsRunning events a
// local port subscriber would.
func (s *Supervisor) bridgeRegistryToRouter() {
	for _, event := range []string{
		types.EventPoolOpen,
		types.EventPoolClose,
		types.EventPoolDrain,
		types.EventNoJobsRunning,
	} {
		event := event
		s.Registry.Listen("*", event, func(model types.ModelName, data any) {
			if err := s.Router.Publish(model, event, data); err != nil {
				log.Error("runtime: failed to republish pool event", "event", event, "model", model, "error", err)
			}
		})
	}
}

// RegisterPort exposes Router.Register so callers assembling a
// deployment only need to hold a *Supervisor.
func (s *Supervisor) RegisterPort(port types.PortDescriptor) {
	s.Router.Register(port)
}

// Submit routes a job to model's pool, constructing it on first use.
func (s *Supervisor) Submit(ctx context.Context, model types.ModelName, jobName string, data any) (types.Result, error) {
	return s.Registry.Submit(ctx, model, jobName, data)
}

// Reload reloads every live pool, bumping each one's reload counter.
func (s *Supervisor) Reload(ctx context.Context) error {
	return s.Registry.ReloadAll(ctx)
}

// Statuses returns a status snapshot of every live pool.
func (s *Supervisor) Statuses(ctx context.Context) map[types.ModelName]pool.Status {
	return s.Registry.Statuses(ctx)
}

// Close tears down the mesh connections this Supervisor opened. The
// registry's pools are left running; callers that want a full shutdown
// should also Destroy each model through Registry.
func (s *Supervisor) Close() error {
	var firstErr error
	if s.uplink != nil {
		if err := s.uplink.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("runtime: close uplink: %w", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("runtime: close cache sink: %w", err)
		}
	}
	return firstErr
}
