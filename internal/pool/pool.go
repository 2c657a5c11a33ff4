// ============================================================================
// Aegis ThreadPool - elastic, admission-controlled worker pool
// ============================================================================
//
// Package: internal/pool
// Purpose: hosts one model's Threads, growing the pool under an
// admission policy and driving it through the open -> closed
// -> drained -> stopped -> open lifecycle.
//
// The pool's mutable state (Thread bookkeeping, counters, lifecycle
// state) is owned by exactly one goroutine, run(). Every exported
// method is a thin request/response round trip over a channel into
// that goroutine, grounded on the single-select-loop-owns-state idiom
// used for pool supervisors in the retrieved eurozulu/pools example.
//
// ============================================================================

package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-run/poolrt/internal/broker"
	"github.com/aegis-run/poolrt/internal/worker"
	"github.com/aegis-run/poolrt/pkg/types"
)

var log = slog.Default()

// State is the pool's coarse lifecycle position.
type State string

const (
	StateOpen    State = "open"
	StateClosed  State = "closed"
	StateDrained State = "drained"
	StateStopped State = "stopped"
)

// Status is a point-in-time snapshot returned by Status().
type Status struct {
	Name             types.ModelName
	State            State
	TotalThreads     int
	FreeThreads      int
	WaitingJobs      int
	JobsRequested    uint64
	JobsQueued       uint64
	Reloads          uint64
	QueueRatePercent int
}

// Observer receives metrics callbacks; it is nil-safe to omit (the
// pool functions identically without one, just unobserved).
type Observer interface {
	SetThreads(model string, total, free int)
	SetQueueRate(model string, rate int)
	IncJobsRequested(model string)
	IncJobsQueued(model string)
	IncReloads(model string)
	ObserveJobDuration(model string, seconds float64)
}

// thread is the pool's private bookkeeping record for one worker.Worker.
type thread struct {
	id        string
	createdAt time.Time
	in        chan worker.Message
	state     types.ThreadState
	cancel    context.CancelFunc
	done      chan struct{}
}

type pendingJob struct {
	msg      worker.Message
	resultCh chan types.Result
	started  time.Time
}

type submitRequest struct {
	ctx      context.Context
	msg      worker.Message
	resultCh chan submitResponse
}

type submitResponse struct {
	resultCh chan types.Result
	err      error
}

type controlKind int

const (
	controlOpen controlKind = iota
	controlClose
	controlDrain
	controlStopThreads
	controlStartThreads
	controlReload
	controlStatus
	controlShutdown
)

type controlRequest struct {
	kind   controlKind
	ctx    context.Context
	respCh chan controlResponse
}

type controlResponse struct {
	status Status
	err    error
}

// ThreadPool hosts one model's Threads.
type ThreadPool struct {
	name    types.ModelName
	cfg     Config
	factory worker.ExecutorFactory
	events  broker.Broker
	metrics Observer

	submitCh  chan submitRequest
	controlCh chan controlRequest
	replyCh   chan worker.Reply

	// actor-owned state, touched only inside run()
	state         State
	threads       map[string]*thread
	freeThreads   []*thread
	waitingJobs   []pendingJob
	inflight      map[string]pendingJob
	destroyed     bool
	jobsRequested uint64
	jobsQueued    uint64
	reloads       uint64

	loopCtx    context.Context
	loopCancel context.CancelFunc
	stoppedCh  chan struct{}
}

// New constructs a ThreadPool and starts its actor goroutine. Threads
// are not spawned until a caller invokes StartThreads/Open (or the
// registry does so on a model's first reference); cfg.Preload only
// signals the registry's intent to make that first reference eagerly
// at startup rather than lazily, it is not acted on here, to avoid
// racing a caller-driven StartThreads/Open against a second one of
// this pool's own.
func New(ctx context.Context, name types.ModelName, cfg Config, factory worker.ExecutorFactory, events broker.Broker, metrics Observer) *ThreadPool {
	cfg = cfg.withDefaults()
	loopCtx, cancel := context.WithCancel(ctx)

	p := &ThreadPool{
		name:       name.Upper(),
		cfg:        cfg,
		factory:    factory,
		events:     events,
		metrics:    metrics,
		submitCh:   make(chan submitRequest),
		controlCh:  make(chan controlRequest),
		replyCh:    make(chan worker.Reply, cfg.ReplyBuffer),
		state:      StateClosed,
		threads:    make(map[string]*thread),
		inflight:   make(map[string]pendingJob),
		loopCtx:    loopCtx,
		loopCancel: cancel,
		stoppedCh:  make(chan struct{}),
	}

	go p.run()

	return p
}

// Name returns the model name this pool serves, upper-cased.
func (p *ThreadPool) Name() types.ModelName { return p.name }

// run is the single goroutine that owns all of the pool's mutable
// state. Every other method communicates with it by channel.
func (p *ThreadPool) run() {
	defer close(p.stoppedCh)
	sweep := time.NewTicker(1500 * time.Millisecond)
	defer sweep.Stop()

	for {
		select {
		case <-p.loopCtx.Done():
			p.terminateAll()
			return

		case req := <-p.submitCh:
			p.handleSubmit(req)

		case r := <-p.replyCh:
			p.handleReply(r)

		case req := <-p.controlCh:
			p.handleControl(req)

		case <-sweep.C:
			p.sweepWaiting()
		}
	}
}

// terminateAll is run once, on loop shutdown, to cancel any
// still-running Thread goroutines so they do not leak.
func (p *ThreadPool) terminateAll() {
	for _, th := range p.threads {
		th.cancel()
	}
}

func (p *ThreadPool) emit(event string, data any) {
	if p.events == nil {
		return
	}
	p.events.Notify(event, data)
}

func (p *ThreadPool) observeThreadCounts() {
	if p.metrics == nil {
		return
	}
	p.metrics.SetThreads(string(p.name), len(p.threads), len(p.freeThreads))
}

func (p *ThreadPool) queueRatePercent() int {
	if p.jobsRequested == 0 {
		return 0
	}
	return int((100*p.jobsQueued + p.jobsRequested/2) / p.jobsRequested)
}

func newThreadID() string { return uuid.NewString() }
