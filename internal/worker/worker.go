// ============================================================================
// Aegis Worker - isolated execution context for one model
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: single-threaded execution context owning one model instance;
// accepts Message envelopes and eventually replies exactly once per
// Message, never dying from a job-level error.
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aegis-run/poolrt/pkg/types"
)

var log = slog.Default()

// Executor invokes the sandboxed compute unit for one job. The compute
// module itself is out of scope; Executor is the seam a
// real host implementation plugs into.
type Executor interface {
	Execute(ctx context.Context, jobName string, data any) (any, error)
}

// ExecutorFactory builds one Executor per Thread, so worker-side state
// never crosses goroutine boundaries: no shared mutable memory
// between workers.
type ExecutorFactory func(model types.ModelName) (Executor, error)

// FuncExecutor adapts a plain function to the Executor interface.
type FuncExecutor func(ctx context.Context, jobName string, data any) (any, error)

// Execute implements Executor.
func (f FuncExecutor) Execute(ctx context.Context, jobName string, data any) (any, error) {
	return f(ctx, jobName, data)
}

// ErrWorkerDied is returned by Execute to signal the worker can no
// longer continue; the owning Thread is removed from the pool rather
// than returned to service.
var ErrWorkerDied = fmt.Errorf("worker: executor reported unrecoverable failure")

// Worker is a single-threaded execution context holding one model
// instance. It runs its loop on a dedicated goroutine, owned by exactly
// one Thread in exactly one ThreadPool.
type Worker struct {
	id    string
	model types.ModelName
	in    <-chan Message
	out   chan<- Reply
	exec  Executor
}

// New constructs a Worker. The Executor is built eagerly so startup
// failures surface before the ready handshake is sent.
func New(id string, model types.ModelName, in <-chan Message, out chan<- Reply, exec Executor) *Worker {
	return &Worker{id: id, model: model, in: in, out: out, exec: exec}
}

// Run is the Worker's main loop. It sends exactly one ready message
// before accepting jobs, then replies exactly once per Message until it
// observes the shutdown sentinel or the input channel closes.
func (w *Worker) Run(ctx context.Context) {
	w.out <- Reply{ThreadID: w.id, Kind: ReplyReady}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.in:
			if !ok {
				w.out <- Reply{ThreadID: w.id, Kind: ReplyDied}
				return
			}
			if msg.Name == ShutdownName {
				w.out <- Reply{ThreadID: w.id, Kind: ReplyShutdownAck}
				return
			}
			reply := w.runJob(ctx, msg)
			w.out <- reply
			if reply.Kind == ReplyDied {
				return
			}
		}
	}
}

// runJob executes one job, converting any panic or unrecoverable
// executor error into a normal reply rather than letting it escape the
// goroutine: a Worker does not die from job errors.
func (w *Worker) runJob(ctx context.Context, msg Message) (reply Reply) {
	reply = Reply{ThreadID: w.id, Kind: ReplyResult}

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker job panicked", "thread", w.id, "job", msg.Name, "recover", r)
			reply.Result = types.ErrorResult(fmt.Errorf("panic: %v", r))
		}
	}()

	value, err := w.exec.Execute(ctx, msg.Name, msg.Data)
	switch {
	case err == ErrWorkerDied:
		reply.Kind = ReplyDied
		reply.Result = types.ErrorResult(err)
	case err != nil:
		reply.Result = types.ErrorResult(err)
	default:
		reply.Result = types.Result{Value: value}
	}
	return reply
}
