package pool

import (
	"context"
	"errors"
	"time"

	"github.com/aegis-run/poolrt/internal/worker"
	"github.com/aegis-run/poolrt/pkg/types"
)

// ErrWorkerExited surfaces to a submitter whose job was in flight on a
// Thread that died mid-job.
var ErrWorkerExited = errors.New("pool: worker-exited")

// Submit dispatches one job to a free or newly grown Thread, or queues
// it if the pool is at capacity. It blocks until the job completes,
// the context is canceled, or the pool rejects admission outright.
func (p *ThreadPool) Submit(ctx context.Context, jobName string, data any) (types.Result, error) {
	respCh := make(chan submitResponse, 1)
	req := submitRequest{
		ctx:      ctx,
		msg:      worker.Message{Name: jobName, Data: data},
		resultCh: respCh,
	}

	select {
	case p.submitCh <- req:
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	case <-p.loopCtx.Done():
		return types.Result{}, ErrPoolDestroyed
	}

	resp := <-respCh
	if resp.err != nil {
		return types.Result{}, resp.err
	}

	select {
	case result := <-resp.resultCh:
		return result, nil
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	}
}

// handleSubmit runs inside the actor loop. It decides whether to
// dispatch immediately, grow the pool, or queue the job.
func (p *ThreadPool) handleSubmit(req submitRequest) {
	p.jobsRequested++
	if p.metrics != nil {
		p.metrics.IncJobsRequested(string(p.name))
	}

	if p.destroyed {
		req.resultCh <- submitResponse{err: ErrPoolDestroyed}
		return
	}

	resultCh := make(chan types.Result, 1)
	job := pendingJob{msg: req.msg, resultCh: resultCh, started: time.Now()}

	if p.state != StateOpen {
		if p.cfg.RejectWhenClosed {
			req.resultCh <- submitResponse{err: ErrPoolClosed}
			return
		}
		p.enqueueWaiting(req, job)
		return
	}

	if th := p.popFree(); th != nil {
		p.dispatch(th, job)
		req.resultCh <- submitResponse{resultCh: resultCh}
		p.observeThreadCounts()
		return
	}

	if p.shouldGrow() {
		if th, err := p.spawnThread(); err == nil {
			th.state = types.ThreadStarting
			p.waitingJobs = append(p.waitingJobs, job)
			req.resultCh <- submitResponse{resultCh: resultCh}
			p.observeThreadCounts()
			return
		} else {
			log.Error("pool: failed to spawn thread", "pool", p.name, "error", err)
		}
	}

	p.enqueueWaiting(req, job)
}

// enqueueWaiting places job on waitingJobs and replies to the
// submitter with its future, for the two cases that never dispatch
// directly: admission while not open (queue-while-closed), and
// admission while open but at capacity.
func (p *ThreadPool) enqueueWaiting(req submitRequest, job pendingJob) {
	p.jobsQueued++
	p.waitingJobs = append(p.waitingJobs, job)
	req.resultCh <- submitResponse{resultCh: job.resultCh}
	if p.metrics != nil {
		p.metrics.IncJobsQueued(string(p.name))
		p.metrics.SetQueueRate(string(p.name), p.queueRatePercent())
	}
}

// shouldGrow decides whether admission of the current job warrants a
// new Thread: grow if under Max and either the
// pool is empty or the queue rate exceeds QueueTolerance. A queue
// rate exactly equal to tolerance does not trigger growth.
func (p *ThreadPool) shouldGrow() bool {
	if len(p.threads) >= p.cfg.Max {
		return false
	}
	if len(p.threads) == 0 {
		return true
	}
	return p.queueRatePercent() > p.cfg.QueueTolerance
}

// spawnThread builds an Executor and launches its Worker goroutine.
// Construction failure leaves pool state untouched.
func (p *ThreadPool) spawnThread() (*thread, error) {
	exec, err := p.factory(p.name)
	if err != nil {
		return nil, err
	}

	id := newThreadID()
	in := make(chan worker.Message)
	wctx, cancel := context.WithCancel(p.loopCtx)

	th := &thread{
		id:        id,
		createdAt: time.Now(),
		in:        in,
		state:     types.ThreadStarting,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	w := worker.New(id, p.name, in, p.replyCh, exec)
	go func() {
		defer close(th.done)
		w.Run(wctx)
	}()

	p.threads[id] = th
	return th, nil
}

// dispatch hands a job directly to an idle Thread and records it as
// in flight.
func (p *ThreadPool) dispatch(th *thread, job pendingJob) {
	th.state = types.ThreadBusy
	p.inflight[th.id] = job
	th.in <- job.msg
}

func (p *ThreadPool) popFree() *thread {
	if len(p.freeThreads) == 0 {
		return nil
	}
	n := len(p.freeThreads)
	th := p.freeThreads[n-1]
	p.freeThreads = p.freeThreads[:n-1]
	return th
}

func (p *ThreadPool) removeFromFree(target *thread) {
	for i, th := range p.freeThreads {
		if th == target {
			p.freeThreads = append(p.freeThreads[:i], p.freeThreads[i+1:]...)
			return
		}
	}
}

// handleReply runs inside the actor loop and processes one
// worker -> pool envelope.
func (p *ThreadPool) handleReply(r worker.Reply) {
	th := p.threads[r.ThreadID]
	if th == nil {
		return
	}

	switch r.Kind {
	case worker.ReplyReady:
		th.state = types.ThreadIdle
		p.freeOrDispatch(th)

	case worker.ReplyResult:
		job, ok := p.inflight[r.ThreadID]
		delete(p.inflight, r.ThreadID)
		th.state = types.ThreadIdle
		p.freeOrDispatch(th)
		if ok {
			if p.metrics != nil {
				p.metrics.ObserveJobDuration(string(p.name), time.Since(job.started).Seconds())
			}
			job.resultCh <- r.Result
		}
		p.maybeEmitNoJobsRunning()

	case worker.ReplyDied:
		job, ok := p.inflight[r.ThreadID]
		delete(p.inflight, r.ThreadID)
		delete(p.threads, r.ThreadID)
		p.removeFromFree(th)
		th.state = types.ThreadTerminated
		if ok {
			job.resultCh <- types.ErrorResult(ErrWorkerExited)
		}
		p.observeThreadCounts()
		p.maybeEmitNoJobsRunning()

	case worker.ReplyShutdownAck:
		// Normal case: stopThreads already removed this Thread from
		// p.threads and is waiting on th.done directly, so th is nil
		// above and this branch is unreachable; kept for the rare
		// case of a shutdown ack arriving for a Thread stopThreads has
		// not yet reaped.
		th.state = types.ThreadTerminated
	}
}

// freeOrDispatch returns an idle Thread either straight to a waiting
// job or to the free stack.
func (p *ThreadPool) freeOrDispatch(th *thread) {
	if len(p.waitingJobs) > 0 {
		job := p.waitingJobs[0]
		p.waitingJobs = p.waitingJobs[1:]
		p.dispatch(th, job)
		return
	}
	p.freeThreads = append(p.freeThreads, th)
	p.observeThreadCounts()
}

// sweepWaiting periodically retries queued jobs against any Thread
// that has since become free. It does not spawn new Threads.
func (p *ThreadPool) sweepWaiting() {
	if len(p.waitingJobs) == 0 {
		return
	}
	for len(p.waitingJobs) > 0 {
		th := p.popFree()
		if th == nil {
			break
		}
		job := p.waitingJobs[0]
		p.waitingJobs = p.waitingJobs[1:]
		p.dispatch(th, job)
	}
}

func (p *ThreadPool) noJobsRunning() bool {
	return len(p.inflight) == 0 && len(p.waitingJobs) == 0
}

func (p *ThreadPool) maybeEmitNoJobsRunning() {
	if p.noJobsRunning() {
		p.emit(types.EventNoJobsRunning, p.name)
	}
}
