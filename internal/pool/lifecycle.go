package pool

import (
	"context"
	"sync"
	"time"

	"github.com/aegis-run/poolrt/internal/worker"
	"github.com/aegis-run/poolrt/pkg/types"
)

func (p *ThreadPool) control(ctx context.Context, kind controlKind) (Status, error) {
	respCh := make(chan controlResponse, 1)
	req := controlRequest{kind: kind, ctx: ctx, respCh: respCh}

	select {
	case p.controlCh <- req:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-p.loopCtx.Done():
		return Status{}, ErrPoolDestroyed
	}

	select {
	case resp := <-respCh:
		return resp.status, resp.err
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Open admits Threads exist and transitions the pool to open,
// idempotent if already open.
func (p *ThreadPool) Open(ctx context.Context) error {
	_, err := p.control(ctx, controlOpen)
	return err
}

// Close blocks new admission growth decisions from the open state;
// idempotent.
func (p *ThreadPool) Close(ctx context.Context) error {
	_, err := p.control(ctx, controlClose)
	return err
}

// Drain waits for noJobsRunning, bounded by cfg.DrainTimeout.
func (p *ThreadPool) Drain(ctx context.Context) error {
	_, err := p.control(ctx, controlDrain)
	return err
}

// StopThreads terminates every Thread. Requires the pool be drained.
func (p *ThreadPool) StopThreads(ctx context.Context) error {
	_, err := p.control(ctx, controlStopThreads)
	return err
}

// StartThreads brings the pool up to Min Threads. Requires no
// existing Threads.
func (p *ThreadPool) StartThreads(ctx context.Context) error {
	_, err := p.control(ctx, controlStartThreads)
	return err
}

// Reload runs close; drain; stopThreads; startThreads; open as one
// atomic control operation with respect to new submissions, then
// increments the reload counter.
func (p *ThreadPool) Reload(ctx context.Context) error {
	_, err := p.control(ctx, controlReload)
	return err
}

// Status returns a snapshot of the pool's current state.
func (p *ThreadPool) Status(ctx context.Context) (Status, error) {
	return p.control(ctx, controlStatus)
}

// Shutdown permanently stops the pool's actor goroutine. It is meant
// to be called by the owning registry after the pool has already been
// drained and stopped; any Thread still alive is canceled.
func (p *ThreadPool) Shutdown() {
	p.loopCancel()
	<-p.stoppedCh
}

// Destroy marks the pool as destroyed so any submitter racing the
// registry's removal of this pool observes ErrPoolDestroyed instead of
// silently hanging, then tears the actor loop down.
func (p *ThreadPool) Destroy(ctx context.Context) error {
	_, err := p.control(ctx, controlShutdown)
	if err != nil {
		return err
	}
	p.Shutdown()
	return nil
}

func (p *ThreadPool) snapshot() Status {
	return Status{
		Name:             p.name,
		State:            p.state,
		TotalThreads:     len(p.threads),
		FreeThreads:      len(p.freeThreads),
		WaitingJobs:      len(p.waitingJobs),
		JobsRequested:    p.jobsRequested,
		JobsQueued:       p.jobsQueued,
		Reloads:          p.reloads,
		QueueRatePercent: p.queueRatePercent(),
	}
}

// handleControl runs inside the actor loop.
func (p *ThreadPool) handleControl(req controlRequest) {
	switch req.kind {
	case controlStatus:
		req.respCh <- controlResponse{status: p.snapshot()}

	case controlOpen:
		req.respCh <- controlResponse{status: p.snapshot(), err: p.doOpen()}

	case controlClose:
		p.doClose()
		req.respCh <- controlResponse{status: p.snapshot()}

	case controlDrain:
		err := p.doDrain(req.ctx)
		req.respCh <- controlResponse{status: p.snapshot(), err: err}

	case controlStopThreads:
		err := p.doStopThreads()
		req.respCh <- controlResponse{status: p.snapshot(), err: err}

	case controlStartThreads:
		err := p.doStartThreads(req.ctx)
		req.respCh <- controlResponse{status: p.snapshot(), err: err}

	case controlReload:
		err := p.doReload(req.ctx)
		req.respCh <- controlResponse{status: p.snapshot(), err: err}

	case controlShutdown:
		p.destroyed = true
		for _, job := range p.waitingJobs {
			job.resultCh <- types.ErrorResult(ErrPoolDestroyed)
		}
		p.waitingJobs = nil
		req.respCh <- controlResponse{status: p.snapshot()}
	}
}

func (p *ThreadPool) doOpen() error {
	if p.state == StateOpen {
		return nil
	}
	if len(p.threads) == 0 {
		return ErrThreadsExist
	}
	p.state = StateOpen
	p.emit(types.EventPoolOpen, p.name)
	return nil
}

func (p *ThreadPool) doClose() {
	if p.state != StateOpen {
		return
	}
	p.state = StateClosed
	p.emit(types.EventPoolClose, p.name)
}

// doDrain pumps the reply channel inline (so in-flight jobs can still
// complete and free their Threads) until noJobsRunning or the timeout
// elapses.
func (p *ThreadPool) doDrain(ctx context.Context) error {
	if p.state == StateOpen {
		return ErrDrainingNotClosed
	}
	if p.state == StateDrained || p.state == StateStopped {
		return nil
	}

	deadline := time.NewTimer(p.cfg.DrainTimeout)
	defer deadline.Stop()

	for !p.noJobsRunning() {
		select {
		case r := <-p.replyCh:
			p.handleReply(r)
		case <-deadline.C:
			log.Error("pool: drain timed out with work still outstanding", "pool", p.name,
				"inflight", len(p.inflight), "waiting", len(p.waitingJobs))
			p.state = StateDrained
			p.emit(types.EventPoolDrain, p.name)
			return ErrDrainTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.state = StateDrained
	p.emit(types.EventPoolDrain, p.name)
	return nil
}

// doStopThreads removes every Thread from service, waits StopDelay,
// then signals shutdown and waits for each to exit, forcibly canceling
// any Thread that overstays ShutdownGrace.
func (p *ThreadPool) doStopThreads() error {
	if p.state != StateDrained {
		return ErrNotDrained
	}

	threads := make([]*thread, 0, len(p.threads))
	for _, th := range p.threads {
		threads = append(threads, th)
	}
	p.freeThreads = nil

	if len(threads) == 0 {
		p.state = StateStopped
		return nil
	}

	time.Sleep(p.cfg.StopDelay)

	var wg sync.WaitGroup
	for _, th := range threads {
		wg.Add(1)
		go func(th *thread) {
			defer wg.Done()
			p.stopOne(th)
		}(th)
	}
	wg.Wait()

	for _, th := range threads {
		delete(p.threads, th.id)
	}
	p.state = StateStopped
	p.observeThreadCounts()
	return nil
}

func (p *ThreadPool) stopOne(th *thread) {
	grace := time.NewTimer(p.cfg.ShutdownGrace)
	defer grace.Stop()

	select {
	case th.in <- worker.Message{Name: worker.ShutdownName}:
	case <-grace.C:
		log.Error("pool: thread did not accept shutdown within grace period, canceling", "pool", p.name, "thread", th.id)
		th.cancel()
		<-th.done
		return
	}

	select {
	case <-th.done:
	case <-grace.C:
		log.Error("pool: thread did not exit within grace period, canceling", "pool", p.name, "thread", th.id)
		th.cancel()
		<-th.done
	}
}

// doStartThreads brings the pool to Min Threads and waits, pumping the
// reply channel inline, until all report ready or StartTimeout elapses.
func (p *ThreadPool) doStartThreads(ctx context.Context) error {
	if len(p.threads) != 0 {
		return ErrThreadsExist
	}

	spawned := make(map[string]bool, p.cfg.Min)
	for i := 0; i < p.cfg.Min; i++ {
		th, err := p.spawnThread()
		if err != nil {
			log.Error("pool: failed to spawn thread during start", "pool", p.name, "error", err)
			continue
		}
		spawned[th.id] = true
	}

	deadline := time.NewTimer(p.cfg.StartTimeout)
	defer deadline.Stop()

	ready := 0
	for ready < len(spawned) {
		select {
		case r := <-p.replyCh:
			wasReady := r.Kind == worker.ReplyReady && spawned[r.ThreadID]
			p.handleReply(r)
			if wasReady {
				ready++
			}
		case <-deadline.C:
			p.state = StateDrained
			return ErrStartTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.state = StateDrained
	p.observeThreadCounts()
	return nil
}

func (p *ThreadPool) doReload(ctx context.Context) error {
	p.doClose()

	if err := p.doDrain(ctx); err != nil && err != ErrDrainTimeout {
		return err
	}
	if err := p.doStopThreads(); err != nil {
		return err
	}
	if err := p.doStartThreads(ctx); err != nil {
		return err
	}
	if err := p.doOpen(); err != nil {
		return err
	}

	p.reloads++
	if p.metrics != nil {
		p.metrics.IncReloads(string(p.name))
	}
	return nil
}
