package pool

import "errors"

var (
	// ErrPoolClosed is returned by Submit when the pool rejects new work
	// outright instead of queuing it (registry reject-mode policy).
	ErrPoolClosed = errors.New("pool: closed")
	// ErrPoolDestroyed is returned to a submitter racing a Destroy
	// (an open question, elevated from a silent
	// discard to a surfaced error).
	ErrPoolDestroyed = errors.New("pool: destroyed")
	// ErrDrainingNotClosed is returned by Drain when the pool is still open.
	ErrDrainingNotClosed = errors.New("pool: draining-not-closed")
	// ErrDrainTimeout is returned by Drain when the bound elapses before
	// noJobsRunning is observed. The pool still advances to drained;
	// survivors are logged as leaks.
	ErrDrainTimeout = errors.New("pool: drain-timeout")
	// ErrNotDrained is returned by StopThreads when called outside the
	// drained state.
	ErrNotDrained = errors.New("pool: not-drained")
	// ErrThreadsExist is returned by StartThreads when existing Threads
	// remain.
	ErrThreadsExist = errors.New("pool: threads-exist")
	// ErrStartTimeout is returned when newly spawned Threads do not
	// complete their ready handshake within the bound.
	ErrStartTimeout = errors.New("pool: start-timeout")
)
