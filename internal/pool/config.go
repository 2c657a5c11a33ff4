package pool

import "time"

// Config tunes one ThreadPool's elastic and lifecycle behavior
// Zero-value fields are filled in by
// DefaultConfig; callers normally start from it.
type Config struct {
	Min            int
	Max            int
	QueueTolerance int
	Preload        bool
	// RejectWhenClosed selects the registry's admission policy for a
	// submit arriving while the pool is not open: false (the default)
	// queues the job for later dispatch; true fails it immediately with
	// ErrPoolClosed instead.
	RejectWhenClosed bool

	// DrainTimeout bounds how long Drain waits for noJobsRunning.
	DrainTimeout time.Duration
	// ShutdownGrace bounds how long a Thread gets to accept and finish
	// the shutdown handshake before it is forcibly canceled.
	ShutdownGrace time.Duration
	// StopDelay is the pause between removing a Thread from service and
	// signaling it to exit, giving any last dispatch in flight a chance
	// to land on a still-free Thread instead.
	StopDelay time.Duration
	// StartTimeout bounds how long StartThreads waits for the ready
	// handshake from newly spawned Threads.
	StartTimeout time.Duration
	// ReplyBuffer sizes the shared worker reply channel. It must be
	// generous enough that a Thread sending its shutdown ack never
	// blocks on an actor loop that is itself waiting on that Thread's
	// exit (see stopThreads).
	ReplyBuffer int
}

// DefaultConfig returns the baseline a model's pool starts from absent
// explicit overrides (pool.DefaultConfig's baseline).
func DefaultConfig() Config {
	return Config{
		Min:            1,
		Max:            2,
		QueueTolerance: 25,
		Preload:        false,
		DrainTimeout:   4 * time.Second,
		ShutdownGrace:  5 * time.Second,
		StopDelay:      10 * time.Millisecond,
		StartTimeout:   10 * time.Second,
		ReplyBuffer:    64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Min <= 0 {
		c.Min = d.Min
	}
	if c.Max <= 0 {
		c.Max = d.Max
	}
	if c.Max < c.Min {
		c.Max = c.Min
	}
	if c.QueueTolerance <= 0 {
		c.QueueTolerance = d.QueueTolerance
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	if c.StopDelay <= 0 {
		c.StopDelay = d.StopDelay
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.ReplyBuffer < 4*c.Max {
		c.ReplyBuffer = 4 * c.Max
	}
	if c.ReplyBuffer < 16 {
		c.ReplyBuffer = 16
	}
	return c
}
