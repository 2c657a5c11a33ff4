package worker

import "github.com/aegis-run/poolrt/pkg/types"

// Message is the supervisor -> worker envelope. The name
// "shutdown" is a sentinel that ends the Worker's loop instead of
// invoking the Executor.
type Message struct {
	Name string
	Data any
}

// ShutdownName is the sentinel Message.Name that terminates a Worker.
const ShutdownName = "shutdown"

// ReplyKind distinguishes the three shapes a worker -> supervisor reply
// can take: the one-time startup handshake, a job Result, and the
// shutdown acknowledgement.
type ReplyKind int

const (
	ReplyReady ReplyKind = iota
	ReplyResult
	ReplyShutdownAck
	// ReplyDied marks catastrophic worker failure: the channel observed
	// closed or the executor reported it cannot continue. The owning
	// Thread is unusable from this point on.
	ReplyDied
)

// Reply is the worker -> supervisor envelope, tagged with the id of the
// Thread that produced it so a pool with many workers can multiplex
// replies over one shared channel.
type Reply struct {
	ThreadID string
	Kind     ReplyKind
	Result   types.Result
}
