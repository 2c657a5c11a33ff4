// Package types defines the core domain model shared across the pool
// runtime: models, jobs, results, threads and the port/event vocabulary
// that the router wires together.
package types

import (
	"strings"
	"time"
)

// ModelName identifies a hosted model. Registry lookups are case
// insensitive; Upper is the canonical form used as a map key.
type ModelName string

// Upper returns the canonical, upper-cased form of the model name.
func (m ModelName) Upper() ModelName {
	return ModelName(strings.ToUpper(string(m)))
}

// ThreadState is the lifecycle state of a single Thread handle.
type ThreadState string

const (
	ThreadStarting   ThreadState = "starting"
	ThreadIdle       ThreadState = "idle"
	ThreadBusy       ThreadState = "busy"
	ThreadDraining   ThreadState = "draining"
	ThreadTerminated ThreadState = "terminated"
)

// Thread is a read-only snapshot of a pool's worker handle, exclusively
// owned by exactly one ThreadPool.
type Thread struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	Pool      ModelName   `json:"pool"`
	State     ThreadState `json:"state"`
}

// Job is a single (name, data) -> Result request. Data must be
// deep-cloneable: scalar and plain-container fields only, see pkg/abi.
type Job struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Result is the outcome of executing a Job. A Result crosses the thread
// boundary by deep copy and is therefore restricted to the same
// scalar/plain-container shape as Job.Data.
type Result struct {
	Value    any    `json:"value,omitempty"`
	HasError bool   `json:"hasError"`
	Message  string `json:"message,omitempty"`
}

// ErrorResult builds a failed Result carrying a human readable message.
func ErrorResult(err error) Result {
	return Result{HasError: true, Message: err.Error()}
}

// PortType distinguishes a model's inbound ports (it consumes events)
// from its outbound ports (it produces events).
type PortType string

const (
	PortInbound  PortType = "inbound"
	PortOutbound PortType = "outbound"
)

// PortCallback receives a broadcast message delivered to a local
// consumer port.
type PortCallback func(msg BroadcastMessage) error

// PortUndo is a port's compensating action, invoked by the router when
// the port's Callback returns an error.
type PortUndo func() error

// PortDescriptor is a single declared inbound/outbound event interface
// on a model, as read from that model's deployed spec.
type PortDescriptor struct {
	ModelName     ModelName
	Service       string
	Type          PortType
	ConsumesEvent string
	ProducesEvent string
	Callback      PortCallback
	Undo          PortUndo
}

// BroadcastMessage is the wire shape carried over a BroadcastChannel and
// the mesh uplink: a JSON object with at least an eventName.
type BroadcastMessage struct {
	EventName   string `json:"eventName"`
	Data        any    `json:"data,omitempty"`
	SourceModel string `json:"sourceModel,omitempty"`
}

// Observable event names, emitted through the Broker.
const (
	EventPoolOpen         = "pool-open"
	EventPoolClose        = "pool-close"
	EventPoolDrain        = "pool-drain"
	EventAegisUp          = "aegis-up"
	EventNoJobsRunning    = "noJobsRunning"
	EventToMain           = "to_main"
	EventMissingEventName = "missingEventName"
)

// PoolConfig carries the per-pool tunables: elastic sizing, preload
// behavior, and the admission policy for a submit arriving while the
// pool is not open.
type PoolConfig struct {
	Min              int
	Max              int
	QueueTolerance   int
	Preload          bool
	RejectWhenClosed bool
}

// DefaultPoolConfig returns the documented baseline defaults (1, 2, 25, false, false).
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Min: 1, Max: 2, QueueTolerance: 25, Preload: false, RejectWhenClosed: false}
}
