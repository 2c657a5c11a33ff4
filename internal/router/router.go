// ============================================================================
// Aegis PortEventRouter - wires model ports to each other and to the mesh
// ============================================================================
//
// Package: internal/router
// Purpose: classifies registered ports into local/remote/publish/subscribe/
// unhandled groups, wires matching publish/subscribe pairs through the
// process-local broker, and falls back to a RemoteSink (the external
// WebSocket mesh, a distributed cache subscriber, or both) for events
// with no local consumer.
//
// Grounded on internal/raft/transport.go's peer-connection cache (a map
// of named channels, created lazily and reused) generalized to a map of
// named event wiring, and internal/controller/job_source_impl.go's
// adapter-over-an-interface style for RemoteSink.
//
// ============================================================================

package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/aegis-run/poolrt/internal/broker"
	"github.com/aegis-run/poolrt/pkg/types"
)

var log = slog.Default()

// ErrMissingEventName is returned by Publish when a PublishPort carries
// no event name to forward. The router still surfaces this to any
// listener of types.EventMissingEventName instead of dropping it.
var ErrMissingEventName = errors.New("router: missing event name")

// RemoteSink is anything the router can fall back to when a published
// event has no local subscriber: the mesh uplink, a distributed-cache
// subscriber, or both at once.
type RemoteSink interface {
	Publish(eventName string, msg types.BroadcastMessage) error
}

// Classification is a snapshot of how the router currently sees its
// registered ports, useful for status reporting and tests.
type Classification struct {
	LocalPorts     []types.PortDescriptor
	RemotePorts    []types.PortDescriptor
	PublishPorts   []types.PortDescriptor
	SubscribePorts []types.PortDescriptor
	UnhandledPorts []types.PortDescriptor
}

// Router is the PortEventRouter.
type Router struct {
	bus   broker.Broker
	sinks []RemoteSink

	mu    sync.RWMutex
	ports []types.PortDescriptor
}

// New builds a Router over its own process-local broadcast bus. sinks
// are consulted, in order, whenever a published event has no local
// subscriber, or when the event name is the to_main forwarding
// sentinel (which always leaves the process).
func New(sinks ...RemoteSink) *Router {
	return &Router{bus: broker.New(), sinks: sinks}
}

// Register adds a port and, for an inbound port with a Callback,
// subscribes that Callback to its consumed event on the local bus.
func (r *Router) Register(port types.PortDescriptor) {
	r.mu.Lock()
	r.ports = append(r.ports, port)
	r.mu.Unlock()

	if port.Type == types.PortInbound && port.Callback != nil {
		r.wireSubscriber(port)
	}
}

// wireSubscriber registers port's callback against its consumed event
// on the local bus. A callback error runs the port's compensating
// Undo, if one was supplied, rather than propagating into the broker's
// fan-out (the broker already isolates one handler's failure from the
// rest; this isolates it from the port's own durable state too).
func (r *Router) wireSubscriber(port types.PortDescriptor) {
	r.bus.On(port.ConsumesEvent, func(event string, data any) {
		msg, ok := data.(types.BroadcastMessage)
		if !ok {
			return
		}
		if err := port.Callback(msg); err != nil {
			log.Error("router: subscriber callback failed", "model", port.ModelName, "event", event, "error", err)
			if port.Undo != nil {
				if uerr := port.Undo(); uerr != nil {
					log.Error("router: subscriber undo failed", "model", port.ModelName, "event", event, "error", uerr)
				}
			}
		}
	})
}

// Publish broadcasts data under eventName on behalf of source,
// delivering it to every locally wired subscriber and, when there is
// no local subscriber (or the event is the to_main sentinel, which
// always leaves the process), to every configured RemoteSink.
func (r *Router) Publish(source types.ModelName, eventName string, data any) error {
	if eventName == "" {
		r.bus.Notify(types.EventMissingEventName, types.BroadcastMessage{
			EventName:   eventName,
			SourceModel: string(source),
		})
		return ErrMissingEventName
	}

	copied, err := deepCopy(data)
	if err != nil {
		return err
	}

	msg := types.BroadcastMessage{EventName: eventName, Data: copied, SourceModel: string(source)}
	r.bus.Notify(eventName, msg)

	if eventName == types.EventToMain || !r.hasLocalSubscriber(eventName) {
		r.publishRemote(eventName, msg)
	}
	return nil
}

func (r *Router) publishRemote(eventName string, msg types.BroadcastMessage) {
	for _, sink := range r.sinks {
		if err := sink.Publish(eventName, msg); err != nil {
			log.Error("router: remote sink publish failed", "event", eventName, "error", err)
		}
	}
}

// DeliverRemote is the inbound counterpart to publishRemote: a
// RemoteSink (mesh or cache subscriber) calls this when it observes an
// event originating from another process, so it reaches local
// subscribers the same way a local Publish would.
func (r *Router) DeliverRemote(msg types.BroadcastMessage) {
	r.bus.Notify(msg.EventName, msg)
}

func (r *Router) hasLocalSubscriber(eventName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.ports {
		if p.Type == types.PortInbound && p.ConsumesEvent == eventName {
			return true
		}
	}
	return false
}

// Classify groups the currently registered ports, all-to-all matching
// every PublishPort against every SubscribePort whose ConsumesEvent
// equals its ProducesEvent (spec's resolved open question: any
// matching pair is wired, regardless of which models own them).
func (r *Router) Classify() Classification {
	r.mu.RLock()
	ports := append([]types.PortDescriptor(nil), r.ports...)
	r.mu.RUnlock()

	produced := make(map[string]bool)
	consumed := make(map[string]bool)
	for _, p := range ports {
		if p.Type == types.PortOutbound {
			produced[p.ProducesEvent] = true
		} else {
			consumed[p.ConsumesEvent] = true
		}
	}

	var c Classification
	for _, p := range ports {
		switch p.Type {
		case types.PortOutbound:
			c.PublishPorts = append(c.PublishPorts, p)
			if consumed[p.ProducesEvent] {
				c.LocalPorts = append(c.LocalPorts, p)
			} else {
				c.RemotePorts = append(c.RemotePorts, p)
			}
		case types.PortInbound:
			c.SubscribePorts = append(c.SubscribePorts, p)
			if produced[p.ConsumesEvent] {
				c.LocalPorts = append(c.LocalPorts, p)
			} else if len(r.sinks) == 0 {
				c.UnhandledPorts = append(c.UnhandledPorts, p)
			} else {
				c.RemotePorts = append(c.RemotePorts, p)
			}
		}
	}
	return c
}

// deepCopy crosses the broadcast boundary through a JSON marshal then
// unmarshal round trip, so a subscriber's handler can never observe
// mutations a publisher makes to its own copy of the data afterward.
func deepCopy(data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
