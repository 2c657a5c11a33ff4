package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/poolrt/pkg/types"
)

type fakeSink struct {
	published chan types.BroadcastMessage
}

func newFakeSink() *fakeSink {
	return &fakeSink{published: make(chan types.BroadcastMessage, 8)}
}

func (f *fakeSink) Publish(eventName string, msg types.BroadcastMessage) error {
	f.published <- msg
	return nil
}

func TestPublishDeliversToLocalSubscriber(t *testing.T) {
	r := New()
	received := make(chan types.BroadcastMessage, 1)

	r.Register(types.PortDescriptor{
		ModelName:     "INVOICE",
		Type:          types.PortInbound,
		ConsumesEvent: "order-created",
		Callback: func(msg types.BroadcastMessage) error {
			received <- msg
			return nil
		},
	})

	err := r.Publish("ORDER", "order-created", map[string]any{"id": "o-1"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "order-created", msg.EventName)
		assert.Equal(t, "ORDER", msg.SourceModel)
		assert.Equal(t, map[string]any{"id": "o-1"}, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestPublishMutationAfterCallDoesNotLeakIntoSubscriber(t *testing.T) {
	r := New()
	received := make(chan types.BroadcastMessage, 1)

	r.Register(types.PortDescriptor{
		ModelName:     "INVOICE",
		Type:          types.PortInbound,
		ConsumesEvent: "order-created",
		Callback: func(msg types.BroadcastMessage) error {
			received <- msg
			return nil
		},
	})

	payload := map[string]any{"id": "o-1"}
	require.NoError(t, r.Publish("ORDER", "order-created", payload))
	payload["id"] = "mutated"

	msg := <-received
	assert.Equal(t, "o-1", msg.Data.(map[string]any)["id"])
}

func TestPublishWithNoLocalSubscriberFallsBackToRemoteSink(t *testing.T) {
	sink := newFakeSink()
	r := New(sink)

	require.NoError(t, r.Publish("ORDER", "order-shipped", nil))

	select {
	case msg := <-sink.published:
		assert.Equal(t, "order-shipped", msg.EventName)
	case <-time.After(time.Second):
		t.Fatal("remote sink never received the fallback publish")
	}
}

func TestToMainEventAlwaysForwardsRemoteEvenWithLocalSubscriber(t *testing.T) {
	sink := newFakeSink()
	r := New(sink)

	r.Register(types.PortDescriptor{
		ModelName:     "AUDIT",
		Type:          types.PortInbound,
		ConsumesEvent: types.EventToMain,
		Callback:      func(types.BroadcastMessage) error { return nil },
	})

	require.NoError(t, r.Publish("ORDER", types.EventToMain, "payload"))

	select {
	case msg := <-sink.published:
		assert.Equal(t, types.EventToMain, msg.EventName)
	case <-time.After(time.Second):
		t.Fatal("to_main event was not forwarded remotely despite a local subscriber")
	}
}

func TestPublishWithMissingEventNameIsSurfacedNotDropped(t *testing.T) {
	r := New()
	seen := make(chan types.BroadcastMessage, 1)
	r.Register(types.PortDescriptor{
		Type:          types.PortInbound,
		ConsumesEvent: types.EventMissingEventName,
		Callback: func(msg types.BroadcastMessage) error {
			seen <- msg
			return nil
		},
	})

	err := r.Publish("ORDER", "", "payload")
	assert.ErrorIs(t, err, ErrMissingEventName)

	select {
	case <-seen:
	case <-time.After(time.Second):
		t.Fatal("missingEventName sentinel was never broadcast")
	}
}

func TestClassifyGroupsPortsAllToAll(t *testing.T) {
	r := New()
	r.Register(types.PortDescriptor{ModelName: "ORDER", Type: types.PortOutbound, ProducesEvent: "order-created"})
	r.Register(types.PortDescriptor{ModelName: "INVOICE", Type: types.PortInbound, ConsumesEvent: "order-created", Callback: func(types.BroadcastMessage) error { return nil }})
	r.Register(types.PortDescriptor{ModelName: "SHIPPING", Type: types.PortInbound, ConsumesEvent: "order-created", Callback: func(types.BroadcastMessage) error { return nil }})
	r.Register(types.PortDescriptor{ModelName: "ORDER", Type: types.PortOutbound, ProducesEvent: "order-canceled"})

	c := r.Classify()
	assert.Len(t, c.PublishPorts, 2)
	assert.Len(t, c.SubscribePorts, 2)
	// order-created's publisher and both its subscribers are local.
	assert.Len(t, c.LocalPorts, 3)
	// order-canceled has no local subscriber: its publisher is classified remote, whether or not any sink is configured.
	assert.Len(t, c.RemotePorts, 1)
}

func TestUndoRunsWhenCallbackErrors(t *testing.T) {
	r := New()
	undone := make(chan struct{}, 1)

	r.Register(types.PortDescriptor{
		ModelName:     "INVOICE",
		Type:          types.PortInbound,
		ConsumesEvent: "order-created",
		Callback: func(msg types.BroadcastMessage) error {
			return assert.AnError
		},
		Undo: func() error {
			undone <- struct{}{}
			return nil
		},
	})

	require.NoError(t, r.Publish("ORDER", "order-created", nil))

	select {
	case <-undone:
	case <-time.After(time.Second):
		t.Fatal("undo was never invoked after callback error")
	}
}
