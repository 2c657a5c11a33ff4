package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoExecutor() Executor {
	return FuncExecutor(func(ctx context.Context, jobName string, data any) (any, error) {
		if jobName == "boom" {
			return nil, errors.New("simulated failure")
		}
		if jobName == "panic" {
			panic("executor exploded")
		}
		if jobName == "die" {
			return nil, ErrWorkerDied
		}
		return data, nil
	})
}

func TestWorkerSendsReadyBeforeAnyJob(t *testing.T) {
	in := make(chan Message)
	out := make(chan Reply, 4)
	w := New("t1", "ORDER", in, out, echoExecutor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case r := <-out:
		assert.Equal(t, ReplyReady, r.Kind)
	case <-time.After(time.Second):
		t.Fatal("worker did not send ready")
	}
}

func TestWorkerEchoesJobResult(t *testing.T) {
	in := make(chan Message)
	out := make(chan Reply, 4)
	w := New("t1", "ORDER", in, out, echoExecutor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	require.Equal(t, ReplyReady, (<-out).Kind)

	in <- Message{Name: "addItem", Data: map[string]any{"id": 1}}
	reply := <-out
	assert.Equal(t, ReplyResult, reply.Kind)
	assert.False(t, reply.Result.HasError)
	assert.Equal(t, map[string]any{"id": 1}, reply.Result.Value)
}

func TestWorkerJobErrorBecomesResultNotCrash(t *testing.T) {
	in := make(chan Message)
	out := make(chan Reply, 4)
	w := New("t1", "ORDER", in, out, echoExecutor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	require.Equal(t, ReplyReady, (<-out).Kind)

	in <- Message{Name: "boom"}
	reply := <-out
	assert.Equal(t, ReplyResult, reply.Kind)
	assert.True(t, reply.Result.HasError)
	assert.Equal(t, "simulated failure", reply.Result.Message)

	// Worker must still be alive and able to process the next job.
	in <- Message{Name: "addItem", Data: 42}
	reply = <-out
	assert.Equal(t, ReplyResult, reply.Kind)
	assert.False(t, reply.Result.HasError)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	in := make(chan Message)
	out := make(chan Reply, 4)
	w := New("t1", "ORDER", in, out, echoExecutor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	require.Equal(t, ReplyReady, (<-out).Kind)

	in <- Message{Name: "panic"}
	reply := <-out
	assert.Equal(t, ReplyResult, reply.Kind)
	assert.True(t, reply.Result.HasError)
}

func TestWorkerDiedReplyOnUnrecoverableError(t *testing.T) {
	in := make(chan Message)
	out := make(chan Reply, 4)
	w := New("t1", "ORDER", in, out, echoExecutor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	require.Equal(t, ReplyReady, (<-out).Kind)

	in <- Message{Name: "die"}
	reply := <-out
	assert.Equal(t, ReplyDied, reply.Kind)
}

func TestWorkerShutdownAcksAndExits(t *testing.T) {
	in := make(chan Message)
	out := make(chan Reply, 4)
	w := New("t1", "ORDER", in, out, echoExecutor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	require.Equal(t, ReplyReady, (<-out).Kind)

	in <- Message{Name: ShutdownName}
	reply := <-out
	assert.Equal(t, ReplyShutdownAck, reply.Kind)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after shutdown")
	}
}
