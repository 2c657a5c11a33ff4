package broker

import (
	"sync"
	"testing"
)

func TestNotifyInvokesRegisteredHandlers(t *testing.T) {
	b := New()

	var got []string
	b.On("open", func(event string, data any) {
		got = append(got, data.(string))
	})

	b.Notify("open", "first")
	b.Notify("open", "second")

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected handler invocations: %v", got)
	}
}

func TestNotifyRunsHandlersInRegistrationOrder(t *testing.T) {
	b := New()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.On("evt", func(event string, data any) {
			order = append(order, i)
		})
	}

	b.Notify("evt", nil)

	for i, v := range order {
		if v != i {
			t.Fatalf("handlers ran out of order: %v", order)
		}
	}
}

func TestNotifyIgnoresUnregisteredEvents(t *testing.T) {
	b := New()
	b.On("open", func(event string, data any) {
		t.Fatal("handler should not run for a different event")
	})
	b.Notify("close", nil)
}

func TestNotifyRecoversFromPanickingHandlers(t *testing.T) {
	b := New()

	var ranAfterPanic bool
	b.On("evt", func(event string, data any) {
		panic("boom")
	})
	b.On("evt", func(event string, data any) {
		ranAfterPanic = true
	})

	b.Notify("evt", nil)

	if !ranAfterPanic {
		t.Fatal("a panicking handler must not stop the remaining handlers from running")
	}
}

func TestNotifyIsSafeForConcurrentUse(t *testing.T) {
	b := New()

	var mu sync.Mutex
	count := 0
	b.On("evt", func(event string, data any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Notify("evt", nil)
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Fatalf("expected 50 handler invocations, got %d", count)
	}
}
