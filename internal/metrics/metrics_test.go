package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	// Reset Prometheus registry to avoid duplicate registration
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.totalThreads, "totalThreads gauge should be initialized")
	assert.NotNil(t, collector.freeThreads, "freeThreads gauge should be initialized")
	assert.NotNil(t, collector.queueRate, "queueRate gauge should be initialized")
	assert.NotNil(t, collector.jobsRequested, "jobsRequested counter should be initialized")
	assert.NotNil(t, collector.jobsQueued, "jobsQueued counter should be initialized")
	assert.NotNil(t, collector.reloads, "reloads counter should be initialized")
	assert.NotNil(t, collector.jobDuration, "jobDuration histogram should be initialized")
}

func TestSetThreads(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.SetThreads("GPT4", 4, 2)
	}, "SetThreads should not panic")
}

func TestSetQueueRate(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	for _, rate := range []int{0, 25, 50, 100} {
		assert.NotPanics(t, func() {
			collector.SetQueueRate("GPT4", rate)
		}, "SetQueueRate should not panic with rate %d", rate)
	}
}

func TestIncJobsRequested(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.IncJobsRequested("GPT4")
	}, "IncJobsRequested should not panic")

	for i := 0; i < 5; i++ {
		collector.IncJobsRequested("GPT4")
	}
}

func TestIncJobsQueued(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.IncJobsQueued("GPT4")
	}, "IncJobsQueued should not panic")

	for i := 0; i < 10; i++ {
		collector.IncJobsQueued("GPT4")
	}
}

func TestIncReloads(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.IncReloads("GPT4")
	}, "IncReloads should not panic")

	for i := 0; i < 3; i++ {
		collector.IncReloads("GPT4")
	}
}

func TestObserveJobDuration(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	durations := []float64{0.001, 0.01, 0.1, 1.0, 5.0}
	for _, d := range durations {
		assert.NotPanics(t, func() {
			collector.ObserveJobDuration("GPT4", d)
		}, "ObserveJobDuration should not panic with duration %f", d)
	}
}

func TestMetricsAreLabeledPerModel(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	// Two different models must not collide on the same series.
	assert.NotPanics(t, func() {
		collector.SetThreads("GPT4", 4, 1)
		collector.SetThreads("CLAUDE", 2, 2)
		collector.IncJobsRequested("GPT4")
		collector.IncJobsRequested("CLAUDE")
	}, "per-model labels should keep series independent")
}

func TestConcurrentMetricUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncJobsRequested("GPT4")
			collector.IncJobsQueued("GPT4")
			collector.SetThreads("GPT4", 4, 2)
			collector.SetQueueRate("GPT4", 10)
			collector.ObserveJobDuration("GPT4", 0.1)
		}()
	}
	wg.Wait()
}

func TestCollectorIsolation(t *testing.T) {
	// A second collector cannot register beside the first on the same registerer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	// Second collector will panic due to duplicate registration
	// This is expected: a process should have only one collector
	assert.Panics(t, func() {
		NewCollector()
	}, "Creating a second collector should panic due to duplicate registration")
}

func TestReloadCycleOperationSequence(t *testing.T) {
	// A reload-shaped series of Observer calls: Threads dropping to zero,
	// the reload counter, and Threads restored.
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.SetThreads("GPT4", 2, 2)
		collector.SetQueueRate("GPT4", 0)
		collector.SetThreads("GPT4", 0, 0)
		collector.IncReloads("GPT4")
		collector.SetThreads("GPT4", 2, 2)
	}, "a full reload cycle should not panic")
}

func TestZeroAndBoundaryValues(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.SetThreads("GPT4", 0, 0)
		collector.SetQueueRate("GPT4", 0)
		collector.ObserveJobDuration("GPT4", 0.0)
	}, "boundary values should not panic")
}
