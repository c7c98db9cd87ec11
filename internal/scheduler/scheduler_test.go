package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probsbots/pkg/metrics"
)

func newMetrics() *metrics.Metrics {
	return metrics.NewMetrics("test", prometheus.NewRegistry())
}

func TestScheduler_RunsImmediately(t *testing.T) {
	var runs atomic.Int32
	s := New(nil, Job{Name: "once", Interval: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.True(t, s.Shutdown(time.Second))
}

func TestScheduler_DropsTicksWhileBusy(t *testing.T) {
	m := newMetrics()
	release := make(chan struct{})
	var runs atomic.Int32
	s := New(m, Job{Name: "decision", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.JobDropped.WithLabelValues("decision")) >= 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "no overlapping run while the first is in flight")

	close(release)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.True(t, s.Shutdown(time.Second))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.JobRuns.WithLabelValues("decision", "ok")), 1.0)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	m := newMetrics()
	var runs atomic.Int32
	s := New(m, Job{Name: "reconcile", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		panic("boom")
	}})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.True(t, s.Shutdown(time.Second))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.JobRuns.WithLabelValues("reconcile", "error")), 3.0)
}

func TestScheduler_ErrorsAreCounted(t *testing.T) {
	m := newMetrics()
	done := make(chan struct{}, 1)
	s := New(m, Job{Name: "account", Interval: time.Hour, Run: func(context.Context) error {
		done <- struct{}{}
		return errors.New("venue down")
	}})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-done
	cancel()
	require.True(t, s.Shutdown(time.Second))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("account", "error")))
}

func TestScheduler_ShutdownGraceCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	s := New(nil, Job{Name: "slow", Interval: time.Hour, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-started

	cancel()
	assert.False(t, cancelled.Load(), "stopping the loops leaves in-flight runs alone")
	assert.False(t, s.Shutdown(20*time.Millisecond))
	require.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
}

func TestScheduler_SkipsInvalidJobs(t *testing.T) {
	s := New(nil, Job{Name: "broken"})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	assert.True(t, s.Shutdown(time.Second))
}
