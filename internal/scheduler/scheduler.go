// Package scheduler runs the trader's fixed-interval jobs.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"probsbots/pkg/metrics"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs every job once at start and then on its interval. A job
// never overlaps itself: a tick that finds the previous run in flight is
// dropped.
type Scheduler struct {
	jobs    []Job
	metrics *metrics.Metrics

	runCtx    context.Context
	cancelRun context.CancelFunc
	loops     sync.WaitGroup
	runs      sync.WaitGroup
}

// New builds a scheduler. m may be nil.
func New(m *metrics.Metrics, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, metrics: m}
}

// Start launches one loop per job. Loops stop when ctx is done; runs already
// in flight keep a context that survives ctx until Shutdown gives up on them.
func (s *Scheduler) Start(ctx context.Context) {
	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			logx.Errorf("scheduler: job %q skipped: needs a positive interval and a run func", job.Name)
			continue
		}
		job := job
		s.loops.Add(1)
		threading.GoSafe(func() {
			defer s.loops.Done()
			s.loop(ctx, job)
		})
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	var busy atomic.Bool
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	logx.Infof("scheduler: %s every %s", job.Name, job.Interval)
	s.trigger(job, &busy)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(job, &busy)
		}
	}
}

func (s *Scheduler) trigger(job Job, busy *atomic.Bool) {
	if !busy.CompareAndSwap(false, true) {
		s.metrics.RecordJobDropped(job.Name)
		logx.Slowf("scheduler: %s still running, tick dropped", job.Name)
		return
	}
	s.runs.Add(1)
	threading.GoSafe(func() {
		defer s.runs.Done()
		defer busy.Store(false)
		s.execute(job)
	})
}

func (s *Scheduler) execute(job Job) {
	start := time.Now()
	err := runRecovered(s.runCtx, job)
	elapsed := time.Since(start)
	s.metrics.RecordJobRun(job.Name, err, elapsed.Seconds())
	if err != nil {
		logx.WithContext(s.runCtx).Errorf("scheduler: %s failed after %s: %v", job.Name, elapsed, err)
		return
	}
	logx.WithContext(s.runCtx).Infof("scheduler: %s done in %s", job.Name, elapsed)
}

func runRecovered(ctx context.Context, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logx.WithContext(ctx).Errorf("scheduler: %s panic: %v\n%s", job.Name, p, debug.Stack())
			err = fmt.Errorf("scheduler: %s panic: %v", job.Name, p)
		}
	}()
	return job.Run(ctx)
}

// Shutdown waits for the loops to exit and for in-flight runs to finish,
// giving up after grace. It reports whether everything finished in time.
// The caller cancels the Start context first.
func (s *Scheduler) Shutdown(grace time.Duration) bool {
	s.loops.Wait()
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	defer s.cancelRun()
	select {
	case <-done:
		return true
	case <-timer.C:
		logx.Errorf("scheduler: in-flight jobs still running after %s, cancelling", grace)
		return false
	}
}
