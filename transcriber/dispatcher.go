package transcriber

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"voicein/log"
	"voicein/metrics"
)

// Dispatcher runs each job on its own goroutine so the caller never blocks
// on network or model latency. It does not limit concurrency; callers that
// need one job at a time enforce it themselves.
type Dispatcher struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher. A zero timeout lets backends run for
// as long as they need.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{timeout: timeout}
}

// Submit starts job on b. done is called exactly once, from the worker
// goroutine, after the job reaches StatusDone or StatusFailed.
func (d *Dispatcher) Submit(ctx context.Context, job *Job, b Backend, done func(*Job)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, job, b)
		if done != nil {
			done(job)
		}
	}()
}

func (d *Dispatcher) run(ctx context.Context, job *Job, b Backend) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	job.setRunning()
	text, err := d.call(ctx, job, b)
	job.finish(text, err)

	r := job.Snapshot()
	log.JobResult(r.ID, b.Name(), r.Status.String(), r.Elapsed, len(r.Text), r.Err)
	metrics.JobFinished(ctx, string(job.Provider), r.Status.String(), r.Elapsed)
}

func (d *Dispatcher) call(ctx context.Context, job *Job, b Backend) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("backend %s panic: %v\n%s", b.Name(), r, debug.Stack())
			err = fmt.Errorf("backend %s panicked: %v", b.Name(), r)
		}
	}()
	return b.Transcribe(ctx, job.AudioPath, job.Prompts)
}

// Wait blocks until every submitted job has finished and its done callback
// has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
