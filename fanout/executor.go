// Package fanout runs independent units of per-account work concurrently and
// merges their partial results (fan-out/fan-in), and restores the caller's
// requested order afterwards (Reorder).
package fanout

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/logging"
)

// Job is one unit of concurrent work, typically all targets of one account.
// Keys lists the result keys the job is responsible for; it may be empty for
// jobs that contribute an open-ended set of items (e.g. searching all
// folders of an account).
type Job[K comparable, V any] struct {
	Label string
	Keys  []K
	Run   func(ctx context.Context) (map[K]V, error)
}

// Spec tells Collect how to build and merge envelopes.
type Spec[K comparable, V any] struct {
	// Failed builds the envelope of a key whose job failed or never completed.
	Failed func(key K, err error) V
	// Combine merges two envelopes for the same key delivered by different
	// jobs. When nil, the later envelope wins.
	Combine func(prev, next V) V
}

// Outcome is the merged result of a fan-out.
type Outcome[K comparable, V any] struct {
	Results map[K]V
	// Failures holds the errors of failed jobs that had no keys to attach
	// them to. Callers usually surface them as warnings.
	Failures  []error
	Completed int
	Abandoned int
}

// Config bounds the executor.
type Config struct {
	// MaxParallel is the worker pool ceiling. 0 or <1 means one worker per
	// job.
	MaxParallel int
	// Timeout, if set, bounds each Collect call in addition to the caller's
	// context deadline.
	Timeout time.Duration
}

// DefaultConfig is used when no explicit configuration is supplied.
var DefaultConfig = Config{MaxParallel: 8}

// Executor runs fan-out jobs on a bounded worker pool. It holds no per-call
// state and may be shared by the calls of one composition engine.
type Executor struct {
	cfg    Config
	logger logging.Logger
}

// New creates an executor. A nil logger discards all output.
func New(cfg Config, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Executor{cfg: cfg, logger: logger}
}

type completion[K comparable, V any] struct {
	index   int
	results map[K]V
	err     error
}

// Collect runs the jobs and merges their results.
//
// A single job runs on the calling goroutine. Several jobs are fed to at most
// MaxParallel workers and collected in completion order. A failing job never
// affects its siblings: every key of the job receives spec.Failed with the
// job's error, non-domain failures and panics being wrapped into
// core.ErrUnexpected. When ctx ends first, outstanding jobs are abandoned and
// their keys receive core.ErrTimedOut envelopes; envelopes already collected
// are kept.
func Collect[K comparable, V any](ctx context.Context, e *Executor, jobs []Job[K, V], spec Spec[K, V]) Outcome[K, V] {
	out := Outcome[K, V]{Results: make(map[K]V)}
	n := len(jobs)
	if n == 0 {
		return out
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	batchStart := time.Now()

	// Fast path: single job, execute inline.
	if n == 1 {
		res, err := runJob(ctx, jobs[0])
		out.absorb(jobs[0], res, err, spec)
		out.Completed = 1
		e.logDone(n, 1, len(out.Failures), batchStart)
		return out
	}

	workers := e.cfg.MaxParallel
	if workers <= 0 || workers > n {
		workers = n
	}

	queue := make(chan int, n)
	for i := range jobs {
		queue <- i
	}
	close(queue)

	// buffered for every job so that abandoned workers never block
	results := make(chan completion[K, V], n)

	for w := 0; w < workers; w++ {
		go func() {
			for idx := range queue {
				if err := ctx.Err(); err != nil {
					results <- completion[K, V]{index: idx, err: err}
					continue
				}
				res, err := runJob(ctx, jobs[idx])
				results <- completion[K, V]{index: idx, results: res, err: err}
			}
		}()
	}

	done := make([]bool, n)
	receive := func(c completion[K, V]) {
		done[c.index] = true
		out.Completed++
		out.absorb(jobs[c.index], c.results, c.err, spec)
	}

	for out.Completed < n {
		select {
		case c := <-results:
			receive(c)
		case <-ctx.Done():
			// keep whatever already finished
			for drained := false; !drained; {
				select {
				case c := <-results:
					receive(c)
				default:
					drained = true
				}
			}
			timeout := core.Wrap(core.ErrTimedOut, ctx.Err(), "job abandoned")
			for i, job := range jobs {
				if done[i] {
					continue
				}
				out.Abandoned++
				out.absorb(job, nil, timeout, spec)
			}
			e.logger.Warn("calendar.fanout.abandoned",
				"jobs", n,
				"completed", out.Completed,
				"abandoned", out.Abandoned,
				"error", ctx.Err().Error(),
			)
			e.logDone(n, workers, len(out.Failures), batchStart)
			return out
		}
	}

	e.logDone(n, workers, len(out.Failures), batchStart)
	return out
}

func (o *Outcome[K, V]) absorb(job Job[K, V], results map[K]V, err error, spec Spec[K, V]) {
	if err != nil {
		de := core.AsError(err)
		if len(job.Keys) == 0 {
			o.Failures = append(o.Failures, de)
			return
		}
		for _, k := range job.Keys {
			o.put(k, spec.Failed(k, de), spec)
		}
		return
	}
	for k, v := range results {
		o.put(k, v, spec)
	}
}

func (o *Outcome[K, V]) put(k K, v V, spec Spec[K, V]) {
	if spec.Combine != nil {
		if prev, ok := o.Results[k]; ok {
			v = spec.Combine(prev, v)
		}
	}
	o.Results[k] = v
}

func (e *Executor) logDone(jobs, parallelism, failures int, start time.Time) {
	e.logger.Debug("calendar.fanout.complete",
		"jobs", jobs,
		"parallelism", parallelism,
		"failures", failures,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func runJob[K comparable, V any](ctx context.Context, job Job[K, V]) (res map[K]V, err error) {
	defer func() { // panic safety
		if r := recover(); r != nil {
			res = nil
			err = core.Wrap(core.ErrUnexpected, panicError(r), "job %s panicked", job.Label)
		}
	}()
	return job.Run(ctx)
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
