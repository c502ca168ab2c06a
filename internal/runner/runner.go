// Package runner executes replay runs as cancellable background tasks.
// Each run stays single-threaded inside its day loop; concurrency only
// exists across runs, so independent jobs can be fanned over a bounded
// worker pool for parameter sweeps and stress batteries.
package runner

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quantfold/replaycore/internal/dataset"
	"github.com/quantfold/replaycore/internal/replay"
	"github.com/quantfold/replaycore/pkg/types"
)

// Job bundles everything one replay run needs. Prices and Config are
// required; Signals, Weights, Benchmark and Progress may be nil. Jobs in a
// batch must not share mutable state: datasets are read-only during a run,
// so sharing the same Prices across jobs is fine.
type Job struct {
	Config    types.RunConfig
	Prices    *dataset.Prices
	Signals   *dataset.Signals
	Weights   *dataset.Weights
	Benchmark *dataset.Benchmark

	// Progress, when set, receives the same per-day updates as the run
	// handle. It is called synchronously from the run's goroutine, so it
	// must return quickly and must not block on the handle's Wait.
	Progress replay.ProgressFunc
}

// Runner starts replay runs and hands back handles to observe them.
type Runner struct {
	logger  *zap.Logger
	metrics *runnerMetrics
}

// NewRunner creates a runner. A nil logger disables logging; a nil
// registerer disables instrumentation.
func NewRunner(logger *zap.Logger, reg prometheus.Registerer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		logger:  logger,
		metrics: newRunnerMetrics(reg),
	}
}

// Submit starts the job on its own goroutine and returns a handle for it.
// The only submission-time failure is a context that is already dead;
// configuration and dataset problems surface through the handle's Wait.
func (rn *Runner) Submit(ctx context.Context, job Job) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run, runCtx := newRun(ctx)
	rn.metrics.runStarted()
	rn.logger.Info("run submitted",
		zap.String("runId", run.id),
		zap.Time("start", job.Config.Start),
		zap.Time("end", job.Config.End),
	)

	go rn.execute(runCtx, run, job)
	return run, nil
}

func (rn *Runner) execute(ctx context.Context, run *Run, job Job) {
	defer run.cancel()
	started := time.Now()

	engine := replay.NewEngine(rn.logger.With(zap.String("runId", run.id)))
	engine.OnProgress(func(p types.RunProgress) {
		p.RunID = run.id
		run.setProgress(p)
		if job.Progress != nil {
			job.Progress(p)
		}
	})

	result, err := engine.Run(ctx, job.Config, replay.Inputs{
		Prices:    job.Prices,
		Signals:   job.Signals,
		Weights:   job.Weights,
		Benchmark: job.Benchmark,
	})

	status := types.RunStatusCompleted
	switch {
	case err == nil:
		result.RunID = run.id
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = types.RunStatusCancelled
	default:
		status = types.RunStatusFailed
	}

	// Instrumentation is updated before the handle unblocks so observers
	// that wake on Done see final counter values.
	rn.metrics.runFinished(status, time.Since(started))
	run.finish(result, err, status)

	switch status {
	case types.RunStatusCompleted:
		rn.logger.Info("run completed",
			zap.String("runId", run.id),
			zap.Duration("elapsed", time.Since(started)),
			zap.Int("trades", len(result.Trades)),
			zap.Int("incidents", result.Incidents),
		)
	case types.RunStatusCancelled:
		rn.logger.Warn("run cancelled",
			zap.String("runId", run.id),
			zap.Duration("elapsed", time.Since(started)),
		)
	default:
		rn.logger.Error("run failed",
			zap.String("runId", run.id),
			zap.Error(err),
		)
	}
}

// RunBatch executes independent jobs over at most workers goroutines and
// blocks until every job has finished. Handles come back in job order, all
// non-nil; jobs never started because the context died come back in the
// cancelled state. workers <= 0 means one worker per CPU.
func (rn *Runner) RunBatch(ctx context.Context, jobs []Job, workers int) []*Run {
	if len(jobs) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	rn.logger.Info("starting batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", workers),
	)

	runs := make([]*Run, len(jobs))
	next := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				run, err := rn.Submit(ctx, jobs[i])
				if err != nil {
					runs[i] = abortedRun(err)
					continue
				}
				runs[i] = run
				<-run.Done()
			}
		}()
	}

	for i := range jobs {
		next <- i
	}
	close(next)
	wg.Wait()

	rn.logger.Info("batch finished", zap.Int("jobs", len(jobs)))
	return runs
}
