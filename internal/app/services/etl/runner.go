package etl

import (
	"context"
	"sync"
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

const defaultRunnerInterval = 30 * time.Second

// PipelineRunner executes a pipeline by ID. Implemented by Service.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, pipelineID, triggeredBy string) (etl.Run, error)
}

// Runner periodically picks up due pipelines and executes them.
type Runner struct {
	pipelines storage.PipelineStore
	runner    PipelineRunner
	interval  time.Duration
	log       *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRunner creates a runner polling at the given interval.
func NewRunner(pipelines storage.PipelineStore, runner PipelineRunner, interval time.Duration, log *logger.Logger) *Runner {
	if interval <= 0 {
		interval = defaultRunnerInterval
	}
	if log == nil {
		log = logger.NewDefault("etl-runner")
	}
	return &Runner{
		pipelines: pipelines,
		runner:    runner,
		interval:  interval,
		log:       log,
	}
}

// Name implements system.Service.
func (r *Runner) Name() string { return "etl-runner" }

// Start launches the polling loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.loop(runCtx)
	r.log.WithField("interval", r.interval.String()).Info("pipeline runner started")
	return nil
}

// Stop halts the polling loop.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("pipeline runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	due, err := r.pipelines.ListDuePipelines(ctx, time.Now().UTC())
	if err != nil {
		r.log.WithError(err).Warn("list due pipelines")
		return
	}

	for _, p := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}

		run, err := r.runner.RunPipeline(ctx, p.ID, "schedule")
		if err != nil {
			r.log.WithError(err).WithField("pipeline_id", p.ID).Warn("scheduled pipeline run failed")
			continue
		}
		r.log.WithField("pipeline_id", p.ID).
			WithField("run_id", run.ID).
			WithField("status", string(run.Status)).
			Debug("scheduled pipeline executed")
	}
}
