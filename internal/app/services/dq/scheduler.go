package dq

import (
	"context"
	"sync"
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

const defaultSchedulerInterval = 30 * time.Second

// RuleRunner executes a rule by ID. Implemented by Service.
type RuleRunner interface {
	RunRule(ctx context.Context, ruleID, triggeredBy string) (dq.Run, error)
}

// Scheduler periodically picks up due rules and executes them.
type Scheduler struct {
	rules    storage.RuleStore
	runner   RuleRunner
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler polling at the given interval.
func NewScheduler(rules storage.RuleStore, runner RuleRunner, interval time.Duration, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	if log == nil {
		log = logger.NewDefault("dq-scheduler")
	}
	return &Scheduler{
		rules:    rules,
		runner:   runner,
		interval: interval,
		log:      log,
	}
}

// Name implements system.Service.
func (s *Scheduler) Name() string { return "dq-scheduler" }

// Start launches the polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(runCtx)
	s.log.WithField("interval", s.interval.String()).Info("rule scheduler started")
	return nil
}

// Stop halts the polling loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("rule scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.rules.ListDueRules(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("list due rules")
		return
	}

	for _, rule := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}

		run, err := s.runner.RunRule(ctx, rule.ID, "schedule")
		if err != nil {
			s.log.WithError(err).WithField("rule_id", rule.ID).Warn("scheduled rule run failed")
			continue
		}
		s.log.WithField("rule_id", rule.ID).
			WithField("run_id", run.ID).
			WithField("status", string(run.Status)).
			Debug("scheduled rule executed")
	}
}
