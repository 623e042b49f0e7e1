// Package alerting turns failed rule runs into notifications. Alerts are
// persisted, deduplicated per rule within a suppression window and fanned
// out to the configured sinks.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/alert"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/metrics"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

const defaultSuppressionWindow = 15 * time.Minute

// Service dispatches alerts for failed rule runs.
type Service struct {
	store   storage.AlertStore
	sinks   []Sink
	deduper Deduper
	bus     *Bus
	window  time.Duration
	log     *logger.Logger
}

// New creates a configured alerting service.
func New(store storage.AlertStore, sinks []Sink, deduper Deduper, bus *Bus, window time.Duration, log *logger.Logger) *Service {
	if deduper == nil {
		deduper = NewMemoryDeduper()
	}
	if bus == nil {
		bus = NewBus()
	}
	if window <= 0 {
		window = defaultSuppressionWindow
	}
	if log == nil {
		log = logger.NewDefault("alerting")
	}
	return &Service{
		store:   store,
		sinks:   sinks,
		deduper: deduper,
		bus:     bus,
		window:  window,
		log:     log,
	}
}

// Bus exposes the in-process alert feed.
func (s *Service) Bus() *Bus { return s.bus }

// RuleFailed records an alert for a failed run and notifies the sinks.
// Repeat failures of the same rule within the suppression window are stored
// but not re-sent.
func (s *Service) RuleFailed(ctx context.Context, rule dq.Rule, run dq.Run, violations []dq.Violation) {
	message := fmt.Sprintf("rule %q failed on %s with %d violation(s)", rule.Name, rule.Dataset, len(violations))
	if len(violations) > 0 {
		message = fmt.Sprintf("%s: %s", message, violations[0].Message)
	}

	a, err := s.store.CreateAlert(ctx, alert.Alert{
		RuleID:   rule.ID,
		RunID:    run.ID,
		Severity: rule.Severity,
		Message:  message,
	})
	if err != nil {
		s.log.WithError(err).WithField("rule_id", rule.ID).Error("persist alert")
		return
	}

	s.bus.Publish(a)

	if !s.deduper.ShouldSend(ctx, rule.ID, s.window) {
		s.log.WithField("rule_id", rule.ID).Debug("alert suppressed by dedup window")
		return
	}

	for _, sink := range s.sinks {
		if err := sink.Send(ctx, a, rule); err != nil {
			s.log.WithError(err).
				WithField("sink", sink.Name()).
				WithField("alert_id", a.ID).
				Warn("alert delivery failed")
			metrics.RecordAlert(sink.Name(), false)
			continue
		}
		metrics.RecordAlert(sink.Name(), true)
	}
}

// List returns recent alerts, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]alert.Alert, error) {
	return s.store.ListAlerts(ctx, limit)
}
