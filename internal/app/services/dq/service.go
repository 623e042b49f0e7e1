// Package dq implements the data quality rule engine: target and rule
// management, check execution, violation tracking and metric history.
package dq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/metrics"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

const anomalyHistoryLimit = 100

// Alerter receives failed runs for notification fan-out.
type Alerter interface {
	RuleFailed(ctx context.Context, rule dq.Rule, run dq.Run, violations []dq.Violation)
}

// Service coordinates targets, rules and rule execution.
type Service struct {
	targets   storage.TargetStore
	rules     storage.RuleStore
	runs      storage.RunStore
	connector *Connector
	alerter   Alerter
	log       *logger.Logger
}

// New creates a configured data quality service.
func New(targets storage.TargetStore, rules storage.RuleStore, runs storage.RunStore, connector *Connector, alerter Alerter, log *logger.Logger) *Service {
	if connector == nil {
		connector = NewConnector()
	}
	if log == nil {
		log = logger.NewDefault("dq")
	}
	return &Service{
		targets:   targets,
		rules:     rules,
		runs:      runs,
		connector: connector,
		alerter:   alerter,
		log:       log,
	}
}

// Target management ----------------------------------------------------------

// CreateTarget registers a database connection that rules run against.
func (s *Service) CreateTarget(ctx context.Context, name, driver, dsn, schema string) (dq.Target, error) {
	name = strings.TrimSpace(name)
	driver = strings.TrimSpace(driver)
	dsn = strings.TrimSpace(dsn)

	if name == "" {
		return dq.Target{}, fmt.Errorf("name is required")
	}
	if !supportedDrivers[driver] {
		return dq.Target{}, fmt.Errorf("unsupported driver %q", driver)
	}
	if dsn == "" {
		return dq.Target{}, fmt.Errorf("dsn is required")
	}

	if _, err := s.targets.GetTargetByName(ctx, name); err == nil {
		return dq.Target{}, fmt.Errorf("target with name %q already exists", name)
	}

	target, err := s.targets.CreateTarget(ctx, dq.Target{
		Name:   name,
		Driver: driver,
		DSN:    dsn,
		Schema: strings.TrimSpace(schema),
	})
	if err != nil {
		return dq.Target{}, err
	}
	s.log.WithField("target_id", target.ID).WithField("name", name).Info("target created")
	return target, nil
}

// UpdateTarget applies modifications to a target. Nil fields are unchanged.
func (s *Service) UpdateTarget(ctx context.Context, id string, name, dsn, schema *string) (dq.Target, error) {
	target, err := s.targets.GetTarget(ctx, id)
	if err != nil {
		return dq.Target{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return dq.Target{}, fmt.Errorf("name cannot be empty")
		}
		if other, err := s.targets.GetTargetByName(ctx, trimmed); err == nil && other.ID != id {
			return dq.Target{}, fmt.Errorf("target with name %q already exists", trimmed)
		}
		target.Name = trimmed
	}
	if dsn != nil {
		trimmed := strings.TrimSpace(*dsn)
		if trimmed == "" {
			return dq.Target{}, fmt.Errorf("dsn cannot be empty")
		}
		target.DSN = trimmed
	}
	if schema != nil {
		target.Schema = strings.TrimSpace(*schema)
	}

	target, err = s.targets.UpdateTarget(ctx, target)
	if err != nil {
		return dq.Target{}, err
	}
	s.connector.Evict(id)
	s.log.WithField("target_id", id).Info("target updated")
	return target, nil
}

// GetTarget returns a target by ID.
func (s *Service) GetTarget(ctx context.Context, id string) (dq.Target, error) {
	return s.targets.GetTarget(ctx, id)
}

// ListTargets returns all registered targets.
func (s *Service) ListTargets(ctx context.Context) ([]dq.Target, error) {
	return s.targets.ListTargets(ctx)
}

// DeleteTarget removes a target and its cached connection.
func (s *Service) DeleteTarget(ctx context.Context, id string) error {
	if err := s.targets.DeleteTarget(ctx, id); err != nil {
		return err
	}
	s.connector.Evict(id)
	s.log.WithField("target_id", id).Info("target deleted")
	return nil
}

// Rule management ------------------------------------------------------------

// CreateRule registers a data quality rule on a target dataset.
func (s *Service) CreateRule(ctx context.Context, r dq.Rule) (dq.Rule, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Dataset = strings.TrimSpace(r.Dataset)
	r.Schedule = strings.TrimSpace(r.Schedule)

	if r.Name == "" {
		return dq.Rule{}, fmt.Errorf("name is required")
	}
	if err := validateIdent(r.Dataset); err != nil {
		return dq.Rule{}, fmt.Errorf("dataset: %w", err)
	}
	if !SupportedCheck(r.Check) {
		return dq.Rule{}, fmt.Errorf("unknown check type %q", r.Check)
	}
	if !r.Severity.Valid() {
		return dq.Rule{}, fmt.Errorf("unknown severity %q", r.Severity)
	}
	if _, err := s.targets.GetTarget(ctx, r.TargetID); err != nil {
		return dq.Rule{}, fmt.Errorf("target validation failed: %w", err)
	}

	existing, err := s.rules.ListRules(ctx, r.TargetID)
	if err != nil {
		return dq.Rule{}, err
	}
	for _, other := range existing {
		if strings.EqualFold(other.Name, r.Name) {
			return dq.Rule{}, fmt.Errorf("rule with name %q already exists", r.Name)
		}
	}

	if r.Schedule != "" {
		next, err := nextCronTime(r.Schedule, time.Now().UTC())
		if err != nil {
			return dq.Rule{}, fmt.Errorf("schedule: %w", err)
		}
		r.NextRun = next
	}

	r, err = s.rules.CreateRule(ctx, r)
	if err != nil {
		return dq.Rule{}, err
	}
	s.log.WithField("rule_id", r.ID).
		WithField("check", string(r.Check)).
		WithField("dataset", r.Dataset).
		Info("rule created")
	return r, nil
}

// RuleUpdate carries optional modifications for UpdateRule.
type RuleUpdate struct {
	Name     *string
	Dataset  *string
	Params   map[string]string
	Severity *dq.Severity
	Schedule *string
	Enabled  *bool
}

// UpdateRule applies modifications to a rule.
func (s *Service) UpdateRule(ctx context.Context, id string, upd RuleUpdate) (dq.Rule, error) {
	r, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return dq.Rule{}, err
	}

	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return dq.Rule{}, fmt.Errorf("name cannot be empty")
		}
		existing, err := s.rules.ListRules(ctx, r.TargetID)
		if err != nil {
			return dq.Rule{}, err
		}
		for _, other := range existing {
			if other.ID != r.ID && strings.EqualFold(other.Name, trimmed) {
				return dq.Rule{}, fmt.Errorf("rule with name %q already exists", trimmed)
			}
		}
		r.Name = trimmed
	}
	if upd.Dataset != nil {
		trimmed := strings.TrimSpace(*upd.Dataset)
		if err := validateIdent(trimmed); err != nil {
			return dq.Rule{}, fmt.Errorf("dataset: %w", err)
		}
		r.Dataset = trimmed
	}
	if upd.Params != nil {
		r.Params = upd.Params
	}
	if upd.Severity != nil {
		if !upd.Severity.Valid() {
			return dq.Rule{}, fmt.Errorf("unknown severity %q", *upd.Severity)
		}
		r.Severity = *upd.Severity
	}
	if upd.Schedule != nil {
		trimmed := strings.TrimSpace(*upd.Schedule)
		if trimmed != "" {
			next, err := nextCronTime(trimmed, time.Now().UTC())
			if err != nil {
				return dq.Rule{}, fmt.Errorf("schedule: %w", err)
			}
			r.NextRun = next
		} else {
			r.NextRun = time.Time{}
		}
		r.Schedule = trimmed
	}
	if upd.Enabled != nil {
		r.Enabled = *upd.Enabled
	}

	r, err = s.rules.UpdateRule(ctx, r)
	if err != nil {
		return dq.Rule{}, err
	}
	s.log.WithField("rule_id", r.ID).Info("rule updated")
	return r, nil
}

// GetRule returns a rule by ID.
func (s *Service) GetRule(ctx context.Context, id string) (dq.Rule, error) {
	return s.rules.GetRule(ctx, id)
}

// ListRules returns rules, optionally filtered by target.
func (s *Service) ListRules(ctx context.Context, targetID string) ([]dq.Rule, error) {
	return s.rules.ListRules(ctx, targetID)
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := s.rules.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.log.WithField("rule_id", id).Info("rule deleted")
	return nil
}

// Run execution --------------------------------------------------------------

// RunRule executes a rule immediately and records the outcome.
func (s *Service) RunRule(ctx context.Context, ruleID, triggeredBy string) (dq.Run, error) {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return dq.Run{}, err
	}
	target, err := s.targets.GetTarget(ctx, rule.TargetID)
	if err != nil {
		return dq.Run{}, err
	}

	run, err := s.runs.CreateRun(ctx, dq.Run{
		RuleID:      rule.ID,
		TargetID:    target.ID,
		Status:      dq.RunPending,
		TriggeredBy: triggeredBy,
	})
	if err != nil {
		return dq.Run{}, err
	}

	run.Status = dq.RunRunning
	run.StartedAt = time.Now().UTC()
	if run, err = s.runs.UpdateRun(ctx, run); err != nil {
		return dq.Run{}, err
	}

	result, execErr := s.execute(ctx, target, rule)

	run.FinishedAt = time.Now().UTC()
	if execErr != nil {
		run.Status = dq.RunError
		run.Error = execErr.Error()
		s.log.WithError(execErr).WithField("rule_id", rule.ID).Warn("rule run errored")
	} else {
		run.Metric = result.Metric
		run.Violations = len(result.Violations)
		if result.Passed {
			run.Status = dq.RunPassed
		} else {
			run.Status = dq.RunFailed
		}
	}

	if run, err = s.runs.UpdateRun(ctx, run); err != nil {
		return dq.Run{}, err
	}

	if execErr == nil {
		s.recordOutcome(ctx, rule, run, result)
	}
	metrics.RecordRuleRun(string(rule.Check), string(run.Status), run.FinishedAt.Sub(run.StartedAt))

	s.advanceSchedule(ctx, rule)
	return run, nil
}

func (s *Service) execute(ctx context.Context, target dq.Target, rule dq.Rule) (CheckResult, error) {
	db, err := s.connector.Connect(ctx, target)
	if err != nil {
		return CheckResult{}, err
	}

	var history []float64
	if rule.Check == dq.CheckVolumeAnomaly {
		points, err := s.runs.ListMetricPoints(ctx, rule.ID, "row_count", anomalyHistoryLimit)
		if err != nil {
			return CheckResult{}, err
		}
		// Points arrive newest first; history reads oldest first.
		for i := len(points) - 1; i >= 0; i-- {
			history = append(history, points[i].Value)
		}
	}

	return ExecuteCheck(ctx, db, rule, history)
}

func (s *Service) recordOutcome(ctx context.Context, rule dq.Rule, run dq.Run, result CheckResult) {
	var persisted []dq.Violation
	for _, v := range result.Violations {
		v.RunID = run.ID
		v.RuleID = rule.ID
		stored, err := s.runs.CreateViolation(ctx, v)
		if err != nil {
			s.log.WithError(err).Warn("persist violation")
			continue
		}
		persisted = append(persisted, stored)
	}
	metrics.RecordViolations(string(rule.Severity), len(persisted))

	if result.MetricName != "" {
		_, err := s.runs.CreateMetricPoint(ctx, dq.MetricPoint{
			RuleID:     rule.ID,
			Name:       result.MetricName,
			Value:      result.Metric,
			RecordedAt: run.FinishedAt,
		})
		if err != nil {
			s.log.WithError(err).Warn("persist metric point")
		}
	}

	if run.Status == dq.RunFailed && s.alerter != nil {
		s.alerter.RuleFailed(ctx, rule, run, persisted)
	}
}

func (s *Service) advanceSchedule(ctx context.Context, rule dq.Rule) {
	fresh, err := s.rules.GetRule(ctx, rule.ID)
	if err != nil {
		return
	}
	fresh.LastRun = time.Now().UTC()
	if fresh.Schedule != "" {
		if next, err := nextCronTime(fresh.Schedule, fresh.LastRun); err == nil {
			fresh.NextRun = next
		}
	}
	if _, err := s.rules.UpdateRule(ctx, fresh); err != nil {
		s.log.WithError(err).WithField("rule_id", rule.ID).Warn("advance rule schedule")
	}
}

// GetRun returns a run by ID.
func (s *Service) GetRun(ctx context.Context, id string) (dq.Run, error) {
	return s.runs.GetRun(ctx, id)
}

// ListRuns returns recent runs for a rule, newest first.
func (s *Service) ListRuns(ctx context.Context, ruleID string, limit int) ([]dq.Run, error) {
	return s.runs.ListRuns(ctx, ruleID, limit)
}

// ListViolations returns the violations recorded for a run.
func (s *Service) ListViolations(ctx context.Context, runID string) ([]dq.Violation, error) {
	return s.runs.ListViolations(ctx, runID)
}

// ListMetricPoints returns recent metric history for a rule, newest first.
func (s *Service) ListMetricPoints(ctx context.Context, ruleID, name string, limit int) ([]dq.MetricPoint, error) {
	return s.runs.ListMetricPoints(ctx, ruleID, name, limit)
}

// nextCronTime parses a standard cron schedule and returns the next firing
// time after from.
func nextCronTime(schedule string, from time.Time) (time.Time, error) {
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.Next(from).UTC(), nil
}
