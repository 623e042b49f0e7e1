package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/alert"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
)

// --- TargetStore ------------------------------------------------------------

func (s *Store) CreateTarget(ctx context.Context, t dq.Target) (dq.Target, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bo_targets (id, name, driver, dsn, schema_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Name, t.Driver, t.DSN, t.Schema, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return dq.Target{}, err
	}
	return t, nil
}

func (s *Store) UpdateTarget(ctx context.Context, t dq.Target) (dq.Target, error) {
	existing, err := s.GetTarget(ctx, t.ID)
	if err != nil {
		return dq.Target{}, err
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE bo_targets
		SET name = $2, driver = $3, dsn = $4, schema_name = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.Name, t.Driver, t.DSN, t.Schema, t.UpdatedAt)
	if err != nil {
		return dq.Target{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return dq.Target{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *Store) GetTarget(ctx context.Context, id string) (dq.Target, error) {
	return scanTarget(s.db.QueryRowContext(ctx, `
		SELECT id, name, driver, dsn, schema_name, created_at, updated_at
		FROM bo_targets
		WHERE id = $1
	`, id))
}

func (s *Store) GetTargetByName(ctx context.Context, name string) (dq.Target, error) {
	return scanTarget(s.db.QueryRowContext(ctx, `
		SELECT id, name, driver, dsn, schema_name, created_at, updated_at
		FROM bo_targets
		WHERE lower(name) = lower($1)
	`, name))
}

func scanTarget(row *sql.Row) (dq.Target, error) {
	var t dq.Target
	if err := row.Scan(&t.ID, &t.Name, &t.Driver, &t.DSN, &t.Schema, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return dq.Target{}, err
	}
	return t, nil
}

func (s *Store) ListTargets(ctx context.Context) ([]dq.Target, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, driver, dsn, schema_name, created_at, updated_at
		FROM bo_targets
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []dq.Target
	for rows.Next() {
		var t dq.Target
		if err := rows.Scan(&t.ID, &t.Name, &t.Driver, &t.DSN, &t.Schema, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) DeleteTarget(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bo_targets WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- RuleStore --------------------------------------------------------------

func (s *Store) CreateRule(ctx context.Context, r dq.Rule) (dq.Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return dq.Rule{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bo_rules (id, target_id, name, dataset, check_type, params, severity, schedule, enabled, last_run, next_run, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.ID, r.TargetID, r.Name, r.Dataset, string(r.Check), paramsJSON, string(r.Severity), r.Schedule, r.Enabled, toNullTime(r.LastRun), toNullTime(r.NextRun), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return dq.Rule{}, err
	}
	return r, nil
}

func (s *Store) UpdateRule(ctx context.Context, r dq.Rule) (dq.Rule, error) {
	existing, err := s.GetRule(ctx, r.ID)
	if err != nil {
		return dq.Rule{}, err
	}
	r.TargetID = existing.TargetID
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return dq.Rule{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE bo_rules
		SET name = $2, dataset = $3, check_type = $4, params = $5, severity = $6, schedule = $7, enabled = $8, last_run = $9, next_run = $10, updated_at = $11
		WHERE id = $1
	`, r.ID, r.Name, r.Dataset, string(r.Check), paramsJSON, string(r.Severity), r.Schedule, r.Enabled, toNullTime(r.LastRun), toNullTime(r.NextRun), r.UpdatedAt)
	if err != nil {
		return dq.Rule{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return dq.Rule{}, sql.ErrNoRows
	}
	return r, nil
}

const ruleColumns = `id, target_id, name, dataset, check_type, params, severity, schedule, enabled, last_run, next_run, created_at, updated_at`

func (s *Store) GetRule(ctx context.Context, id string) (dq.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM bo_rules
		WHERE id = $1
	`, id)

	var (
		r         dq.Rule
		check     string
		severity  string
		paramsRaw []byte
		lastRun   sql.NullTime
		nextRun   sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.TargetID, &r.Name, &r.Dataset, &check, &paramsRaw, &severity, &r.Schedule, &r.Enabled, &lastRun, &nextRun, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return dq.Rule{}, err
	}
	r.Check = dq.CheckType(check)
	r.Severity = dq.Severity(severity)
	if len(paramsRaw) > 0 {
		_ = json.Unmarshal(paramsRaw, &r.Params)
	}
	if lastRun.Valid {
		r.LastRun = lastRun.Time.UTC()
	}
	if nextRun.Valid {
		r.NextRun = nextRun.Time.UTC()
	}
	return r, nil
}

func (s *Store) ListRules(ctx context.Context, targetID string) ([]dq.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM bo_rules
		WHERE $1 = '' OR target_id = $1
		ORDER BY created_at
	`, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func (s *Store) ListDueRules(ctx context.Context, now time.Time) ([]dq.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM bo_rules
		WHERE enabled AND schedule <> '' AND next_run IS NOT NULL AND next_run <= $1
		ORDER BY next_run
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]dq.Rule, error) {
	var result []dq.Rule
	for rows.Next() {
		var (
			r         dq.Rule
			check     string
			severity  string
			paramsRaw []byte
			lastRun   sql.NullTime
			nextRun   sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.TargetID, &r.Name, &r.Dataset, &check, &paramsRaw, &severity, &r.Schedule, &r.Enabled, &lastRun, &nextRun, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Check = dq.CheckType(check)
		r.Severity = dq.Severity(severity)
		if len(paramsRaw) > 0 {
			_ = json.Unmarshal(paramsRaw, &r.Params)
		}
		if lastRun.Valid {
			r.LastRun = lastRun.Time.UTC()
		}
		if nextRun.Valid {
			r.NextRun = nextRun.Time.UTC()
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bo_rules WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- RunStore ---------------------------------------------------------------

func (s *Store) CreateRun(ctx context.Context, run dq.Run) (dq.Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bo_rule_runs (id, rule_id, target_id, status, triggered_by, metric, violations, error, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, run.ID, run.RuleID, run.TargetID, string(run.Status), run.TriggeredBy, run.Metric, run.Violations, run.Error, toNullTime(run.StartedAt), toNullTime(run.FinishedAt), run.CreatedAt)
	if err != nil {
		return dq.Run{}, err
	}
	return run, nil
}

func (s *Store) UpdateRun(ctx context.Context, run dq.Run) (dq.Run, error) {
	existing, err := s.GetRun(ctx, run.ID)
	if err != nil {
		return dq.Run{}, err
	}
	run.RuleID = existing.RuleID
	run.TargetID = existing.TargetID
	run.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE bo_rule_runs
		SET status = $2, metric = $3, violations = $4, error = $5, started_at = $6, finished_at = $7
		WHERE id = $1
	`, run.ID, string(run.Status), run.Metric, run.Violations, run.Error, toNullTime(run.StartedAt), toNullTime(run.FinishedAt))
	if err != nil {
		return dq.Run{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return dq.Run{}, sql.ErrNoRows
	}
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (dq.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rule_id, target_id, status, triggered_by, metric, violations, error, started_at, finished_at, created_at
		FROM bo_rule_runs
		WHERE id = $1
	`, id)

	var (
		run        dq.Run
		status     string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.RuleID, &run.TargetID, &status, &run.TriggeredBy, &run.Metric, &run.Violations, &run.Error, &startedAt, &finishedAt, &run.CreatedAt); err != nil {
		return dq.Run{}, err
	}
	run.Status = dq.RunStatus(status)
	if startedAt.Valid {
		run.StartedAt = startedAt.Time.UTC()
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time.UTC()
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, ruleID string, limit int) ([]dq.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, target_id, status, triggered_by, metric, violations, error, started_at, finished_at, created_at
		FROM bo_rule_runs
		WHERE $1 = '' OR rule_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ruleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []dq.Run
	for rows.Next() {
		var (
			run        dq.Run
			status     string
			startedAt  sql.NullTime
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.RuleID, &run.TargetID, &status, &run.TriggeredBy, &run.Metric, &run.Violations, &run.Error, &startedAt, &finishedAt, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Status = dq.RunStatus(status)
		if startedAt.Valid {
			run.StartedAt = startedAt.Time.UTC()
		}
		if finishedAt.Valid {
			run.FinishedAt = finishedAt.Time.UTC()
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

func (s *Store) CreateViolation(ctx context.Context, v dq.Violation) (dq.Violation, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = time.Now().UTC()

	sampleJSON, err := json.Marshal(v.Sample)
	if err != nil {
		return dq.Violation{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bo_violations (id, run_id, rule_id, severity, message, observed, expected, sample, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, v.ID, v.RunID, v.RuleID, string(v.Severity), v.Message, v.Observed, v.Expected, sampleJSON, v.CreatedAt)
	if err != nil {
		return dq.Violation{}, err
	}
	return v, nil
}

func (s *Store) ListViolations(ctx context.Context, runID string) ([]dq.Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, rule_id, severity, message, observed, expected, sample, created_at
		FROM bo_violations
		WHERE run_id = $1
		ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []dq.Violation
	for rows.Next() {
		var (
			v         dq.Violation
			severity  string
			sampleRaw []byte
		)
		if err := rows.Scan(&v.ID, &v.RunID, &v.RuleID, &severity, &v.Message, &v.Observed, &v.Expected, &sampleRaw, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Severity = dq.Severity(severity)
		if len(sampleRaw) > 0 {
			_ = json.Unmarshal(sampleRaw, &v.Sample)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (s *Store) CreateMetricPoint(ctx context.Context, p dq.MetricPoint) (dq.MetricPoint, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bo_metric_points (id, rule_id, name, value, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.RuleID, p.Name, p.Value, p.RecordedAt)
	if err != nil {
		return dq.MetricPoint{}, err
	}
	return p, nil
}

func (s *Store) ListMetricPoints(ctx context.Context, ruleID, name string, limit int) ([]dq.MetricPoint, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, name, value, recorded_at
		FROM bo_metric_points
		WHERE rule_id = $1 AND ($2 = '' OR name = $2)
		ORDER BY recorded_at DESC
		LIMIT $3
	`, ruleID, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []dq.MetricPoint
	for rows.Next() {
		var p dq.MetricPoint
		if err := rows.Scan(&p.ID, &p.RuleID, &p.Name, &p.Value, &p.RecordedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// --- AlertStore -------------------------------------------------------------

func (s *Store) CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bo_alerts (id, rule_id, run_id, severity, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.RuleID, a.RunID, a.Severity, a.Message, a.CreatedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context, limit int) ([]alert.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, run_id, severity, message, created_at
		FROM bo_alerts
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alert.Alert
	for rows.Next() {
		var a alert.Alert
		if err := rows.Scan(&a.ID, &a.RuleID, &a.RunID, &a.Severity, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
