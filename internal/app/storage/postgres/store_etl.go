package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/audit"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
)

// --- PipelineStore ----------------------------------------------------------

const pipelineColumns = `id, name, source_id, query, dest_id, dest_table, mappings, schedule, enabled, last_run, next_run, created_at, updated_at`

func (s *Store) CreatePipeline(ctx context.Context, p etl.Pipeline) (etl.Pipeline, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	mappingsJSON, err := json.Marshal(p.Mappings)
	if err != nil {
		return etl.Pipeline{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bo_pipelines (`+pipelineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.Name, p.SourceID, p.Query, p.DestID, p.DestTable, mappingsJSON, p.Schedule, p.Enabled, toNullTime(p.LastRun), toNullTime(p.NextRun), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return etl.Pipeline{}, err
	}
	return p, nil
}

func (s *Store) UpdatePipeline(ctx context.Context, p etl.Pipeline) (etl.Pipeline, error) {
	existing, err := s.GetPipeline(ctx, p.ID)
	if err != nil {
		return etl.Pipeline{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	mappingsJSON, err := json.Marshal(p.Mappings)
	if err != nil {
		return etl.Pipeline{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE bo_pipelines
		SET name = $2, source_id = $3, query = $4, dest_id = $5, dest_table = $6, mappings = $7, schedule = $8, enabled = $9, last_run = $10, next_run = $11, updated_at = $12
		WHERE id = $1
	`, p.ID, p.Name, p.SourceID, p.Query, p.DestID, p.DestTable, mappingsJSON, p.Schedule, p.Enabled, toNullTime(p.LastRun), toNullTime(p.NextRun), p.UpdatedAt)
	if err != nil {
		return etl.Pipeline{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return etl.Pipeline{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetPipeline(ctx context.Context, id string) (etl.Pipeline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pipelineColumns+`
		FROM bo_pipelines
		WHERE id = $1
	`, id)

	p, err := scanPipeline(row.Scan)
	if err != nil {
		return etl.Pipeline{}, err
	}
	return p, nil
}

func scanPipeline(scan func(dest ...any) error) (etl.Pipeline, error) {
	var (
		p           etl.Pipeline
		mappingsRaw []byte
		lastRun     sql.NullTime
		nextRun     sql.NullTime
	)
	if err := scan(&p.ID, &p.Name, &p.SourceID, &p.Query, &p.DestID, &p.DestTable, &mappingsRaw, &p.Schedule, &p.Enabled, &lastRun, &nextRun, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return etl.Pipeline{}, err
	}
	if len(mappingsRaw) > 0 {
		_ = json.Unmarshal(mappingsRaw, &p.Mappings)
	}
	if lastRun.Valid {
		p.LastRun = lastRun.Time.UTC()
	}
	if nextRun.Valid {
		p.NextRun = nextRun.Time.UTC()
	}
	return p, nil
}

func (s *Store) ListPipelines(ctx context.Context) ([]etl.Pipeline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pipelineColumns+`
		FROM bo_pipelines
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPipelines(rows)
}

func (s *Store) ListDuePipelines(ctx context.Context, now time.Time) ([]etl.Pipeline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pipelineColumns+`
		FROM bo_pipelines
		WHERE enabled AND schedule <> '' AND next_run IS NOT NULL AND next_run <= $1
		ORDER BY next_run
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPipelines(rows)
}

func collectPipelines(rows *sql.Rows) ([]etl.Pipeline, error) {
	var result []etl.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeletePipeline(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bo_pipelines WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CreatePipelineRun(ctx context.Context, run etl.Run) (etl.Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bo_pipeline_runs (id, pipeline_id, status, triggered_by, rows_extracted, rows_loaded, error, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, run.ID, run.PipelineID, string(run.Status), run.TriggeredBy, run.RowsExtracted, run.RowsLoaded, run.Error, toNullTime(run.StartedAt), toNullTime(run.FinishedAt), run.CreatedAt)
	if err != nil {
		return etl.Run{}, err
	}
	return run, nil
}

func (s *Store) UpdatePipelineRun(ctx context.Context, run etl.Run) (etl.Run, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bo_pipeline_runs
		SET status = $2, rows_extracted = $3, rows_loaded = $4, error = $5, started_at = $6, finished_at = $7
		WHERE id = $1
	`, run.ID, string(run.Status), run.RowsExtracted, run.RowsLoaded, run.Error, toNullTime(run.StartedAt), toNullTime(run.FinishedAt))
	if err != nil {
		return etl.Run{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return etl.Run{}, sql.ErrNoRows
	}
	return run, nil
}

func (s *Store) ListPipelineRuns(ctx context.Context, pipelineID string, limit int) ([]etl.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pipeline_id, status, triggered_by, rows_extracted, rows_loaded, error, started_at, finished_at, created_at
		FROM bo_pipeline_runs
		WHERE pipeline_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, pipelineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []etl.Run
	for rows.Next() {
		var (
			run        etl.Run
			status     string
			startedAt  sql.NullTime
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.PipelineID, &status, &run.TriggeredBy, &run.RowsExtracted, &run.RowsLoaded, &run.Error, &startedAt, &finishedAt, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Status = etl.RunStatus(status)
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

// --- PIIStore ---------------------------------------------------------------

func (s *Store) CreatePIIField(ctx context.Context, f pii.Field) (pii.Field, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bo_pii_fields (id, target_id, dataset, column_name, category, lawful_basis, retention_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, f.ID, f.TargetID, f.Dataset, f.Column, string(f.Category), f.LawfulBasis, f.RetentionDays, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return pii.Field{}, err
	}
	return f, nil
}

func (s *Store) UpdatePIIField(ctx context.Context, f pii.Field) (pii.Field, error) {
	existing, err := s.GetPIIField(ctx, f.ID)
	if err != nil {
		return pii.Field{}, err
	}
	f.TargetID = existing.TargetID
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE bo_pii_fields
		SET dataset = $2, column_name = $3, category = $4, lawful_basis = $5, retention_days = $6, updated_at = $7
		WHERE id = $1
	`, f.ID, f.Dataset, f.Column, string(f.Category), f.LawfulBasis, f.RetentionDays, f.UpdatedAt)
	if err != nil {
		return pii.Field{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return pii.Field{}, sql.ErrNoRows
	}
	return f, nil
}

func (s *Store) GetPIIField(ctx context.Context, id string) (pii.Field, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_id, dataset, column_name, category, lawful_basis, retention_days, created_at, updated_at
		FROM bo_pii_fields
		WHERE id = $1
	`, id)

	var (
		f        pii.Field
		category string
	)
	if err := row.Scan(&f.ID, &f.TargetID, &f.Dataset, &f.Column, &category, &f.LawfulBasis, &f.RetentionDays, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return pii.Field{}, err
	}
	f.Category = pii.Category(category)
	return f, nil
}

func (s *Store) ListPIIFields(ctx context.Context, targetID string) ([]pii.Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, dataset, column_name, category, lawful_basis, retention_days, created_at, updated_at
		FROM bo_pii_fields
		WHERE $1 = '' OR target_id = $1
		ORDER BY created_at
	`, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []pii.Field
	for rows.Next() {
		var (
			f        pii.Field
			category string
		)
		if err := rows.Scan(&f.ID, &f.TargetID, &f.Dataset, &f.Column, &category, &f.LawfulBasis, &f.RetentionDays, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Category = pii.Category(category)
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *Store) DeletePIIField(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bo_pii_fields WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CreateDSAR(ctx context.Context, req pii.DSARRequest) (pii.DSARRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bo_dsar_requests (id, target_id, type, subject_column, subject_value, status, result, error, requested_by, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, req.ID, req.TargetID, string(req.Type), req.SubjectColumn, req.SubjectValue, string(req.Status), req.Result, req.Error, req.RequestedBy, req.CreatedAt, req.UpdatedAt, toNullTime(req.CompletedAt))
	if err != nil {
		return pii.DSARRequest{}, err
	}
	return req, nil
}

func (s *Store) UpdateDSAR(ctx context.Context, req pii.DSARRequest) (pii.DSARRequest, error) {
	existing, err := s.GetDSAR(ctx, req.ID)
	if err != nil {
		return pii.DSARRequest{}, err
	}
	req.TargetID = existing.TargetID
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE bo_dsar_requests
		SET status = $2, result = $3, error = $4, updated_at = $5, completed_at = $6
		WHERE id = $1
	`, req.ID, string(req.Status), req.Result, req.Error, req.UpdatedAt, toNullTime(req.CompletedAt))
	if err != nil {
		return pii.DSARRequest{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return pii.DSARRequest{}, sql.ErrNoRows
	}
	return req, nil
}

func (s *Store) GetDSAR(ctx context.Context, id string) (pii.DSARRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_id, type, subject_column, subject_value, status, result, error, requested_by, created_at, updated_at, completed_at
		FROM bo_dsar_requests
		WHERE id = $1
	`, id)

	return scanDSAR(row.Scan)
}

func scanDSAR(scan func(dest ...any) error) (pii.DSARRequest, error) {
	var (
		req         pii.DSARRequest
		reqType     string
		status      string
		completedAt sql.NullTime
	)
	if err := scan(&req.ID, &req.TargetID, &reqType, &req.SubjectColumn, &req.SubjectValue, &status, &req.Result, &req.Error, &req.RequestedBy, &req.CreatedAt, &req.UpdatedAt, &completedAt); err != nil {
		return pii.DSARRequest{}, err
	}
	req.Type = pii.DSARType(reqType)
	req.Status = pii.DSARStatus(status)
	if completedAt.Valid {
		req.CompletedAt = completedAt.Time.UTC()
	}
	return req, nil
}

func (s *Store) ListDSARs(ctx context.Context) ([]pii.DSARRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, type, subject_column, subject_value, status, result, error, requested_by, created_at, updated_at, completed_at
		FROM bo_dsar_requests
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []pii.DSARRequest
	for rows.Next() {
		req, err := scanDSAR(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// --- AuditStore -------------------------------------------------------------

func (s *Store) CreateAuditEvent(ctx context.Context, e audit.Event) (audit.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bo_audit_events (id, actor, role, action, resource, status, remote_addr, user_agent, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.Actor, e.Role, e.Action, e.Resource, e.Status, e.RemoteAddr, e.UserAgent, e.Detail, e.CreatedAt)
	if err != nil {
		return audit.Event{}, err
	}
	return e, nil
}

func (s *Store) ListAuditEvents(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, role, action, resource, status, remote_addr, user_agent, detail, created_at
		FROM bo_audit_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Event
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(&e.ID, &e.Actor, &e.Role, &e.Action, &e.Resource, &e.Status, &e.RemoteAddr, &e.UserAgent, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
