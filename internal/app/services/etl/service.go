// Package etl moves data between registered targets. A pipeline extracts
// rows with a source query, maps them onto destination columns and loads
// them in a single transaction.
package etl

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/metrics"
	dqsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

const loadBatchSize = 500

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TargetConnector resolves live connections to registered targets.
// Satisfied by the data quality connector so both engines share a pool.
type TargetConnector interface {
	Connect(ctx context.Context, target dq.Target) (*sqlx.DB, error)
}

// Service coordinates pipelines and their execution.
type Service struct {
	pipelines storage.PipelineStore
	targets   storage.TargetStore
	connector TargetConnector
	log       *logger.Logger
}

// New creates a configured ETL service. The connector is shared with the
// data quality engine so targets are opened once.
func New(pipelines storage.PipelineStore, targets storage.TargetStore, connector TargetConnector, log *logger.Logger) *Service {
	if connector == nil {
		connector = dqsvc.NewConnector()
	}
	if log == nil {
		log = logger.NewDefault("etl")
	}
	return &Service{
		pipelines: pipelines,
		targets:   targets,
		connector: connector,
		log:       log,
	}
}

// CreatePipeline registers a pipeline between two targets.
func (s *Service) CreatePipeline(ctx context.Context, p etl.Pipeline) (etl.Pipeline, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Query = strings.TrimSpace(p.Query)
	p.DestTable = strings.TrimSpace(p.DestTable)
	p.Schedule = strings.TrimSpace(p.Schedule)

	if err := s.validatePipeline(ctx, p); err != nil {
		return etl.Pipeline{}, err
	}

	existing, err := s.pipelines.ListPipelines(ctx)
	if err != nil {
		return etl.Pipeline{}, err
	}
	for _, other := range existing {
		if strings.EqualFold(other.Name, p.Name) {
			return etl.Pipeline{}, fmt.Errorf("pipeline with name %q already exists", p.Name)
		}
	}

	if p.Schedule != "" {
		parsed, err := cron.ParseStandard(p.Schedule)
		if err != nil {
			return etl.Pipeline{}, fmt.Errorf("schedule: %w", err)
		}
		p.NextRun = parsed.Next(time.Now().UTC()).UTC()
	}
	p.Enabled = true

	p, err = s.pipelines.CreatePipeline(ctx, p)
	if err != nil {
		return etl.Pipeline{}, err
	}
	s.log.WithField("pipeline_id", p.ID).WithField("name", p.Name).Info("pipeline created")
	return p, nil
}

func (s *Service) validatePipeline(ctx context.Context, p etl.Pipeline) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Query == "" {
		return fmt.Errorf("query is required")
	}
	lowered := strings.ToLower(p.Query)
	if !strings.HasPrefix(lowered, "select") && !strings.HasPrefix(lowered, "with") {
		return fmt.Errorf("query must be a SELECT")
	}
	if err := validateTableIdent(p.DestTable); err != nil {
		return fmt.Errorf("dest_table: %w", err)
	}
	if len(p.Mappings) == 0 {
		return fmt.Errorf("at least one mapping is required")
	}
	seen := make(map[string]bool, len(p.Mappings))
	for _, m := range p.Mappings {
		if !identPattern.MatchString(m.Dest) {
			return fmt.Errorf("mapping dest %q is not a valid column name", m.Dest)
		}
		if strings.TrimSpace(m.Source) == "" {
			return fmt.Errorf("mapping for %q has no source column", m.Dest)
		}
		if seen[m.Dest] {
			return fmt.Errorf("duplicate mapping dest %q", m.Dest)
		}
		seen[m.Dest] = true
	}

	if _, err := s.targets.GetTarget(ctx, p.SourceID); err != nil {
		return fmt.Errorf("source target validation failed: %w", err)
	}
	if _, err := s.targets.GetTarget(ctx, p.DestID); err != nil {
		return fmt.Errorf("destination target validation failed: %w", err)
	}
	return nil
}

func validateTableIdent(name string) error {
	if name == "" {
		return fmt.Errorf("identifier is required")
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return fmt.Errorf("invalid identifier %q", name)
	}
	for _, part := range parts {
		if !identPattern.MatchString(part) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}

func quoteTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = `"` + part + `"`
	}
	return strings.Join(parts, ".")
}

// PipelineUpdate carries optional modifications for UpdatePipeline.
type PipelineUpdate struct {
	Name      *string
	Query     *string
	DestTable *string
	Mappings  []etl.Mapping
	Schedule  *string
	Enabled   *bool
}

// UpdatePipeline applies modifications to a pipeline.
func (s *Service) UpdatePipeline(ctx context.Context, id string, upd PipelineUpdate) (etl.Pipeline, error) {
	p, err := s.pipelines.GetPipeline(ctx, id)
	if err != nil {
		return etl.Pipeline{}, err
	}

	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return etl.Pipeline{}, fmt.Errorf("name cannot be empty")
		}
		existing, err := s.pipelines.ListPipelines(ctx)
		if err != nil {
			return etl.Pipeline{}, err
		}
		for _, other := range existing {
			if other.ID != p.ID && strings.EqualFold(other.Name, trimmed) {
				return etl.Pipeline{}, fmt.Errorf("pipeline with name %q already exists", trimmed)
			}
		}
		p.Name = trimmed
	}
	if upd.Query != nil {
		p.Query = strings.TrimSpace(*upd.Query)
	}
	if upd.DestTable != nil {
		p.DestTable = strings.TrimSpace(*upd.DestTable)
	}
	if upd.Mappings != nil {
		p.Mappings = upd.Mappings
	}
	if upd.Schedule != nil {
		trimmed := strings.TrimSpace(*upd.Schedule)
		if trimmed != "" {
			parsed, err := cron.ParseStandard(trimmed)
			if err != nil {
				return etl.Pipeline{}, fmt.Errorf("schedule: %w", err)
			}
			p.NextRun = parsed.Next(time.Now().UTC()).UTC()
		} else {
			p.NextRun = time.Time{}
		}
		p.Schedule = trimmed
	}
	if upd.Enabled != nil {
		p.Enabled = *upd.Enabled
	}

	if err := s.validatePipeline(ctx, p); err != nil {
		return etl.Pipeline{}, err
	}

	p, err = s.pipelines.UpdatePipeline(ctx, p)
	if err != nil {
		return etl.Pipeline{}, err
	}
	s.log.WithField("pipeline_id", p.ID).Info("pipeline updated")
	return p, nil
}

// GetPipeline returns a pipeline by ID.
func (s *Service) GetPipeline(ctx context.Context, id string) (etl.Pipeline, error) {
	return s.pipelines.GetPipeline(ctx, id)
}

// ListPipelines returns all pipelines.
func (s *Service) ListPipelines(ctx context.Context) ([]etl.Pipeline, error) {
	return s.pipelines.ListPipelines(ctx)
}

// DeletePipeline removes a pipeline.
func (s *Service) DeletePipeline(ctx context.Context, id string) error {
	if err := s.pipelines.DeletePipeline(ctx, id); err != nil {
		return err
	}
	s.log.WithField("pipeline_id", id).Info("pipeline deleted")
	return nil
}

// ListRuns returns recent runs for a pipeline, newest first.
func (s *Service) ListRuns(ctx context.Context, pipelineID string, limit int) ([]etl.Run, error) {
	return s.pipelines.ListPipelineRuns(ctx, pipelineID, limit)
}

// RunPipeline executes a pipeline immediately and records the outcome.
func (s *Service) RunPipeline(ctx context.Context, pipelineID, triggeredBy string) (etl.Run, error) {
	p, err := s.pipelines.GetPipeline(ctx, pipelineID)
	if err != nil {
		return etl.Run{}, err
	}

	run, err := s.pipelines.CreatePipelineRun(ctx, etl.Run{
		PipelineID:  p.ID,
		Status:      etl.RunRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now().UTC(),
	})
	if err != nil {
		return etl.Run{}, err
	}

	extracted, loaded, execErr := s.execute(ctx, p)

	run.RowsExtracted = extracted
	run.RowsLoaded = loaded
	run.FinishedAt = time.Now().UTC()
	if execErr != nil {
		run.Status = etl.RunFailed
		run.Error = execErr.Error()
		s.log.WithError(execErr).WithField("pipeline_id", p.ID).Warn("pipeline run failed")
	} else {
		run.Status = etl.RunSucceeded
		s.log.WithField("pipeline_id", p.ID).
			WithField("rows", loaded).
			Info("pipeline run succeeded")
	}

	if run, err = s.pipelines.UpdatePipelineRun(ctx, run); err != nil {
		return etl.Run{}, err
	}
	metrics.RecordPipelineRun(string(run.Status), int64(extracted), int64(loaded))

	s.advanceSchedule(ctx, p)
	return run, nil
}

func (s *Service) execute(ctx context.Context, p etl.Pipeline) (extracted, loaded int, err error) {
	source, err := s.targets.GetTarget(ctx, p.SourceID)
	if err != nil {
		return 0, 0, err
	}
	dest, err := s.targets.GetTarget(ctx, p.DestID)
	if err != nil {
		return 0, 0, err
	}

	sourceDB, err := s.connector.Connect(ctx, source)
	if err != nil {
		return 0, 0, fmt.Errorf("connect source: %w", err)
	}
	destDB, err := s.connector.Connect(ctx, dest)
	if err != nil {
		return 0, 0, fmt.Errorf("connect destination: %w", err)
	}

	rows, err := sourceDB.QueryxContext(ctx, p.Query)
	if err != nil {
		return 0, 0, fmt.Errorf("extract: %w", err)
	}
	defer rows.Close()

	tx, err := destDB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin load transaction: %w", err)
	}
	defer tx.Rollback()

	insert := buildInsert(p.DestTable, p.Mappings)

	batch := make([][]interface{}, 0, loadBatchSize)
	flush := func() error {
		for _, values := range batch {
			if _, err := tx.ExecContext(ctx, insert, values...); err != nil {
				return fmt.Errorf("load row: %w", err)
			}
			loaded++
		}
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return extracted, loaded, fmt.Errorf("scan source row: %w", err)
		}
		extracted++

		values, err := transformRow(row, p.Mappings)
		if err != nil {
			return extracted, loaded, fmt.Errorf("transform row %d: %w", extracted, err)
		}
		batch = append(batch, values)
		if len(batch) >= loadBatchSize {
			if err := flush(); err != nil {
				return extracted, loaded, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return extracted, loaded, fmt.Errorf("extract: %w", err)
	}
	if err := flush(); err != nil {
		return extracted, loaded, err
	}

	if err := tx.Commit(); err != nil {
		return extracted, loaded, fmt.Errorf("commit load: %w", err)
	}
	return extracted, loaded, nil
}

func buildInsert(table string, mappings []etl.Mapping) string {
	cols := make([]string, len(mappings))
	placeholders := make([]string, len(mappings))
	for i, m := range mappings {
		cols[i] = `"` + m.Dest + `"`
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteTableIdent(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

func (s *Service) advanceSchedule(ctx context.Context, p etl.Pipeline) {
	fresh, err := s.pipelines.GetPipeline(ctx, p.ID)
	if err != nil {
		return
	}
	fresh.LastRun = time.Now().UTC()
	if fresh.Schedule != "" {
		if parsed, err := cron.ParseStandard(fresh.Schedule); err == nil {
			fresh.NextRun = parsed.Next(fresh.LastRun).UTC()
		}
	}
	if _, err := s.pipelines.UpdatePipeline(ctx, fresh); err != nil {
		s.log.WithError(err).WithField("pipeline_id", p.ID).Warn("advance pipeline schedule")
	}
}
