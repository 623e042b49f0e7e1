package pii

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
)

// CreateDSAR registers a data subject access request in pending state.
func (s *Service) CreateDSAR(ctx context.Context, req pii.DSARRequest) (pii.DSARRequest, error) {
	req.SubjectColumn = strings.TrimSpace(req.SubjectColumn)
	req.SubjectValue = strings.TrimSpace(req.SubjectValue)

	if req.Type != pii.DSARExport && req.Type != pii.DSARErase {
		return pii.DSARRequest{}, fmt.Errorf("unknown request type %q", req.Type)
	}
	if err := validateColumn(req.SubjectColumn); err != nil {
		return pii.DSARRequest{}, fmt.Errorf("subject_column: %w", err)
	}
	if req.SubjectValue == "" {
		return pii.DSARRequest{}, fmt.Errorf("subject_value is required")
	}
	if _, err := s.targets.GetTarget(ctx, req.TargetID); err != nil {
		return pii.DSARRequest{}, fmt.Errorf("target validation failed: %w", err)
	}

	req.Status = pii.DSARPending
	req.Result = ""
	req.Error = ""

	req, err := s.store.CreateDSAR(ctx, req)
	if err != nil {
		return pii.DSARRequest{}, err
	}
	s.log.WithField("dsar_id", req.ID).
		WithField("type", string(req.Type)).
		WithField("target_id", req.TargetID).
		Info("dsar request created")
	return req, nil
}

// GetDSAR returns one request.
func (s *Service) GetDSAR(ctx context.Context, id string) (pii.DSARRequest, error) {
	return s.store.GetDSAR(ctx, id)
}

// ListDSARs returns all requests, newest first.
func (s *Service) ListDSARs(ctx context.Context) ([]pii.DSARRequest, error) {
	return s.store.ListDSARs(ctx)
}

// ProcessDSAR executes a pending request against the cataloged datasets of
// its target. Export collects the subject's rows as JSON; erase nulls the
// cataloged PII columns of those rows.
func (s *Service) ProcessDSAR(ctx context.Context, id string) (pii.DSARRequest, error) {
	req, err := s.store.GetDSAR(ctx, id)
	if err != nil {
		return pii.DSARRequest{}, err
	}
	if req.Status != pii.DSARPending {
		return pii.DSARRequest{}, fmt.Errorf("request %s is %s, only pending requests can be processed", id, req.Status)
	}

	req.Status = pii.DSARProcessing
	if req, err = s.store.UpdateDSAR(ctx, req); err != nil {
		return pii.DSARRequest{}, err
	}

	result, procErr := s.processDSAR(ctx, req)

	req.CompletedAt = time.Now().UTC()
	if procErr != nil {
		req.Status = pii.DSARFailed
		req.Error = procErr.Error()
		s.log.WithError(procErr).WithField("dsar_id", req.ID).Warn("dsar processing failed")
	} else {
		req.Status = pii.DSARCompleted
		req.Result = result
		s.log.WithField("dsar_id", req.ID).Info("dsar processed")
	}
	return s.store.UpdateDSAR(ctx, req)
}

func (s *Service) processDSAR(ctx context.Context, req pii.DSARRequest) (string, error) {
	target, err := s.targets.GetTarget(ctx, req.TargetID)
	if err != nil {
		return "", err
	}
	db, err := s.connector.Connect(ctx, target)
	if err != nil {
		return "", fmt.Errorf("connect target: %w", err)
	}

	fields, err := s.store.ListPIIFields(ctx, req.TargetID)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("no cataloged pii fields for target %s", req.TargetID)
	}

	byDataset := make(map[string][]pii.Field)
	for _, f := range fields {
		byDataset[f.Dataset] = append(byDataset[f.Dataset], f)
	}

	switch req.Type {
	case pii.DSARExport:
		return s.exportSubject(ctx, db, req, byDataset)
	case pii.DSARErase:
		return s.eraseSubject(ctx, db, req, byDataset)
	default:
		return "", fmt.Errorf("unknown request type %q", req.Type)
	}
}

func (s *Service) exportSubject(ctx context.Context, db *sqlx.DB, req pii.DSARRequest, byDataset map[string][]pii.Field) (string, error) {
	export := make(map[string][]map[string]interface{}, len(byDataset))
	for dataset := range byDataset {
		query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1",
			quoteIdent(dataset), quoteIdent(req.SubjectColumn))

		rows, err := db.QueryxContext(ctx, query, req.SubjectValue)
		if err != nil {
			return "", fmt.Errorf("export %s: %w", dataset, err)
		}

		collected := make([]map[string]interface{}, 0)
		for rows.Next() {
			row := make(map[string]interface{})
			if err := rows.MapScan(row); err != nil {
				rows.Close()
				return "", fmt.Errorf("export %s: %w", dataset, err)
			}
			for k, v := range row {
				if b, ok := v.([]byte); ok {
					row[k] = string(b)
				}
			}
			collected = append(collected, row)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", fmt.Errorf("export %s: %w", dataset, err)
		}
		rows.Close()
		export[dataset] = collected
	}

	encoded, err := json.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	return string(encoded), nil
}

func (s *Service) eraseSubject(ctx context.Context, db *sqlx.DB, req pii.DSARRequest, byDataset map[string][]pii.Field) (string, error) {
	erased := make(map[string]int64, len(byDataset))
	for dataset, fields := range byDataset {
		sets := make([]string, 0, len(fields))
		for _, f := range fields {
			if strings.EqualFold(f.Column, req.SubjectColumn) {
				continue
			}
			sets = append(sets, quoteIdent(f.Column)+" = NULL")
		}
		if len(sets) == 0 {
			continue
		}

		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $1",
			quoteIdent(dataset), strings.Join(sets, ", "), quoteIdent(req.SubjectColumn))

		res, err := db.ExecContext(ctx, query, req.SubjectValue)
		if err != nil {
			return "", fmt.Errorf("erase %s: %w", dataset, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("erase %s: %w", dataset, err)
		}
		erased[dataset] = affected
	}

	encoded, err := json.Marshal(map[string]interface{}{"rows_erased": erased})
	if err != nil {
		return "", fmt.Errorf("encode erase summary: %w", err)
	}
	return string(encoded), nil
}
