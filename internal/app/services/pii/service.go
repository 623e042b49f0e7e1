// Package pii maintains the personal-data catalog and serves data subject
// access requests against registered targets.
package pii

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

// TargetConnector resolves live connections to registered targets.
type TargetConnector interface {
	Connect(ctx context.Context, target dq.Target) (*sqlx.DB, error)
}

// Service manages the PII catalog and processes DSAR requests.
type Service struct {
	store     storage.PIIStore
	targets   storage.TargetStore
	connector TargetConnector
	log       *logger.Logger
}

// New creates a configured PII service.
func New(store storage.PIIStore, targets storage.TargetStore, connector TargetConnector, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("pii")
	}
	return &Service{
		store:     store,
		targets:   targets,
		connector: connector,
		log:       log,
	}
}

var validCategories = map[pii.Category]bool{
	pii.CategoryEmail:      true,
	pii.CategoryPhone:      true,
	pii.CategoryName:       true,
	pii.CategoryAddress:    true,
	pii.CategoryNationalID: true,
	pii.CategoryDOB:        true,
	pii.CategoryIP:         true,
	pii.CategoryOther:      true,
}

// CreateField adds a column to the catalog.
func (s *Service) CreateField(ctx context.Context, f pii.Field) (pii.Field, error) {
	f.Dataset = strings.TrimSpace(f.Dataset)
	f.Column = strings.TrimSpace(f.Column)
	f.LawfulBasis = strings.TrimSpace(f.LawfulBasis)

	if err := s.validateField(ctx, f); err != nil {
		return pii.Field{}, err
	}

	existing, err := s.store.ListPIIFields(ctx, f.TargetID)
	if err != nil {
		return pii.Field{}, err
	}
	for _, other := range existing {
		if strings.EqualFold(other.Dataset, f.Dataset) && strings.EqualFold(other.Column, f.Column) {
			return pii.Field{}, fmt.Errorf("column %s.%s is already cataloged", f.Dataset, f.Column)
		}
	}

	f, err = s.store.CreatePIIField(ctx, f)
	if err != nil {
		return pii.Field{}, err
	}
	s.log.WithField("field_id", f.ID).
		WithField("dataset", f.Dataset).
		WithField("column", f.Column).
		Info("pii field cataloged")
	return f, nil
}

func (s *Service) validateField(ctx context.Context, f pii.Field) error {
	if err := validateIdent(f.Dataset); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	if err := validateColumn(f.Column); err != nil {
		return fmt.Errorf("column: %w", err)
	}
	if !validCategories[f.Category] {
		return fmt.Errorf("unknown category %q", f.Category)
	}
	if f.RetentionDays < 0 {
		return fmt.Errorf("retention_days cannot be negative")
	}
	if _, err := s.targets.GetTarget(ctx, f.TargetID); err != nil {
		return fmt.Errorf("target validation failed: %w", err)
	}
	return nil
}

// FieldUpdate carries optional modifications for UpdateField.
type FieldUpdate struct {
	Category      *pii.Category
	LawfulBasis   *string
	RetentionDays *int
}

// UpdateField modifies classification metadata of a catalog entry.
func (s *Service) UpdateField(ctx context.Context, id string, upd FieldUpdate) (pii.Field, error) {
	f, err := s.store.GetPIIField(ctx, id)
	if err != nil {
		return pii.Field{}, err
	}
	if upd.Category != nil {
		if !validCategories[*upd.Category] {
			return pii.Field{}, fmt.Errorf("unknown category %q", *upd.Category)
		}
		f.Category = *upd.Category
	}
	if upd.LawfulBasis != nil {
		f.LawfulBasis = strings.TrimSpace(*upd.LawfulBasis)
	}
	if upd.RetentionDays != nil {
		if *upd.RetentionDays < 0 {
			return pii.Field{}, fmt.Errorf("retention_days cannot be negative")
		}
		f.RetentionDays = *upd.RetentionDays
	}
	return s.store.UpdatePIIField(ctx, f)
}

// GetField returns one catalog entry.
func (s *Service) GetField(ctx context.Context, id string) (pii.Field, error) {
	return s.store.GetPIIField(ctx, id)
}

// ListFields returns catalog entries, optionally scoped to a target.
func (s *Service) ListFields(ctx context.Context, targetID string) ([]pii.Field, error) {
	return s.store.ListPIIFields(ctx, targetID)
}

// DeleteField removes a catalog entry.
func (s *Service) DeleteField(ctx context.Context, id string) error {
	if err := s.store.DeletePIIField(ctx, id); err != nil {
		return err
	}
	s.log.WithField("field_id", id).Info("pii field removed")
	return nil
}
