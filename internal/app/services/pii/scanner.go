package pii

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
)

const scanSampleSize = 50

// Suggestion is a proposed catalog entry produced by a scan.
type Suggestion struct {
	Dataset   string       `json:"dataset"`
	Column    string       `json:"column"`
	Category  pii.Category `json:"category"`
	MatchedBy string       `json:"matched_by"`
}

// nameHints maps column-name substrings to categories. Checked in order so
// the more specific hints win.
var nameHints = []struct {
	substr   string
	category pii.Category
}{
	{"email", pii.CategoryEmail},
	{"e_mail", pii.CategoryEmail},
	{"phone", pii.CategoryPhone},
	{"mobile", pii.CategoryPhone},
	{"ssn", pii.CategoryNationalID},
	{"national_id", pii.CategoryNationalID},
	{"passport", pii.CategoryNationalID},
	{"birth", pii.CategoryDOB},
	{"dob", pii.CategoryDOB},
	{"first_name", pii.CategoryName},
	{"last_name", pii.CategoryName},
	{"full_name", pii.CategoryName},
	{"surname", pii.CategoryName},
	{"address", pii.CategoryAddress},
	{"street", pii.CategoryAddress},
	{"postcode", pii.CategoryAddress},
	{"zip_code", pii.CategoryAddress},
	{"ip_address", pii.CategoryIP},
	{"remote_addr", pii.CategoryIP},
}

var valuePatterns = []struct {
	re       *regexp.Regexp
	category pii.Category
}{
	{regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`), pii.CategoryEmail},
	{regexp.MustCompile(`^\+?[0-9][0-9 .\-()]{6,18}[0-9]$`), pii.CategoryPhone},
	{regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`), pii.CategoryIP},
	{regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`), pii.CategoryNationalID},
}

// valueMatchThreshold is the fraction of sampled values that must match a
// pattern before the column is flagged.
const valueMatchThreshold = 0.6

// ScanTarget inspects every text-like column of the target and proposes
// catalog entries. Columns already cataloged are skipped.
func (s *Service) ScanTarget(ctx context.Context, targetID string) ([]Suggestion, error) {
	target, err := s.targets.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	db, err := s.connector.Connect(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("connect target: %w", err)
	}

	cataloged, err := s.store.ListPIIFields(ctx, targetID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(cataloged))
	for _, f := range cataloged {
		known[strings.ToLower(f.Dataset+"."+f.Column)] = true
	}

	type column struct {
		Schema string `db:"table_schema"`
		Table  string `db:"table_name"`
		Name   string `db:"column_name"`
	}
	var columns []column
	err = db.SelectContext(ctx, &columns, `
		SELECT table_schema, table_name, column_name
		FROM information_schema.columns
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		  AND data_type IN ('text', 'character varying', 'character')
		ORDER BY table_schema, table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	suggestions := make([]Suggestion, 0)
	for _, col := range columns {
		dataset := col.Table
		if col.Schema != "public" {
			dataset = col.Schema + "." + col.Table
		}
		if known[strings.ToLower(dataset+"."+col.Name)] {
			continue
		}
		if validateIdent(dataset) != nil || validateColumn(col.Name) != nil {
			continue
		}

		if category, hint := classifyByName(col.Name); hint {
			suggestions = append(suggestions, Suggestion{
				Dataset:   dataset,
				Column:    col.Name,
				Category:  category,
				MatchedBy: "name",
			})
			continue
		}

		category, err := s.classifyByValues(ctx, db, dataset, col.Name)
		if err != nil {
			s.log.WithError(err).
				WithField("dataset", dataset).
				WithField("column", col.Name).
				Debug("value sampling failed")
			continue
		}
		if category != "" {
			suggestions = append(suggestions, Suggestion{
				Dataset:   dataset,
				Column:    col.Name,
				Category:  category,
				MatchedBy: "values",
			})
		}
	}
	return suggestions, nil
}

func classifyByName(column string) (pii.Category, bool) {
	lowered := strings.ToLower(column)
	for _, hint := range nameHints {
		if strings.Contains(lowered, hint.substr) {
			return hint.category, true
		}
	}
	return "", false
}

func (s *Service) classifyByValues(ctx context.Context, db *sqlx.DB, dataset, column string) (pii.Category, error) {
	query := fmt.Sprintf("SELECT %s::text FROM %s WHERE %s IS NOT NULL LIMIT %d",
		quoteIdent(column), quoteIdent(dataset), quoteIdent(column), scanSampleSize)

	var samples []string
	if err := db.SelectContext(ctx, &samples, query); err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", nil
	}

	for _, pattern := range valuePatterns {
		matched := 0
		for _, sample := range samples {
			if pattern.re.MatchString(strings.TrimSpace(sample)) {
				matched++
			}
		}
		if float64(matched)/float64(len(samples)) >= valueMatchThreshold {
			return pattern.category, nil
		}
	}
	return "", nil
}
