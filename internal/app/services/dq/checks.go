package dq

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
)

// CheckResult is the outcome of a single check execution. Metric is the
// headline value recorded for trend analysis.
type CheckResult struct {
	Metric     float64
	MetricName string
	Passed     bool
	Violations []dq.Violation
}

// checkFunc executes one check type against a target connection. history
// carries recent metric values for checks that compare against the past.
type checkFunc func(ctx context.Context, db *sqlx.DB, rule dq.Rule, history []float64) (CheckResult, error)

var checkFuncs = map[dq.CheckType]checkFunc{
	dq.CheckRowCount:             checkRowCount,
	dq.CheckNullRate:             checkNullRate,
	dq.CheckUniqueness:           checkUniqueness,
	dq.CheckRange:                checkRange,
	dq.CheckCardinality:          checkCardinality,
	dq.CheckReferentialIntegrity: checkReferentialIntegrity,
	dq.CheckTimeliness:           checkTimeliness,
	dq.CheckSchemaDrift:          checkSchemaDrift,
	dq.CheckVolumeAnomaly:        checkVolumeAnomaly,
	dq.CheckExpression:           checkExpression,
}

// SupportedCheck reports whether the check type has an executor.
func SupportedCheck(check dq.CheckType) bool {
	_, ok := checkFuncs[check]
	return ok
}

// ExecuteCheck runs the rule's check against the target connection.
func ExecuteCheck(ctx context.Context, db *sqlx.DB, rule dq.Rule, history []float64) (CheckResult, error) {
	fn, ok := checkFuncs[rule.Check]
	if !ok {
		return CheckResult{}, fmt.Errorf("unknown check type %q", rule.Check)
	}
	if err := validateIdent(rule.Dataset); err != nil {
		return CheckResult{}, err
	}
	return fn(ctx, db, rule, history)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateIdent accepts a bare or schema-qualified SQL identifier.
func validateIdent(name string) error {
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

// quoteIdent renders a validated identifier safe for interpolation. Values
// are always bound, identifiers always pass through here.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func paramColumn(rule dq.Rule, key string) (string, error) {
	col := strings.TrimSpace(rule.Params[key])
	if col == "" {
		return "", fmt.Errorf("param %q is required for check %s", key, rule.Check)
	}
	if err := validateIdent(col); err != nil {
		return "", err
	}
	return col, nil
}

func paramFloat(rule dq.Rule, key string) (float64, bool, error) {
	raw, ok := rule.Params[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false, fmt.Errorf("param %q: %w", key, err)
	}
	return v, true, nil
}

func violation(rule dq.Rule, message, observed, expected string) dq.Violation {
	return dq.Violation{
		RuleID:   rule.ID,
		Severity: rule.Severity,
		Message:  message,
		Observed: observed,
		Expected: expected,
	}
}

func checkRowCount(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	var count float64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(rule.Dataset))
	if err := db.GetContext(ctx, &count, query); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Metric: count, MetricName: "row_count", Passed: true}

	min, hasMin, err := paramFloat(rule, "min")
	if err != nil {
		return CheckResult{}, err
	}
	max, hasMax, err := paramFloat(rule, "max")
	if err != nil {
		return CheckResult{}, err
	}

	if hasMin && count < min {
		result.Passed = false
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("row count %.0f below minimum", count),
			fmt.Sprintf("%.0f", count), fmt.Sprintf(">= %.0f", min)))
	}
	if hasMax && count > max {
		result.Passed = false
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("row count %.0f above maximum", count),
			fmt.Sprintf("%.0f", count), fmt.Sprintf("<= %.0f", max)))
	}
	return result, nil
}

func checkNullRate(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	col, err := paramColumn(rule, "column")
	if err != nil {
		return CheckResult{}, err
	}
	maxRate, hasMax, err := paramFloat(rule, "max_rate")
	if err != nil {
		return CheckResult{}, err
	}
	if !hasMax {
		return CheckResult{}, fmt.Errorf("param %q is required for check %s", "max_rate", rule.Check)
	}

	var counts struct {
		Total float64 `db:"total"`
		Nulls float64 `db:"nulls"`
	}
	query := fmt.Sprintf(`SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE %s IS NULL) AS nulls FROM %s`,
		quoteIdent(col), quoteIdent(rule.Dataset))
	if err := db.GetContext(ctx, &counts, query); err != nil {
		return CheckResult{}, err
	}

	rate := 0.0
	if counts.Total > 0 {
		rate = counts.Nulls / counts.Total
	}
	result := CheckResult{Metric: rate, MetricName: "null_rate", Passed: rate <= maxRate}
	if !result.Passed {
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("null rate %.4f on column %s exceeds threshold", rate, col),
			fmt.Sprintf("%.4f", rate), fmt.Sprintf("<= %.4f", maxRate)))
	}
	return result, nil
}

func checkUniqueness(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	col, err := paramColumn(rule, "column")
	if err != nil {
		return CheckResult{}, err
	}
	maxDup, _, err := paramFloat(rule, "max_duplicates")
	if err != nil {
		return CheckResult{}, err
	}

	var duplicates float64
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(cnt - 1), 0) FROM (
			SELECT COUNT(*) AS cnt FROM %s WHERE %s IS NOT NULL GROUP BY %s HAVING COUNT(*) > 1
		) d`, quoteIdent(rule.Dataset), quoteIdent(col), quoteIdent(col))
	if err := db.GetContext(ctx, &duplicates, query); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Metric: duplicates, MetricName: "duplicate_rows", Passed: duplicates <= maxDup}
	if !result.Passed {
		v := violation(rule,
			fmt.Sprintf("%.0f duplicate rows on column %s", duplicates, col),
			fmt.Sprintf("%.0f", duplicates), fmt.Sprintf("<= %.0f", maxDup))
		v.Sample = sampleDuplicates(ctx, db, rule.Dataset, col)
		result.Violations = append(result.Violations, v)
	}
	return result, nil
}

func sampleDuplicates(ctx context.Context, db *sqlx.DB, dataset, col string) map[string]string {
	query := fmt.Sprintf(`
		SELECT %s::text AS value, COUNT(*) AS cnt FROM %s WHERE %s IS NOT NULL
		GROUP BY %s HAVING COUNT(*) > 1 ORDER BY cnt DESC LIMIT 5`,
		quoteIdent(col), quoteIdent(dataset), quoteIdent(col), quoteIdent(col))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil
	}
	defer rows.Close()

	sample := make(map[string]string)
	for rows.Next() {
		var value string
		var cnt int64
		if err := rows.Scan(&value, &cnt); err != nil {
			return sample
		}
		sample[value] = strconv.FormatInt(cnt, 10)
	}
	return sample
}

func checkRange(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	col, err := paramColumn(rule, "column")
	if err != nil {
		return CheckResult{}, err
	}
	min, hasMin, err := paramFloat(rule, "min")
	if err != nil {
		return CheckResult{}, err
	}
	max, hasMax, err := paramFloat(rule, "max")
	if err != nil {
		return CheckResult{}, err
	}
	if !hasMin && !hasMax {
		return CheckResult{}, fmt.Errorf("check %s requires min or max", rule.Check)
	}

	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if hasMin {
		args = append(args, min)
		conditions = append(conditions, fmt.Sprintf("%s < $%d", quoteIdent(col), len(args)))
	}
	if hasMax {
		args = append(args, max)
		conditions = append(conditions, fmt.Sprintf("%s > $%d", quoteIdent(col), len(args)))
	}

	var outOfRange float64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`,
		quoteIdent(rule.Dataset), strings.Join(conditions, " OR "))
	if err := db.GetContext(ctx, &outOfRange, query, args...); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Metric: outOfRange, MetricName: "out_of_range_rows", Passed: outOfRange == 0}
	if !result.Passed {
		expected := ""
		if hasMin {
			expected = fmt.Sprintf(">= %g", min)
		}
		if hasMax {
			if expected != "" {
				expected += " and "
			}
			expected += fmt.Sprintf("<= %g", max)
		}
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("%.0f rows with %s out of range", outOfRange, col),
			fmt.Sprintf("%.0f rows", outOfRange), expected))
	}
	return result, nil
}

func checkCardinality(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	col, err := paramColumn(rule, "column")
	if err != nil {
		return CheckResult{}, err
	}
	min, hasMin, err := paramFloat(rule, "min")
	if err != nil {
		return CheckResult{}, err
	}
	max, hasMax, err := paramFloat(rule, "max")
	if err != nil {
		return CheckResult{}, err
	}
	if !hasMin && !hasMax {
		return CheckResult{}, fmt.Errorf("check %s requires min or max", rule.Check)
	}

	var distinct float64
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM %s`, quoteIdent(col), quoteIdent(rule.Dataset))
	if err := db.GetContext(ctx, &distinct, query); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Metric: distinct, MetricName: "distinct_values", Passed: true}
	if hasMin && distinct < min {
		result.Passed = false
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("distinct count %.0f on %s below minimum", distinct, col),
			fmt.Sprintf("%.0f", distinct), fmt.Sprintf(">= %.0f", min)))
	}
	if hasMax && distinct > max {
		result.Passed = false
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("distinct count %.0f on %s above maximum", distinct, col),
			fmt.Sprintf("%.0f", distinct), fmt.Sprintf("<= %.0f", max)))
	}
	return result, nil
}

func checkReferentialIntegrity(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	col, err := paramColumn(rule, "column")
	if err != nil {
		return CheckResult{}, err
	}
	refDataset := strings.TrimSpace(rule.Params["ref_dataset"])
	if err := validateIdent(refDataset); err != nil {
		return CheckResult{}, fmt.Errorf("param ref_dataset: %w", err)
	}
	refCol, err := paramColumn(rule, "ref_column")
	if err != nil {
		return CheckResult{}, err
	}
	maxOrphans, _, err := paramFloat(rule, "max_orphans")
	if err != nil {
		return CheckResult{}, err
	}

	var orphans float64
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s src
		WHERE src.%s IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM %s ref WHERE ref.%s = src.%s)`,
		quoteIdent(rule.Dataset), quoteIdent(col),
		quoteIdent(refDataset), quoteIdent(refCol), quoteIdent(col))
	if err := db.GetContext(ctx, &orphans, query); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Metric: orphans, MetricName: "orphan_rows", Passed: orphans <= maxOrphans}
	if !result.Passed {
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("%.0f rows reference missing %s.%s values", orphans, refDataset, refCol),
			fmt.Sprintf("%.0f", orphans), fmt.Sprintf("<= %.0f", maxOrphans)))
	}
	return result, nil
}

func checkTimeliness(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	col, err := paramColumn(rule, "column")
	if err != nil {
		return CheckResult{}, err
	}
	maxLag, hasMax, err := paramFloat(rule, "max_lag_minutes")
	if err != nil {
		return CheckResult{}, err
	}
	if !hasMax {
		return CheckResult{}, fmt.Errorf("param %q is required for check %s", "max_lag_minutes", rule.Check)
	}

	var latest *time.Time
	query := fmt.Sprintf(`SELECT MAX(%s) FROM %s`, quoteIdent(col), quoteIdent(rule.Dataset))
	if err := db.GetContext(ctx, &latest, query); err != nil {
		return CheckResult{}, err
	}

	if latest == nil {
		return CheckResult{
			MetricName: "lag_minutes",
			Passed:     false,
			Violations: []dq.Violation{violation(rule,
				fmt.Sprintf("dataset has no rows with %s set", col),
				"no data", fmt.Sprintf("fresher than %.0f minutes", maxLag))},
		}, nil
	}

	lag := time.Since(latest.UTC()).Minutes()
	result := CheckResult{Metric: lag, MetricName: "lag_minutes", Passed: lag <= maxLag}
	if !result.Passed {
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("data is %.1f minutes stale", lag),
			fmt.Sprintf("%.1f minutes", lag), fmt.Sprintf("<= %.0f minutes", maxLag)))
	}
	return result, nil
}

func checkSchemaDrift(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	expectedRaw := strings.TrimSpace(rule.Params["columns"])
	if expectedRaw == "" {
		return CheckResult{}, fmt.Errorf("param %q is required for check %s", "columns", rule.Check)
	}

	expected := make(map[string]bool)
	for _, col := range strings.Split(expectedRaw, ",") {
		col = strings.TrimSpace(strings.ToLower(col))
		if col == "" {
			continue
		}
		if err := validateIdent(col); err != nil {
			return CheckResult{}, err
		}
		expected[col] = true
	}

	schema, table := splitDataset(rule.Dataset)
	var actual []string
	err := db.SelectContext(ctx, &actual, `
		SELECT lower(column_name) FROM information_schema.columns
		WHERE table_name = $1 AND ($2 = '' OR table_schema = $2)
	`, table, schema)
	if err != nil {
		return CheckResult{}, err
	}
	if len(actual) == 0 {
		return CheckResult{}, fmt.Errorf("dataset %s not found in information_schema", rule.Dataset)
	}

	actualSet := make(map[string]bool, len(actual))
	for _, col := range actual {
		actualSet[col] = true
	}

	var missing, unexpected []string
	for col := range expected {
		if !actualSet[col] {
			missing = append(missing, col)
		}
	}
	for col := range actualSet {
		if !expected[col] {
			unexpected = append(unexpected, col)
		}
	}

	drift := float64(len(missing) + len(unexpected))
	result := CheckResult{Metric: drift, MetricName: "drifted_columns", Passed: drift == 0}
	if !result.Passed {
		sample := make(map[string]string)
		if len(missing) > 0 {
			sample["missing"] = strings.Join(missing, ",")
		}
		if len(unexpected) > 0 {
			sample["unexpected"] = strings.Join(unexpected, ",")
		}
		v := violation(rule,
			fmt.Sprintf("schema drifted by %d columns", int(drift)),
			fmt.Sprintf("%d columns differ", int(drift)), "schema matches declared columns")
		v.Sample = sample
		result.Violations = append(result.Violations, v)
	}
	return result, nil
}

func splitDataset(dataset string) (schema, table string) {
	parts := strings.SplitN(dataset, ".", 2)
	if len(parts) == 2 {
		return strings.ToLower(parts[0]), strings.ToLower(parts[1])
	}
	return "", strings.ToLower(parts[0])
}

func checkVolumeAnomaly(ctx context.Context, db *sqlx.DB, rule dq.Rule, history []float64) (CheckResult, error) {
	var count float64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(rule.Dataset))
	if err := db.GetContext(ctx, &count, query); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Metric: count, MetricName: "row_count", Passed: true}

	method := strings.TrimSpace(rule.Params["method"])
	if method == "" {
		method = "zscore"
	}
	threshold, hasThreshold, err := paramFloat(rule, "threshold")
	if err != nil {
		return CheckResult{}, err
	}
	if !hasThreshold {
		threshold = defaultAnomalyThreshold(method)
	}

	anomalous, score, err := DetectAnomaly(method, history, count, threshold)
	if err != nil {
		return CheckResult{}, err
	}
	if anomalous {
		result.Passed = false
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("row count %.0f is anomalous (%s score %.2f)", count, method, score),
			fmt.Sprintf("%.0f", count), fmt.Sprintf("%s score <= %.2f", method, threshold)))
	}
	return result, nil
}
