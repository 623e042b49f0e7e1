package dq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/jmoiron/sqlx"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
)

const expressionTimeout = 5 * time.Second

// checkExpression runs a scalar query against the target and evaluates a
// JavaScript predicate over the result. The predicate sees the query result
// as `value` and must return a truthy result for the check to pass.
func checkExpression(ctx context.Context, db *sqlx.DB, rule dq.Rule, _ []float64) (CheckResult, error) {
	query := strings.TrimSpace(rule.Params["query"])
	if query == "" {
		return CheckResult{}, fmt.Errorf("param %q is required for check %s", "query", rule.Check)
	}
	if err := validateScalarQuery(query); err != nil {
		return CheckResult{}, err
	}
	expr := strings.TrimSpace(rule.Params["expr"])
	if expr == "" {
		return CheckResult{}, fmt.Errorf("param %q is required for check %s", "expr", rule.Check)
	}

	var value float64
	if err := db.GetContext(ctx, &value, query); err != nil {
		return CheckResult{}, fmt.Errorf("expression query: %w", err)
	}

	passed, err := evalPredicate(expr, value)
	if err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Metric: value, MetricName: "expression_value", Passed: passed}
	if !passed {
		result.Violations = append(result.Violations, violation(rule,
			fmt.Sprintf("expression %q failed for value %g", expr, value),
			fmt.Sprintf("%g", value), expr))
	}
	return result, nil
}

// validateScalarQuery restricts expression queries to a single SELECT.
func validateScalarQuery(query string) error {
	lowered := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lowered, "select") && !strings.HasPrefix(lowered, "with") {
		return fmt.Errorf("expression query must be a SELECT")
	}
	if strings.Contains(strings.TrimRight(query, "; \t\n"), ";") {
		return fmt.Errorf("expression query must be a single statement")
	}
	return nil
}

func evalPredicate(expr string, value float64) (bool, error) {
	vm := goja.New()

	timer := time.AfterFunc(expressionTimeout, func() {
		vm.Interrupt("expression timed out")
	})
	defer timer.Stop()

	if err := vm.Set("value", value); err != nil {
		return false, err
	}

	result, err := vm.RunString(expr)
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}
	return result.ToBoolean(), nil
}
