package pii

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateIdent accepts a table name, optionally schema-qualified.
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

func validateColumn(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid column name %q", name)
	}
	return nil
}

func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
