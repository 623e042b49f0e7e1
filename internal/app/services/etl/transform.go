package etl

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
)

// transformRow produces destination column values for one source row
// following the pipeline's mappings.
func transformRow(row map[string]interface{}, mappings []etl.Mapping) ([]interface{}, error) {
	out := make([]interface{}, len(mappings))
	for i, m := range mappings {
		value, ok := row[m.Source]
		if !ok {
			return nil, fmt.Errorf("source column %q not present in query result", m.Source)
		}

		if m.Path == "" {
			out[i] = normalizeValue(value)
			continue
		}

		doc, err := jsonDocument(value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", m.Source, err)
		}
		extracted := gjson.Get(doc, m.Path)
		if !extracted.Exists() {
			out[i] = nil
			continue
		}
		out[i] = extracted.Value()
	}
	return out, nil
}

// jsonDocument renders a column value as a JSON document for path
// extraction. Postgres drivers return json/jsonb columns as []byte.
func jsonDocument(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("value of type %T is not a JSON document", value)
	}
}

// normalizeValue converts driver byte slices to strings so they bind
// cleanly on the destination side.
func normalizeValue(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
