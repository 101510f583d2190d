package export

import (
	"fmt"
	"io"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Match is one JSONPath result.
type Match struct {
	value any
}

// Values returns maps as-is and wraps scalars and lists under "value".
func (m Match) Values() map[string]any {
	switch v := m.value.(type) {
	case map[string]any:
		return v
	default:
		return map[string]any{"value": v}
	}
}

// Value returns the raw result.
func (m Match) Value() any { return m.value }

// Query evaluates a JSONPath expression against a document tree.
func Query(root any, selector string) ([]Match, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	results := x.Get(root)
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{value: r}
	}
	return matches, nil
}

// Values unwraps matches to their raw results.
func Values(matches []Match) []any {
	out := make([]any, len(matches))
	for i, m := range matches {
		out[i] = m.value
	}
	return out
}

// WriteJSON writes v as indented JSON with sorted keys.
func WriteJSON(w io.Writer, v any) error {
	_, err := io.WriteString(w, oj.JSON(v, &oj.Options{Indent: 2, Sort: true})+"\n")
	return err
}
