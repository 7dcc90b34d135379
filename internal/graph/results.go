package graph

import (
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Binding is one solution of a SELECT query: variable name to lexical value.
// Unbound variables are absent.
type Binding map[string]string

var bindingsPath = jp.MustParseString("$.results.bindings[*]")

// ParseResults decodes an application/sparql-results+json document.
func ParseResults(data []byte) ([]Binding, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decode sparql results: %w", err)
	}
	if jp.MustParseString("$.results.bindings").First(doc) == nil {
		return nil, fmt.Errorf("decode sparql results: missing results.bindings")
	}

	raw := bindingsPath.Get(doc)
	out := make([]Binding, 0, len(raw))
	for _, r := range raw {
		vars, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode sparql results: binding is %T", r)
		}
		b := make(Binding, len(vars))
		for name := range vars {
			if v, ok := jp.C(name).C("value").First(vars).(string); ok {
				b[name] = v
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// countValue reads ?count from a single-row aggregate result.
func countValue(rows []Binding) (int, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	v, ok := rows[0]["count"]
	if !ok {
		return 0, fmt.Errorf("count query returned no ?count")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("count query returned %q: %w", v, err)
	}
	return n, nil
}
