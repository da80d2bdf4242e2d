// Package params resolves placeholder tokens inside test step parameters
// before a test function runs. Two token families exist: <tmp>, handled
// by the run's scratch-area manager, and <var:NAME>, substituted from
// the loaded variables map.
package params

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
)

var varPattern = regexp.MustCompile(`<var:([A-Za-z0-9_.-]+)>`)

// TmpResolver expands <tmp> tokens inside a string. pkg/tmparea's
// Manager satisfies it.
type TmpResolver interface {
	Resolve(s string) (string, error)
}

// Resolver rewrites parameter values. Unknown variable names stay as
// literal text so a typo surfaces in the step's output rather than
// aborting the run.
type Resolver struct {
	Variables map[string]string
	Tmp       TmpResolver
}

// ResolveMap returns a deep copy of params with every string value
// rewritten. The input map is never mutated; step records keep the
// declared values.
func (r *Resolver) ResolveMap(params map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		rv, err := r.resolveValue(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func (r *Resolver) resolveValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return r.resolveString(t)
	case map[string]any:
		return r.ResolveMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			rv, err := r.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *Resolver) resolveString(s string) (string, error) {
	s = varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		if val, ok := r.Variables[name]; ok {
			return val
		}
		return match
	})
	if r.Tmp == nil {
		return s, nil
	}
	return r.Tmp.Resolve(s)
}

// Variable is one named value in the variables store.
type Variable struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

type variablesFile struct {
	Variables []Variable `json:"variables"`
}

// LoadVariables reads the variables store. The canonical shape is
// {"variables": [{name, value, description}]}; a flat {"NAME": "value"}
// object is accepted for hand-written files. A missing file yields an
// empty map.
func LoadVariables(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read variables: %w", err)
	}

	var doc variablesFile
	if err := json.Unmarshal(data, &doc); err == nil && doc.Variables != nil {
		out := make(map[string]string, len(doc.Variables))
		for _, v := range doc.Variables {
			out[v.Name] = v.Value
		}
		return out, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("parse variables %s: %w", path, err)
	}
	return flat, nil
}

// SaveVariables writes the variables store in its canonical list shape,
// sorted by name for stable diffs.
func SaveVariables(path string, vars []Variable) error {
	sorted := make([]Variable, len(vars))
	copy(sorted, vars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	data, err := json.MarshalIndent(variablesFile{Variables: sorted}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write variables: %w", err)
	}
	return nil
}
