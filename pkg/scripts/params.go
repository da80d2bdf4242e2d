package scripts

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// stringParam returns the parameter as a string. Numbers are formatted,
// which matches how plans written by hand often quote-or-not values like
// permissions ("644" vs 644).
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// intParam returns the parameter as an int, accepting JSON numbers and
// numeric strings.
func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return int(n), nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("parameter %q is not an integer: %q", key, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("parameter %q is not an integer (got %T)", key, v)
	}
}

// toInt converts a decoded JSON value to an int.
func toInt(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("not an integer (got %T)", v)
	}
}

// boolParam returns the parameter as a bool, accepting "true"/"false" strings.
func boolParam(params map[string]any, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, fmt.Errorf("parameter %q is not a boolean: %q", key, t)
		}
		return b, nil
	default:
		return false, fmt.Errorf("parameter %q is not a boolean (got %T)", key, v)
	}
}

// mapParam returns the parameter as a string map (for headers and the like).
func mapParam(params map[string]any, key string) (map[string]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q is not an object (got %T)", key, v)
	}
	out := make(map[string]string, len(m))
	for k := range m {
		s, _ := stringParam(m, k)
		out[k] = s
	}
	return out, nil
}

// paramError builds a CodeParamError result with the given message.
func paramError(format string, args ...any) *Result {
	return &Result{Stderr: fmt.Sprintf(format, args...), ReturnCode: CodeParamError}
}

// execError builds a CodeError result from an unexpected error.
func execError(err error) *Result {
	return &Result{Exception: err.Error(), ReturnCode: CodeError}
}
