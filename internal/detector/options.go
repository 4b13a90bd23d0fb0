package detector

import (
	"fmt"
)

// Typed accessors over the merged detector options map. YAML decoding
// produces int, float64, bool, string, []any, and map[string]any; JSON
// decoding produces float64 where YAML produces int. Both are accepted.

func optString(opts map[string]any, key, def string) string {
	v, ok := opts[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func optBool(opts map[string]any, key string, def bool) bool {
	v, ok := opts[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func optInt(opts map[string]any, key string, def int) (int, error) {
	v, ok := opts[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("option %q: expected integer, got %T", key, v)
	}
}

func optFloat(opts map[string]any, key string, def float64) (float64, error) {
	v, ok := opts[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("option %q: expected number, got %T", key, v)
	}
}

func optStringSlice(opts map[string]any, key string) ([]string, error) {
	v, ok := opts[key]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("option %q: expected string list, got %T element", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("option %q: expected string list, got %T", key, v)
	}
}

func optMapSlice(opts map[string]any, key string) ([]map[string]any, error) {
	v, ok := opts[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("option %q: expected list, got %T", key, v)
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("option %q: expected map elements, got %T", key, item)
		}
		out = append(out, m)
	}
	return out, nil
}

func optMap(opts map[string]any, key string) (map[string]any, error) {
	v, ok := opts[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("option %q: expected map, got %T", key, v)
	}
	return m, nil
}
