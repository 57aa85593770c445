package tool

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ArgsString returns args[key] as a string. Non-string values are
// rendered as JSON.
func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt returns args[key] as an int, or def when absent or unparsable.
func ArgsInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// ArgsMap returns args[key] when it is an object.
func ArgsMap(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

// ArgsStrings returns args[key] as a string list. A single string is
// treated as a one-element list.
func ArgsStrings(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			switch s := e.(type) {
			case nil:
			case string:
				if s != "" {
					out = append(out, s)
				}
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out
	case []string:
		return v
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// requireString returns args[key] or a descriptive error.
func requireString(args map[string]any, key string) (string, error) {
	s := ArgsString(args, key)
	if s == "" {
		return "", fmt.Errorf("missing argument: %s", key)
	}
	return s, nil
}
