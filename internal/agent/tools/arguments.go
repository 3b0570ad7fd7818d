package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SanitizeArguments normalizes model-produced tool arguments before they are
// decoded. It never fails: arguments that are not a JSON object pass through.
func SanitizeArguments(_ context.Context, name, arguments string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments, nil
	}

	switch name {
	case ToolResolveEntity:
		trimString(m, "kind", true)
		// value keeps numbers as numbers so ids pass through
		if v, ok := m["value"].(string); ok {
			m["value"] = strings.TrimSpace(v)
		}
	case ToolListEntities:
		trimString(m, "kind", true)
		trimString(m, "search", false)
		intField(m, "limit", 1, maxListLimit)
	case ToolEntityReport:
		if v, ok := m["columns"]; ok {
			m["columns"] = columnNames(v)
		}
		if _, ok := m["filters"].(map[string]any); !ok {
			delete(m, "filters")
		}
		trimString(m, "from", false)
		trimString(m, "to", false)
		intField(m, "page", 1, 1<<20)
		intField(m, "page_size", 1, maxReportPageSize)
	case ToolUpdateConversionStatus:
		if v, ok := m["conversion_ids"]; ok {
			m["conversion_ids"] = stringList(v)
		}
		trimString(m, "status", true)
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}

func trimString(m map[string]any, key string, lower bool) {
	v, ok := m[key]
	if !ok {
		return
	}
	s, ok := v.(string)
	if !ok {
		if v == nil {
			delete(m, key)
			return
		}
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if lower {
		s = strings.ToLower(s)
	}
	m[key] = s
}

// intField coerces JSON numbers and numeric strings into [min, max] and drops
// anything else.
func intField(m map[string]any, key string, min, max int) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case float64:
		m[key] = clampInt(int(vv), min, max)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
			m[key] = clampInt(n, min, max)
		} else {
			delete(m, key)
		}
	default:
		delete(m, key)
	}
}

// columnNames accepts "offer", ["offer"] or [{"column": "offer"}].
func columnNames(v any) []string {
	switch vv := v.(type) {
	case string:
		return splitNonEmpty(vv)
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			switch it := item.(type) {
			case string:
				out = append(out, splitNonEmpty(it)...)
			case map[string]any:
				if c, ok := it["column"].(string); ok && strings.TrimSpace(c) != "" {
					out = append(out, strings.TrimSpace(c))
				}
			}
		}
		return out
	}
	return nil
}

// stringList accepts a single id or a list of ids, as strings or numbers.
func stringList(v any) []string {
	var items []any
	switch vv := v.(type) {
	case []any:
		items = vv
	case nil:
		return nil
	default:
		items = []any{vv}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch it := item.(type) {
		case string:
			s = it
		case float64:
			s = strconv.FormatFloat(it, 'f', -1, 64)
		default:
			continue
		}
		out = append(out, splitNonEmpty(s)...)
	}
	return out
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
