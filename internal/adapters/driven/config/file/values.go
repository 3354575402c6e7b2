package file

import (
	"math"
	"sort"
	"strings"
)

// TOML decodes integers as int64 and arrays as []any; values set at runtime
// arrive as plain Go types. The helpers below accept both.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt accepts whole floats so "max_items = 20.0" reads as 20.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// asStringSlice drops non-string elements.
func asStringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// flattenMap turns {"a": {"b": 1}} into {"a.b": 1}.
func flattenMap(tree map[string]any, prefix string) map[string]any {
	flat := make(map[string]any, len(tree))
	for k, v := range tree {
		if prefix != "" {
			k = prefix + "." + k
		}
		child, ok := v.(map[string]any)
		if !ok {
			flat[k] = v
			continue
		}
		for ck, cv := range flattenMap(child, k) {
			flat[ck] = cv
		}
	}
	return flat
}

// nestMap reverses flattenMap. When a parent segment already holds a scalar
// the remainder of the key stays dotted inside the deepest reachable table.
func nestMap(flat map[string]any) map[string]any {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := map[string]any{}
	for _, key := range keys {
		parts := strings.Split(key, ".")
		table, rest := descend(root, parts)
		table[strings.Join(rest, ".")] = flat[key]
	}
	return root
}

// descend walks or creates tables for all but the last segment and returns
// the table reached together with the unconsumed segments.
func descend(table map[string]any, parts []string) (map[string]any, []string) {
	for len(parts) > 1 {
		next, ok := table[parts[0]]
		if !ok {
			child := map[string]any{}
			table[parts[0]] = child
			table, parts = child, parts[1:]
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			break
		}
		table, parts = child, parts[1:]
	}
	return table, parts
}
