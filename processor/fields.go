package processor

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Tolerant field extraction. Every helper type-checks the source value and
// substitutes the caller's fallback on mismatch so that nil, NaN or a wrong
// JSON type never reaches downstream arithmetic or rendering.

// AsNumber accepts finite JSON numbers, Go integer types and numeric
// strings. Anything else, including NaN and Inf, yields the fallback.
func AsNumber(v interface{}, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fallback
		}
		return n
	case float32:
		return AsNumber(float64(n), fallback)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return AsNumber(f, fallback)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return AsNumber(f, fallback)
		}
	}
	return fallback
}

// AsInt truncates AsNumber to int64.
func AsInt(v interface{}, fallback int64) int64 {
	return int64(AsNumber(v, float64(fallback)))
}

// AsString returns the value when it is a string, the fallback otherwise.
func AsString(v interface{}, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

// AsBool treats only a literal true as on; anything else is the fallback.
func AsBool(v interface{}, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

// AsRecord returns the value as a string-keyed map, or an empty map. The
// result is never nil so callers can index without a check.
func AsRecord(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok && m != nil {
		return m
	}
	return map[string]interface{}{}
}

// AsList returns the value as a slice, or nil.
func AsList(v interface{}) []interface{} {
	if l, ok := v.([]interface{}); ok {
		return l
	}
	return nil
}

// FirstField returns the first present key of obj among names, preferring
// earlier names. Absent keys and nil values are skipped. This is the
// schema-drift absorber: historical payloads use different field names for
// the same concept.
func FirstField(obj map[string]interface{}, names ...string) interface{} {
	for _, name := range names {
		if v, ok := obj[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

// PickLines merges the historical log-tail response shapes into one line
// list: a lines/items/stdout/stderr array, or a newline-delimited
// text/content string.
func PickLines(v interface{}) []string {
	obj := AsRecord(v)
	for _, key := range []string{"lines", "items", "stdout", "stderr"} {
		if list := AsList(obj[key]); list != nil {
			out := make([]string, 0, len(list))
			for _, item := range list {
				out = append(out, stringify(item))
			}
			return out
		}
	}
	for _, key := range []string{"text", "content"} {
		if s := AsString(obj[key], ""); s != "" {
			var out []string
			for _, line := range strings.Split(s, "\n") {
				if line != "" {
					out = append(out, line)
				}
			}
			return out
		}
	}
	return []string{}
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return AsString(s, "")
	}
}

// NormalizeTsMs converts a wire timestamp to epoch milliseconds. The stream
// historically carried both seconds and milliseconds depending on the
// emitter; values below 1e10 are interpreted as seconds (the heuristic the
// backend itself applies). Zero and unparseable values yield 0.
func NormalizeTsMs(v interface{}) int64 {
	ts := AsNumber(v, 0)
	if ts <= 0 {
		return 0
	}
	if ts < 10_000_000_000 {
		ts *= 1000
	}
	return int64(ts)
}
