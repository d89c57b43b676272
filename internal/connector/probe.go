package connector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Portal schemas vary by jurisdiction: each normalized field is probed
// against a small ordered list of candidate portal field names, and the first
// non-empty match wins. The matched portal name is recorded in the record's
// provenance fields_map.

// firstString returns the first non-empty candidate as a string, plus the
// portal field name that supplied it.
func firstString(raw map[string]any, names ...string) (string, string) {
	for _, name := range names {
		v, ok := raw[name]
		if !ok {
			continue
		}
		if s := asString(v); s != "" {
			return s, name
		}
	}
	return "", ""
}

// firstNumber returns the first candidate that coerces to a float64.
// Malformed numbers are skipped, so a garbage value falls through to the
// next alternate instead of poisoning the record.
func firstNumber(raw map[string]any, names ...string) (*float64, string) {
	for _, name := range names {
		v, ok := raw[name]
		if !ok {
			continue
		}
		if f := asFloat(v); f != nil {
			return f, name
		}
	}
	return nil, ""
}

// firstRaw returns the first present candidate without coercion.
func firstRaw(raw map[string]any, names ...string) (any, string) {
	for _, name := range names {
		if v, ok := raw[name]; ok && v != nil {
			return v, name
		}
	}
	return nil, ""
}

// asString renders a scalar portal value as a trimmed string.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	return ""
}

// asFloat coerces numbers and numeric strings; malformed values become nil.
func asFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(t, "$"), ",", ""))
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// asInt64 coerces numbers and numeric strings to int64; float64 values are
// truncated toward zero, and anything else becomes (0, false).
func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// normalizeDate shapes portal date values into YYYY-MM-DD. Numeric values
// are milliseconds since epoch (the feature-service convention) converted in
// UTC; ISO strings are truncated at the time separator.
func normalizeDate(v any) string {
	if n, ok := epochMillis(v); ok {
		return millisToDate(n)
	}
	s := asString(v)
	if s == "" {
		return ""
	}
	if idx := strings.IndexAny(s, "T "); idx > 0 {
		s = s[:idx]
	}
	return s
}

func epochMillis(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func millisToDate(millis int64) string {
	t := time.UnixMilli(millis).UTC()
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), t.Month(), t.Day())
}
