package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wolfman30/medassist/internal/appointments"
)

// Args are the decoded arguments of a tool call. Providers disagree on number
// encodings, so accessors accept any numeric representation.
type Args map[string]any

// String returns the trimmed string form of key, or "" when absent.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// FirstString returns the first non-empty value among keys.
func (a Args) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := a.String(k); s != "" {
			return s
		}
	}
	return ""
}

type int64er interface {
	Int64() (int64, error)
}

// Int returns the integer at key. ok is false when the key is absent or empty.
func (a Args) Int(key string) (int64, bool, error) {
	v, present := a[key]
	if !present || v == nil {
		return 0, false, nil
	}
	bad := &appointments.ValidationError{Field: key, Reason: "must be an integer"}
	switch n := v.(type) {
	case int:
		return int64(n), true, nil
	case int32:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	case float32:
		return integral(float64(n), bad)
	case float64:
		return integral(n, bad)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, true, bad
		}
		return integral(f, bad)
	case int64er:
		i, err := n.Int64()
		if err != nil {
			return 0, true, bad
		}
		return i, true, nil
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return 0, false, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return integral(f, bad)
	}
	return 0, true, bad
}

func integral(f float64, bad error) (int64, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, true, bad
	}
	return int64(f), true, nil
}

// RequireInt is Int with a validation error for a missing key.
func (a Args) RequireInt(key string) (int64, error) {
	n, ok, err := a.Int(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &appointments.ValidationError{Field: key, Reason: "is required"}
	}
	return n, nil
}

// OptionalInt is Int that treats absence as zero.
func (a Args) OptionalInt(key string) (int64, error) {
	n, _, err := a.Int(key)
	return n, err
}

// Bool returns the boolean at key, or def when absent or unparseable.
func (a Args) Bool(key string, def bool) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}
