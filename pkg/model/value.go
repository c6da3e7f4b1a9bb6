package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Redacted is the placeholder the platform returns instead of secret values
const Redacted = "********"

// Payload is a decoded JSON or YAML document
type Payload = map[string]any

// IsRedacted reports whether v is the redacted sentinel
func IsRedacted(v any) bool {
	s, ok := v.(string)
	return ok && s == Redacted
}

// coerce converts v into the canonical Go type for t. Strict mode rejects
// anything that would need a lossy or surprising conversion.
func coerce(t ValueType, v any, strict bool) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case bool, int, int64, float64:
			if strict {
				return nil, fmt.Errorf("expected string, got %T", v)
			}
			return fmt.Sprint(x), nil
		}
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if !strict {
				if b, err := strconv.ParseBool(x); err == nil {
					return b, nil
				}
			}
		}
	case TypeInt:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint64:
			if x <= math.MaxInt64 {
				return int64(x), nil
			}
		case float64:
			if x == math.Trunc(x) {
				return int64(x), nil
			}
		case string:
			if !strict {
				if n, err := strconv.ParseInt(x, 10, 64); err == nil {
					return n, nil
				}
			}
		}
	case TypeList:
		switch x := v.(type) {
		case []string:
			return append([]string{}, x...), nil
		case []any:
			out := make([]string, 0, len(x))
			for i, e := range x {
				s, ok := e.(string)
				if !ok {
					if strict {
						return nil, fmt.Errorf("element %d: expected string, got %T", i, e)
					}
					s = fmt.Sprint(e)
				}
				out = append(out, s)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

// Equal compares two canonical values. Unordered lists compare as sets.
func Equal(a, b any, ordered bool) bool {
	la, aList := a.([]string)
	lb, bList := b.([]string)
	if aList || bList {
		// a missing list and an empty list are the same thing on the platform
		if ordered {
			return stringSliceEqual(la, lb)
		}
		return stringSliceEqual(uniqueSorted(la), uniqueSorted(lb))
	}
	return a == b
}

func foldValue(v any) any {
	switch x := v.(type) {
	case string:
		return strings.ToLower(x)
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = strings.ToLower(s)
		}
		return out
	}
	return v
}

func uniqueSorted(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	n := 0
	for i, s := range out {
		if i == 0 || s != out[n-1] {
			out[n] = s
			n++
		}
	}
	return out[:n]
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lookup walks a dotted path through nested maps
func lookup(p Payload, path string) (any, bool) {
	var cur any = p
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// assign sets a dotted path, creating intermediate maps
func assign(p Payload, path string, v any) {
	parts := strings.Split(path, ".")
	cur := p
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// Lookup returns the value at a dotted path of a payload
func Lookup(p Payload, path string) (any, bool) {
	return lookup(p, path)
}

// Assign sets the value at a dotted path of a payload
func Assign(p Payload, path string, v any) {
	assign(p, path, v)
}

// FormatValue renders a canonical value for plan output
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "<unset>"
	case string:
		return strconv.Quote(x)
	case []string:
		return "[" + strings.Join(x, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}
