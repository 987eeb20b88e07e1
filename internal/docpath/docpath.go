// Package docpath provides optional-chaining lookups over decoded JSON documents.
//
// Upstream payloads are decoded into map[string]any / []any trees whose nested
// objects may be null, missing, or of an unexpected type. Every accessor here
// degrades to "absent" (ok == false) instead of panicking or erroring.
package docpath

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Get walks doc along keys. A string key indexes an object, an int key
// indexes an array. A nil value at the end of the path counts as absent.
func Get(doc any, keys ...any) (any, bool) {
	cur := doc
	for _, key := range keys {
		switch k := key.(type) {
		case string:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[k]
			if !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]any)
			if !ok {
				return nil, false
			}
			if k < 0 {
				k += len(arr)
			}
			if k < 0 || k >= len(arr) {
				return nil, false
			}
			cur = arr[k]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// String returns the string at keys. Numbers and booleans are formatted so
// identifiers that arrive as numbers still resolve.
func String(doc any, keys ...any) (string, bool) {
	v, ok := Get(doc, keys...)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// StringPtr is String returning nil when absent or empty.
func StringPtr(doc any, keys ...any) *string {
	s, ok := String(doc, keys...)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// Float returns the number at keys. Numeric strings such as "$1,250.00" are
// accepted because the upstream is inconsistent about amounts.
func Float(doc any, keys ...any) (float64, bool) {
	v, ok := Get(doc, keys...)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(t)
		if clean == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(clean, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns the integral number at keys.
func Int(doc any, keys ...any) (int64, bool) {
	f, ok := Float(doc, keys...)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Bool returns the boolean at keys, accepting "true"/"false"/"1"/"0" strings.
func Bool(doc any, keys ...any) (bool, bool) {
	v, ok := Get(doc, keys...)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	case float64:
		return t != 0, true
	default:
		return false, false
	}
}

// BoolPtr is Bool returning nil when absent.
func BoolPtr(doc any, keys ...any) *bool {
	b, ok := Bool(doc, keys...)
	if !ok {
		return nil
	}
	return &b
}

// Slice returns the array at keys.
func Slice(doc any, keys ...any) []any {
	v, ok := Get(doc, keys...)
	if !ok {
		return nil
	}
	arr, _ := v.([]any)
	return arr
}

// Map returns the object at keys.
func Map(doc any, keys ...any) (map[string]any, bool) {
	v, ok := Get(doc, keys...)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}
