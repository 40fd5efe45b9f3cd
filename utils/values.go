package utils

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Truthy reports whether a loosely-typed attribute value counts as set.
// nil, false, zero numbers, "", "0", "false" and empty collections are falsy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		return s != "" && s != "0" && !strings.EqualFold(s, "false")
	}
	if f, ok := ToFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// StrictEqual compares two attribute values without type juggling:
// a string never equals a number and a bool never equals anything but a bool.
// Numbers of any Go numeric kind compare by value, so values survive a
// JSON round trip (int -> float64) unchanged.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := ToFloat(a)
	bf, bNum := ToFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta.Kind() != tb.Kind() {
		return false
	}
	switch ta.Kind() {
	case reflect.String:
		return reflect.ValueOf(a).String() == reflect.ValueOf(b).String()
	case reflect.Bool:
		return reflect.ValueOf(a).Bool() == reflect.ValueOf(b).Bool()
	}
	if ta.Comparable() && ta == tb {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// AsList returns v as a []any when it is a slice or array (other than []byte).
func AsList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Contains reports whether list holds a value strictly equal to v.
func Contains(list []any, v any) bool {
	for _, item := range list {
		if StrictEqual(item, v) {
			return true
		}
	}
	return false
}

// ToStrings converts a list value to its string members. Non-string members
// are skipped; a non-list value yields ok=false.
func ToStrings(v any) ([]string, bool) {
	list, ok := AsList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, isStr := item.(string); isStr {
			out = append(out, s)
		}
	}
	return out, true
}

// ToFloat converts any Go numeric kind to float64. Strings are not parsed.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case interface{ Float64() (float64, error) }:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToNumber is ToFloat that also accepts numeric strings, used for request
// attributes that arrive from query strings or CLI flags.
func ToNumber(v any) (float64, bool) {
	if f, ok := ToFloat(v); ok {
		return f, !math.IsNaN(f)
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

// ToString renders a scalar attribute as a string; lists and maps yield ok=false.
func ToString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	}
	if f, ok := ToFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	if b, ok := v.(bool); ok {
		return strconv.FormatBool(b), true
	}
	return "", false
}
