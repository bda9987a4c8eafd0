package expression

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ToNumber converts v to a float64 the way loose comparisons expect. Values with no numeric
// reading return NaN.
func ToNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case bool:
		if n {
			return 1
		}

		return 0
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}

		return f
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}

		return f
	default:
		return math.NaN()
	}
}

// IsNumeric reports whether v holds a Go numeric type.
func IsNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	default:
		return false
	}
}

// StrictEqual compares without coercion: both sides must be the same kind of value.
// All Go numeric types are one kind.
func StrictEqual(a, b any) bool {
	switch {
	case a == nil || b == nil:
		return a == nil && b == nil
	case IsNumeric(a) && IsNumeric(b):
		return ToNumber(a) == ToNumber(b)
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)

		return ok && av == bv
	case bool:
		bv, ok := b.(bool)

		return ok && av == bv
	default:
		return false
	}
}

// LooseEqual compares with coercion. Numbers, numeric strings and booleans compare by
// numeric value; nil only equals nil; maps and slices never compare equal.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if StrictEqual(a, b) {
		return true
	}

	if !isPrimitive(a) || !isPrimitive(b) {
		return false
	}

	_, aString := a.(string)
	_, bString := b.(string)

	if aString && bString {
		return false
	}

	return ToNumber(a) == ToNumber(b)
}

// Truthy reports the boolean reading of v.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}

	if IsNumeric(v) {
		n := ToNumber(v)

		return n != 0 && !math.IsNaN(n)
	}

	return true
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	default:
		return IsNumeric(v)
	}
}
