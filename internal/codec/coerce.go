package codec

import (
	"math"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// toNumber coerces a JSON value to float64. Numbers pass through; strings such
// as "42", " 42.5 ", "42%" or "1e3" are parsed; booleans map to 0/1.
// Non-finite results such as "NaN" or "+Inf" are unusable.
func toNumber(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.True:
		return 1, true
	case gjson.False:
		return 0, true
	case gjson.String:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(r.Str), "%"))
		if s == "" {
			return 0, false
		}
		v, err := cast.ToFloat64E(s)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}

// toLabel coerces a scalar JSON value to a string label.
func toLabel(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		return s, s != ""
	case gjson.Number:
		return cast.ToString(r.Num), true
	default:
		return "", false
	}
}

// lookupNumber returns the first alias with a usable numeric value.
func lookupNumber(item gjson.Result, aliases []string) (float64, bool) {
	for _, alias := range aliases {
		if v, ok := toNumber(item.Get(alias)); ok {
			return v, true
		}
	}
	return 0, false
}

// lookupLabel returns the first alias with a usable string value.
func lookupLabel(item gjson.Result, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if v, ok := toLabel(item.Get(alias)); ok {
			return v, true
		}
	}
	return "", false
}

// Number exposes the coercion rules to aggregate decoders outside this package.
func Number(r gjson.Result) (float64, bool) {
	return toNumber(r)
}
