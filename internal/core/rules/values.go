package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// absent reports whether no value was supplied. Most rules accept absence.
func absent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

// truthy follows form-value truthiness: nil, "", false and numeric zero are
// falsy, everything else is truthy.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case json.Number:
		r, ok := parseDecimal(x.String())
		return ok && r.Sign() != 0
	}
	if r, ok := numberOf(v); ok {
		return r.Sign() != 0
	}
	if f, ok := floatOf(v); ok && math.IsNaN(f) {
		return false
	}
	return true
}

// text returns the string form a value is matched against.
func text(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case json.Number:
		return x.String(), true
	case time.Time:
		return x.Format(time.DateOnly), true
	case fmt.Stringer:
		return x.String(), true
	}
	if f, ok := floatOf(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	if i, ok := intOf(v); ok {
		return strconv.FormatInt(i, 10), true
	}
	if u, ok := uintOf(v); ok {
		return strconv.FormatUint(u, 10), true
	}
	return "", false
}

// numeric returns v as an exact rational when v is a number or numeric text.
func numeric(v any) (*big.Rat, bool) {
	switch x := v.(type) {
	case string:
		return parseDecimal(x)
	case json.Number:
		return parseDecimal(x.String())
	}
	return numberOf(v)
}

func numberOf(v any) (*big.Rat, bool) {
	if f, ok := floatOf(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return new(big.Rat).SetFloat64(f), true
	}
	if i, ok := intOf(v); ok {
		return new(big.Rat).SetInt64(i), true
	}
	if u, ok := uintOf(v); ok {
		return new(big.Rat).SetInt(new(big.Int).SetUint64(u)), true
	}
	return nil, false
}

func floatOf(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}

func intOf(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func uintOf(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	}
	return 0, false
}

// parseDecimal accepts signed decimal and exponent notation. The float64
// parse gates out fractions ("1/2"), infinities and exponents too large to
// expand exactly.
func parseDecimal(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "/") {
		return nil, false
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, false
	}
	return r, true
}

// parseBound parses a descriptor bound. Generated documents may carry a
// decimal comma ("500,00").
func parseBound(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return parseDecimal(s)
}

// integerPart truncates toward zero.
func integerPart(r *big.Rat) *big.Int {
	return new(big.Int).Quo(r.Num(), r.Denom())
}

// length measures collections by element count and text by trimmed runes.
func length(v any) (int, bool) {
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(strings.TrimSpace(s)), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	if s, ok := text(v); ok {
		return utf8.RuneCountInString(strings.TrimSpace(s)), true
	}
	return 0, false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
	"2006/01/02",
	"02.01.2006",
	"01/02/2006",
}

// date interprets v as a point in time in loc. Numbers are epoch milliseconds.
func date(v any, loc *time.Location) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.In(loc), true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t.In(loc), true
			}
		}
		return time.Time{}, false
	}
	if r, ok := numberOf(v); ok {
		return time.UnixMilli(integerPart(r).Int64()).In(loc), true
	}
	return time.Time{}, false
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
