// Package attrs reads values out of untrusted span attribute bags.
//
// Keys are tried in caller order and the first key that exists and passes
// validation wins. Callers express convention priority through key order.
package attrs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Bag is a flat attribute map as decoded from a span. Values are strings,
// numbers, booleans, or []any of those.
type Bag map[string]any

// Serializer converts a raw attribute value. Returning false skips the key.
type Serializer func(value any) (any, bool)

// Validation reports whether a serialized value is acceptable.
type Validation func(value any) bool

type extractOptions struct {
	serializer Serializer
	validation Validation
}

// Option configures Extract and ExtractAll.
type Option func(*extractOptions)

// WithSerializer replaces the default stringify serializer.
func WithSerializer(serializer Serializer) Option {
	return func(o *extractOptions) {
		if serializer != nil {
			o.serializer = serializer
		}
	}
}

// WithValidation rejects serialized values that fail fn; the next key is tried.
func WithValidation(fn Validation) Option {
	return func(o *extractOptions) {
		o.validation = fn
	}
}

func buildOptions(opts []Option) extractOptions {
	options := extractOptions{serializer: stringifySerializer}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Extract returns the first key present in bag whose serialized value passes
// validation.
func Extract(bag Bag, keys []attribute.Key, opts ...Option) (any, bool) {
	if len(bag) == 0 {
		return nil, false
	}
	options := buildOptions(opts)
	for _, key := range keys {
		raw, ok := bag[string(key)]
		if !ok {
			continue
		}
		value, ok := options.serializer(raw)
		if !ok {
			continue
		}
		if options.validation != nil && !options.validation(value) {
			continue
		}
		return value, true
	}
	return nil, false
}

// ExtractAll returns every serialized value that exists and validates, in key
// order.
func ExtractAll(bag Bag, keys []attribute.Key, opts ...Option) []any {
	if len(bag) == 0 {
		return nil
	}
	options := buildOptions(opts)
	values := make([]any, 0, len(keys))
	for _, key := range keys {
		raw, ok := bag[string(key)]
		if !ok {
			continue
		}
		value, ok := options.serializer(raw)
		if !ok {
			continue
		}
		if options.validation != nil && !options.validation(value) {
			continue
		}
		values = append(values, value)
	}
	return values
}

// String returns the first non-blank string form of keys.
func String(bag Bag, keys ...attribute.Key) (string, bool) {
	value, ok := Extract(bag, keys, WithValidation(func(v any) bool {
		s, _ := v.(string)
		return strings.TrimSpace(s) != ""
	}))
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value.(string)), true
}

// Int returns the first value of keys that coerces to a finite integer.
func Int(bag Bag, keys ...attribute.Key) (int64, bool) {
	value, ok := Extract(bag, keys, WithSerializer(func(v any) (any, bool) {
		return CoerceInt64(v)
	}))
	if !ok {
		return 0, false
	}
	return value.(int64), true
}

// Count returns the first value of keys that coerces to a non-negative
// integer. Negative values fall through to the next key.
func Count(bag Bag, keys ...attribute.Key) (int64, bool) {
	value, ok := Extract(bag, keys, WithSerializer(func(v any) (any, bool) {
		return CoerceInt64(v)
	}), WithValidation(nonNegative))
	if !ok {
		return 0, false
	}
	return value.(int64), true
}

// SumCounts adds every non-negative integer value of keys, saturating at
// math.MaxInt64.
func SumCounts(bag Bag, keys ...attribute.Key) (int64, bool) {
	values := ExtractAll(bag, keys, WithSerializer(func(v any) (any, bool) {
		return CoerceInt64(v)
	}), WithValidation(nonNegative))
	if len(values) == 0 {
		return 0, false
	}
	var total int64
	for _, value := range values {
		n := value.(int64)
		if total > math.MaxInt64-n {
			return math.MaxInt64, true
		}
		total += n
	}
	return total, true
}

func nonNegative(v any) bool {
	n, ok := v.(int64)
	return ok && n >= 0
}

// Float returns the first value of keys that coerces to a finite float.
func Float(bag Bag, keys ...attribute.Key) (float64, bool) {
	value, ok := Extract(bag, keys, WithSerializer(func(v any) (any, bool) {
		return CoerceFloat64(v)
	}))
	if !ok {
		return 0, false
	}
	return value.(float64), true
}

// Bool returns the first value of keys that coerces to a boolean.
func Bool(bag Bag, keys ...attribute.Key) (bool, bool) {
	value, ok := Extract(bag, keys, WithSerializer(func(v any) (any, bool) {
		return CoerceBool(v)
	}))
	if !ok {
		return false, false
	}
	return value.(bool), true
}

// Raw returns the first present value of keys without conversion.
func Raw(bag Bag, keys ...attribute.Key) (any, bool) {
	return Extract(bag, keys, WithSerializer(func(v any) (any, bool) {
		return v, v != nil
	}))
}

// JSON returns the first value of keys that decodes as JSON. Keys holding
// malformed JSON are skipped.
func JSON(bag Bag, keys ...attribute.Key) (any, bool) {
	return Extract(bag, keys, WithSerializer(func(v any) (any, bool) {
		decoded, err := DecodeJSON(v)
		return decoded, err == nil
	}))
}

// ByPrefix returns the keys under prefix with "prefix." stripped.
func ByPrefix(bag Bag, prefix attribute.Key) Bag {
	head := string(prefix) + "."
	var out Bag
	for key, value := range bag {
		if !strings.HasPrefix(key, head) {
			continue
		}
		rest := strings.TrimPrefix(key, head)
		if rest == "" {
			continue
		}
		if out == nil {
			out = make(Bag)
		}
		out[rest] = value
	}
	return out
}

// DecodeJSON parses string values as JSON and passes structured values through.
func DecodeJSON(value any) (any, error) {
	switch typed := value.(type) {
	case nil:
		return nil, fmt.Errorf("missing value")
	case string:
		raw := strings.TrimSpace(typed)
		if raw == "" {
			return nil, fmt.Errorf("empty json value")
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	case []byte:
		var decoded any
		if err := json.Unmarshal(typed, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	default:
		return value, nil
	}
}

// Stringify renders an attribute value as a string. Arrays and objects are
// JSON encoded.
func Stringify(value any) (string, bool) {
	switch typed := value.(type) {
	case nil:
		return "", false
	case string:
		return typed, true
	case bool:
		return strconv.FormatBool(typed), true
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return "", false
		}
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case float32:
		return Stringify(float64(typed))
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case int32:
		return strconv.FormatInt(int64(typed), 10), true
	case json.Number:
		return typed.String(), true
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	}
}

func stringifySerializer(value any) (any, bool) {
	return Stringify(value)
}

// CoerceInt64 converts numbers and numeric strings to int64. Fractional values
// are truncated; NaN, infinities and values outside the int64 range are
// rejected.
func CoerceInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case int32:
		return int64(typed), true
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed, true
		}
		return CoerceInt64(typed.String())
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed, true
		}
	}
	parsed, ok := CoerceFloat64(value)
	if !ok {
		return 0, false
	}
	if parsed >= 1<<63 || parsed < -(1<<63) {
		return 0, false
	}
	return int64(parsed), true
}

// CoerceFloat64 converts numbers and numeric strings to a finite float64.
func CoerceFloat64(value any) (float64, bool) {
	var parsed float64
	switch typed := value.(type) {
	case float64:
		parsed = typed
	case float32:
		parsed = float64(typed)
	case int:
		parsed = float64(typed)
	case int64:
		parsed = float64(typed)
	case int32:
		parsed = float64(typed)
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		parsed = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		parsed = f
	default:
		return 0, false
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

// CoerceBool accepts native booleans and "true"/"false" strings.
func CoerceBool(value any) (bool, bool) {
	switch typed := value.(type) {
	case bool:
		return typed, true
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
