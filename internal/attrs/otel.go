package attrs

import "go.opentelemetry.io/otel/attribute"

// FromKeyValues converts OpenTelemetry attributes into a Bag. Slice values
// become []any so they read the same as JSON decoded bags.
func FromKeyValues(kvs []attribute.KeyValue) Bag {
	bag := make(Bag, len(kvs))
	for _, kv := range kvs {
		if !kv.Valid() {
			continue
		}
		switch kv.Value.Type() {
		case attribute.BOOL:
			bag[string(kv.Key)] = kv.Value.AsBool()
		case attribute.INT64:
			bag[string(kv.Key)] = kv.Value.AsInt64()
		case attribute.FLOAT64:
			bag[string(kv.Key)] = kv.Value.AsFloat64()
		case attribute.STRING:
			bag[string(kv.Key)] = kv.Value.AsString()
		case attribute.BOOLSLICE:
			bag[string(kv.Key)] = toAnySlice(kv.Value.AsBoolSlice())
		case attribute.INT64SLICE:
			bag[string(kv.Key)] = toAnySlice(kv.Value.AsInt64Slice())
		case attribute.FLOAT64SLICE:
			bag[string(kv.Key)] = toAnySlice(kv.Value.AsFloat64Slice())
		case attribute.STRINGSLICE:
			bag[string(kv.Key)] = toAnySlice(kv.Value.AsStringSlice())
		}
	}
	return bag
}

func toAnySlice[T any](values []T) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}
