package attrs

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestExtractFirstMatchWins(t *testing.T) {
	t.Parallel()

	bag := Bag{
		"gen_ai.request.model": "gpt-4o",
		"llm.model_name":       "gpt-4o-mini",
	}

	got, ok := Extract(bag, []attribute.Key{"missing", GenAIRequestModel, OpenInferenceLLMModelName})
	if !ok {
		t.Fatal("Extract() ok=false, want true")
	}
	if got != "gpt-4o" {
		t.Fatalf("Extract()=%v, want gpt-4o", got)
	}
}

func TestExtractValidationFallsThrough(t *testing.T) {
	t.Parallel()

	bag := Bag{"a": "", "b": "value"}
	got, ok := Extract(bag, []attribute.Key{"a", "b"}, WithValidation(func(v any) bool {
		return v != ""
	}))
	if !ok || got != "value" {
		t.Fatalf("Extract()=%v,%t, want value,true", got, ok)
	}

	if _, ok := Extract(bag, []attribute.Key{"a"}, WithValidation(func(any) bool { return false })); ok {
		t.Fatal("Extract() ok=true for rejected value, want false")
	}
}

func TestExtractDefaultSerializerStringifies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "string", value: "x", want: "x"},
		{name: "float", value: float64(1000), want: "1000"},
		{name: "fraction", value: 0.25, want: "0.25"},
		{name: "int64", value: int64(7), want: "7"},
		{name: "bool", value: true, want: "true"},
		{name: "slice", value: []any{"a", float64(1)}, want: `["a",1]`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Extract(Bag{"k": tt.value}, []attribute.Key{"k"})
			if !ok {
				t.Fatal("Extract() ok=false, want true")
			}
			if got != tt.want {
				t.Fatalf("Extract()=%v, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractAllCollectsInKeyOrder(t *testing.T) {
	t.Parallel()

	bag := Bag{"c": float64(3), "a": float64(1), "b": "not a number"}
	got := ExtractAll(bag, []attribute.Key{"a", "b", "c", "d"}, WithSerializer(func(v any) (any, bool) {
		return CoerceInt64(v)
	}))
	want := []any{int64(1), int64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractAll()=%v, want %v", got, want)
	}
}

func TestSumCounts(t *testing.T) {
	t.Parallel()

	bag := Bag{
		string(OpenInferenceCacheInputTokens): "10",
		string(OpenInferenceCacheReadTokens):  float64(5),
		string(OpenInferenceCacheWriteTokens): int64(2),
	}
	got, ok := SumCounts(bag, OpenInferenceCacheInputTokens, OpenInferenceCacheReadTokens, OpenInferenceCacheWriteTokens)
	if !ok || got != 17 {
		t.Fatalf("SumCounts()=%d,%t, want 17,true", got, ok)
	}

	bag[string(OpenInferenceCacheReadTokens)] = float64(-5)
	got, ok = SumCounts(bag, OpenInferenceCacheInputTokens, OpenInferenceCacheReadTokens, OpenInferenceCacheWriteTokens)
	if !ok || got != 12 {
		t.Fatalf("SumCounts() with negative=%d,%t, want 12,true", got, ok)
	}

	saturated := Bag{"a": int64(math.MaxInt64), "b": int64(1)}
	if got, _ := SumCounts(saturated, "a", "b"); got != math.MaxInt64 {
		t.Fatalf("SumCounts() overflow=%d, want %d", got, int64(math.MaxInt64))
	}

	if _, ok := SumCounts(Bag{}, OpenInferenceCacheInputTokens); ok {
		t.Fatal("SumCounts() ok=true on empty bag, want false")
	}
}

func TestCountSkipsNegativeAndOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bag    Bag
		want   int64
		wantOK bool
	}{
		{name: "first valid", bag: Bag{"a": float64(7), "b": float64(9)}, want: 7, wantOK: true},
		{name: "negative falls through", bag: Bag{"a": float64(-50), "b": "9"}, want: 9, wantOK: true},
		{name: "huge falls through", bag: Bag{"a": "1e30", "b": int64(3)}, want: 3, wantOK: true},
		{name: "only invalid", bag: Bag{"a": "1e30", "b": float64(-1)}, wantOK: false},
		{name: "zero is valid", bag: Bag{"a": "0"}, want: 0, wantOK: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Count(tt.bag, "a", "b")
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Count()=%d,%t, want %d,%t", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStringSkipsBlankValues(t *testing.T) {
	t.Parallel()

	bag := Bag{"a": "   ", "b": " openai "}
	got, ok := String(bag, "a", "b")
	if !ok || got != "openai" {
		t.Fatalf("String()=%q,%t, want openai,true", got, ok)
	}
}

func TestCoerceInt64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  any
		want   int64
		wantOK bool
	}{
		{name: "float64", input: float64(42.9), want: 42, wantOK: true},
		{name: "int", input: int(9), want: 9, wantOK: true},
		{name: "int64", input: int64(99), want: 99, wantOK: true},
		{name: "json number", input: json.Number("123"), want: 123, wantOK: true},
		{name: "string", input: "1000", want: 1000, wantOK: true},
		{name: "string fraction", input: " 12.5 ", want: 12, wantOK: true},
		{name: "string invalid", input: "abc", want: 0, wantOK: false},
		{name: "nan", input: math.NaN(), want: 0, wantOK: false},
		{name: "nan string", input: "NaN", want: 0, wantOK: false},
		{name: "inf", input: math.Inf(1), want: 0, wantOK: false},
		{name: "float above int64", input: float64(1e30), want: 0, wantOK: false},
		{name: "string above int64", input: "1e30", want: 0, wantOK: false},
		{name: "float below int64", input: float64(-1e19), want: 0, wantOK: false},
		{name: "max int64 string", input: "9223372036854775807", want: math.MaxInt64, wantOK: true},
		{name: "bool", input: true, want: 0, wantOK: false},
		{name: "nil", input: nil, want: 0, wantOK: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := CoerceInt64(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("CoerceInt64() ok=%t, want %t", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("CoerceInt64()=%d, want %d", got, tt.want)
			}
		})
	}
}

func TestCoerceBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  any
		want   bool
		wantOK bool
	}{
		{input: true, want: true, wantOK: true},
		{input: "FALSE", want: false, wantOK: true},
		{input: " true ", want: true, wantOK: true},
		{input: "1", want: false, wantOK: false},
		{input: float64(1), want: false, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := CoerceBool(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Fatalf("CoerceBool(%v)=%t,%t, want %t,%t", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestByPrefix(t *testing.T) {
	t.Parallel()

	bag := Bag{
		"gen_ai.prompt.0.role":     "user",
		"gen_ai.prompt.0.content":  "hi",
		"gen_ai.prompt":            "ignored",
		"gen_ai.prompts.0.role":    "ignored",
		"gen_ai.completion.0.role": "assistant",
	}
	got := ByPrefix(bag, GenAIPrompt)
	want := Bag{"0.role": "user", "0.content": "hi"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ByPrefix()=%v, want %v", got, want)
	}
	if got := ByPrefix(bag, "absent"); got != nil {
		t.Fatalf("ByPrefix(absent)=%v, want nil", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	got, err := DecodeJSON(`[{"role":"user"}]`)
	if err != nil {
		t.Fatalf("DecodeJSON() error: %v", err)
	}
	if want := []any{map[string]any{"role": "user"}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodeJSON()=%v, want %v", got, want)
	}

	structured := []any{"a"}
	got, err = DecodeJSON(structured)
	if err != nil || !reflect.DeepEqual(got, structured) {
		t.Fatalf("DecodeJSON(structured)=%v,%v, want passthrough", got, err)
	}

	if _, err := DecodeJSON(`{"broken"`); err == nil {
		t.Fatal("DecodeJSON() expected error for malformed json")
	}
	if _, err := DecodeJSON("  "); err == nil {
		t.Fatal("DecodeJSON() expected error for blank string")
	}
}

func TestSetFieldBuildsNestedValues(t *testing.T) {
	t.Parallel()

	var root any
	var err error
	for _, step := range []struct {
		path  string
		value any
	}{
		{path: "0.role", value: "assistant"},
		{path: "0.tool_calls.0.name", value: "search"},
		{path: "0.tool_calls.1.name", value: "fetch"},
		{path: "1.role", value: "tool"},
	} {
		root, err = SetField(root, step.path, step.value)
		if err != nil {
			t.Fatalf("SetField(%q) error: %v", step.path, err)
		}
	}

	want := []any{
		map[string]any{
			"role": "assistant",
			"tool_calls": []any{
				map[string]any{"name": "search"},
				map[string]any{"name": "fetch"},
			},
		},
		map[string]any{"role": "tool"},
	}
	if !reflect.DeepEqual(root, want) {
		t.Fatalf("SetField()=%v, want %v", root, want)
	}
	if !ValidateHoles(root) {
		t.Fatal("ValidateHoles()=false for gap-free reconstruction, want true")
	}
}

func TestSetFieldLimits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "depth at limit", path: "a.b.c.d.e.f.g.h.i.j", wantErr: nil},
		{name: "depth over limit", path: "a.b.c.d.e.f.g.h.i.j.k", wantErr: ErrPathTooDeep},
		{name: "index at limit", path: "items.100", wantErr: nil},
		{name: "index over limit", path: "items.101", wantErr: ErrIndexTooLarge},
		{name: "huge index", path: "items.1000000000", wantErr: ErrIndexTooLarge},
		{name: "overflowing index", path: "items.99999999999999999999999", wantErr: ErrIndexTooLarge},
		{name: "empty segment", path: "a..b", wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := SetField(nil, tt.path, "v")
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("SetField() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetField() error=%v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetFieldConflict(t *testing.T) {
	t.Parallel()

	root, err := SetField(nil, "a.0", "x")
	if err != nil {
		t.Fatalf("SetField() error: %v", err)
	}
	if _, err := SetField(root, "a.b", "y"); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("SetField() error=%v, want %v", err, ErrPathConflict)
	}

	root, err = SetField(nil, "content", "text")
	if err != nil {
		t.Fatalf("SetField() error: %v", err)
	}
	if _, err := SetField(root, "content.0.text", "y"); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("SetField() error=%v, want %v", err, ErrPathConflict)
	}
}

func TestValidateHolesDetectsGaps(t *testing.T) {
	t.Parallel()

	root, err := Unflatten(Bag{"1.role": "user", "1.content": "hello"})
	if err != nil {
		t.Fatalf("Unflatten() error: %v", err)
	}
	if ValidateHoles(root) {
		t.Fatal("ValidateHoles()=true with index 0 missing, want false")
	}

	root, err = Unflatten(Bag{"0.parts.2.text": "late"})
	if err != nil {
		t.Fatalf("Unflatten() error: %v", err)
	}
	if ValidateHoles(root) {
		t.Fatal("ValidateHoles()=true with nested gap, want false")
	}

	if !ValidateHoles(nil) {
		t.Fatal("ValidateHoles(nil)=false, want true")
	}
}

func TestUnflattenIsOrderIndependent(t *testing.T) {
	t.Parallel()

	bag := Bag{
		"2.role": "assistant",
		"0.role": "system",
		"1.role": "user",
	}
	for i := 0; i < 5; i++ {
		root, err := Unflatten(bag)
		if err != nil {
			t.Fatalf("Unflatten() error: %v", err)
		}
		items, ok := root.([]any)
		if !ok || len(items) != 3 {
			t.Fatalf("Unflatten()=%v, want 3 items", root)
		}
		if items[0].(map[string]any)["role"] != "system" {
			t.Fatalf("Unflatten()[0]=%v, want system", items[0])
		}
	}

	root, err := Unflatten(nil)
	if err != nil || root != nil {
		t.Fatalf("Unflatten(nil)=%v,%v, want nil,nil", root, err)
	}
}

func TestFromKeyValues(t *testing.T) {
	t.Parallel()

	bag := FromKeyValues([]attribute.KeyValue{
		GenAISystem.String("openai"),
		GenAIUsageInputTokens.Int(1000),
		GenAIRequestTemperature.Float64(0.2),
		attribute.Bool("stream", true),
		GenAIResponseFinishReasons.StringSlice([]string{"stop"}),
	})

	if got, _ := String(bag, GenAISystem); got != "openai" {
		t.Fatalf("provider=%q, want openai", got)
	}
	if got, _ := Int(bag, GenAIUsageInputTokens); got != 1000 {
		t.Fatalf("input tokens=%d, want 1000", got)
	}
	if got, _ := Float(bag, GenAIRequestTemperature); got != 0.2 {
		t.Fatalf("temperature=%v, want 0.2", got)
	}
	if got, _ := Bool(bag, "stream"); !got {
		t.Fatal("stream=false, want true")
	}
	if got := bag[string(GenAIResponseFinishReasons)]; !reflect.DeepEqual(got, []any{"stop"}) {
		t.Fatalf("finish reasons=%v, want [stop]", got)
	}
}

func TestJSONSkipsMalformedValues(t *testing.T) {
	t.Parallel()

	bag := Bag{
		"gen_ai.request.configuration": "{not json",
		"llm.invocation_parameters":    `{"temperature":0.2}`,
		"structured":                   []any{"a", "b"},
	}

	got, ok := JSON(bag, "gen_ai.request.configuration", "llm.invocation_parameters")
	if !ok {
		t.Fatal("JSON() ok=false, want true")
	}
	if want := map[string]any{"temperature": 0.2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("JSON()=%v, want %v", got, want)
	}

	got, ok = JSON(bag, attribute.Key("structured"))
	if !ok || !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Fatalf("JSON(structured)=%v,%v, want passthrough", got, ok)
	}

	if _, ok := JSON(bag, "gen_ai.request.configuration", "missing"); ok {
		t.Fatal("JSON() ok=true for malformed and missing keys, want false")
	}
}
