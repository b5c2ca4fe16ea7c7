package connectors

import (
	"encoding/json"
	"testing"
)

func TestIntParamOrAcceptsAllNumericShapes(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
		want   int
	}{
		{"float64 from wire", map[string]any{"n": float64(7)}, 7},
		{"go int", map[string]any{"n": 20}, 20},
		{"int64", map[string]any{"n": int64(42)}, 42},
		{"json.Number", map[string]any{"n": json.Number("13")}, 13},
		{"missing", map[string]any{}, 5},
		{"wrong type", map[string]any{"n": "9"}, 5},
		{"non-integer json.Number", map[string]any{"n": json.Number("1.5e999")}, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := intParamOr(tc.params, "n", 5); got != tc.want {
				t.Fatalf("intParamOr = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFloatParamOrAcceptsAllNumericShapes(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
		want   float64
	}{
		{"float64", map[string]any{"f": 0.25}, 0.25},
		{"go int", map[string]any{"f": 3}, 3},
		{"json.Number", map[string]any{"f": json.Number("2.5")}, 2.5},
		{"missing", map[string]any{}, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := floatParamOr(tc.params, "f", 1.0); got != tc.want {
				t.Fatalf("floatParamOr = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStrParamOrFallsBackOnEmpty(t *testing.T) {
	if got := strParamOr(map[string]any{"s": ""}, "s", "def"); got != "def" {
		t.Fatalf("strParamOr = %q, want def", got)
	}
	if got := strParamOr(map[string]any{"s": "x"}, "s", "def"); got != "x" {
		t.Fatalf("strParamOr = %q, want x", got)
	}
}

func TestClampInt(t *testing.T) {
	if got := clampInt(0, 1, 100); got != 1 {
		t.Fatalf("clampInt low = %d", got)
	}
	if got := clampInt(500, 1, 100); got != 100 {
		t.Fatalf("clampInt high = %d", got)
	}
	if got := clampInt(50, 1, 100); got != 50 {
		t.Fatalf("clampInt mid = %d", got)
	}
}
