package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"data team"`, "data team"},
		{"integer", `42`, "42"},
		{"float", `3.5`, "3.5"},
		{"boolean", `true`, "true"},
		{"null", `null`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringValue(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("FlexibleStringValue(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFlexibleFloatValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"number", `0.85`, 0.85},
		{"integer", `1`, 1},
		{"quoted number", `"0.85"`, 0.85},
		{"quoted with spaces", `" 0.7 "`, 0.7},
		{"null", `null`, 0},
		{"empty", ``, 0},
		{"garbage", `"high"`, 0},
		{"object", `{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleFloatValue(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("FlexibleFloatValue(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
