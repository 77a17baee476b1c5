package capability

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{"plain", "gpt-5", "gpt-5"},
		{"uppercase", "GPT-5-Mini", "gpt-5-mini"},
		{"host prefix", "openai_responses.gpt-4o", "gpt-4o"},
		{"nested prefix", "host.openai_responses.o3-mini", "o3-mini"},
		{"date suffix", "gpt-4o-2024-08-06", "gpt-4o"},
		{"dot in name survives", "gpt-4.1-mini", "gpt-4.1-mini"},
		{"whitespace", "  o3  ", "o3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.model); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

func TestBaseModel(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-5-thinking", "gpt-5"},
		{"gpt-5-thinking-mini-high", "gpt-5-mini"},
		{"gpt-5-auto", "gpt-5-chat-latest"},
		{"o3-mini-high", "o3-mini"},
		{"gpt-4o", "gpt-4o"},
		{"unknown-model", "unknown-model"},
	}
	for _, tt := range tests {
		if got := BaseModel(tt.model); got != tt.want {
			t.Errorf("BaseModel(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestAliasDefaults(t *testing.T) {
	got := AliasDefaults("gpt-5-thinking-minimal")
	want := map[string]any{"reasoning": map[string]any{"effort": "minimal"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AliasDefaults() = %v, want %v", got, want)
	}
	if AliasDefaults("gpt-5") != nil {
		t.Error("non-alias model returned defaults")
	}
	if AliasDefaults("gpt-5-thinking") != nil {
		t.Error("bare thinking alias returned defaults")
	}
}

func TestSupports(t *testing.T) {
	tests := []struct {
		feature Feature
		model   string
		want    bool
	}{
		{FeatureFunctionCalling, "gpt-5", true},
		{FeatureReasoningSummary, "o3-pro", false},
		{FeatureReasoningSummary, "o3-mini", true},
		{FeatureWebSearchTool, "gpt-4.1-nano", false},
		{FeatureWebSearchTool, "o4-mini", true},
		{FeatureDeepResearch, "o3-deep-research", true},
		{FeatureFunctionCalling, "chatgpt-4o-latest", false},
		// Aliases resolve before lookup.
		{FeatureReasoning, "gpt-5-thinking-high", true},
		{FeatureVerbosity, "gpt-5-thinking-nano", true},
		// Unknown models support nothing.
		{FeatureFunctionCalling, "made-up-model", false},
	}
	for _, tt := range tests {
		if got := Supports(tt.feature, tt.model); got != tt.want {
			t.Errorf("Supports(%q, %q) = %v, want %v", tt.feature, tt.model, got, tt.want)
		}
	}
}

func TestKnown(t *testing.T) {
	if !Known("gpt-5-thinking") {
		t.Error("alias to known base reported unknown")
	}
	if Known("llama-3") {
		t.Error("foreign model reported known")
	}
}

func TestOverlayFillsGapsOnly(t *testing.T) {
	base := map[string]any{
		"model":     "gpt-5",
		"reasoning": map[string]any{"effort": "high"},
	}
	defaults := map[string]any{
		"reasoning": map[string]any{"effort": "minimal", "summary": "auto"},
		"store":     false,
	}

	got := Overlay(base, defaults)

	reasoning := got["reasoning"].(map[string]any)
	if reasoning["effort"] != "high" {
		t.Errorf("effort = %v, want high (explicit value must win)", reasoning["effort"])
	}
	if reasoning["summary"] != "auto" {
		t.Errorf("summary = %v, want auto (gap must be filled)", reasoning["summary"])
	}
	if got["store"] != false {
		t.Errorf("store = %v, want false", got["store"])
	}
	// Inputs are never mutated.
	if _, ok := base["store"]; ok {
		t.Error("base map was mutated")
	}
}

func TestOverlayListDedup(t *testing.T) {
	base := map[string]any{
		"include": []any{"reasoning.encrypted_content", map[string]any{"a": float64(1)}},
	}
	defaults := map[string]any{
		"include": []any{
			"reasoning.encrypted_content",
			map[string]any{"a": float64(1)},
			"web_search_call.action.sources",
		},
	}

	got := Overlay(base, defaults)

	want := []any{
		"reasoning.encrypted_content",
		map[string]any{"a": float64(1)},
		"web_search_call.action.sources",
	}
	if !reflect.DeepEqual(got["include"], want) {
		t.Errorf("include = %v, want %v", got["include"], want)
	}
}
