// Package capability answers "does this model support X" questions from an
// immutable table of canonical model ids, and resolves pseudo-model aliases
// to a base model plus default request parameters.
package capability

import (
	"regexp"
	"strings"
)

// Feature names a model capability the bridge gates behavior on.
type Feature string

const (
	FeatureFunctionCalling  Feature = "function_calling"
	FeatureReasoning        Feature = "reasoning"
	FeatureReasoningSummary Feature = "reasoning_summary"
	FeatureWebSearchTool    Feature = "web_search_tool"
	FeatureImageGenTool     Feature = "image_gen_tool"
	FeatureVerbosity        Feature = "verbosity"
	FeatureDeepResearch     Feature = "deep_research"
)

type featureSet map[Feature]bool

func features(fs ...Feature) featureSet {
	set := make(featureSet, len(fs))
	for _, f := range fs {
		set[f] = true
	}
	return set
}

// specs maps canonical model ids to their feature sets. The table is closed:
// unknown models support nothing.
var specs = map[string]featureSet{
	"gpt-5": features(FeatureFunctionCalling, FeatureReasoning, FeatureReasoningSummary,
		FeatureWebSearchTool, FeatureImageGenTool, FeatureVerbosity),
	"gpt-5-mini": features(FeatureFunctionCalling, FeatureReasoning, FeatureReasoningSummary,
		FeatureWebSearchTool, FeatureImageGenTool, FeatureVerbosity),
	"gpt-5-nano": features(FeatureFunctionCalling, FeatureReasoning, FeatureReasoningSummary,
		FeatureWebSearchTool, FeatureImageGenTool, FeatureVerbosity),
	"gpt-5-chat-latest": features(FeatureFunctionCalling, FeatureWebSearchTool),

	"gpt-4.1":      features(FeatureFunctionCalling, FeatureWebSearchTool, FeatureImageGenTool),
	"gpt-4.1-mini": features(FeatureFunctionCalling, FeatureWebSearchTool, FeatureImageGenTool),
	"gpt-4.1-nano": features(FeatureFunctionCalling, FeatureImageGenTool),

	"gpt-4o":            features(FeatureFunctionCalling, FeatureWebSearchTool),
	"gpt-4o-mini":       features(FeatureFunctionCalling, FeatureWebSearchTool),
	"chatgpt-4o-latest": features(),

	"o3":      features(FeatureFunctionCalling, FeatureReasoning, FeatureReasoningSummary),
	"o3-mini": features(FeatureFunctionCalling, FeatureReasoning, FeatureReasoningSummary),
	"o3-pro":  features(FeatureFunctionCalling, FeatureReasoning),
	"o4-mini": features(FeatureFunctionCalling, FeatureReasoning, FeatureReasoningSummary,
		FeatureWebSearchTool),

	"o3-deep-research":      features(FeatureReasoning, FeatureWebSearchTool, FeatureDeepResearch),
	"o4-mini-deep-research": features(FeatureReasoning, FeatureWebSearchTool, FeatureDeepResearch),
}

// alias points a pseudo-model at a base model plus default request
// parameters merged in during translation.
type alias struct {
	base     string
	defaults map[string]any
}

func effortAlias(base, effort string) alias {
	return alias{base: base, defaults: map[string]any{
		"reasoning": map[string]any{"effort": effort},
	}}
}

var aliases = map[string]alias{
	"gpt-5-auto": {base: "gpt-5-chat-latest"},

	"gpt-5-thinking":         {base: "gpt-5"},
	"gpt-5-thinking-minimal": effortAlias("gpt-5", "minimal"),
	"gpt-5-thinking-high":    effortAlias("gpt-5", "high"),

	"gpt-5-thinking-mini":         {base: "gpt-5-mini"},
	"gpt-5-thinking-mini-minimal": effortAlias("gpt-5-mini", "minimal"),
	"gpt-5-thinking-mini-high":    effortAlias("gpt-5-mini", "high"),

	"gpt-5-thinking-nano":         {base: "gpt-5-nano"},
	"gpt-5-thinking-nano-minimal": effortAlias("gpt-5-nano", "minimal"),
	"gpt-5-thinking-nano-high":    effortAlias("gpt-5-nano", "high"),

	"o3-mini-high": effortAlias("o3-mini", "high"),
	"o4-mini-high": effortAlias("o4-mini", "high"),
}

var dateSuffix = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}$`)

// Normalize canonicalizes a model id: host prefix stripped, lowercased,
// trailing snapshot date removed.
func Normalize(model string) string {
	if _, rest, ok := strings.Cut(model, "openai_responses."); ok {
		model = rest
	}
	model = strings.ToLower(strings.TrimSpace(model))
	return dateSuffix.ReplaceAllString(model, "")
}

// BaseModel resolves a model id through the alias table to its canonical
// base model. Non-alias ids come back normalized but otherwise unchanged.
func BaseModel(model string) string {
	id := Normalize(model)
	if a, ok := aliases[id]; ok {
		return a.base
	}
	return id
}

// AliasDefaults returns the default parameters carried by an alias, or nil
// when the id is not an alias or carries none.
func AliasDefaults(model string) map[string]any {
	if a, ok := aliases[Normalize(model)]; ok {
		return a.defaults
	}
	return nil
}

// Known reports whether the (alias-resolved) model id is in the table.
func Known(model string) bool {
	_, ok := specs[BaseModel(model)]
	return ok
}

// Supports reports whether the model supports the given feature. Aliases
// resolve to their base model first; unknown models support nothing.
func Supports(feature Feature, model string) bool {
	set, ok := specs[BaseModel(model)]
	if !ok {
		return false
	}
	return set[feature]
}
