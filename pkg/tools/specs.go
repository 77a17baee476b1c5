package tools

import (
	"encoding/json"
	"log/slog"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/capability"
)

// SpecConfig controls which tool specs are attached to a request.
type SpecConfig struct {
	// Strict transforms function parameter schemas for strict calling.
	Strict bool

	// WebSearch enables the server-side web_search tool on capable models.
	WebSearch             bool
	WebSearchContextSize  string
	WebSearchUserLocation json.RawMessage

	// RemoteMCPServersJSON is a JSON array of remote MCP server
	// descriptors forwarded to the upstream as mcp tools.
	RemoteMCPServersJSON string

	// ReasoningEffort suppresses web search at minimal effort, where the
	// model will not invoke it anyway.
	ReasoningEffort string
}

// BuildSpecs assembles the tool list for one request: function tools from
// the registry, the server-side web_search tool, remote MCP descriptors,
// and any extra caller-supplied specs. Models without function calling get
// no tools at all. Duplicate (type, name) pairs keep the last occurrence.
func BuildSpecs(model string, cfg SpecConfig, reg *Registry, extra []api.ToolSpec) []api.ToolSpec {
	if !capability.Supports(capability.FeatureFunctionCalling, model) {
		return nil
	}

	var specs []api.ToolSpec

	for _, def := range reg.Definitions() {
		params := def.Parameters
		if cfg.Strict && params != nil {
			params = StrictSchema(params)
		}
		spec := api.ToolSpec{
			Type:        "function",
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		}
		if cfg.Strict {
			strict := true
			spec.Strict = &strict
		}
		specs = append(specs, spec)
	}

	if cfg.WebSearch &&
		capability.Supports(capability.FeatureWebSearchTool, model) &&
		cfg.ReasoningEffort != "minimal" {
		specs = append(specs, api.ToolSpec{
			Type:              "web_search",
			SearchContextSize: cfg.WebSearchContextSize,
			UserLocation:      cfg.WebSearchUserLocation,
		})
	}

	specs = append(specs, mcpSpecs(cfg.RemoteMCPServersJSON)...)
	specs = append(specs, extra...)

	return dedupeSpecs(specs)
}

// mcpSpec is the subset of a remote MCP server descriptor the upstream
// accepts; everything else in the configured JSON is discarded.
type mcpSpec struct {
	ServerLabel     string          `json:"server_label"`
	ServerURL       string          `json:"server_url"`
	RequireApproval json.RawMessage `json:"require_approval"`
	AllowedTools    json.RawMessage `json:"allowed_tools"`
	Headers         json.RawMessage `json:"headers"`
}

func mcpSpecs(configJSON string) []api.ToolSpec {
	if configJSON == "" {
		return nil
	}
	var raw []mcpSpec
	if err := json.Unmarshal([]byte(configJSON), &raw); err != nil {
		slog.Warn("ignoring malformed remote MCP server config", "error", err)
		return nil
	}
	var out []api.ToolSpec
	for i, s := range raw {
		if s.ServerLabel == "" || s.ServerURL == "" {
			slog.Warn("skipping remote MCP server without label or url",
				"index", i, "label", s.ServerLabel)
			continue
		}
		out = append(out, api.ToolSpec{
			Type:            "mcp",
			ServerLabel:     s.ServerLabel,
			ServerURL:       s.ServerURL,
			RequireApproval: s.RequireApproval,
			AllowedTools:    s.AllowedTools,
			Headers:         s.Headers,
		})
	}
	return out
}

// dedupeSpecs drops earlier duplicates of the same (type, name) pair so a
// later spec overrides an earlier one. Order of the survivors is preserved.
func dedupeSpecs(specs []api.ToolSpec) []api.ToolSpec {
	last := make(map[specKey]int, len(specs))
	for i, s := range specs {
		last[keyOf(s)] = i
	}
	out := make([]api.ToolSpec, 0, len(last))
	for i, s := range specs {
		if last[keyOf(s)] == i {
			out = append(out, s)
		}
	}
	return out
}

type specKey struct{ typ, name string }

func keyOf(s api.ToolSpec) specKey {
	name := s.Name
	if s.Type == "mcp" {
		name = s.ServerLabel
	}
	return specKey{s.Type, name}
}
