package transport

import (
	"encoding/json"
	"strings"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/capability"
	"github.com/bruecke-ai/bruecke/pkg/config"
	"github.com/bruecke-ai/bruecke/pkg/run"
	"github.com/bruecke-ai/bruecke/pkg/tools"
)

// applyPreflight finalizes a translated request with deployment policy:
// the tool list, reasoning summary, include directives, and the verbosity
// regenerate shortcut. The bridge replays conversation state itself, so
// upstream storage is always off.
func applyPreflight(req *api.ResponsesRequest, cfg *config.Config, reg *tools.Registry) {
	effort := ""
	if req.Reasoning != nil {
		effort = req.Reasoning.Effort
	}

	specCfg := tools.SpecConfig{
		Strict:               cfg.Tools.Strict,
		WebSearch:            cfg.Tools.WebSearch,
		WebSearchContextSize: cfg.Tools.WebSearchContextSize,
		RemoteMCPServersJSON: cfg.Tools.RemoteMCPServers,
		ReasoningEffort:      effort,
	}
	if cfg.Tools.WebSearchUserLocation != "" {
		specCfg.WebSearchUserLocation = json.RawMessage(cfg.Tools.WebSearchUserLocation)
	}
	req.Tools = tools.BuildSpecs(req.Model, specCfg, reg, nil)

	if cfg.Run.ReasoningSummary != "" && capability.Supports(capability.FeatureReasoningSummary, req.Model) {
		if req.Reasoning == nil {
			req.Reasoning = &api.ReasoningConfig{}
		}
		if req.Reasoning.Summary == "" {
			req.Reasoning.Summary = cfg.Run.ReasoningSummary
		}
	}

	if cfg.Run.Truncation != "" {
		req.Truncation = cfg.Run.Truncation
	}
	if cfg.Run.MaxToolCalls > 0 {
		n := cfg.Run.MaxToolCalls
		req.MaxToolCalls = &n
	}

	storeOff := false
	req.Store = &storeOff

	var include []string
	if cfg.Run.PersistReasoning == run.PersistReasoningConversation &&
		capability.Supports(capability.FeatureReasoning, req.Model) {
		include = append(include, "reasoning.encrypted_content")
	}
	for _, t := range req.Tools {
		if t.Type == "web_search" {
			include = append(include, "web_search_call.action.sources")
			break
		}
	}
	req.Include = include

	applyVerbosityDirective(req)
}

// verbosityDirectives maps regenerate shortcuts to verbosity levels.
var verbosityDirectives = map[string]string{
	"add details":  "high",
	"more concise": "low",
}

// applyVerbosityDirective pops a trailing "add details" / "more concise"
// user message and turns it into a text.verbosity setting, so a regenerate
// request rewrites the previous answer instead of answering the directive.
func applyVerbosityDirective(req *api.ResponsesRequest) {
	if !capability.Supports(capability.FeatureVerbosity, req.Model) {
		return
	}
	if len(req.Input) == 0 {
		return
	}
	last := req.Input[len(req.Input)-1]
	if last.Type != "message" || last.Role != "user" {
		return
	}

	var text string
	for _, b := range last.Content {
		if b.Type == "input_text" {
			text += b.Text
		}
	}
	verbosity, ok := verbosityDirectives[strings.ToLower(strings.TrimSpace(text))]
	if !ok {
		return
	}

	req.Text = &api.TextConfig{Verbosity: verbosity}
	req.Input = req.Input[:len(req.Input)-1]
}
