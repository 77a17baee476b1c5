// Package transport serves the Chat Completions surface of the bridge over
// HTTP and carries the middleware stack.
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/config"
	"github.com/bruecke-ai/bruecke/pkg/marker"
	"github.com/bruecke-ai/bruecke/pkg/observability"
	"github.com/bruecke-ai/bruecke/pkg/run"
	"github.com/bruecke-ai/bruecke/pkg/sessionlog"
	"github.com/bruecke-ai/bruecke/pkg/sink"
	"github.com/bruecke-ai/bruecke/pkg/tools"
	"github.com/bruecke-ai/bruecke/pkg/translate"
)

// maxBodySize bounds inbound request bodies.
const maxBodySize = 10 << 20 // 10 MB

// Handler routes the bridge's HTTP surface: the Chat Completions endpoint,
// the health check, and the metrics scrape.
type Handler struct {
	cfg      *config.Config
	upstream run.Transport
	store    marker.Store
	registry *tools.Registry
	log      *slog.Logger
	mux      *http.ServeMux
}

// NewHandler creates the handler. store may be nil to disable marker
// persistence and resolution.
func NewHandler(cfg *config.Config, upstream run.Transport, store marker.Store, registry *tools.Registry, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		cfg:      cfg,
		upstream: upstream,
		store:    store,
		registry: registry,
		log:      log,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	if cfg.Observability.Metrics.Enabled {
		h.mux.Handle("GET "+cfg.Observability.Metrics.Path, observability.Handler())
	}
	return h
}

// Handler returns the routed handler wrapped in the default middleware
// stack (recovery, request id, logging).
func (h *Handler) Handler() http.Handler {
	return Chain(Recovery(h.log), RequestID(), Logging(h.log))(h.mux)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleChatCompletions runs one bridged call: decode, translate,
// pre-flight, orchestrate. The sink owns the response body from the moment
// the run starts.
func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeJSONError(w, api.NewValidationError("content_type", "Content-Type must be application/json"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req api.CompletionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, api.NewValidationError("body", "invalid request body: "+err.Error()))
		return
	}

	ctx := r.Context()
	chatID := r.Header.Get("X-Chat-ID")
	if chatID == "" {
		chatID = RequestIDFromContext(ctx)
	}
	tctx := translate.Context{
		UserID: r.Header.Get("X-User-ID"),
		ChatID: chatID,
	}

	// Session-scoped logger: everything logged during this call lands in
	// the buffer and surfaces as a citation when the run ends.
	buf := sessionlog.New(h.cfg.Logging.SessionLogLines)
	log := sessionlog.Logger(h.log, buf)

	translated, dropped, err := translate.New(h.store, log).Translate(ctx, &req, tctx)
	if err != nil {
		h.writeTranslateError(w, err)
		return
	}
	if len(dropped) > 0 {
		log.Info("translated request", "dropped_fields", strings.Join(dropped, ","))
	}

	applyPreflight(translated, h.cfg, h.registry)

	var snk sink.EventSink
	if req.Stream {
		snk = sink.NewSSE(w, translated.Model)
	} else {
		snk = sink.NewJSON(w, translated.Model)
	}

	opts := run.Options{
		MaxLoops:           h.cfg.Run.MaxLoops,
		PersistToolResults: h.cfg.Run.PersistToolResults,
		PersistReasoning:   h.cfg.Run.PersistReasoning,
		ChatID:             chatID,
		SessionLog:         buf,
	}
	orch := run.New(h.upstream, h.store, opts, log)
	if _, err := orch.Run(ctx, translated, h.registry, snk); err != nil {
		// The sink already delivered the failure in-band.
		log.Error("run failed", "error", err)
	}
}

// writeTranslateError maps translation failures to the error body, wrapping
// unexpected error types as server errors.
func (h *Handler) writeTranslateError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*api.APIError); ok {
		writeJSONError(w, apiErr)
		return
	}
	writeJSONError(w, api.NewServerError(err.Error()))
}
