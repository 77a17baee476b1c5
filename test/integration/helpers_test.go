// Package integration provides end-to-end tests for the bridge.
//
// Tests run against a real bridge HTTP server backed by a scripted
// Responses API backend, both started in-process using net/http/httptest.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/bruecke-ai/bruecke/pkg/config"
	"github.com/bruecke-ai/bruecke/pkg/marker/memstore"
	"github.com/bruecke-ai/bruecke/pkg/tools"
	"github.com/bruecke-ai/bruecke/pkg/transport"
	"github.com/bruecke-ai/bruecke/pkg/upstream"
)

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the bridge server and mock backend for testing.
type TestEnvironment struct {
	Bridge  *httptest.Server
	Backend *httptest.Server
	client  *upstream.Client
}

// TestMain starts the mock backend and the bridge before running tests.
func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

func setupTestEnvironment() *TestEnvironment {
	backend := httptest.NewServer(http.HandlerFunc(handleMockResponses))

	client := upstream.NewClient(upstream.Config{
		BaseURL: backend.URL + "/v1",
		APIKey:  "test-key",
	})

	registry := tools.NewRegistry()
	registry.Register(tools.Definition{
		Name:        "echo",
		Description: "echo the text argument",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
	}, func(_ context.Context, args map[string]any) (string, error) {
		text, _ := args["text"].(string)
		return "echo:" + text, nil
	})

	cfg := config.Defaults()
	cfg.Upstream.BaseURL = backend.URL + "/v1"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := transport.NewHandler(&cfg, client, memstore.New(100), registry, logger)
	bridge := httptest.NewServer(handler.Handler())

	return &TestEnvironment{Bridge: bridge, Backend: backend, client: client}
}

// Teardown stops both servers.
func (e *TestEnvironment) Teardown() {
	e.Bridge.Close()
	e.client.Close()
	e.Backend.Close()
}

// postCompletions sends a chat-completions request to the bridge and returns
// the response with its body fully read.
func postCompletions(t *testing.T, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(testEnv.Bridge.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(body))
	if err != nil {
		t.Fatalf("posting request: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return resp, string(data)
}

// --- Scripted Responses API backend ---

type mockItem struct {
	Type    string      `json:"type"`
	Role    string      `json:"role,omitempty"`
	Content []mockBlock `json:"content,omitempty"`
	Output  string      `json:"output,omitempty"`
}

type mockBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func handleMockResponses(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/responses" {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Input  []mockItem `json:"input"`
		Tools  []any      `json:"tools"`
		Stream bool       `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	userText := ""
	toolOutput := ""
	for _, it := range req.Input {
		switch it.Type {
		case "message":
			if it.Role == "user" {
				for _, b := range it.Content {
					if b.Type == "input_text" {
						userText = strings.ToLower(b.Text)
					}
				}
			}
		case "function_call_output":
			toolOutput = it.Output
		}
	}

	emit := sseEmitter(w, req.Stream)

	switch {
	case strings.Contains(userText, "trigger error"):
		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "scripted backend failure"},
			})
			return
		}
		emit(map[string]any{
			"type":  "response.failed",
			"error": map[string]any{"message": "scripted backend failure"},
		})
	case toolOutput != "":
		finishText(w, emit, req.Stream, "The tool answered: "+toolOutput)
	case len(req.Tools) > 0 && strings.Contains(userText, "use the tool"):
		call := map[string]any{
			"type":      "function_call",
			"call_id":   "call_1",
			"name":      "echo",
			"arguments": `{"text":"hi"}`,
		}
		emit(map[string]any{"type": "response.output_item.done", "item": call})
		finish(w, emit, req.Stream, []any{call})
	default:
		finishText(w, emit, req.Stream, "Hello from the mock backend.")
	}

	if req.Stream {
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

// sseEmitter returns a function writing one SSE frame, or a no-op for batch
// requests (the batch reply is assembled in finish).
func sseEmitter(w http.ResponseWriter, stream bool) func(any) {
	if !stream {
		return func(any) {}
	}
	w.Header().Set("Content-Type", "text/event-stream")
	return func(payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func finishText(w http.ResponseWriter, emit func(any), stream bool, text string) {
	emit(map[string]any{"type": "response.output_text.delta", "delta": text})
	msg := map[string]any{
		"type": "message",
		"role": "assistant",
		"content": []any{
			map[string]any{"type": "output_text", "text": text},
		},
	}
	finish(w, emit, stream, []any{msg})
}

func finish(w http.ResponseWriter, emit func(any), stream bool, output []any) {
	usage := map[string]any{"input_tokens": 7, "output_tokens": 5, "total_tokens": 12}
	if stream {
		emit(map[string]any{
			"type":     "response.completed",
			"response": map[string]any{"output": output, "usage": usage},
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"output": output, "usage": usage})
}
