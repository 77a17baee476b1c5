// Command mock-backend runs a deterministic Responses API server for
// conformance testing the bridge. It classifies each request and replies
// with a predictable scenario: plain text, a tool-call round, or an error,
// over both the streaming and the batch surface.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/responses", handleResponses)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type responsesRequest struct {
	Model  string `json:"model"`
	Input  []item `json:"input"`
	Tools  []any  `json:"tools,omitempty"`
	Stream bool   `json:"stream"`
}

type item struct {
	Type    string  `json:"type"`
	Role    string  `json:"role,omitempty"`
	Content []block `json:"content,omitempty"`
	CallID  string  `json:"call_id,omitempty"`
	Name    string  `json:"name,omitempty"`
	Output  string  `json:"output,omitempty"`
}

type block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// --- Handler ---

func handleResponses(w http.ResponseWriter, r *http.Request) {
	var req responsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	scenario := classify(&req)
	if req.Stream {
		writeStream(w, scenario)
		return
	}
	writeBatch(w, scenario)
}

// scenario is the scripted outcome of one request.
type scenario struct {
	text     string
	toolCall *item
	errMsg   string
}

// classify picks the scenario from the request content. A pending tool
// result always resolves to the final answer, so a bridge driving the loop
// terminates after one round.
func classify(req *responsesRequest) scenario {
	lastText := lastUserText(req)

	if strings.Contains(lastText, "trigger error") {
		return scenario{errMsg: "scripted backend failure"}
	}
	if hasToolOutput(req) {
		return scenario{text: "The tool answered: " + lastToolOutput(req)}
	}
	if len(req.Tools) > 0 && strings.Contains(lastText, "use the tool") {
		return scenario{toolCall: &item{
			Type:   "function_call",
			CallID: "call_mock_1",
			Name:   "echo",
		}}
	}
	return scenario{text: "Hello from the mock backend."}
}

func lastUserText(req *responsesRequest) string {
	for i := len(req.Input) - 1; i >= 0; i-- {
		it := req.Input[i]
		if it.Type != "message" || it.Role != "user" {
			continue
		}
		var text string
		for _, b := range it.Content {
			if b.Type == "input_text" {
				text += b.Text
			}
		}
		return strings.ToLower(text)
	}
	return ""
}

func hasToolOutput(req *responsesRequest) bool {
	for _, it := range req.Input {
		if it.Type == "function_call_output" {
			return true
		}
	}
	return false
}

func lastToolOutput(req *responsesRequest) string {
	out := ""
	for _, it := range req.Input {
		if it.Type == "function_call_output" {
			out = it.Output
		}
	}
	return out
}

// --- Streaming surface ---

func writeStream(w http.ResponseWriter, s scenario) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	emit := func(payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if s.errMsg != "" {
		emit(map[string]any{
			"type":  "response.failed",
			"error": map[string]any{"message": s.errMsg},
		})
		fmt.Fprint(w, "data: [DONE]\n\n")
		return
	}

	var output []any
	if s.toolCall != nil {
		call := map[string]any{
			"type":      "function_call",
			"call_id":   s.toolCall.CallID,
			"name":      s.toolCall.Name,
			"arguments": `{"text":"hi"}`,
		}
		emit(map[string]any{"type": "response.output_item.added", "item": call})
		emit(map[string]any{"type": "response.output_item.done", "item": call})
		output = append(output, call)
	} else {
		// Deliver the text word by word, the way a real stream would.
		words := strings.SplitAfter(s.text, " ")
		for _, word := range words {
			emit(map[string]any{"type": "response.output_text.delta", "delta": word})
		}
		output = append(output, map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{
				map[string]any{"type": "output_text", "text": s.text},
			},
		})
	}

	emit(map[string]any{
		"type": "response.completed",
		"response": map[string]any{
			"output": output,
			"usage": map[string]any{
				"input_tokens":  7,
				"output_tokens": 5,
				"total_tokens":  12,
			},
		},
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// --- Batch surface ---

func writeBatch(w http.ResponseWriter, s scenario) {
	if s.errMsg != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": s.errMsg},
		})
		return
	}

	var output []any
	if s.toolCall != nil {
		output = append(output, map[string]any{
			"type":      "function_call",
			"call_id":   s.toolCall.CallID,
			"name":      s.toolCall.Name,
			"arguments": `{"text":"hi"}`,
		})
	} else {
		output = append(output, map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{
				map[string]any{"type": "output_text", "text": s.text},
			},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "resp_mock",
		"object": "response",
		"output": output,
		"usage": map[string]any{
			"input_tokens":  7,
			"output_tokens": 5,
			"total_tokens":  12,
		},
	})
}
