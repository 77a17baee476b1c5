package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

func testRequest() *api.ResponsesRequest {
	return &api.ResponsesRequest{
		Model: "gpt-5",
		Input: []api.Item{api.NewUserTextItem("hello")},
	}
}

func TestStream(t *testing.T) {
	var gotAuth, gotAccept string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"response.completed\",\"response\":{}}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "sk-test"})
	defer client.Close()

	body, err := client.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if !strings.Contains(string(data), "[DONE]") {
		t.Errorf("stream body = %q", data)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotBody["stream"] != true {
		t.Error("stream flag not forced on")
	}
}

func TestStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "invalid api key"}}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "bad"})
	defer client.Close()

	_, err := client.Stream(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Stream succeeded against 401")
	}

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *api.APIError", err)
	}
	if apiErr.Type != api.ErrorTypeTransport {
		t.Errorf("type = %q", apiErr.Type)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "invalid api key") {
		t.Errorf("message = %q, backend message lost", apiErr.Message)
	}
}

func TestInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] == true {
			t.Error("batch request carries stream flag")
		}
		_, _ = io.WriteString(w, `{"id": "resp_1", "output": []}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	defer client.Close()

	payload, err := client.Invoke(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(string(payload), "resp_1") {
		t.Errorf("payload = %q", payload)
	}
}

func TestInvokeNetworkError(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	defer client.Close()

	_, err := client.Invoke(context.Background(), testRequest())
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeTransport {
		t.Errorf("err = %v, want transport error", err)
	}
}

func TestStreamContextCancel(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	client := NewClient(Config{BaseURL: server.URL})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Stream(ctx, testRequest()); err == nil {
		t.Error("Stream ignored cancelled context")
	}
}
