// Package upstream is the HTTP client for the Responses API. It submits
// translated requests and hands the raw SSE body (or batch payload) to the
// run loop's decoder.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/observability"
)

// Config holds the connection settings for the Responses API backend.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// Timeout bounds batch requests. Streaming requests are exempt and
	// rely on context cancellation instead.
	Timeout time.Duration

	// MaxIdleConns and MaxIdleConnsPerHost size the connection pool.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

// Client performs HTTP requests against the Responses API.
type Client struct {
	cfg Config

	once       sync.Once
	httpClient *http.Client
}

// NewClient creates a client for the given backend. The underlying HTTP
// client is created lazily on first use.
func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	return &Client{cfg: cfg}
}

// client returns the pooled HTTP client, creating it on first use.
func (c *Client) client() *http.Client {
	c.once.Do(func() {
		c.httpClient = &http.Client{
			Timeout: c.cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        c.cfg.MaxIdleConns,
				MaxIdleConnsPerHost: c.cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     75 * time.Second,
			},
		}
	})
	return c.httpClient
}

// Stream submits a streaming request and returns the response body carrying
// the SSE frames. The caller owns the body and must close it.
//
// The HTTP client timeout is not applied because a stream can legitimately
// last longer than any fixed timeout. Lifecycle control relies on context
// cancellation instead.
func (c *Client) Stream(ctx context.Context, req *api.ResponsesRequest) (io.ReadCloser, error) {
	reqCopy := *req
	reqCopy.Stream = true

	httpReq, err := c.newRequest(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// A client without timeout, sharing the pooled transport.
	streamClient := &http.Client{
		Transport: c.client().Transport,
	}

	start := time.Now()
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		observability.UpstreamRequests.WithLabelValues("stream", "network_error").Inc()
		return nil, api.NewTransportError(0, fmt.Sprintf("request failed: %s", err.Error()), err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		observability.UpstreamRequests.WithLabelValues("stream", observability.StatusClass(httpResp.StatusCode)).Inc()
		return nil, readErrorResponse(httpResp)
	}

	observability.UpstreamRequests.WithLabelValues("stream", "2xx").Inc()
	return &timedBody{ReadCloser: httpResp.Body, start: start}, nil
}

// Invoke submits a batch request and returns the complete response payload.
func (c *Client) Invoke(ctx context.Context, req *api.ResponsesRequest) ([]byte, error) {
	reqCopy := *req
	reqCopy.Stream = false

	httpReq, err := c.newRequest(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.client().Do(httpReq)
	if err != nil {
		observability.UpstreamRequests.WithLabelValues("batch", "network_error").Inc()
		return nil, api.NewTransportError(0, fmt.Sprintf("request failed: %s", err.Error()), err)
	}
	defer httpResp.Body.Close()

	observability.UpstreamRequests.WithLabelValues("batch", observability.StatusClass(httpResp.StatusCode)).Inc()
	observability.UpstreamLatency.WithLabelValues("batch").Observe(time.Since(start).Seconds())

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, readErrorResponse(httpResp)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, api.NewTransportError(0, fmt.Sprintf("reading response body: %s", err.Error()), err)
	}
	return body, nil
}

// newRequest builds the POST /responses request with auth headers.
func (c *Client) newRequest(ctx context.Context, req *api.ResponsesRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("marshaling request: %s", err.Error()))
	}

	url := c.cfg.BaseURL + "/responses"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("creating HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return httpReq, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}

// readErrorResponse drains a non-2xx response into a transport error,
// surfacing the backend's error message when the body carries one.
func readErrorResponse(resp *http.Response) error {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	msg := strings.TrimSpace(string(body))
	var wrapper struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		msg = wrapper.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return api.NewTransportError(resp.StatusCode, fmt.Sprintf("backend returned %d: %s", resp.StatusCode, msg), nil)
}

// timedBody records stream duration into the latency histogram on close.
type timedBody struct {
	io.ReadCloser
	start time.Time
	once  sync.Once
}

func (b *timedBody) Close() error {
	b.once.Do(func() {
		observability.UpstreamLatency.WithLabelValues("stream").Observe(time.Since(b.start).Seconds())
	})
	return b.ReadCloser.Close()
}
