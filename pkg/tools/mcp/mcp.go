// Package mcp connects locally configured MCP servers to the tool registry.
// Discovered tools become ordinary registry entries, so the run loop invokes
// them exactly like native functions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bruecke-ai/bruecke/pkg/tools"
)

// ServerConfig describes one MCP server connection.
type ServerConfig struct {
	// Name identifies the server in logs and error messages.
	Name string `yaml:"name"`

	// URL is the server endpoint.
	URL string `yaml:"url"`

	// Transport selects the connection type: "sse" or "streamable-http"
	// (the default).
	Transport string `yaml:"transport"`

	// Headers are added to every request to the server.
	Headers map[string]string `yaml:"headers"`
}

// Client wraps one MCP server session.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession
}

// NewClient creates a client for the given server configuration. Call
// Connect to establish the session.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the MCP session, performing the protocol handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport establishes the session over the given transport.
// When transport is nil, one is created from the server configuration.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "bruecke",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

// createTransport creates an MCP transport based on the configuration.
func (c *Client) createTransport() (mcp.Transport, error) {
	httpClient := c.buildHTTPClient()

	switch c.cfg.Transport {
	case "sse":
		transport := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// buildHTTPClient returns an HTTP client injecting the configured headers,
// or nil when none are configured.
func (c *Client) buildHTTPClient() *http.Client {
	if len(c.cfg.Headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: c.cfg.Headers,
		},
	}
}

// headerTransport adds static headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// RegisterAll discovers the server's tools and registers each one in the
// registry as a callable backed by the session. Returns the number of
// registered tools.
func (c *Client) RegisterAll(ctx context.Context, reg *tools.Registry) (int, error) {
	if c.session == nil {
		return 0, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	count := 0
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return count, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		def, convErr := convertTool(tool)
		if convErr != nil {
			return count, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, convErr)
		}
		reg.Register(def, c.callFunc(tool.Name))
		count++
	}
	return count, nil
}

// callFunc returns a registry callable executing the named tool over the
// session.
func (c *Client) callFunc(name string) tools.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		})
		if err != nil {
			return "", fmt.Errorf("MCP tool call: %w", err)
		}
		output := textContent(result)
		if result.IsError {
			return "", fmt.Errorf("MCP tool reported error: %s", output)
		}
		return output, nil
	}
}

// Close closes the MCP session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// convertTool converts an MCP tool descriptor to a registry definition.
func convertTool(t *mcp.Tool) (tools.Definition, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return tools.Definition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}
	return tools.Definition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}, nil
}

// textContent concatenates the text blocks of a tool result.
func textContent(result *mcp.CallToolResult) string {
	var out string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
