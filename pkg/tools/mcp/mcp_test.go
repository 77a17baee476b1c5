package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bruecke-ai/bruecke/pkg/tools"
)

// setupTestServer creates a test MCP server with tools and connects it to a
// client via in-memory transports. Returns the client ready for use.
func setupTestServer(t *testing.T, serverTools map[string]mcp.ToolHandler) *Client {
	t.Helper()

	server := mcp.NewServer(
		&mcp.Implementation{Name: "test-server", Version: "1.0.0"},
		nil,
	)

	for name, handler := range serverTools {
		server.AddTool(
			&mcp.Tool{
				Name:        name,
				Description: "Test tool: " + name,
				InputSchema: map[string]any{"type": "object"},
			},
			handler,
		)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := NewClient(ServerConfig{Name: "test-server"})
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestRegisterAll(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "sunny"}},
			}, nil
		},
		"get_time": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "12:00"}},
			}, nil
		},
	})

	reg := tools.NewRegistry()
	count, err := client.RegisterAll(context.Background(), reg)
	if err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if count != 2 || reg.Len() != 2 {
		t.Fatalf("registered = %d (registry %d), want 2", count, reg.Len())
	}

	names := map[string]bool{}
	for _, def := range reg.Definitions() {
		names[def.Name] = true
		if def.Parameters == nil {
			t.Errorf("tool %q missing parameter schema", def.Name)
		}
	}
	if !names["get_weather"] || !names["get_time"] {
		t.Errorf("registered tools = %v", names)
	}
}

func TestRegisteredToolExecutes(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					&mcp.TextContent{Text: "sunny"},
					&mcp.TextContent{Text: "22C"},
				},
			}, nil
		},
	})

	reg := tools.NewRegistry()
	if _, err := client.RegisterAll(context.Background(), reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	fn, ok := reg.Lookup("get_weather")
	if !ok {
		t.Fatal("get_weather not registered")
	}
	out, err := fn(context.Background(), map[string]any{"city": "Berlin"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != "sunny\n22C" {
		t.Errorf("output = %q", out)
	}
}

func TestToolErrorSurfaces(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"broken": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "backend unavailable"}},
			}, nil
		},
	})

	reg := tools.NewRegistry()
	if _, err := client.RegisterAll(context.Background(), reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	fn, _ := reg.Lookup("broken")
	_, err := fn(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "backend unavailable") {
		t.Errorf("err = %v, want tool error", err)
	}
}

func TestRegisterAllNotConnected(t *testing.T) {
	client := NewClient(ServerConfig{Name: "cold"})
	if _, err := client.RegisterAll(context.Background(), tools.NewRegistry()); err == nil {
		t.Error("RegisterAll succeeded without a session")
	}
}

func TestCreateTransportUnsupported(t *testing.T) {
	client := NewClient(ServerConfig{Name: "bad", Transport: "carrier-pigeon"})
	if _, err := client.createTransport(); err == nil {
		t.Error("createTransport accepted unsupported transport")
	}
}
