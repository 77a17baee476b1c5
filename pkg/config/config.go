// Package config provides unified configuration for the bruecke bridge.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (BRUECKE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/bruecke-ai/bruecke/pkg/tools/mcp"
)

// Config holds all configuration for the bridge.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Run           RunConfig           `yaml:"run"`
	Tools         ToolsConfig         `yaml:"tools"`
	Storage       StorageConfig       `yaml:"storage"`
	MCP           MCPConfig           `yaml:"mcp"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// UpstreamConfig holds Responses API backend settings.
type UpstreamConfig struct {
	BaseURL             string        `yaml:"base_url"`     // required
	APIKey              string        `yaml:"api_key"`      // optional
	APIKeyFile          string        `yaml:"api_key_file"` // _file variant for api_key
	Timeout             time.Duration `yaml:"timeout"`      // default: 120s, batch only
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
}

// RunConfig holds the tool-calling loop policy.
type RunConfig struct {
	MaxLoops           int    `yaml:"max_loops"`            // default: 10
	PersistToolResults bool   `yaml:"persist_tool_results"` // default: true
	PersistReasoning   string `yaml:"persist_reasoning"`    // "" or "conversation"
	ReasoningSummary   string `yaml:"reasoning_summary"`    // "", "auto", "concise", "detailed"
	Truncation         string `yaml:"truncation"`           // "", "auto", "disabled"
	MaxToolCalls       int    `yaml:"max_tool_calls"`       // 0 = unlimited
}

// ToolsConfig holds tool spec building settings.
type ToolsConfig struct {
	Strict                bool   `yaml:"strict"`                   // strict function schemas
	WebSearch             bool   `yaml:"web_search"`               // attach the web_search tool
	WebSearchContextSize  string `yaml:"web_search_context_size"`  // "low", "medium", "high"
	WebSearchUserLocation string `yaml:"web_search_user_location"` // JSON object
	RemoteMCPServers      string `yaml:"remote_mcp_servers"`       // JSON array of server descriptors
}

// StorageConfig holds marker store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"` // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// MCPConfig holds locally connected MCP server settings.
type MCPConfig struct {
	Servers []mcp.ServerConfig `yaml:"servers"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level           string `yaml:"level"` // "debug", "info", "warn", "error"
	Debug           bool   `yaml:"debug"` // shorthand for level: debug
	SessionLogLines int    `yaml:"session_log_lines"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout:             120 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
		},
		Run: RunConfig{
			MaxLoops:           10,
			PersistToolResults: true,
			ReasoningSummary:   "auto",
		},
		Tools: ToolsConfig{
			WebSearchContextSize: "medium",
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns:        25,
				MinConns:        5,
				MaxConnLifetime: 5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:           "info",
			SessionLogLines: 500,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
