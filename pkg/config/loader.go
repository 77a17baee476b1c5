package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bruecke-ai/bruecke/pkg/tools/mcp"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, BRUECKE_CONFIG env, ./config.yaml, /etc/bruecke/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. BRUECKE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/bruecke/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("BRUECKE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/bruecke/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps BRUECKE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRUECKE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("BRUECKE_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("BRUECKE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BRUECKE_MAX_LOOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.MaxLoops = n
		}
	}
	if v, ok := envBool("BRUECKE_PERSIST_TOOL_RESULTS"); ok {
		cfg.Run.PersistToolResults = v
	}
	if v := os.Getenv("BRUECKE_PERSIST_REASONING"); v != "" {
		cfg.Run.PersistReasoning = v
	}
	if v := os.Getenv("BRUECKE_REASONING_SUMMARY"); v != "" {
		cfg.Run.ReasoningSummary = v
	}
	if v := os.Getenv("BRUECKE_TRUNCATION"); v != "" {
		cfg.Run.Truncation = v
	}
	if v := os.Getenv("BRUECKE_MAX_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.MaxToolCalls = n
		}
	}
	if v, ok := envBool("BRUECKE_STRICT_TOOLS"); ok {
		cfg.Tools.Strict = v
	}
	if v, ok := envBool("BRUECKE_WEB_SEARCH"); ok {
		cfg.Tools.WebSearch = v
	}
	if v := os.Getenv("BRUECKE_WEB_SEARCH_CONTEXT_SIZE"); v != "" {
		cfg.Tools.WebSearchContextSize = v
	}
	if v := os.Getenv("BRUECKE_WEB_SEARCH_USER_LOCATION"); v != "" {
		cfg.Tools.WebSearchUserLocation = v
	}
	if v := os.Getenv("BRUECKE_REMOTE_MCP_SERVERS"); v != "" {
		cfg.Tools.RemoteMCPServers = v
	}
	if v := os.Getenv("BRUECKE_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("BRUECKE_STORAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxSize = size
		}
	}
	if v := os.Getenv("BRUECKE_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("BRUECKE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := envBool("BRUECKE_DEBUG"); ok {
		cfg.Logging.Debug = v
	}

	// BRUECKE_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("BRUECKE_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err == nil && len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}
}

// envBool reads a boolean environment variable. The second return reports
// whether the variable was set to a parseable value.
func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]mcp.ServerConfig, error) {
	var servers []struct {
		Name      string            `json:"name"`
		URL       string            `json:"url"`
		Transport string            `json:"transport"`
		Headers   map[string]string `json:"headers"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	out := make([]mcp.ServerConfig, 0, len(servers))
	for _, s := range servers {
		out = append(out, mcp.ServerConfig{
			Name:      s.Name,
			URL:       s.URL,
			Transport: s.Transport,
			Headers:   s.Headers,
		})
	}
	return out, nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. The file wins only when the value field is empty.
func resolveFileReferences(cfg *Config) error {
	// upstream.api_key_file -> upstream.api_key
	if cfg.Upstream.APIKeyFile != "" && cfg.Upstream.APIKey == "" {
		val, err := readSecretFile(cfg.Upstream.APIKeyFile)
		if err != nil {
			return fmt.Errorf("upstream.api_key_file: %w", err)
		}
		cfg.Upstream.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
