package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Upstream.BaseURL == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url is required"))
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Run.MaxLoops <= 0 {
		errs = append(errs, fmt.Errorf("run.max_loops must be > 0, got %d", c.Run.MaxLoops))
	}

	switch c.Run.PersistReasoning {
	case "", "conversation":
		// valid
	default:
		errs = append(errs, fmt.Errorf("run.persist_reasoning must be \"\" or \"conversation\", got %q", c.Run.PersistReasoning))
	}

	switch c.Run.Truncation {
	case "", "auto", "disabled":
		// valid
	default:
		errs = append(errs, fmt.Errorf("run.truncation must be \"auto\" or \"disabled\", got %q", c.Run.Truncation))
	}

	switch c.Tools.WebSearchContextSize {
	case "", "low", "medium", "high":
		// valid
	default:
		errs = append(errs, fmt.Errorf("tools.web_search_context_size must be \"low\", \"medium\", or \"high\", got %q", c.Tools.WebSearchContextSize))
	}

	if c.Tools.WebSearchUserLocation != "" && !json.Valid([]byte(c.Tools.WebSearchUserLocation)) {
		errs = append(errs, fmt.Errorf("tools.web_search_user_location must be valid JSON"))
	}
	if c.Tools.RemoteMCPServers != "" && !json.Valid([]byte(c.Tools.RemoteMCPServers)) {
		errs = append(errs, fmt.Errorf("tools.remote_mcp_servers must be valid JSON"))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}
