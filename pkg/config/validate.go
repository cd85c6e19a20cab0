package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate checks the configuration for required fields and valid values.
// Missing provider keys are not errors here: the server starts degraded
// and reports them from /healthz. Commands that run queries directly call
// MissingKeys.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	switch c.LLM.Provider {
	case "anthropic":
	case "openai":
		if c.LLM.BaseURL == "" {
			errs = append(errs, errors.New("llm.base_url is required when llm.provider is \"openai\""))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be \"anthropic\" or \"openai\", got %q", c.LLM.Provider))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be > 0, got %d", c.LLM.MaxTokens))
	}

	switch c.Sandbox.Type {
	case "local":
		if c.Sandbox.WorkDir == "" {
			errs = append(errs, errors.New("sandbox.work_dir is required"))
		}
	case "remote":
		if c.Sandbox.Remote.URL == "" {
			errs = append(errs, errors.New("sandbox.remote.url is required when sandbox.type is \"remote\""))
		}
	case "kubernetes":
		if c.Sandbox.Kubernetes.Template == "" {
			errs = append(errs, errors.New("sandbox.kubernetes.template is required when sandbox.type is \"kubernetes\""))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.type must be \"local\", \"remote\" or \"kubernetes\", got %q", c.Sandbox.Type))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must be > 0, got %v", c.Sandbox.Timeout))
	}

	if c.Tools.Dir == "" {
		errs = append(errs, errors.New("tools.dir is required"))
	} else if c.Sandbox.Type != "local" && filepath.IsAbs(c.Tools.Dir) {
		errs = append(errs, errors.New("tools.dir must be relative for remote sandboxes"))
	}

	if c.MCP.Transport != "" && c.MCP.Transport != "stdio" {
		if err := c.MCP.Config.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mcp: %w", err))
		}
	}

	switch c.Pipeline.Variant {
	case "five-stage", "explorer":
	default:
		errs = append(errs, fmt.Errorf("pipeline.variant must be \"five-stage\" or \"explorer\", got %q", c.Pipeline.Variant))
	}

	switch c.Storage.Type {
	case "none", "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, errors.New("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" && c.Auth.JWT.Secret == "" {
			errs = append(errs, errors.New("auth.jwt.jwks_url or auth.jwt.secret is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.RateLimit.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.default_rpm must not be negative, got %d", c.Auth.RateLimit.DefaultRPM))
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
