package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, FINQUERY_CONFIG env, ./config.yaml, /etc/finquery/config.yaml)
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

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// The default stdio server takes the key on its command line.
	cfg.MCP.APIKey = cfg.Tools.AlphaVantageAPIKey

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// discoverConfigFile returns the first config file found, or "".
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("FINQUERY_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/finquery/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile parses path into cfg. Fields absent from the file keep
// their current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. The two
// provider keys keep their conventional names.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"ALPHA_VANTAGE_API_KEY":      &cfg.Tools.AlphaVantageAPIKey,
		"FINQUERY_LLM_PROVIDER":      &cfg.LLM.Provider,
		"FINQUERY_LLM_BASE_URL":      &cfg.LLM.BaseURL,
		"FINQUERY_MODEL":             &cfg.LLM.Model,
		"FINQUERY_SANDBOX":           &cfg.Sandbox.Type,
		"FINQUERY_SANDBOX_WORKDIR":   &cfg.Sandbox.WorkDir,
		"FINQUERY_SANDBOX_URL":       &cfg.Sandbox.Remote.URL,
		"FINQUERY_PYTHON":            &cfg.Sandbox.Interpreter,
		"FINQUERY_TOOLS_DIR":         &cfg.Tools.Dir,
		"FINQUERY_MCP_TRANSPORT":     &cfg.MCP.Transport,
		"FINQUERY_MCP_URL":           &cfg.MCP.URL,
		"FINQUERY_VARIANT":           &cfg.Pipeline.Variant,
		"FINQUERY_PROMPTS_DIR":       &cfg.Pipeline.PromptsDir,
		"FINQUERY_STORAGE":           &cfg.Storage.Type,
		"FINQUERY_POSTGRES_DSN":      &cfg.Storage.Postgres.DSN,
		"FINQUERY_AUTH_TYPE":         &cfg.Auth.Type,
		"FINQUERY_JWT_JWKS_URL":      &cfg.Auth.JWT.JWKSURL,
		"FINQUERY_JWT_ISSUER":        &cfg.Auth.JWT.Issuer,
		"FINQUERY_JWT_AUDIENCE":      &cfg.Auth.JWT.Audience,
		"FINQUERY_KUBERNETES_NS":     &cfg.Sandbox.Kubernetes.Namespace,
		"FINQUERY_SANDBOX_TEMPLATE":  &cfg.Sandbox.Kubernetes.Template,
		"FINQUERY_TOOL_GATEWAY_ADDR": &cfg.Tools.Gateway.Addr,
	}
	for name, field := range str {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	// The LLM key follows the provider: ANTHROPIC_API_KEY for anthropic,
	// OPENAI_API_KEY otherwise. FINQUERY_LLM_API_KEY works for both.
	keyVar := "OPENAI_API_KEY"
	if cfg.LLM.Provider == "anthropic" {
		keyVar = "ANTHROPIC_API_KEY"
	}
	for _, name := range []string{keyVar, "FINQUERY_LLM_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			cfg.LLM.APIKey = v
		}
	}

	if v := os.Getenv("FINQUERY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FINQUERY_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("FINQUERY_SANDBOX_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("FINQUERY_SANDBOX_TIMEOUT: %w", err)
		}
		cfg.Sandbox.Timeout = d
	}
	if v := os.Getenv("FINQUERY_STORAGE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FINQUERY_STORAGE_SIZE: %w", err)
		}
		cfg.Storage.MaxSize = size
	}

	// FINQUERY_API_KEYS: JSON array of API key entries.
	if v := os.Getenv("FINQUERY_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("FINQUERY_API_KEYS: %w", err)
		}
		cfg.Auth.APIKeys = keys
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// resolveFileReferences fills each value field from its _file field when
// the value is empty.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"llm.api_key_file", cfg.LLM.APIKeyFile, &cfg.LLM.APIKey},
		{"tools.alpha_vantage_api_key_file", cfg.Tools.AlphaVantageAPIKeyFile, &cfg.Tools.AlphaVantageAPIKey},
		{"tools.gateway.token_file", cfg.Tools.Gateway.TokenFile, &cfg.Tools.Gateway.Token},
		{"mcp.client_secret_file", cfg.MCP.ClientSecretFile, &cfg.MCP.Auth.ClientSecret},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, struct {
			name  string
			file  string
			value *string
		}{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile returns the file content with surrounding whitespace
// trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
