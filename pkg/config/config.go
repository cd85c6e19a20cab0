// Package config provides unified configuration for finquery.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (ANTHROPIC_API_KEY,
//     ALPHA_VANTAGE_API_KEY and the FINQUERY_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/finquery/pkg/toolclient"
)

// Config holds all configuration for finquery.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Tools         ToolsConfig         `yaml:"tools"`
	MCP           MCPConfig           `yaml:"mcp"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`                // default: 8000
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"` // default: 10s
	WriteTimeout      time.Duration `yaml:"write_timeout"`       // default: 5m
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`    // default: 30s
	MaxBodySize       int64         `yaml:"max_body_size"`       // default: 1 MiB
	MaxQueryLength    int           `yaml:"max_query_length"`    // default: 4096
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "anthropic" or "openai", default: "anthropic"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	APIKeyFile  string        `yaml:"api_key_file"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"` // default: 4096
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"` // default: 2m
}

// SandboxConfig selects where generated code runs.
type SandboxConfig struct {
	Type        string           `yaml:"type"`     // "local", "remote" or "kubernetes", default: "local"
	WorkDir     string           `yaml:"work_dir"` // default: "."
	Mode        string           `yaml:"mode"`     // default: "python"
	Interpreter string           `yaml:"interpreter"`
	Timeout     time.Duration    `yaml:"timeout"` // default: 30s
	Remote      RemoteConfig     `yaml:"remote"`
	Kubernetes  KubernetesConfig `yaml:"kubernetes"`
}

// RemoteConfig points at a fixed sandbox server.
type RemoteConfig struct {
	URL string `yaml:"url"`
}

// KubernetesConfig configures SandboxClaim-based sandbox acquisition.
type KubernetesConfig struct {
	Namespace    string        `yaml:"namespace"` // default: "default"
	Template     string        `yaml:"template"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // default: 2m
	Port         int           `yaml:"port"`          // default: 8080
}

// ToolsConfig holds the wrapper directory and the Alpha Vantage key.
type ToolsConfig struct {
	Dir                    string        `yaml:"dir"` // default: "servers/alphavantage"
	AlphaVantageAPIKey     string        `yaml:"alpha_vantage_api_key"`
	AlphaVantageAPIKeyFile string        `yaml:"alpha_vantage_api_key_file"`
	CallTimeout            time.Duration `yaml:"call_timeout"` // default: 30s
	Gateway                GatewayConfig `yaml:"gateway"`
}

// GatewayConfig configures the loopback tool gateway.
type GatewayConfig struct {
	Addr      string `yaml:"addr"` // default: "127.0.0.1:0"
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	// AdvertiseURL replaces the listen URL handed to sandboxes that cannot
	// reach loopback, such as remote sandbox servers.
	AdvertiseURL string `yaml:"advertise_url"`
}

// MCPConfig configures the MCP server connection behind the gateway.
type MCPConfig struct {
	toolclient.Config `yaml:",inline"`
	ClientSecretFile  string `yaml:"client_secret_file"`
}

// PipelineConfig holds pipeline settings.
type PipelineConfig struct {
	Variant    string `yaml:"variant"` // "five-stage" or "explorer", default: "five-stage"
	PromptsDir string `yaml:"prompts_dir"`
	// Registry loads descriptors from the tools dir for argument
	// validation and the coder pre-check. Default: true.
	Registry bool `yaml:"registry"`
}

// StorageConfig holds run history settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"` // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"` // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key      string   `yaml:"key" json:"key"`
	KeyFile  string   `yaml:"key_file" json:"key_file"`
	Subject  string   `yaml:"subject" json:"subject"`
	TenantID string   `yaml:"tenant_id" json:"tenant_id"`
	Tier     string   `yaml:"tier" json:"tier"`
	Scopes   []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig holds bearer token validation settings.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	Secret      string        `yaml:"secret"`
	SecretFile  string        `yaml:"secret_file"`
	TenantClaim string        `yaml:"tenant_claim"`
	TierClaim   string        `yaml:"tier_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig sets requests per minute. Zero DefaultRPM disables
// limiting.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// LoggingConfig is handed to debug.Init. FINQUERY_LOG_LEVEL,
// FINQUERY_LOG_FORMAT and FINQUERY_DEBUG take precedence.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma separated categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              8000,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      5 * time.Minute,
			ShutdownTimeout:   30 * time.Second,
			MaxBodySize:       1 << 20,
			MaxQueryLength:    4096,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Sandbox: SandboxConfig{
			Type:    "local",
			WorkDir: ".",
			Mode:    "python",
			Timeout: 30 * time.Second,
			Kubernetes: KubernetesConfig{
				Namespace:    "default",
				ReadyTimeout: 2 * time.Minute,
				Port:         8080,
			},
		},
		Tools: ToolsConfig{
			Dir:         "servers/alphavantage",
			CallTimeout: 30 * time.Second,
			Gateway:     GatewayConfig{Addr: "127.0.0.1:0"},
		},
		MCP: MCPConfig{
			Config: toolclient.Config{Name: "alphavantage", Transport: toolclient.TransportStdio},
		},
		Pipeline: PipelineConfig{
			Variant:  "five-stage",
			Registry: true,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// KeyChecks reports which required keys are present. Only the Anthropic
// provider requires an LLM key; OpenAI-compatible backends may run without
// one.
func (c *Config) KeyChecks() map[string]bool {
	checks := map[string]bool{
		"alpha_vantage_api_key": c.Tools.AlphaVantageAPIKey != "",
	}
	if c.LLM.Provider == "anthropic" {
		checks["anthropic_api_key"] = c.LLM.APIKey != ""
	}
	return checks
}

// MissingKeys lists the names of absent required keys.
func (c *Config) MissingKeys() []string {
	checks := c.KeyChecks()
	var missing []string
	for _, name := range []string{"anthropic_api_key", "alpha_vantage_api_key"} {
		if ok, checked := checks[name]; checked && !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
