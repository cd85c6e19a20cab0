package toolclient

import (
	"errors"
	"fmt"
	"time"
)

// Transport names.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
)

// Default stdio launch: the Alpha Vantage MCP server run through uvx.
const (
	DefaultCommand = "uvx"
	DefaultPackage = "av-mcp"

	// PlaceholderAPIKey is the value shipped in example env files.
	PlaceholderAPIKey = "your-alpha-vantage-key-here"
)

// Config describes how to reach the tool server.
type Config struct {
	// Name is used in logs and errors.
	Name string `yaml:"name"`

	// Transport is stdio (default), streamable-http or sse.
	Transport string `yaml:"transport"`

	// Command and Args start a stdio server. When Command is empty the
	// default "uvx av-mcp <APIKey>" is used.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Env is appended to the server process environment.
	Env []string `yaml:"env"`

	// APIKey is the Alpha Vantage key passed to the default command.
	APIKey string `yaml:"-"`

	// URL is the endpoint for HTTP transports.
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Auth    AuthConfig        `yaml:"auth"`

	// CallTimeout bounds a single tool call. Zero means no limit.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// AuthConfig configures OAuth for HTTP transports.
type AuthConfig struct {
	// Type is empty or "oauth_client_credentials".
	Type         string   `yaml:"type"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// Validate reports configuration problems before any connection attempt.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport {
	case "", TransportStdio:
		if c.Command == "" {
			switch c.APIKey {
			case "":
				errs = append(errs, errors.New("ALPHA_VANTAGE_API_KEY is required for the default tool server"))
			case PlaceholderAPIKey:
				errs = append(errs, errors.New("ALPHA_VANTAGE_API_KEY still holds the placeholder value"))
			}
		}
	case TransportStreamableHTTP, TransportSSE:
		if c.URL == "" {
			errs = append(errs, fmt.Errorf("url is required for transport %q", c.Transport))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported transport %q", c.Transport))
	}
	if c.Auth.Type != "" && c.Auth.Type != "oauth_client_credentials" {
		errs = append(errs, fmt.Errorf("unsupported auth type %q", c.Auth.Type))
	}
	return errors.Join(errs...)
}

func (c Config) name() string {
	if c.Name != "" {
		return c.Name
	}
	return "alphavantage"
}

// command returns the stdio command line.
func (c Config) command() (string, []string) {
	if c.Command != "" {
		return c.Command, c.Args
	}
	return DefaultCommand, []string{DefaultPackage, c.APIKey}
}
