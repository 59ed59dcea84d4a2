package config

import "fmt"

// DefaultAPIListen is the default listen address of the query API.
const DefaultAPIListen = ":9090"

// APIConfig contains all query API server configuration.
type APIConfig struct {
	Server APIServerConfig `yaml:"server" mapstructure:"server"`
	Auth   APIAuthConfig   `yaml:"auth,omitempty" mapstructure:"auth"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains bearer token authentication settings. Tokens are
// stored as bcrypt hashes; when none are configured reads are anonymous.
type APIAuthConfig struct {
	Tokens []APIToken `yaml:"tokens,omitempty" mapstructure:"tokens"`
}

// APIToken is a named bcrypt hash of a bearer token.
type APIToken struct {
	Name string `yaml:"name" mapstructure:"name"`
	Hash string `yaml:"hash" mapstructure:"hash"`
}

func (a *APIConfig) applyDefaults() {
	if a.Server.Listen == "" {
		a.Server.Listen = DefaultAPIListen
	}

	if a.Server.RateLimit.Enabled && a.Server.RateLimit.RequestsPerMinute <= 0 {
		a.Server.RateLimit.RequestsPerMinute = 120
	}
}

// ValidateAPI checks the api section.
func (c *Config) ValidateAPI() error {
	if c.API == nil {
		return fmt.Errorf("api section is required")
	}

	for i, tok := range c.API.Auth.Tokens {
		if tok.Name == "" {
			return fmt.Errorf("api.auth.tokens[%d]: name is required", i)
		}

		if tok.Hash == "" {
			return fmt.Errorf("api.auth.tokens[%d]: hash is required", i)
		}
	}

	return nil
}
