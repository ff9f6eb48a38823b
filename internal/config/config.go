// ABOUTME: Configuration loading and parsing for genie-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/genie-gateway/internal/coordinator"
	"github.com/2389/genie-gateway/internal/genie"
)

// Config represents the complete genie-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Genie    GenieConfig    `yaml:"genie"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the audit ledger location. An empty path disables the
// ledger entirely.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables
// API authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// GenieConfig holds the two data-query space endpoints.
type GenieConfig struct {
	Sales    SpaceConfig `yaml:"sales"`
	Customer SpaceConfig `yaml:"customer"`
}

// SpaceConfig holds one Genie space endpoint.
type SpaceConfig struct {
	BaseURL string `yaml:"base_url"`
	SpaceID string `yaml:"space_id"`
	Token   string `yaml:"token"`

	Timeout      time.Duration `yaml:"-"`
	PollInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw      string `yaml:"timeout"`
	PollIntervalRaw string `yaml:"poll_interval"`
}

// ClientConfig converts the parsed space settings into a genie client config.
func (s *SpaceConfig) ClientConfig() genie.Config {
	return genie.Config{
		BaseURL:      s.BaseURL,
		SpaceID:      s.SpaceID,
		Token:        s.Token,
		Timeout:      s.Timeout,
		PollInterval: s.PollInterval,
	}
}

// LLMConfig holds the model endpoint configuration.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`

	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// RuntimeConfig converts the parsed model settings into a coordinator config.
func (l *LLMConfig) RuntimeConfig() coordinator.Config {
	return coordinator.Config{
		BaseURL:     l.BaseURL,
		APIKey:      l.APIKey,
		Model:       l.Model,
		Temperature: l.Temperature,
		Timeout:     l.Timeout,
	}
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Genie.Sales.BaseURL == "" || c.Genie.Sales.SpaceID == "" {
		return fmt.Errorf("genie.sales.base_url and genie.sales.space_id are required")
	}
	if c.Genie.Customer.BaseURL == "" || c.Genie.Customer.SpaceID == "" {
		return fmt.Errorf("genie.customer.base_url and genie.customer.space_id are required")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Genie.Sales.TimeoutRaw, "genie.sales.timeout", &cfg.Genie.Sales.Timeout},
		{cfg.Genie.Sales.PollIntervalRaw, "genie.sales.poll_interval", &cfg.Genie.Sales.PollInterval},
		{cfg.Genie.Customer.TimeoutRaw, "genie.customer.timeout", &cfg.Genie.Customer.Timeout},
		{cfg.Genie.Customer.PollIntervalRaw, "genie.customer.poll_interval", &cfg.Genie.Customer.PollInterval},
		{cfg.LLM.TimeoutRaw, "llm.timeout", &cfg.LLM.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
