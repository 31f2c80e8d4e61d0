// Package config provides server configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (PROXMOX_URL, PROXMOX_USER, ...)
//  2. Config file (~/.proxmox-mcp/config.yaml)
//  3. Default values
//
// The Proxmox password and API token secret are never logged and never
// written back to disk; they exist only in process memory.
//
// Error Handling: sentinel errors wrapped with fmt.Errorf("%w: details", ...)
// so callers can check with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingURL indicates PROXMOX_URL is not set.
	ErrMissingURL = errors.New("missing Proxmox URL")

	// ErrInvalidURL indicates PROXMOX_URL is not a parseable http(s) URL.
	ErrInvalidURL = errors.New("invalid Proxmox URL")

	// ErrMissingCredentials indicates neither password auth nor API token
	// auth is fully configured.
	ErrMissingCredentials = errors.New("missing Proxmox credentials")

	// ErrInvalidTransport indicates MCP_TRANSPORT is neither stdio nor http.
	ErrInvalidTransport = errors.New("invalid MCP transport")

	// ErrInvalidPort indicates MCP_PORT is out of range.
	ErrInvalidPort = errors.New("invalid MCP port")
)

// Transport values accepted for MCP_TRANSPORT.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds the server configuration.
type Config struct {
	// Proxmox API endpoint, e.g. https://pve.example.com:8006
	URL string `mapstructure:"proxmox_url"`

	// Password authentication (user@realm + password).
	User     string `mapstructure:"proxmox_user"`
	Password string `mapstructure:"proxmox_password"`

	// API token authentication (preferred over password when both are set).
	TokenID     string `mapstructure:"proxmox_token_id"`
	TokenSecret string `mapstructure:"proxmox_token_secret"`

	// VerifySSL controls TLS certificate verification against the Proxmox
	// API. Defaults to false because most homelab PVE hosts run with
	// self-signed certificates, matching the API client's own default.
	VerifySSL bool `mapstructure:"proxmox_verify_ssl"`

	// MCP transport: stdio (default) or http (streamable HTTP on Port).
	Transport string `mapstructure:"mcp_transport"`
	Port      int    `mapstructure:"mcp_port"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from defaults, the optional config file, and the
// environment, then validates it (fail-fast).
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".proxmox-mcp")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; env + defaults take over.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("proxmox_verify_ssl", false)
	viper.SetDefault("mcp_transport", TransportStdio)
	viper.SetDefault("mcp_port", 8000)
	viper.SetDefault("log_level", "info")
}

func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("proxmox_url", "PROXMOX_URL")
	mustBind("proxmox_user", "PROXMOX_USER")
	mustBind("proxmox_password", "PROXMOX_PASSWORD")
	mustBind("proxmox_token_id", "PROXMOX_TOKEN_ID")
	mustBind("proxmox_token_secret", "PROXMOX_TOKEN_SECRET")
	mustBind("proxmox_verify_ssl", "PROXMOX_VERIFY_SSL")
	mustBind("mcp_transport", "MCP_TRANSPORT")
	mustBind("mcp_port", "MCP_PORT")
	mustBind("log_level", "LOG_LEVEL")
}

// Validate checks the configuration for completeness and consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("%w: set PROXMOX_URL", ErrMissingURL)
	}

	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, c.URL)
	}

	if !c.hasPasswordAuth() && !c.hasTokenAuth() {
		return fmt.Errorf("%w: set PROXMOX_USER+PROXMOX_PASSWORD or PROXMOX_TOKEN_ID+PROXMOX_TOKEN_SECRET",
			ErrMissingCredentials)
	}

	switch strings.ToLower(c.Transport) {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("%w: %q (expected stdio or http)", ErrInvalidTransport, c.Transport)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	return nil
}

func (c *Config) hasPasswordAuth() bool {
	return c.User != "" && c.Password != ""
}

func (c *Config) hasTokenAuth() bool {
	return c.TokenID != "" && c.TokenSecret != ""
}

// LogValue implements slog.LogValuer so that a Config attached to a log
// record never exposes secrets.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", c.URL),
		slog.String("user", c.User),
		slog.Bool("token_auth", c.hasTokenAuth()),
		slog.Bool("verify_ssl", c.VerifySSL),
		slog.String("transport", c.Transport),
		slog.Int("port", c.Port),
	)
}
