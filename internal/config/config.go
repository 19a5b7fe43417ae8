package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/searchchat/internal/types"
	"github.com/joho/godotenv"
	env "github.com/netflix/go-env"
)

// Type alias for Config
type Config = types.Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config

	_, err := env.UnmarshalFromEnviron(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Parse MCPAllowedIPs from comma-separated string
	if config.MCPAllowedIPsStr != "" {
		ips := strings.Split(config.MCPAllowedIPsStr, ",")
		config.MCPAllowedIPs = make([]string, 0, len(ips))
		for _, ip := range ips {
			if trimmed := strings.TrimSpace(ip); trimmed != "" {
				config.MCPAllowedIPs = append(config.MCPAllowedIPs, trimmed)
			}
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadDotEnv reads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// validateConfig validates configuration values and adjusts them to safe ranges
func validateConfig(config *Config) error {
	if err := validateBackendConfig(config); err != nil {
		return fmt.Errorf("backend configuration validation failed: %w", err)
	}

	config.DefaultCountry = strings.ToLower(strings.TrimSpace(config.DefaultCountry))
	config.DefaultSummaryLang = strings.ToLower(strings.TrimSpace(config.DefaultSummaryLang))
	if !IsTwoLetterCode(config.DefaultCountry) {
		return fmt.Errorf("DEFAULT_COUNTRY must be a two-letter code, got %q", config.DefaultCountry)
	}
	if !IsTwoLetterCode(config.DefaultSummaryLang) {
		return fmt.Errorf("DEFAULT_SUMMARY_LANG must be a two-letter code, got %q", config.DefaultSummaryLang)
	}

	if config.WebUIPort < 1 || config.WebUIPort > 65535 {
		return fmt.Errorf("WEBUI_PORT must be between 1 and 65535")
	}
	if config.MCPServerPort < 1 || config.MCPServerPort > 65535 {
		return fmt.Errorf("MCP_SERVER_PORT must be between 1 and 65535")
	}
	if config.WebUIShutdownTimeout <= 0 {
		config.WebUIShutdownTimeout = 30 * time.Second
	}

	// Session limits
	if config.SessionIdleTimeout < time.Minute {
		config.SessionIdleTimeout = time.Minute
	}
	if config.SessionMaxHistory < 1 {
		config.SessionMaxHistory = 1
	}
	if config.SessionMaxHistory > 1000 {
		config.SessionMaxHistory = 1000
	}
	if config.SessionMaxSessions < 1 {
		config.SessionMaxSessions = 1
	}

	return nil
}

// validateBackendConfig validates backend-specific configuration
func validateBackendConfig(config *Config) error {
	config.BackendBaseURL = strings.TrimRight(strings.TrimSpace(config.BackendBaseURL), "/")
	if config.BackendBaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL cannot be empty")
	}

	parsedURL, err := url.Parse(config.BackendBaseURL)
	if err != nil {
		return fmt.Errorf("invalid BACKEND_BASE_URL format: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("BACKEND_BASE_URL scheme must be http or https")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL must include a valid host")
	}

	if config.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be greater than 0")
	}

	// Retry attempts are clamped rather than rejected
	if config.BackendRetryAttempts < 0 {
		config.BackendRetryAttempts = 0
	}
	if config.BackendRetryAttempts > 5 {
		config.BackendRetryAttempts = 5
	}
	if config.BackendRetryDelay <= 0 {
		config.BackendRetryDelay = 500 * time.Millisecond
	}

	if config.BackendRateLimit <= 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT must be greater than 0")
	}
	if config.BackendRateBurst <= 0 {
		return fmt.Errorf("BACKEND_RATE_BURST must be greater than 0")
	}

	if config.BackendBreakerMaxFailures < 1 {
		config.BackendBreakerMaxFailures = 1
	}
	if config.BackendBreakerTimeout <= 0 {
		config.BackendBreakerTimeout = 30 * time.Second
	}

	return nil
}

// IsTwoLetterCode reports whether code is exactly two ASCII letters
func IsTwoLetterCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}
