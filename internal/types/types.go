package types

import (
	"time"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeBackendStatus ErrorType = "backend_status"
	ErrorTypeBackendDecode ErrorType = "backend_decode"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeCircuitOpen   ErrorType = "circuit_open"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Config represents the application configuration
type Config struct {
	// Backend configuration
	BackendBaseURL            string        `json:"backend_base_url" env:"BACKEND_BASE_URL,default=http://127.0.0.1:5000"`
	BackendTimeout            time.Duration `json:"backend_timeout" env:"BACKEND_TIMEOUT,default=30s"`
	BackendRetryAttempts      int           `json:"backend_retry_attempts" env:"BACKEND_RETRY_ATTEMPTS,default=1"`
	BackendRetryDelay         time.Duration `json:"backend_retry_delay" env:"BACKEND_RETRY_DELAY,default=500ms"`
	BackendRateLimit          float64       `json:"backend_rate_limit" env:"BACKEND_RATE_LIMIT,default=5.0"`
	BackendRateBurst          int           `json:"backend_rate_burst" env:"BACKEND_RATE_BURST,default=10"`
	BackendBreakerMaxFailures int           `json:"backend_breaker_max_failures" env:"BACKEND_BREAKER_MAX_FAILURES,default=5"`
	BackendBreakerTimeout     time.Duration `json:"backend_breaker_timeout" env:"BACKEND_BREAKER_TIMEOUT,default=30s"`

	// Request defaults
	DefaultCountry     string `json:"default_country" env:"DEFAULT_COUNTRY,default=no"`
	DefaultSummaryLang string `json:"default_summary_lang" env:"DEFAULT_SUMMARY_LANG,default=en"`
	CatalogFile        string `json:"catalog_file" env:"CATALOG_FILE"`

	// Web UI configuration
	WebUIHost            string        `json:"webui_host" env:"WEBUI_HOST,default=localhost"`
	WebUIPort            int           `json:"webui_port" env:"WEBUI_PORT,default=8081"`
	WebUIShutdownTimeout time.Duration `json:"webui_shutdown_timeout" env:"WEBUI_SHUTDOWN_TIMEOUT,default=30s"`

	// Session configuration
	SessionSecret      string        `json:"-" env:"SESSION_SECRET"`
	SessionIdleTimeout time.Duration `json:"session_idle_timeout" env:"SESSION_IDLE_TIMEOUT,default=2h"`
	SessionMaxHistory  int           `json:"session_max_history" env:"SESSION_MAX_HISTORY,default=100"`
	SessionMaxSessions int           `json:"session_max_sessions" env:"SESSION_MAX_SESSIONS,default=1000"`

	// Stats configuration
	StatsEnabled bool   `json:"stats_enabled" env:"STATS_ENABLED,default=true"`
	StatsDBPath  string `json:"stats_db_path" env:"STATS_DB_PATH"`

	// MCP server configuration
	MCPServerHost string `json:"mcp_server_host" env:"MCP_SERVER_HOST,default=localhost"`
	MCPServerPort int    `json:"mcp_server_port" env:"MCP_SERVER_PORT,default=8090"`
	// MCPAllowedIPsStr is a comma-separated allowlist of IPs or CIDR blocks
	MCPAllowedIPsStr       string   `json:"-" env:"MCP_ALLOWED_IPS"`
	MCPAllowedIPs          []string `json:"mcp_allowed_ips"`
	MCPIPAuthEnableLogging bool     `json:"mcp_ip_auth_enable_logging" env:"MCP_IP_AUTH_ENABLE_LOGGING,default=false"`

	// OpenTelemetry configuration
	OTelEnabled              bool    `json:"otel_enabled" env:"OTEL_ENABLED,default=false"`
	OTelServiceName          string  `json:"otel_service_name" env:"OTEL_SERVICE_NAME,default=searchchat"`
	OTelExporterOTLPEndpoint string  `json:"otel_exporter_otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelExporterOTLPProtocol string  `json:"otel_exporter_otlp_protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL,default=http/protobuf"`
	OTelResourceAttributes   string  `json:"otel_resource_attributes" env:"OTEL_RESOURCE_ATTRIBUTES"`
	OTelTracesSampler        string  `json:"otel_traces_sampler" env:"OTEL_TRACES_SAMPLER,default=always_on"`
	OTelTracesSamplerArg     float64 `json:"otel_traces_sampler_arg" env:"OTEL_TRACES_SAMPLER_ARG,default=1.0"`
}
