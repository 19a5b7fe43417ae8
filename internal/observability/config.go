package observability

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/searchchat/internal/types"
)

const (
	defaultServiceName     = "searchchat"
	protocolHTTPProtobuf   = "http/protobuf"
	protocolGRPC           = "grpc"
	resourceServiceNameKey = "service.name"
	defaultMetricInterval  = 60 * time.Second
)

// Config holds the OpenTelemetry settings derived from the application config.
type Config struct {
	Enabled            bool
	ServiceName        string
	ServiceVersion     string
	Endpoint           string
	Protocol           string
	ResourceAttributes map[string]string
	Sampler            string
	SamplerArg         float64
	MetricInterval     time.Duration
}

// LoadConfig resolves and validates the observability settings in cfg.
func LoadConfig(cfg *types.Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: nil root configuration provided")
	}

	attrs, err := parseResourceAttributes(cfg.OTelResourceAttributes)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to parse resource attributes: %w", err)
	}

	c := &Config{
		Enabled:            cfg.OTelEnabled,
		ServiceName:        strings.TrimSpace(cfg.OTelServiceName),
		Endpoint:           strings.TrimSpace(cfg.OTelExporterOTLPEndpoint),
		Protocol:           strings.ToLower(strings.TrimSpace(cfg.OTelExporterOTLPProtocol)),
		ResourceAttributes: attrs,
		Sampler:            strings.ToLower(strings.TrimSpace(cfg.OTelTracesSampler)),
		SamplerArg:         cfg.OTelTracesSamplerArg,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate fills defaults and checks the exporter settings when enabled.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("observability: config is nil")
	}

	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.Protocol == "" {
		c.Protocol = protocolHTTPProtobuf
	}
	if c.Sampler == "" {
		c.Sampler = "always_on"
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = defaultMetricInterval
	}
	if c.ResourceAttributes == nil {
		c.ResourceAttributes = make(map[string]string)
	}
	if _, ok := c.ResourceAttributes[resourceServiceNameKey]; !ok {
		c.ResourceAttributes[resourceServiceNameKey] = c.ServiceName
	}

	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return fmt.Errorf("observability: OTEL_EXPORTER_OTLP_ENDPOINT is required when OpenTelemetry is enabled")
	}
	if _, err := resolveEndpoint(c.Protocol, c.Endpoint); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	if c.SamplerArg < 0 {
		return fmt.Errorf("observability: traces sampler argument must be non-negative")
	}
	if c.Sampler == "traceidratio" && (c.SamplerArg <= 0 || c.SamplerArg > 1) {
		return fmt.Errorf("observability: traces sampler argument must be in (0, 1] for traceidratio")
	}

	return nil
}

// parseResourceAttributes parses "k1=v1,k2=v2"
func parseResourceAttributes(input string) (map[string]string, error) {
	attrs := make(map[string]string)
	for _, pair := range strings.Split(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid resource attribute %q", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("resource attribute key cannot be empty")
		}
		attrs[key] = strings.TrimSpace(value)
	}
	return attrs, nil
}

// endpoint is a resolved OTLP collector address
type endpoint struct {
	protocol string
	// target is a full URL for http/protobuf and host:port for grpc
	target   string
	insecure bool
}

// resolveEndpoint checks raw against protocol and normalizes it
func resolveEndpoint(protocol, raw string) (endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return endpoint{}, fmt.Errorf("endpoint cannot be empty")
	}

	switch protocol {
	case protocolHTTPProtobuf:
		parsed, err := url.Parse(raw)
		if err != nil {
			return endpoint{}, fmt.Errorf("invalid OTLP endpoint: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return endpoint{}, fmt.Errorf("OTLP endpoint must use http or https with http/protobuf")
		}
		if parsed.Host == "" {
			return endpoint{}, fmt.Errorf("OTLP endpoint must include a host")
		}
		return endpoint{protocol: protocol, target: raw, insecure: parsed.Scheme == "http"}, nil

	case protocolGRPC:
		if !strings.Contains(raw, "://") {
			if !strings.Contains(raw, ":") {
				return endpoint{}, fmt.Errorf("OTLP gRPC endpoint should be host:port")
			}
			return endpoint{protocol: protocol, target: raw, insecure: true}, nil
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return endpoint{}, fmt.Errorf("invalid OTLP gRPC endpoint: %w", err)
		}
		if parsed.Host == "" {
			return endpoint{}, fmt.Errorf("OTLP gRPC endpoint must include a host")
		}
		switch parsed.Scheme {
		case "http", "grpc":
			return endpoint{protocol: protocol, target: parsed.Host, insecure: true}, nil
		case "https", "grpcs":
			return endpoint{protocol: protocol, target: parsed.Host}, nil
		default:
			return endpoint{}, fmt.Errorf("unsupported OTLP gRPC scheme %q", parsed.Scheme)
		}

	default:
		return endpoint{}, fmt.Errorf("unsupported OTLP exporter protocol %q", protocol)
	}
}

// signalURL returns the http/protobuf URL for a signal path such as /v1/traces.
// An existing signal suffix is kept; query strings are preserved.
func (e endpoint) signalURL(signal string) (string, error) {
	parsed, err := url.Parse(e.target)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	signal = "/" + strings.Trim(signal, "/")
	base := strings.TrimSuffix(parsed.Path, "/")
	if !strings.HasSuffix(base, signal) {
		base += signal
	}
	parsed.Path = base
	return parsed.String(), nil
}
