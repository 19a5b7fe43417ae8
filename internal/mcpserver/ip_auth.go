package mcpserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const clientIPContextKey contextKey = "client_ip"

// IPAuthMiddleware restricts the MCP endpoint to an allowlist of IPs and
// CIDR blocks
type IPAuthMiddleware struct {
	allowedNets   []*net.IPNet
	enableLogging bool
	logger        *log.Logger
}

// NewIPAuthMiddleware parses allowedIPs, each an IP address or CIDR block
func NewIPAuthMiddleware(allowedIPs []string, enableLogging bool, logger *log.Logger) (*IPAuthMiddleware, error) {
	if logger == nil {
		logger = log.Default()
	}

	middleware := &IPAuthMiddleware{
		allowedNets:   make([]*net.IPNet, 0, len(allowedIPs)),
		enableLogging: enableLogging,
		logger:        logger,
	}

	for _, ipStr := range allowedIPs {
		ipStr = strings.TrimSpace(ipStr)
		if ipStr == "" {
			continue
		}
		network, err := parseCIDROrIP(ipStr)
		if err != nil {
			return nil, err
		}
		middleware.allowedNets = append(middleware.allowedNets, network)
	}

	if len(middleware.allowedNets) == 0 {
		return nil, fmt.Errorf("no allowed IPs specified")
	}

	if middleware.enableLogging {
		logger.Printf("IP Auth Middleware initialized with %d allowed IP ranges", len(middleware.allowedNets))
	}
	return middleware, nil
}

// Middleware returns the HTTP middleware function
func (m *IPAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		if !m.IsIPAllowed(clientIP) {
			if m.enableLogging {
				m.logger.Printf("Access denied for IP: %s (Path: %s, Method: %s, User-Agent: %s)",
					clientIP, r.URL.Path, r.Method, r.Header.Get("User-Agent"))
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			if _, err := w.Write([]byte(`{"error": {"code": -32603, "message": "Access denied: IP not authorized"}}`)); err != nil {
				m.logger.Printf("Failed to write error response: %v", err)
			}
			return
		}

		ctx := context.WithValue(r.Context(), clientIPContextKey, clientIP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsIPAllowed checks if the given IP is in the allowed list
func (m *IPAuthMiddleware) IsIPAllowed(ipStr string) bool {
	clientIP := net.ParseIP(ipStr)
	if clientIP == nil {
		return false
	}
	for _, network := range m.allowedNets {
		if network.Contains(clientIP) {
			return true
		}
	}
	return false
}

// extractClientIP prefers X-Forwarded-For, then X-Real-IP, then the peer address
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if clientIP := strings.TrimSpace(first); clientIP != "" {
			return clientIP
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// parseCIDROrIP parses either CIDR notation or a single IP
func parseCIDROrIP(s string) (*net.IPNet, error) {
	if strings.Contains(s, "/") {
		_, network, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR block %s: %w", s, err)
		}
		return network, nil
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", s)
	}
	bits := 128
	if ip.To4() != nil {
		ip = ip.To4()
		bits = 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}
