package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ca-srg/searchchat/internal/backend"
	"github.com/ca-srg/searchchat/internal/catalog"
	"github.com/ca-srg/searchchat/internal/metrics"
	"github.com/ca-srg/searchchat/internal/observability"
	"github.com/ca-srg/searchchat/internal/proxy"
	commontypes "github.com/ca-srg/searchchat/internal/types"
)

// loadCatalog reads the catalog file, or the embedded default when path is empty
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// newProxy builds the backend client and the proxy in front of it. Logs go
// to stderr so search output on stdout stays parseable.
func newProxy(cfg *commontypes.Config, prefix string) (*proxy.Proxy, error) {
	logger := log.New(os.Stderr, prefix, log.LstdFlags)
	client, err := backend.NewClient(backend.NewConfigFromTypes(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return proxy.New(client, proxy.OptionsFromConfig(cfg), logger), nil
}

// initTelemetry configures OpenTelemetry and the local search counters.
// The returned function flushes both.
func initTelemetry(cfg *commontypes.Config) func() {
	shutdown, err := observability.Init(cfg, Version)
	if err != nil {
		log.Printf("Warning: failed to initialize OpenTelemetry: %v", err)
	}

	metrics.Configure(cfg.StatsEnabled, cfg.StatsDBPath)
	if cfg.StatsEnabled {
		if err := metrics.Init(); err != nil {
			log.Printf("Warning: search statistics disabled: %v", err)
		} else if err := metrics.InitOTelMetrics(); err != nil {
			log.Printf("Warning: failed to register search gauge: %v", err)
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Printf("Warning: telemetry shutdown: %v", err)
		}
		if err := metrics.Close(); err != nil {
			log.Printf("Warning: failed to close statistics store: %v", err)
		}
	}
}
