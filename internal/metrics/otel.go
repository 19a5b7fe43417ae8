package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	otelMetricsOnce       sync.Once
	otelRegistrationError error
)

// InitOTelMetrics registers an observable gauge that reports cumulative
// search totals from SQLite. Call after observability.Init.
func InitOTelMetrics() error {
	otelMetricsOnce.Do(func() {
		meter := otel.Meter("searchchat/metrics")

		_, err := meter.Int64ObservableGauge(
			"searchchat.searches.total",
			metric.WithDescription("Cumulative searches by surface and outcome"),
			metric.WithUnit("{searches}"),
			metric.WithInt64Callback(searchCallback),
		)
		if err != nil {
			log.Printf("metrics: failed to create search gauge: %v", err)
			otelRegistrationError = err
		}
	})
	return otelRegistrationError
}

func searchCallback(_ context.Context, observer metric.Int64Observer) error {
	stats := GetStats()
	if stats == nil {
		stats = make(map[Surface]Totals, len(AllSurfaces))
		for _, surface := range AllSurfaces {
			stats[surface] = newTotals()
		}
	}

	for surface, totals := range stats {
		for outcome, count := range totals {
			observer.Observe(count, metric.WithAttributes(
				attribute.String("surface", string(surface)),
				attribute.String("outcome", string(outcome)),
			))
		}
	}
	return nil
}

// ResetOTelForTesting resets the OTel initialization state for testing purposes.
func ResetOTelForTesting() {
	otelMetricsOnce = sync.Once{}
	otelRegistrationError = nil
}
