package mcpserver

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ca-srg/searchchat/internal/metrics"
)

var mcpTracer = otel.Tracer("searchchat/mcpserver")

const maxAttributeLen = 256

// toolInstruments records one measurement set per tool call
type toolInstruments struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// newToolInstruments creates the instruments on meter. Instruments that fail
// to register are left nil and skipped.
func newToolInstruments(meter metric.Meter) *toolInstruments {
	i := &toolInstruments{}

	var err error
	if i.calls, err = meter.Int64Counter(
		"searchchat.mcp.tool_calls",
		metric.WithDescription("MCP tool calls by tool and outcome"),
		metric.WithUnit("{calls}"),
	); err != nil {
		log.Printf("observability: failed to create MCP call counter: %v", err)
	}

	if i.failures, err = meter.Int64Counter(
		"searchchat.mcp.tool_failures",
		metric.WithDescription("MCP tool calls that returned an error result"),
		metric.WithUnit("{calls}"),
	); err != nil {
		log.Printf("observability: failed to create MCP failure counter: %v", err)
	}

	if i.latency, err = meter.Float64Histogram(
		"searchchat.mcp.tool_duration",
		metric.WithDescription("MCP tool call duration"),
		metric.WithUnit("ms"),
	); err != nil {
		log.Printf("observability: failed to create MCP duration histogram: %v", err)
	}

	return i
}

// record adds one call. errType is empty for successful calls.
func (i *toolInstruments) record(ctx context.Context, tool string, outcome metrics.Outcome, errType string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mcp.tool.name", tool),
		attribute.String("search.outcome", string(outcome)),
	)
	if i.calls != nil {
		i.calls.Add(ctx, 1, attrs)
	}
	if i.latency != nil {
		i.latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
	if errType != "" && i.failures != nil {
		i.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mcp.tool.name", tool),
			attribute.String("error.type", errType),
		))
	}
}

func truncateForAttribute(s string) string {
	if len(s) <= maxAttributeLen {
		return s
	}
	return s[:maxAttributeLen] + "..."
}
