package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var sessionMeter = otel.GetMeterProvider().Meter("benchbook/session")

// recordSave emits save count and duration metrics. Best-effort; instruments
// are lazily created and a metrics failure never affects the save itself.
func recordSave(ctx context.Context, kind, result string, elapsed time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("save.kind", kind),
		attribute.String("save.result", result),
	)
	if counter, err := sessionMeter.Int64Counter("session.save_count"); err == nil {
		counter.Add(ctx, 1, attrs)
	}
	if hist, err := sessionMeter.Float64Histogram("session.save.duration",
		otelmetric.WithUnit("ms")); err == nil {
		hist.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

func saveResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
