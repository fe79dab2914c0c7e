package categorization

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	resolverTracer     = otel.Tracer("ledgerline/resolver")
	resolverMeter      = otel.Meter("ledgerline/resolver")
	resolverResults, _ = resolverMeter.Int64Counter("resolver.resolutions", metric.WithDescription("Resolutions by kind and winning tier"))
)

func recordResolution(ctx context.Context, kind string, source Source) {
	resolverResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("source", string(source)),
	))
}

// flightKey scopes singleflight collapsing to one user, since user mappings
// can make answers differ between users.
func flightKey(key string, userID *int64) string {
	if userID == nil {
		return "global|" + key
	}
	return strconv.FormatInt(*userID, 10) + "|" + key
}
