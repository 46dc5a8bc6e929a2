package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments for the places search path.
type Metrics struct {
	searches       metric.Int64Counter
	searchDuration metric.Float64Histogram
	cacheHits      metric.Int64Counter
}

// NewMetrics registers search instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/pawpoint/pawpoint")

	searches, err := meter.Int64Counter("pawpoint.searches.total",
		metric.WithDescription("Number of nearby-place searches executed"))
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram("pawpoint.search.duration",
		metric.WithDescription("End-to-end search duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter("pawpoint.search.cache_hits",
		metric.WithDescription("Searches served from the result cache"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		searches:       searches,
		searchDuration: searchDuration,
		cacheHits:      cacheHits,
	}, nil
}

// RecordSearch records one completed search.
func (m *Metrics) RecordSearch(ctx context.Context, mode string, results int, duration time.Duration, cached bool) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Int("results", results),
	)
	m.searches.Add(ctx, 1, attrs)
	m.searchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if cached {
		m.cacheHits.Add(ctx, 1, attrs)
	}
}
