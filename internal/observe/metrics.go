// Package observe holds Partline's observability layer: OpenTelemetry
// metric instruments, the provider setup with a Prometheus exporter bridge,
// and HTTP middleware tying traces, metrics, and logs together.
//
// Production code records through [DefaultMetrics]; tests build an isolated
// instance with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all Partline instruments.
const meterName = "github.com/partline/partline"

// Metrics bundles every instrument the pipeline records into. The OTel
// instrument types are concurrency-safe, so one instance serves all sessions.
type Metrics struct {
	// Per-stage latency, in seconds.
	EmbedDuration   metric.Float64Histogram
	ExtractDuration metric.Float64Histogram
	ResolveDuration metric.Float64Histogram

	// MentionsExtracted counts part mentions produced by extraction.
	MentionsExtracted metric.Int64Counter

	// MatchResults counts resolution outcomes, attributed by
	// status=matched|unmatched. Record via [Metrics.RecordMatchResult].
	MatchResults metric.Int64Counter

	// DedupSuppressed counts matches withheld because the session already
	// reported that item.
	DedupSuppressed metric.Int64Counter

	// ActiveSessions tracks live client sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is recorded by the middleware, attributed by
	// method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets covers LLM and embedding round trips, 10ms to 10s.
var stageBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// builder creates instruments and remembers the first failure, so NewMetrics
// reads as a flat list instead of nine error checks.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) histogram(name, desc string, buckets []float64) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.err = err
	return h
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.err = err
	return c
}

func (b *builder) upDown(name, desc string) metric.Int64UpDownCounter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.err = err
	return c
}

// NewMetrics registers all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &builder{meter: mp.Meter(meterName)}
	m := &Metrics{
		EmbedDuration:       b.histogram("partline.embed.duration", "Latency of embedding batches.", stageBuckets),
		ExtractDuration:     b.histogram("partline.extract.duration", "Latency of mention extraction.", stageBuckets),
		ResolveDuration:     b.histogram("partline.resolve.duration", "Latency of per-mention arbitration.", stageBuckets),
		MentionsExtracted:   b.counter("partline.mentions.extracted", "Part mentions produced by extraction."),
		MatchResults:        b.counter("partline.match.results", "Resolution outcomes by status."),
		DedupSuppressed:     b.counter("partline.dedup.suppressed", "Matches suppressed by session-level deduplication."),
		ActiveSessions:      b.upDown("partline.active_sessions", "Live client sessions."),
		HTTPRequestDuration: b.histogram("partline.http.request.duration", "HTTP request latency by method and path.", nil),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared instance backed by the global meter
// provider, creating it on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordMatchResult records one resolution outcome.
func (m *Metrics) RecordMatchResult(ctx context.Context, matched bool) {
	status := "unmatched"
	if matched {
		status = "matched"
	}
	m.MatchResults.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
