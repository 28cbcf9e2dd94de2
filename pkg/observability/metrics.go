package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricParsesTotal   = "ccdb.parses.total"
	metricParseDuration = "ccdb.parse.duration.seconds"
	metricParseUnits    = "ccdb.parse.units"
	metricErrorsTotal   = "ccdb.errors.total"
	metricChangeChecks  = "ccdb.change.checks.total"

	attrStatus  = "status"
	attrChanged = "changed"

	statusOK    = "ok"
	statusError = "error"
)

// Parses of a compilation database take microseconds for small projects and
// seconds for very large monorepos.
var parseBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// IngestMetrics holds the OTel instruments for database ingestion.
type IngestMetrics struct {
	parsesTotal   metric.Int64Counter
	parseDuration metric.Float64Histogram
	parseUnits    metric.Int64Histogram
	errorsTotal   metric.Int64Counter
	changeChecks  metric.Int64Counter
}

// NewIngestMetrics creates the ingestion instruments from mt.
func NewIngestMetrics(mt metric.Meter) (*IngestMetrics, error) {
	parses, err := mt.Int64Counter(metricParsesTotal,
		metric.WithDescription("Total number of database parse passes"),
		metric.WithUnit("{parse}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricParsesTotal, err)
	}

	duration, err := mt.Float64Histogram(metricParseDuration,
		metric.WithDescription("Parse pass duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(parseBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricParseDuration, err)
	}

	units, err := mt.Int64Histogram(metricParseUnits,
		metric.WithDescription("Compile units produced per successful parse"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricParseUnits, err)
	}

	errs, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of failed parse passes"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	checks, err := mt.Int64Counter(metricChangeChecks,
		metric.WithDescription("Total number of change checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChangeChecks, err)
	}

	return &IngestMetrics{
		parsesTotal:   parses,
		parseDuration: duration,
		parseUnits:    units,
		errorsTotal:   errs,
		changeChecks:  checks,
	}, nil
}

// RecordParse records one parse pass. units is ignored when err is non-nil.
func (im *IngestMetrics) RecordParse(ctx context.Context, duration time.Duration, units int, err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))

	im.parsesTotal.Add(ctx, 1, attrs)
	im.parseDuration.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		im.errorsTotal.Add(ctx, 1)

		return
	}

	im.parseUnits.Record(ctx, int64(units))
}

// RecordChangeCheck records the outcome of one change check.
func (im *IngestMetrics) RecordChangeCheck(ctx context.Context, changed bool) {
	im.changeChecks.Add(ctx, 1, metric.WithAttributes(attribute.Bool(attrChanged, changed)))
}
