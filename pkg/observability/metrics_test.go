package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/ccdb/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.IngestMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewIngestMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return metrics, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestIngestMetrics_RecordParse(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)
	ctx := context.Background()

	metrics.RecordParse(ctx, 20*time.Millisecond, 12, nil)
	metrics.RecordParse(ctx, time.Millisecond, 0, errors.New("boom"))

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "ccdb.parses.total")))
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "ccdb.errors.total")))

	units := findMetric(rm, "ccdb.parse.units")
	require.NotNil(t, units)

	hist, ok := units.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, int64(12), hist.DataPoints[0].Sum)

	duration := findMetric(rm, "ccdb.parse.duration.seconds")
	require.NotNil(t, duration)
}

func TestIngestMetrics_RecordChangeCheck(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)
	ctx := context.Background()

	metrics.RecordChangeCheck(ctx, true)
	metrics.RecordChangeCheck(ctx, false)
	metrics.RecordChangeCheck(ctx, false)

	rm := collectMetrics(t, reader)

	checks := findMetric(rm, "ccdb.change.checks.total")
	assert.Equal(t, int64(3), sumOf(t, checks))

	sum, ok := checks.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 2)
}

func TestPrometheus_ServesRecordedMetrics(t *testing.T) {
	t.Parallel()

	prom, err := observability.NewPrometheus()
	require.NoError(t, err)

	t.Cleanup(func() { _ = prom.Shutdown(context.Background()) })

	metrics, err := observability.NewIngestMetrics(prom.Meter)
	require.NoError(t, err)

	metrics.RecordParse(context.Background(), time.Millisecond, 4, nil)

	srv := httptest.NewServer(prom.Handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), "ccdb_parses")
	assert.Contains(t, string(body), "target_info")
}

func TestInit_NoEndpointUsesNoop(t *testing.T) {
	t.Parallel()

	providers, err := observability.InitWithWriter(observability.DefaultConfig(), io.Discard)
	require.NoError(t, err)

	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.Logger)

	_, span := providers.Tracer.Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_EndpointSamplesSpansAndBoundsShutdown(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Mode = observability.ModeWatch
	cfg.OTLPEndpoint = "127.0.0.1:1"
	cfg.OTLPInsecure = true
	cfg.ShutdownTimeoutSec = 1

	providers, err := observability.InitWithWriter(cfg, io.Discard)
	require.NoError(t, err)

	_, span := providers.Tracer.Start(context.Background(), "ingest")
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	// Nothing listens on the endpoint; shutdown gives up at its own deadline.
	start := time.Now()
	_ = providers.Shutdown(context.Background())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("garbage"))
	assert.Equal(t,
		map[string]string{"api-key": "abc", "team": "build"},
		observability.ParseOTLPHeaders("api-key=abc, team = build"),
	)
	assert.Equal(t,
		map[string]string{"team": "build"},
		observability.ParseOTLPHeaders("junk,team=build,"),
	)
}
