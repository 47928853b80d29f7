package sink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/vespa-engine/metrics-emitter/metrics"
)

// mockExporter records exported resource metrics and optionally fails exports.
type mockExporter struct {
	exported []*metricdata.ResourceMetrics
	failErr  error
	shutdown bool
}

func (m *mockExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (m *mockExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (m *mockExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.exported = append(m.exported, rm)
	return nil
}

func (m *mockExporter) ForceFlush(ctx context.Context) error {
	return nil
}

func (m *mockExporter) Shutdown(ctx context.Context) error {
	m.shutdown = true
	return nil
}

var _ sdkmetric.Exporter = (*mockExporter)(nil)

// TestNewOTLPExporterProtocols covers the protocol switch, including the
// case-insensitive match and the rejection of unknown protocols.
func TestNewOTLPExporterProtocols(t *testing.T) {
	tests := []struct {
		name      string
		protocol  OTLPProtocol
		expectErr bool
	}{
		{name: "grpc", protocol: OTLPProtocolGRPC},
		{name: "http", protocol: OTLPProtocolHTTP},
		{name: "empty defaults to grpc", protocol: ""},
		{name: "uppercase", protocol: "GRPC"},
		{name: "invalid", protocol: "thrift", expectErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := OTLPConfig{
				Endpoint: "localhost:4317",
				Protocol: test.protocol,
				Insecure: true,
			}
			exporter, err := newOTLPExporter(context.Background(), config)
			if test.expectErr {
				if err == nil {
					t.Fatal("Expected error for unsupported protocol")
				}
				if !strings.Contains(err.Error(), "unsupported OTLP protocol") {
					t.Errorf("Unexpected error message: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to create exporter: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = exporter.Shutdown(ctx)
		})
	}
}

func otlpTestBatch() []metrics.Point {
	return []metrics.Point{
		{
			MetricName: "cpu.util",
			Value:      11.1,
			Unit:       metrics.UnitNone,
			Dimensions: []metrics.Dimension{{Name: "host", Value: "host1"}},
		},
		{
			MetricName: "mem.util",
			Value:      62,
			Unit:       metrics.UnitNone,
			Dimensions: []metrics.Dimension{{Name: "host", Value: "host1"}},
		},
		{
			MetricName: "cpu.util",
			Value:      12.4,
			Unit:       metrics.UnitNone,
			Dimensions: []metrics.Dimension{{Name: "host", Value: "host2"}},
		},
	}
}

// TestOTLPPublishBatch verifies that points sharing a metric name are grouped
// into one gauge in first-seen order and that the namespace becomes the scope.
func TestOTLPPublishBatch(t *testing.T) {
	mock := &mockExporter{}
	sink := &OTLPSink{exporter: mock, res: resource.Empty()}

	if err := sink.PublishBatch(context.Background(), otlpTestBatch(), "vespa-metrics"); err != nil {
		t.Fatalf("PublishBatch failed: %v", err)
	}

	if len(mock.exported) != 1 {
		t.Fatalf("Expected 1 export call, got %d", len(mock.exported))
	}

	exported := mock.exported[0]
	if len(exported.ScopeMetrics) != 1 {
		t.Fatalf("Expected 1 scope, got %d", len(exported.ScopeMetrics))
	}

	scope := exported.ScopeMetrics[0]
	if scope.Scope.Name != "vespa-metrics" {
		t.Errorf("Expected scope name vespa-metrics, got %q", scope.Scope.Name)
	}
	if len(scope.Metrics) != 2 {
		t.Fatalf("Expected 2 metrics after grouping, got %d", len(scope.Metrics))
	}
	if scope.Metrics[0].Name != "cpu.util" || scope.Metrics[1].Name != "mem.util" {
		t.Errorf("Metric order not preserved: %q, %q", scope.Metrics[0].Name, scope.Metrics[1].Name)
	}

	gauge, ok := scope.Metrics[0].Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatalf("Expected gauge data, got %T", scope.Metrics[0].Data)
	}
	if len(gauge.DataPoints) != 2 {
		t.Fatalf("Expected 2 data points for cpu.util, got %d", len(gauge.DataPoints))
	}
	if gauge.DataPoints[0].Value != 11.1 || gauge.DataPoints[1].Value != 12.4 {
		t.Errorf("Unexpected data point values: %+v", gauge.DataPoints)
	}

	dataPoint := gauge.DataPoints[1]
	host, ok := dataPoint.Attributes.Value("host")
	if !ok || host.AsString() != "host2" {
		t.Errorf("Expected host attribute host2, got %q", host.AsString())
	}
}

func TestOTLPPublishBatchError(t *testing.T) {
	mock := &mockExporter{failErr: errors.New("collector unavailable")}
	sink := &OTLPSink{exporter: mock, res: resource.Empty()}

	err := sink.PublishBatch(context.Background(), otlpTestBatch(), "vespa-metrics")
	if err == nil {
		t.Fatal("Expected error when the export fails")
	}
	if !errors.Is(err, mock.failErr) {
		t.Errorf("Expected wrapped export error, got %v", err)
	}
}

func TestOTLPSinkClose(t *testing.T) {
	mock := &mockExporter{}
	sink := &OTLPSink{exporter: mock, res: resource.Empty()}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !mock.shutdown {
		t.Error("Expected Close to shut down the exporter")
	}
}
