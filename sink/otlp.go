package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vespa-engine/metrics-emitter/metrics"
)

// OTLPProtocol selects the transport used to reach the collector.
type OTLPProtocol string

const (
	OTLPProtocolGRPC OTLPProtocol = "grpc"
	OTLPProtocolHTTP OTLPProtocol = "http"
)

// OTLPConfig holds the settings for the OTLP sink.
type OTLPConfig struct {
	Endpoint string
	Protocol OTLPProtocol
	Insecure bool
	// Version is reported as service.version on the resource.
	Version string
}

// OTLPSink exports metric batches to an OpenTelemetry collector. Each batch
// becomes one export of float64 gauges: dimensions map to attributes and the
// namespace becomes the instrumentation scope name.
type OTLPSink struct {
	exporter sdkmetric.Exporter
	res      *resource.Resource
}

// NewOTLPSink creates an OTLP sink for the configured endpoint and protocol.
func NewOTLPSink(ctx context.Context, config OTLPConfig) (*OTLPSink, error) {
	exporter, err := newOTLPExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("vespa-metrics-emitter"),
			semconv.ServiceVersionKey.String(config.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return &OTLPSink{
		exporter: exporter,
		res:      res,
	}, nil
}

// newOTLPExporter creates the protocol-specific OTLP exporter. The protocol
// is matched case-insensitively; an empty protocol selects gRPC.
func newOTLPExporter(ctx context.Context, config OTLPConfig) (sdkmetric.Exporter, error) {
	switch OTLPProtocol(strings.ToLower(string(config.Protocol))) {
	case OTLPProtocolGRPC, "":
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(config.Endpoint),
		}
		if config.Insecure {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()))
			opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case OTLPProtocolHTTP:
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(config.Endpoint),
		}
		if config.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", config.Protocol)
	}
}

func (s *OTLPSink) Name() string {
	return "otlp"
}

// PublishBatch converts the batch into gauge metrics grouped by metric name,
// keeping the first-seen name order, and exports them in a single call.
func (s *OTLPSink) PublishBatch(ctx context.Context, batch []metrics.Point, namespace string) error {
	now := time.Now()

	byName := make(map[string]int)
	converted := []metricdata.Metrics{}
	for _, point := range batch {
		attrs := make([]attribute.KeyValue, 0, len(point.Dimensions))
		for _, d := range point.Dimensions {
			attrs = append(attrs, attribute.String(d.Name, d.Value))
		}

		dataPoint := metricdata.DataPoint[float64]{
			Attributes: attribute.NewSet(attrs...),
			Time:       now,
			Value:      point.Value,
		}

		idx, ok := byName[point.MetricName]
		if !ok {
			converted = append(converted, metricdata.Metrics{
				Name: point.MetricName,
				Data: metricdata.Gauge[float64]{},
			})
			idx = len(converted) - 1
			byName[point.MetricName] = idx
		}

		gauge := converted[idx].Data.(metricdata.Gauge[float64])
		gauge.DataPoints = append(gauge.DataPoints, dataPoint)
		converted[idx].Data = gauge
	}

	resourceMetrics := &metricdata.ResourceMetrics{
		Resource: s.res,
		ScopeMetrics: []metricdata.ScopeMetrics{
			{
				Scope:   instrumentation.Scope{Name: namespace},
				Metrics: converted,
			},
		},
	}

	if err := s.exporter.Export(ctx, resourceMetrics); err != nil {
		return fmt.Errorf("failed to export metric batch: %w", err)
	}

	return nil
}

// Close shuts down the underlying exporter.
func (s *OTLPSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.exporter.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down OTLP exporter: %w", err)
	}
	return nil
}

var _ Sink = (*OTLPSink)(nil)
