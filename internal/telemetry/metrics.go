// Package telemetry installs the OpenTelemetry meter provider. Every run
// keeps an in-process reader so counts can be reported at the end of a
// command; an OTLP exporter is added when an endpoint is configured.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const (
	ServiceName = "huntdedup"
	meterName   = "github.com/a-marczewski/huntdedup"

	exportInterval = 10 * time.Second
)

// Provider owns the meter provider and its in-process reader.
type Provider struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	endpoint string
}

// Options configures Init.
type Options struct {
	ServiceVersion string
	// Endpoint of an OTLP gRPC collector. Empty reads
	// OTEL_EXPORTER_OTLP_METRICS_ENDPOINT, then OTEL_EXPORTER_OTLP_ENDPOINT;
	// when both are unset nothing is exported.
	Endpoint string
	// SetGlobal installs the provider with otel.SetMeterProvider.
	SetGlobal bool
	Logger    *zap.Logger
}

// Init builds the meter provider. A failing exporter is logged and skipped;
// the in-process reader always works.
func Init(ctx context.Context, opts Options) (*Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics resource: %w", err)
	}

	p := &Provider{reader: sdkmetric.NewManualReader()}
	readers := []sdkmetric.Option{sdkmetric.WithResource(res), sdkmetric.WithReader(p.reader)}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint != "" {
		ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
		exp, err := otlpmetricgrpc.New(ctxInit,
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		cancel()
		if err != nil {
			logger.Warn("Metrics exporter init failed", zap.String("endpoint", endpoint), zap.Error(err))
		} else {
			readers = append(readers, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(exportInterval))))
			p.endpoint = endpoint
			logger.Debug("Metrics exporter initialized", zap.String("endpoint", endpoint))
		}
	}

	p.provider = sdkmetric.NewMeterProvider(readers...)
	if opts.SetGlobal {
		otel.SetMeterProvider(p.provider)
	}
	return p, nil
}

// Meter returns the huntdedup meter.
func (p *Provider) Meter() metric.Meter {
	return p.provider.Meter(meterName)
}

// Endpoint is the OTLP collector in use, or "".
func (p *Provider) Endpoint() string {
	return p.endpoint
}

// Snapshot collects the current totals. Counters are keyed by name, with
// attributes appended as name{key=value}; histograms report their
// observation count under name_count.
func (p *Provider) Snapshot(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[seriesName(m.Name, dp.Attributes)] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[seriesName(m.Name+"_count", dp.Attributes)] += int64(dp.Count)
				}
			}
		}
	}
	return out, nil
}

func seriesName(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}
	return name + "{" + attrs.Encoded(attribute.DefaultEncoder()) + "}"
}

// Shutdown flushes the exporter, if any, and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}
