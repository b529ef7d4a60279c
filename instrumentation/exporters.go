package instrumentation

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// setupMeterProvider creates an SDK meter provider when an exporter or a reader is configured.
func (i *Instrumentation) setupMeterProvider() error {
	var opts []sdkmetric.Option

	switch i.config.MetricsExporter {
	case ExporterNone:
	case ExporterPrometheus:
		// A dedicated registry keeps the scrape output limited to this process' metrics
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
		i.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			Registry: registry,
		})
	default:
		return fmt.Errorf("unsupported metrics exporter %q (supported: %s, %s)",
			i.config.MetricsExporter, ExporterNone, ExporterPrometheus)
	}

	if i.config.MetricReader != nil {
		opts = append(opts, sdkmetric.WithReader(i.config.MetricReader))
	}

	if len(opts) == 0 {
		i.meterProvider = noop.NewMeterProvider()
		return nil
	}

	mp := sdkmetric.NewMeterProvider(append(opts, sdkmetric.WithResource(i.resource))...)
	i.meterProvider = mp
	i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)
	return nil
}

// setupTracerProvider creates an SDK tracer provider backed by an OTLP/HTTP exporter.
func (i *Instrumentation) setupTracerProvider(ctx context.Context) error {
	switch i.config.TracesExporter {
	case ExporterNone:
		i.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	case ExporterOTLP:
		// Endpoint, headers and TLS settings come from OTEL_EXPORTER_OTLP_* variables
		exporter, err := otlptracehttp.New(ctx)
		if err != nil {
			return fmt.Errorf("failed to create otlp trace exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(i.resource),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		)
		i.tracerProvider = tp
		i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)
		return nil
	default:
		return fmt.Errorf("unsupported traces exporter %q (supported: %s, %s)",
			i.config.TracesExporter, ExporterNone, ExporterOTLP)
	}
}
