package instrumentation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "default config",
			config: Config{
				Enabled: false,
			},
			wantErr: false,
		},
		{
			name: "with service name and version",
			config: Config{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
			wantErr: false,
		},
		{
			name: "prometheus exporter",
			config: Config{
				Enabled:         true,
				MetricsExporter: ExporterPrometheus,
			},
			wantErr: false,
		},
		{
			name: "unsupported metrics exporter",
			config: Config{
				Enabled:         true,
				MetricsExporter: "statsd",
			},
			wantErr: true,
		},
		{
			name: "unsupported traces exporter",
			config: Config{
				Enabled:        true,
				TracesExporter: "zipkin",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			if inst.Meter("http") == nil {
				t.Error("Meter('http') returned nil")
			}
			if inst.Tracer("server") == nil {
				t.Error("Tracer('server') returned nil")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.TracerProvider() == nil {
				t.Error("TracerProvider() returned nil")
			}
			if inst.MeterProvider() == nil {
				t.Error("MeterProvider() returned nil")
			}
			if inst.Propagator() == nil {
				t.Error("Propagator() returned nil")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := inst.Shutdown(ctx); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
			// Shutdown is idempotent
			if err := inst.Shutdown(ctx); err != nil {
				t.Errorf("Second Shutdown() error = %v", err)
			}
		})
	}
}

func TestInstrumentation_NoOpProviders(t *testing.T) {
	inst, err := New(Config{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	inst.Metrics().RecordAuthorizationRequested(ctx, "test-client", true)
	inst.Metrics().RecordCodeExchange(ctx, "test-client", "S256")
	inst.Metrics().RecordTokenIssued(ctx, "client_credentials")

	_, span := inst.Tracer("server").Start(ctx, "test-span")
	span.End()

	if inst.MetricsHandler() != nil {
		t.Error("MetricsHandler() should be nil when prometheus is not enabled")
	}
}

func TestInstrumentation_PrometheusHandler(t *testing.T) {
	inst, err := New(Config{
		Enabled:         true,
		ServiceName:     "prometheus-test",
		MetricsExporter: ExporterPrometheus,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	handler := inst.MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() returned nil with prometheus exporter")
	}

	inst.Metrics().RecordHTTPRequest(context.Background(), http.MethodPost, "token", http.StatusOK, 1.5)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "oauth_http_requests") {
		t.Errorf("scrape output does not contain oauth_http_requests:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("scrape output does not contain runtime metrics")
	}
}

func TestInstrumentation_StorageSizeCallbacks(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	inst, err := New(Config{
		Enabled:      true,
		MetricReader: reader,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 3 },
		func() int64 { return 7 },
	)
	if err != nil {
		t.Fatalf("RegisterStorageSizeCallbacks() error = %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if got := gaugeValue(t, rm, "storage.tokens.count"); got != 3 {
		t.Errorf("storage.tokens.count = %d, want 3", got)
	}
	if got := gaugeValue(t, rm, "storage.codes.count"); got != 7 {
		t.Errorf("storage.codes.count = %d, want 7", got)
	}
}

func TestInstrumentation_ConcurrentAccess(t *testing.T) {
	inst, err := New(Config{
		Enabled:        true,
		ServiceName:    "concurrent-test",
		ServiceVersion: "1.0.0",
		MetricReader:   sdkmetric.NewManualReader(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	done := make(chan bool)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				clientID := fmt.Sprintf("client-%d", id)
				inst.Metrics().RecordAuthorizationRequested(ctx, clientID, false)
				inst.Metrics().RecordCodeExchange(ctx, clientID, "S256")

				_, span := inst.Tracer("server").Start(ctx, "concurrent-span")
				span.End()
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestConfig_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		if err := inst.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}()

	if inst.config.ServiceName != DefaultServiceName {
		t.Errorf("Default ServiceName = %q, want %q", inst.config.ServiceName, DefaultServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("Default ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
	if inst.config.MetricsExporter != ExporterNone {
		t.Errorf("Default MetricsExporter = %q, want %q", inst.config.MetricsExporter, ExporterNone)
	}
}

// gaugeValue returns the single int64 gauge data point recorded under name.
func gaugeValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if !ok {
				t.Fatalf("metric %s has data type %T, want Gauge[int64]", name, m.Data)
			}
			if len(gauge.DataPoints) != 1 {
				t.Fatalf("metric %s has %d data points, want 1", name, len(gauge.DataPoints))
			}
			return gauge.DataPoints[0].Value
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// counterSum returns the sum of every int64 data point recorded under name.
func counterSum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has data type %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func BenchmarkMetrics_RecordHTTPRequest(b *testing.B) {
	inst, _ := New(Config{Enabled: true, MetricReader: sdkmetric.NewManualReader()})
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		inst.Metrics().RecordHTTPRequest(ctx, "POST", "token", 200, 10.5)
	}
}

func BenchmarkMetrics_RecordHTTPRequest_NoOp(b *testing.B) {
	inst, _ := New(Config{Enabled: false})

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		inst.Metrics().RecordHTTPRequest(ctx, "POST", "token", 200, 10.5)
	}
}
