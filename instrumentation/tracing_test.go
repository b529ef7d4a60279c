package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newRecordingTracer returns a tracer whose ended spans are captured by the recorder.
func newRecordingTracer() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, tp
}

func TestRecordError(t *testing.T) {
	recorder, tp := newRecordingTracer()
	_, span := tp.Tracer("test").Start(context.Background(), "test-span")

	RecordError(span, errors.New("test error"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want %v", ended[0].Status().Code, codes.Error)
	}
	if len(ended[0].Events()) == 0 {
		t.Error("expected an exception event on the span")
	}
}

func TestSetSpanSuccess(t *testing.T) {
	recorder, tp := newRecordingTracer()
	_, span := tp.Tracer("test").Start(context.Background(), "test-span")

	SetSpanSuccess(span)
	span.End()

	if got := recorder.Ended()[0].Status().Code; got != codes.Ok {
		t.Errorf("status = %v, want %v", got, codes.Ok)
	}
}

func TestSetSpanError(t *testing.T) {
	recorder, tp := newRecordingTracer()
	_, span := tp.Tracer("test").Start(context.Background(), "test-span")

	SetSpanError(span, "code exchange failed")
	span.End()

	status := recorder.Ended()[0].Status()
	if status.Code != codes.Error || status.Description != "code exchange failed" {
		t.Errorf("status = %+v, want Error with description", status)
	}
}

func TestAddOAuthFlowAttributes(t *testing.T) {
	recorder, tp := newRecordingTracer()
	_, span := tp.Tracer("test").Start(context.Background(), "test-span")

	AddOAuthFlowAttributes(span, "client-1", "client_credentials", "")
	AddPKCEAttributes(span, "S256")
	span.End()

	attrs := attributeMap(recorder.Ended()[0].Attributes())
	if attrs[AttrClientID] != "client-1" {
		t.Errorf("%s = %q, want %q", AttrClientID, attrs[AttrClientID], "client-1")
	}
	if attrs[AttrGrantType] != "client_credentials" {
		t.Errorf("%s = %q, want %q", AttrGrantType, attrs[AttrGrantType], "client_credentials")
	}
	if _, ok := attrs[AttrScope]; ok {
		t.Errorf("%s should not be set for an empty scope", AttrScope)
	}
	if attrs[AttrPKCEMethod] != "S256" {
		t.Errorf("%s = %q, want S256", AttrPKCEMethod, attrs[AttrPKCEMethod])
	}
	if attrs[AttrPKCEPresent] != "true" {
		t.Errorf("%s = %q, want true", AttrPKCEPresent, attrs[AttrPKCEPresent])
	}
}

func TestAddHTTPAndStorageAttributes(t *testing.T) {
	recorder, tp := newRecordingTracer()
	_, span := tp.Tracer("test").Start(context.Background(), "test-span")

	AddHTTPAttributes(span, "POST", "token", 401)
	AddStorageAttributes(span, "get_access_token", "memory")
	AddSecurityAttributes(span, "192.168.1.1")
	AddSecurityAttributes(span, "")
	span.End()

	attrs := attributeMap(recorder.Ended()[0].Attributes())
	want := map[string]string{
		AttrHTTPMethod:       "POST",
		AttrHTTPEndpoint:     "token",
		AttrHTTPStatusCode:   "401",
		AttrStorageOperation: "get_access_token",
		AttrStorageType:      "memory",
		AttrClientIP:         "192.168.1.1",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("%s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestShouldLogClientIPs(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   bool
	}{
		{
			name:   "enabled explicitly",
			config: Config{Enabled: true, LogClientIPs: true},
			want:   true,
		},
		{
			name:   "not set (default to false for privacy)",
			config: Config{Enabled: true},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			if got := inst.ShouldLogClientIPs(); got != tt.want {
				t.Errorf("ShouldLogClientIPs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNilSafeHelpers_WithNilSpans(t *testing.T) {
	RecordError(nil, errors.New("ignored"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "ignored")
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddOAuthFlowAttributes(nil, "c", "g", "s")
	AddPKCEAttributes(nil, "S256")
	AddStorageAttributes(nil, "op", "memory")
	AddHTTPAttributes(nil, "GET", "health", 200)
	AddSecurityAttributes(nil, "10.0.0.1")
}

func attributeMap(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
