package security

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	if len(id1) != 22 {
		t.Errorf("GenerateRequestID() length = %d, want 22", len(id1))
	}
	if id1 == id2 {
		t.Error("GenerateRequestID() returned the same ID twice")
	}
	if !requestIDPattern.MatchString(id1) {
		t.Errorf("generated ID %q does not match the accepted pattern", id1)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want req-123", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestLoggerWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LoggerWithRequestID(WithRequestID(context.Background(), "req-abc"), logger).Info("hello")
	if !strings.Contains(buf.String(), "request_id=req-abc") {
		t.Errorf("log line missing request_id: %s", buf.String())
	}

	buf.Reset()
	LoggerWithRequestID(context.Background(), logger).Info("hello")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("log line should not carry request_id: %s", buf.String())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		upstream  string
		expectNew bool
	}{
		{name: "generates ID when absent", upstream: "", expectNew: true},
		{name: "keeps valid upstream ID", upstream: "upstream-request-id_42", expectNew: false},
		{name: "rejects spaces", upstream: "id with spaces", expectNew: true},
		{name: "rejects markup", upstream: "<script>alert(1)</script>", expectNew: true},
		{name: "rejects overlong ID", upstream: strings.Repeat("a", 129), expectNew: true},
		{name: "accepts 128 characters", upstream: strings.Repeat("a", 128), expectNew: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID, headerID string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
				headerID = r.Header.Get(RequestIDHeader)
			}))

			req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
			if tt.upstream != "" {
				req.Header.Set(RequestIDHeader, tt.upstream)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			responseID := rec.Header().Get(RequestIDHeader)
			if responseID == "" || responseID != ctxID || responseID != headerID {
				t.Fatalf("IDs differ: response %q, context %q, forwarded header %q", responseID, ctxID, headerID)
			}

			if tt.expectNew {
				if responseID == tt.upstream {
					t.Error("expected a freshly generated request ID")
				}
				if len(responseID) != 22 {
					t.Errorf("generated ID length = %d, want 22", len(responseID))
				}
			} else if responseID != tt.upstream {
				t.Errorf("request ID = %q, want upstream %q", responseID, tt.upstream)
			}
		})
	}
}
