package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// The service resource is merged with the SDK default, which fails when the
// two schema URLs differ.
func TestServiceResource_SchemaMatchesSDKDefault(t *testing.T) {
	if got := resource.Default().SchemaURL(); got != semconv.SchemaURL {
		t.Fatalf("SDK default schema = %q, service schema = %q", got, semconv.SchemaURL)
	}
	if _, err := serviceResource("brainball", "test"); err != nil {
		t.Fatalf("serviceResource: %v", err)
	}
}

func TestInitProvider_ServesPrometheus(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	p, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registry:       prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordRemoteError(context.Background(), "unreachable")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "brainball_remote_errors") {
		t.Errorf("exposition missing brainball_remote_errors:\n%s", body)
	}
}
