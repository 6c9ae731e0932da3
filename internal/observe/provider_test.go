package observe

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

func TestInitProvider_ExposesMetricsOnRegistry(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test", Registry: reg})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordWindow(context.Background(), "f32le", 0.001)

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "meetscribe_pcm_windows") {
		t.Errorf("scrape output missing meetscribe_pcm_windows:\n%s", body)
	}
	if !strings.Contains(body, `service_name="meetscribe"`) {
		t.Errorf("scrape output missing service name target info:\n%s", body)
	}
}

func TestServiceResource(t *testing.T) {
	res, err := serviceResource(context.Background(), ProviderConfig{ServiceVersion: "1.2.3"})
	if err != nil {
		t.Fatalf("serviceResource: %v", err)
	}
	got := make(map[string]string)
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["service.name"] != defaultServiceName {
		t.Errorf("service.name = %q, want %q", got["service.name"], defaultServiceName)
	}
	if got["service.version"] != "1.2.3" {
		t.Errorf("service.version = %q, want 1.2.3", got["service.version"])
	}

	res, err = serviceResource(context.Background(), ProviderConfig{ServiceName: "capture-eu"})
	if err != nil {
		t.Fatalf("serviceResource: %v", err)
	}
	for _, kv := range res.Attributes() {
		if kv.Key == "service.name" && kv.Value.AsString() != "capture-eu" {
			t.Errorf("service.name = %q, want capture-eu", kv.Value.AsString())
		}
	}
}
