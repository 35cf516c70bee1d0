package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sternrassler/pagefetch/pkg/metrics"
	_ "github.com/Sternrassler/pagefetch/pkg/pagination"
)

func TestRegistry(t *testing.T) {
	if metrics.Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if metrics.Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestHandler(t *testing.T) {
	server := httptest.NewServer(metrics.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, name := range []string{
		"pagefetch_pages_total",
		"pagefetch_records_total",
		"pagefetch_partitions_in_flight",
		"promhttp_metric_handler_requests_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected metric %s in output", name)
		}
	}
}

func TestHandler_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	oldRegistry, oldGatherer := metrics.Registry, metrics.Gatherer
	metrics.Registry, metrics.Gatherer = reg, reg
	defer func() { metrics.Registry, metrics.Gatherer = oldRegistry, oldGatherer }()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pagefetch_custom_total", Help: "custom"})
	reg.MustRegister(counter)
	counter.Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "pagefetch_custom_total 1") {
		t.Errorf("Expected custom counter in output, got %q", body)
	}
	if !strings.Contains(body, "promhttp_metric_handler_requests_total") {
		t.Error("Expected handler counters registered on the custom registry")
	}
	if strings.Contains(body, "pagefetch_pages_total") {
		t.Error("Default registry metrics should not be served from a custom registry")
	}
}
