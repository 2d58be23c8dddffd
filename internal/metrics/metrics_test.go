package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordProxy(t *testing.T) {
	ProxyRequests.Reset()
	ProxyDuration.Reset()

	RecordProxy("api", http.MethodGet, 200, 0.012)
	RecordProxy("api", http.MethodGet, 200, 0.020)

	if got := testutil.ToFloat64(ProxyRequests.WithLabelValues("api", "GET", "200")); got != 2 {
		t.Errorf("expected 2 proxied requests, got %v", got)
	}
	if count := testutil.CollectAndCount(ProxyDuration); count == 0 {
		t.Error("expected ProxyDuration to have observations")
	}
}

func TestSetUpstreamUp(t *testing.T) {
	UpstreamUp.Reset()

	SetUpstreamUp("api", true)
	if got := testutil.ToFloat64(UpstreamUp.WithLabelValues("api")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	SetUpstreamUp("api", false)
	if got := testutil.ToFloat64(UpstreamUp.WithLabelValues("api")); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}

	ForgetUpstream("api")
	if count := testutil.CollectAndCount(UpstreamUp); count != 0 {
		t.Errorf("expected series to be removed, got %d", count)
	}
}

func TestRecordReload(t *testing.T) {
	ConfigReloads.Reset()

	RecordReload(true)
	RecordReload(false)
	RecordReload(false)

	if got := testutil.ToFloat64(ConfigReloads.WithLabelValues("failure")); got != 2 {
		t.Errorf("expected 2 failures, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	UpstreamErrors.Reset()
	RecordUpstreamError("api", "unreachable")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `devproxy_upstream_errors_total{reason="unreachable",rule="api"} 1`) {
		t.Errorf("metrics output missing upstream error counter:\n%s", rec.Body.String())
	}
}
