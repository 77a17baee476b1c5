package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, model, direction string) float64 {
	t.Helper()
	var m dto.Metric
	if err := TokenUsage.WithLabelValues(model, direction).Write(&m); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveTokens(t *testing.T) {
	ObserveTokens("test-model-a", 100, 40)
	ObserveTokens("test-model-a", 50, 10)

	if got := counterValue(t, "test-model-a", "input"); got != 150 {
		t.Errorf("input tokens = %v", got)
	}
	if got := counterValue(t, "test-model-a", "output"); got != 50 {
		t.Errorf("output tokens = %v", got)
	}
}

func TestObserveTokensSkipsZero(t *testing.T) {
	ObserveTokens("test-model-b", 0, 0)

	if got := counterValue(t, "test-model-b", "input"); got != 0 {
		t.Errorf("input tokens = %v", got)
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "other"},
		{400, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{502, "5xx"},
		{0, "other"},
	}
	for _, tt := range tests {
		if got := StatusClass(tt.code); got != tt.want {
			t.Errorf("StatusClass(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestHandlerExposition(t *testing.T) {
	UpstreamRequests.WithLabelValues("stream", "2xx").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bruecke_upstream_requests_total") {
		t.Error("exposition lacks upstream request counter")
	}
}
