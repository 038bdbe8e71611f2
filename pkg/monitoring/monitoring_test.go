package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
)

func TestMetricsEndpoint(t *testing.T) {
	SessionRequests.WithLabelValues("create", Result(nil)).Inc()
	SessionRequests.WithLabelValues("create", Result(errors.New("x"))).Inc()

	m := New(config.Monitoring{Port: 1, URLPrefix: "/oc", MetricEnabled: true}, logger.Nop())
	rec := httptest.NewRecorder()
	m.server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/oc/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("unexpected status %v", rec.Code)
	}
	for _, want := range []string{
		`opencloud_session_requests_total{op="create",result="ok"}`,
		`opencloud_session_requests_total{op="create",result="error"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("no %v in the metrics", want)
		}
	}
}
