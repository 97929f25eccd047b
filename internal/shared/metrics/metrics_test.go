package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTransitionCountersAreLabelled(t *testing.T) {
	created := transitionsTotal.WithLabelValues("create_pool")
	before := testutil.ToFloat64(created)
	IncTransition("create_pool")
	IncTransition("create_pool")
	if got := testutil.ToFloat64(created) - before; got != 2 {
		t.Fatalf("expected 2 create_pool transitions, got %v", got)
	}

	rejected := rejectedTotal.WithLabelValues("submit_application", "invalid application")
	before = testutil.ToFloat64(rejected)
	IncRejected("submit_application", "invalid application")
	if got := testutil.ToFloat64(rejected) - before; got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}
}

func TestSettlementOutcomesFoldUnknownIntoFailed(t *testing.T) {
	failed := settlements.WithLabelValues("failed")
	before := testutil.ToFloat64(failed)
	IncSettlement("something-else")
	if got := testutil.ToFloat64(failed) - before; got != 1 {
		t.Fatalf("expected unknown outcome counted as failed, got %v", got)
	}
}

func TestHandlerServesRegisteredSeries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ObserveRequest("GET", "/api/v1/pools/:id", 404)
	ObserveMatchScore(60)

	r := gin.New()
	r.GET("/metrics", Handler())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{
		`http_requests_total{method="GET",route="/api/v1/pools/:id",status="404"}`,
		`application_match_score_bucket{le="75"}`,
		"outbox_flush_failures_total",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, out)
		}
	}
}
