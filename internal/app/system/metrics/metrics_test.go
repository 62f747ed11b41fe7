package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/backend"
	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCycle(t *testing.T) {
	m := New()
	m.ObserveCycle(board.Event{Page: "overview", Outcome: board.OutcomePublished})
	m.ObserveCycle(board.Event{Page: "overview", Outcome: board.OutcomePublished})
	m.ObserveCycle(board.Event{Page: "overview", Outcome: board.OutcomeStale})

	if got := testutil.ToFloat64(m.cycles.WithLabelValues("overview", "published")); got != 2 {
		t.Errorf("published = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cycles.WithLabelValues("overview", "stale")); got != 1 {
		t.Errorf("stale = %v, want 1", got)
	}
}

func TestQueryObserver(t *testing.T) {
	m := New()
	obs := m.QueryObserver("models")

	obs(aggregate.Outcome{Key: "cpu", Duration: 30 * time.Millisecond})
	obs(aggregate.Outcome{Key: "cpu", Duration: time.Second, Err: &backend.RequestError{Status: 503}})
	obs(aggregate.Outcome{Key: "cpu", Duration: time.Second, Err: errors.New("dial tcp: refused")})

	if got := testutil.CollectAndCount(m.requests); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("models", "cpu", "503")); got != 1 {
		t.Errorf("503 failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("models", "cpu", "0")); got != 1 {
		t.Errorf("transport failures = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetBoards(4)
	m.ObserveAction("retrain", "succeeded")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"stratacast_boards 4",
		`stratacast_write_actions_total{kind="retrain",outcome="succeeded"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
