package forecast

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"github.com/dalemusser/stratacast/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		change  float64
		adjust  float64
		risk    Risk
	}{
		{"short", `{"previous_sum":100,"forecast_sum":125,"recommended_adjustment":25}`, 25, 25, RiskShort},
		{"over", `{"previous_sum":200,"forecast_sum":150,"recommended_adjustment":-50}`, -25, -25, RiskOver},
		{"sufficient", `{"previous_sum":100,"forecast_sum":105.5,"recommended_adjustment":5.5}`, 5.5, 5.5, RiskSufficient},
		{"no history", `{"previous_sum":0,"forecast_sum":40,"recommended_adjustment":40}`, 0, 0, RiskSufficient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Summarize(json.RawMessage(tt.payload), catalog.ServiceCompute, 7)
			if err != nil {
				t.Fatal(err)
			}
			if s.PercentChange != tt.change || s.AdjustmentPercent != tt.adjust || s.Risk != tt.risk {
				t.Errorf("Summarize() = %+v", s)
			}
		})
	}

	if _, err := Summarize(json.RawMessage(`[1,2]`), catalog.ServiceCompute, 7); err == nil {
		t.Error("Summarize() accepted a non-object payload")
	}
}

func TestRiskFor_Boundaries(t *testing.T) {
	if RiskFor(10) != RiskSufficient || RiskFor(-10) != RiskSufficient {
		t.Error("exactly 10% should be sufficient")
	}
	if RiskFor(10.01) != RiskShort || RiskFor(-10.01) != RiskOver {
		t.Error("beyond 10% should be flagged")
	}
	if RiskShort.Class() != "risk-short" || RiskSufficient.Class() != "risk-ok" {
		t.Error("unexpected risk classes")
	}
}

func TestSummary_Wording(t *testing.T) {
	users := Summary{Service: catalog.ServiceUsers, PercentChange: 3}
	if users.Trend() != "Increased activity" || users.ShowsCapacity() {
		t.Errorf("users: %q, capacity %v", users.Trend(), users.ShowsCapacity())
	}
	storage := Summary{Service: catalog.ServiceStorage, PercentChange: -1, Adjustment: 12.5}
	if storage.Trend() != "Decreased usage" || storage.SignedAdjustment() != "+12.50" {
		t.Errorf("storage: %q %q", storage.Trend(), storage.SignedAdjustment())
	}
}

func TestTable_ResolvesForecastPath(t *testing.T) {
	tbl, err := NewTable()
	if err != nil {
		t.Fatal(err)
	}
	rs, err := tbl.Resolve(viewquery.NewSelection("forecast", map[viewquery.Field]string{
		viewquery.FieldService: "storage",
		viewquery.FieldHorizon: "14",
		viewquery.FieldRegion:  "2",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 || rs[0].Key != Key || rs[0].Path != "models/forecast?region=2&service=storage&horizon=14" {
		t.Errorf("Resolve() = %+v", rs)
	}
	if err := tbl.Validate("forecast", viewquery.FieldHorizon, "10"); err == nil {
		t.Error("horizon 10 accepted")
	}
}

const forecastBody = `{"forecasts":[{"date":"2024-04-01","predicted":10}],"previous_sum":100,"forecast_sum":120,"recommended_adjustment":20}`

func serve(t *testing.T) (http.Handler, *testutil.FakeBackend) {
	t.Helper()
	testutil.MustBootTemplates(t)
	fb := testutil.NewFakeBackend(t)
	fb.Handle("models/forecast?region=0&service=compute&horizon=7", forecastBody)
	fb.Handle("models/forecast?region=0&service=users&horizon=7", forecastBody)

	tbl, err := NewTable()
	if err != nil {
		t.Fatal(err)
	}
	client := fb.Client(t)
	reg := board.NewRegistry(zap.NewNop())
	t.Cleanup(reg.Close)
	reg.Register(tbl, aggregate.New(client, zap.NewNop()))

	r := chi.NewRouter()
	r.Mount("/"+Page, Routes(NewHandler(reg, client, zap.NewNop())))
	return r, fb
}

func TestPage_Summary(t *testing.T) {
	r, _ := serve(t)

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/forecast/"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "120.00", "+20.00", "Increased usage", "Resources are Short", "COMPUTE Forecast",
		"/forecast/download?region=0&amp;service=compute&amp;horizon=7")

	rec = testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.HTMX(testutil.NewFormRequest("/forecast/select",
		url.Values{"field": {"service"}, "value": {"users"}})))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Increased activity", "USERS Forecast")
	if strings.Contains(rec.Body.String(), "Recommended adjustment") {
		t.Error("users forecast shows a capacity adjustment")
	}
}

func TestDownload(t *testing.T) {
	r, fb := serve(t)
	fb.Set(http.MethodGet, "models/forecast/download?region=3&service=storage&horizon=30", testutil.Reply{
		Body:        "date,predicted\n2024-04-01,1\n",
		ContentType: "text/csv",
	})

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/forecast/download?region=3&service=storage&horizon=30"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "date,predicted")
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "storage_forecast_region_3.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/forecast/download?horizon=9"))
	rec.AssertStatus(t, http.StatusBadRequest)

	// The board's selection is used when no parameters are given; the
	// fake has no export for it.
	rec = testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/forecast/download"))
	rec.AssertStatus(t, http.StatusBadGateway)
	rec.AssertContains(t, "Forecasting Service Unavailable")
	if rec.Header().Get("Content-Disposition") != "" {
		t.Error("failed export still offered as an attachment")
	}
}
