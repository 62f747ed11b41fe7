package overview

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"github.com/dalemusser/stratacast/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func mustTable(t *testing.T) *viewquery.Table {
	t.Helper()
	tbl, err := NewTable()
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func keys(rs []viewquery.Resolved) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Key
	}
	return out
}

func TestTable_OverviewQueries(t *testing.T) {
	tbl := mustTable(t)
	sel := viewquery.NewSelection("overview", map[viewquery.Field]string{
		viewquery.FieldResource: ResourceCPU,
		viewquery.FieldWindow:   "7",
	})
	rs, err := tbl.Resolve(sel)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"usageTrends", "insights", "topRegions", "peakDemand", "peakDemandStorage",
		"topRegionsStorage", "insightsStorage", "usageTrendsStorage", "peakEfficiency",
		"topRegionsEfficiency", "cpuRoll", "storageRoll", "usersRoll",
	}
	if diff := cmp.Diff(want, keys(rs)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	// The resource picks cards; only the window drives fetching.
	if tbl.Depends("overview", viewquery.FieldResource) {
		t.Error("resource should not trigger a refetch")
	}
	if !tbl.Depends("overview", viewquery.FieldWindow) {
		t.Error("window should trigger a refetch")
	}
}

func TestTable_RollingKeysIgnoreWindow(t *testing.T) {
	tbl := mustTable(t)
	paths := map[string]string{}
	for _, w := range []string{"7", "30"} {
		rs, err := tbl.Resolve(viewquery.NewSelection("overview", map[viewquery.Field]string{viewquery.FieldWindow: w}))
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range rs {
			if r.Key == "cpuRoll" {
				paths[w] = r.Path
			}
		}
	}
	if paths["7"] != "features/cpu/rolling/7" || paths["30"] != "features/cpu/rolling/30" {
		t.Errorf("cpuRoll paths = %v", paths)
	}
}

func TestTable_OtherViewsTakeNoInput(t *testing.T) {
	tbl := mustTable(t)
	for _, view := range []string{"resources", "regions"} {
		if tbl.Editable(view, viewquery.FieldWindow) || tbl.Editable(view, viewquery.FieldResource) {
			t.Errorf("%s exposes inputs", view)
		}
	}
}

// serve answers every overview path on a fake backend and mounts the page.
func serve(t *testing.T) (http.Handler, *testutil.FakeBackend) {
	t.Helper()
	testutil.MustBootTemplates(t)
	fb := testutil.NewFakeBackend(t)

	tbl := mustTable(t)
	for _, v := range tbl.Views() {
		rs, err := tbl.Resolve(viewquery.NewSelection(v.Name, map[viewquery.Field]string{viewquery.FieldWindow: "7"}))
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range rs {
			fb.Handle(r.Path, fmt.Sprintf(`[{"label":%q,"value":1}]`, r.Key))
		}
	}

	reg := board.NewRegistry(zap.NewNop())
	t.Cleanup(reg.Close)
	reg.Register(tbl, aggregate.New(fb.Client(t), zap.NewNop()))

	h := NewHandler(reg, zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/"+Page, Routes(h))
	return r, fb
}

func TestPage_RendersCards(t *testing.T) {
	r, _ := serve(t)

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/overview/"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "CPU Usage Trends", "CPU Rolling (Last 7 Days)", `id="payload-cpuRoll"`, `"label":"cpuRoll"`)
}

func TestPage_ResourceSwitchDoesNotRefetch(t *testing.T) {
	r, fb := serve(t)

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/overview/"))
	rec.AssertStatus(t, http.StatusOK)

	rec = testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.HTMX(testutil.NewFormRequest("/overview/select",
		url.Values{"field": {"resource"}, "value": {"storage"}})))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Storage Usage Trends", "Top Regions by Efficiency")

	if n := fb.Hits(http.MethodGet, "usage-trends/storage"); n != 1 {
		t.Errorf("usage-trends/storage fetched %d times, want 1", n)
	}
}

func TestPage_LockingWindowRefetches(t *testing.T) {
	r, fb := serve(t)
	fb.Handle("features/cpu/rolling/14", `[{"day":1}]`)
	fb.Handle("features/storage/rolling/14", `[{"day":1}]`)
	fb.Handle("features/users/rolling/14", `[{"day":1}]`)

	for _, step := range []struct {
		path string
		form url.Values
	}{
		{"/overview/unlock", url.Values{"field": {"window"}}},
		{"/overview/lock", url.Values{"field": {"window"}, "value": {"14"}}},
	} {
		rec := testutil.NewRecorder()
		r.ServeHTTP(rec, testutil.HTMX(testutil.NewFormRequest(step.path, step.form)))
		rec.AssertStatus(t, http.StatusOK)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fb.Hits(http.MethodGet, "features/cpu/rolling/14") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fb.Hits(http.MethodGet, "features/cpu/rolling/14") != 1 {
		t.Error("locking the window did not refetch the rolling series")
	}
}

func TestCards(t *testing.T) {
	snap := board.Snapshot{
		View:      "resources",
		Selection: map[viewquery.Field]string{},
		ViewModel: aggregate.ViewModel{
			"monthlyTrends": []byte(`[]`),
			"holidayImpact": []byte(`[]`),
		},
	}
	got := Cards(snap)
	if len(got) != 2 || got[0].Title != "Monthly Trends" || !got[0].Wide {
		t.Errorf("Cards() = %+v", got)
	}
}
