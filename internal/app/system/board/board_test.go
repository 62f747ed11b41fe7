package board

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"github.com/google/go-cmp/cmp"
)

// echoAgg answers every query with its own path, so tests can see what was
// resolved.
type echoAgg struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (a *echoAgg) Aggregate(_ context.Context, qs []viewquery.Resolved) (aggregate.ViewModel, error) {
	a.mu.Lock()
	a.calls++
	fail := a.fail
	a.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	vm := make(aggregate.ViewModel, len(qs))
	for _, q := range qs {
		vm[q.Key] = json.RawMessage(strconv.Quote(q.Path))
	}
	return vm, nil
}

func (a *echoAgg) setFail(err error) {
	a.mu.Lock()
	a.fail = err
	a.mu.Unlock()
}

func (a *echoAgg) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// gatedAgg holds each fan-out until the test replies to it.
type gatedAgg struct {
	calls chan *gatedCall
}

type gatedCall struct {
	queries []viewquery.Resolved
	reply   chan gatedReply
}

type gatedReply struct {
	vm  aggregate.ViewModel
	err error
}

func newGatedAgg() *gatedAgg {
	return &gatedAgg{calls: make(chan *gatedCall, 8)}
}

func (a *gatedAgg) Aggregate(_ context.Context, qs []viewquery.Resolved) (aggregate.ViewModel, error) {
	c := &gatedCall{queries: qs, reply: make(chan gatedReply, 1)}
	a.calls <- c
	r := <-c.reply
	return r.vm, r.err
}

func (a *gatedAgg) next(t *testing.T) *gatedCall {
	t.Helper()
	select {
	case c := <-a.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no fan-out started")
		return nil
	}
}

func rolling(key string, r catalog.Resource) viewquery.Query {
	return viewquery.Generated(key, []viewquery.Field{viewquery.FieldWindow}, func(sel viewquery.Selection) string {
		return catalog.Rolling(r, sel.IntOr(viewquery.FieldWindow, 7))
	})
}

func testTable(t *testing.T) *viewquery.Table {
	t.Helper()
	dateQuery := viewquery.Generated("summary", []viewquery.Field{viewquery.FieldDate}, func(sel viewquery.Selection) string {
		return catalog.Day(sel.Get(viewquery.FieldDate), catalog.KindSummary)
	})
	rangeQuery := viewquery.Generated("summary", []viewquery.Field{viewquery.FieldDate, viewquery.FieldDuration}, func(sel viewquery.Selection) string {
		return catalog.Range(sel.Get(viewquery.FieldDate), sel.IntOr(viewquery.FieldDuration, 7), catalog.KindSummary)
	})

	tbl, err := viewquery.NewTable(viewquery.Config{
		Page: "test",
		Fields: []viewquery.FieldSpec{
			{Name: viewquery.FieldResource, Default: "cpu", Persistent: true, Options: []viewquery.Option{{Value: "cpu"}, {Value: "storage"}}},
			{Name: viewquery.FieldWindow, Default: "7", Numeric: true, Max: 365, Lockable: true, Locked: true},
			{Name: viewquery.FieldMonth, Layout: viewquery.MonthLayout, Resets: []viewquery.Field{viewquery.FieldDate}},
			{Name: viewquery.FieldDate, Layout: viewquery.DateLayout},
			{Name: viewquery.FieldDuration, Numeric: true, Max: 90, Lockable: true, ClearOnUnlock: true, Resets: []viewquery.Field{viewquery.FieldDate}},
		},
		Views: []viewquery.View{
			{
				Name:    "trend",
				Queries: []viewquery.Query{viewquery.Static(catalog.UsageTrends), rolling("cpuRoll", catalog.CPU)},
				Inputs:  []viewquery.Field{viewquery.FieldResource, viewquery.FieldWindow},
			},
			{
				Name:     "day",
				Requires: []viewquery.Field{viewquery.FieldDate},
				Queries:  []viewquery.Query{dateQuery},
				Inputs:   []viewquery.Field{viewquery.FieldResource, viewquery.FieldMonth, viewquery.FieldDate},
			},
			{
				Name:     "custom",
				Requires: []viewquery.Field{viewquery.FieldDate, viewquery.FieldDuration},
				Queries:  []viewquery.Query{rangeQuery},
				Inputs:   []viewquery.Field{viewquery.FieldMonth, viewquery.FieldDate, viewquery.FieldDuration},
				Defaults: map[viewquery.Field]string{viewquery.FieldDuration: "7"},
			},
		},
		Sources: []viewquery.OptionSource{{
			Field:    viewquery.FieldDate,
			Requires: []viewquery.Field{viewquery.FieldMonth},
			Query: viewquery.Generated("dates", []viewquery.Field{viewquery.FieldMonth}, func(sel viewquery.Selection) string {
				return catalog.DatesInMonth(sel.Get(viewquery.FieldMonth))
			}),
			Decode: func(raw json.RawMessage, _ viewquery.Selection) ([]viewquery.Option, error) {
				var p string
				if err := json.Unmarshal(raw, &p); err != nil {
					return nil, err
				}
				return []viewquery.Option{{Value: p, Label: p}}, nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return tbl
}

func wait(t *testing.T, m *Machine, gen uint64) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := m.Wait(ctx, gen)
	if err != nil {
		t.Fatalf("Wait(%d) error = %v", gen, err)
	}
	return s
}

func vmString(t *testing.T, s Snapshot, key string) string {
	t.Helper()
	var out string
	if err := s.ViewModel.Decode(key, &out); err != nil {
		t.Fatalf("view-model %q: %v", key, err)
	}
	return out
}

func TestStart_PublishesFirstCycle(t *testing.T) {
	m := New(testTable(t), &echoAgg{})
	defer m.Close()

	if s := m.Snapshot(); s.State != Idle || len(s.ViewModel) != 0 {
		t.Fatalf("before Start: state = %v, vm = %v", s.State, s.ViewModel)
	}

	s := wait(t, m, m.Start())
	if s.State != Ready {
		t.Fatalf("state = %v, want ready", s.State)
	}
	want := map[string]string{"usageTrends": "usage-trends", "cpuRoll": "features/cpu/rolling/7"}
	got := map[string]string{}
	for _, k := range s.ViewModel.Keys() {
		got[k] = vmString(t, s, k)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("view-model mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_NonDependencyDoesNotRefetch(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	wait(t, m, m.Start())

	gen, err := m.Set(viewquery.FieldResource, "storage")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	s := wait(t, m, gen)
	if s.Generation != 1 || agg.callCount() != 1 {
		t.Errorf("generation = %d, calls = %d; want no new cycle", s.Generation, agg.callCount())
	}
	if s.Selection[viewquery.FieldResource] != "storage" {
		t.Errorf("resource = %q, want storage", s.Selection[viewquery.FieldResource])
	}
}

func TestLockSemantics(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	wait(t, m, m.Start())

	if _, err := m.Set(viewquery.FieldWindow, "30"); !errors.Is(err, ErrLocked) {
		t.Fatalf("Set(locked) error = %v, want ErrLocked", err)
	}

	if _, err := m.Unlock(viewquery.FieldWindow); err != nil {
		t.Fatal(err)
	}
	gen, err := m.Set(viewquery.FieldWindow, "30")
	if err != nil {
		t.Fatal(err)
	}
	s := wait(t, m, gen)
	if agg.callCount() != 1 {
		t.Errorf("editing a draft refetched: calls = %d", agg.callCount())
	}
	if s.Selection[viewquery.FieldWindow] != "7" || s.Value(viewquery.FieldWindow) != "30" {
		t.Errorf("committed = %q, shown = %q; want 7 and 30", s.Selection[viewquery.FieldWindow], s.Value(viewquery.FieldWindow))
	}

	if _, err := m.Set(viewquery.FieldWindow, "0"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Set(0) error = %v, want ErrInvalidValue", err)
	}

	gen, err = m.Lock(viewquery.FieldWindow)
	if err != nil {
		t.Fatal(err)
	}
	s = wait(t, m, gen)
	if s.State != Ready || !s.IsLocked(viewquery.FieldWindow) {
		t.Fatalf("state = %v, locked = %v", s.State, s.IsLocked(viewquery.FieldWindow))
	}
	if got := vmString(t, s, "cpuRoll"); got != "features/cpu/rolling/30" {
		t.Errorf("cpuRoll = %q, want window 30", got)
	}
	if len(s.Drafts) != 0 {
		t.Errorf("drafts = %v, want none after lock", s.Drafts)
	}
}

func TestLock_UnchangedValueDoesNotRefetch(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	wait(t, m, m.Start())

	if _, err := m.Unlock(viewquery.FieldWindow); err != nil {
		t.Fatal(err)
	}
	gen, err := m.Lock(viewquery.FieldWindow)
	if err != nil {
		t.Fatal(err)
	}
	wait(t, m, gen)
	if agg.callCount() != 1 {
		t.Errorf("calls = %d, want 1", agg.callCount())
	}
}

func TestSetView_ResetsNonPersistentFields(t *testing.T) {
	m := New(testTable(t), &echoAgg{})
	defer m.Close()
	wait(t, m, m.Start())

	if _, err := m.Set(viewquery.FieldResource, "storage"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Unlock(viewquery.FieldWindow); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(viewquery.FieldWindow, "90"); err != nil {
		t.Fatal(err)
	}

	gen, err := m.SetView("day")
	if err != nil {
		t.Fatal(err)
	}
	s := wait(t, m, gen)
	if s.State != Idle {
		t.Errorf("state = %v, want idle until a date is picked", s.State)
	}
	if len(s.ViewModel) != 0 {
		t.Errorf("view-model = %v, want empty", s.ViewModel)
	}

	gen, err = m.SetView("trend")
	if err != nil {
		t.Fatal(err)
	}
	s = wait(t, m, gen)
	if s.Selection[viewquery.FieldResource] != "storage" {
		t.Errorf("persistent resource = %q, want storage", s.Selection[viewquery.FieldResource])
	}
	if s.Selection[viewquery.FieldWindow] != "7" || !s.IsLocked(viewquery.FieldWindow) || len(s.Drafts) != 0 {
		t.Errorf("window = %q locked = %v drafts = %v; want defaults", s.Selection[viewquery.FieldWindow], s.IsLocked(viewquery.FieldWindow), s.Drafts)
	}
}

func TestSetView_SameViewIsNoop(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	first := m.Start()
	wait(t, m, first)

	gen, err := m.SetView("trend")
	if err != nil || gen != first {
		t.Errorf("SetView(same) = %d, %v; want %d, nil", gen, err, first)
	}
	if _, err := m.SetView("nope"); !errors.Is(err, ErrUnknownView) {
		t.Errorf("SetView(nope) error = %v", err)
	}
}

func TestMonthResetsDate(t *testing.T) {
	m := New(testTable(t), &echoAgg{})
	defer m.Close()
	wait(t, m, m.Start())
	if _, err := m.SetView("day"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(viewquery.FieldMonth, "2024-03"); err != nil {
		t.Fatal(err)
	}
	gen, err := m.Set(viewquery.FieldDate, "2024-03-05")
	if err != nil {
		t.Fatal(err)
	}
	s := wait(t, m, gen)
	if s.State != Ready || vmString(t, s, "summary") != "features/2024-03-05/summary" {
		t.Fatalf("state = %v, vm = %v", s.State, s.ViewModel)
	}

	gen, err = m.Set(viewquery.FieldMonth, "2024-04")
	if err != nil {
		t.Fatal(err)
	}
	s = wait(t, m, gen)
	if s.Selection[viewquery.FieldDate] != "" {
		t.Errorf("date = %q, want reset", s.Selection[viewquery.FieldDate])
	}
	if s.State != Idle {
		t.Errorf("state = %v, want idle", s.State)
	}
}

func TestCustomDuration_ClearOnUnlock(t *testing.T) {
	m := New(testTable(t), &echoAgg{})
	defer m.Close()
	wait(t, m, m.Start())

	if _, err := m.SetView("custom"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(viewquery.FieldMonth, "2024-03"); err != nil {
		t.Fatal(err)
	}
	gen, err := m.Set(viewquery.FieldDate, "2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	s := wait(t, m, gen)
	if s.State != Idle || s.Value(viewquery.FieldDuration) != "7" || s.Selection[viewquery.FieldDuration] != "" {
		t.Fatalf("state = %v, duration shown %q committed %q", s.State, s.Value(viewquery.FieldDuration), s.Selection[viewquery.FieldDuration])
	}

	if _, err := m.Set(viewquery.FieldDuration, "14"); err != nil {
		t.Fatal(err)
	}
	gen, err = m.Lock(viewquery.FieldDuration)
	if err != nil {
		t.Fatal(err)
	}
	s = wait(t, m, gen)
	// Committing a duration resets the date, so the board waits for a new one.
	if s.State != Idle || s.Selection[viewquery.FieldDuration] != "14" || s.Selection[viewquery.FieldDate] != "" {
		t.Fatalf("after lock: state = %v, selection = %v", s.State, s.Selection)
	}

	gen, err = m.Set(viewquery.FieldDate, "2024-03-02")
	if err != nil {
		t.Fatal(err)
	}
	s = wait(t, m, gen)
	if got := vmString(t, s, "summary"); got != "features/range/2024-03-02/14/summary" {
		t.Errorf("summary = %q", got)
	}

	gen, err = m.Unlock(viewquery.FieldDuration)
	if err != nil {
		t.Fatal(err)
	}
	s = wait(t, m, gen)
	if s.State != Idle || s.Selection[viewquery.FieldDuration] != "" || s.Value(viewquery.FieldDuration) != "14" {
		t.Errorf("after unlock: state = %v, selection = %v, drafts = %v", s.State, s.Selection, s.Drafts)
	}
	if s.Selection[viewquery.FieldDate] != "2024-03-02" {
		t.Errorf("unlock should keep the date, got %q", s.Selection[viewquery.FieldDate])
	}
}

func TestStaleCycleDiscarded(t *testing.T) {
	agg := newGatedAgg()
	events := make(chan Event, 8)
	m := New(testTable(t), agg, WithObserver(func(ev Event) { events <- ev }))
	defer func() {
		go func() {
			for c := range agg.calls {
				c.reply <- gatedReply{}
			}
		}()
		m.Close()
	}()

	g1 := m.Start()
	c1 := agg.next(t)

	if _, err := m.Unlock(viewquery.FieldWindow); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(viewquery.FieldWindow, "30"); err != nil {
		t.Fatal(err)
	}
	g2, err := m.Lock(viewquery.FieldWindow)
	if err != nil {
		t.Fatal(err)
	}
	if g2 <= g1 {
		t.Fatalf("generation did not advance: %d then %d", g1, g2)
	}
	c2 := agg.next(t)

	c2.reply <- gatedReply{vm: aggregate.ViewModel{"cpuRoll": json.RawMessage(`"G2"`)}}
	s := wait(t, m, g2)
	if s.State != Ready || vmString(t, s, "cpuRoll") != "G2" {
		t.Fatalf("after G2: state = %v vm = %v", s.State, s.ViewModel)
	}

	c1.reply <- gatedReply{vm: aggregate.ViewModel{"cpuRoll": json.RawMessage(`"G1"`)}}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Generation != g1 {
				continue
			}
			if ev.Outcome != OutcomeStale {
				t.Fatalf("G1 outcome = %v, want stale", ev.Outcome)
			}
			if got := vmString(t, m.Snapshot(), "cpuRoll"); got != "G2" {
				t.Errorf("cpuRoll = %q after stale settle, want G2", got)
			}
			return
		case <-deadline:
			t.Fatal("G1 never settled")
		}
	}
}

func TestFailure_RetainsSameViewModel(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	ready := wait(t, m, m.Start())

	boom := &aggregate.AggregationError{Key: "cpuRoll", Path: "x", Err: errors.New("status 500")}
	agg.setFail(boom)
	gen, err := m.Refresh()
	if err != nil {
		t.Fatal(err)
	}
	s := wait(t, m, gen)
	if s.State != Error {
		t.Fatalf("state = %v, want error", s.State)
	}
	var aggErr *aggregate.AggregationError
	if !errors.As(s.Err, &aggErr) || s.Error == "" {
		t.Errorf("Err = %v, want the aggregation error", s.Err)
	}
	if diff := cmp.Diff(ready.ViewModel, s.ViewModel); diff != "" {
		t.Errorf("last good view-model not retained:\n%s", diff)
	}

	if _, err := m.SetView("day"); err != nil {
		t.Fatal(err)
	}
	gen, err = m.Set(viewquery.FieldDate, "2024-03-05")
	if err != nil {
		t.Fatal(err)
	}
	s = wait(t, m, gen)
	if s.State != Error || len(s.ViewModel) != 0 {
		t.Errorf("other view's model leaked: state = %v vm = %v", s.State, s.ViewModel)
	}
}

func TestOptions(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	wait(t, m, m.Start())

	if _, err := m.Options(context.Background(), viewquery.FieldDate); !errors.Is(err, viewquery.ErrIncomplete) {
		t.Errorf("Options() without month error = %v", err)
	}
	if _, err := m.SetView("day"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(viewquery.FieldMonth, "2024-03"); err != nil {
		t.Fatal(err)
	}
	before := m.Snapshot()
	opts, err := m.Options(context.Background(), viewquery.FieldDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 1 || opts[0].Value != "features/dates/2024-03" {
		t.Errorf("Options() = %v", opts)
	}
	if after := m.Snapshot(); after.Generation != before.Generation {
		t.Error("loading options launched a cycle")
	}
	if _, err := m.Options(context.Background(), viewquery.FieldWindow); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Options(window) error = %v", err)
	}
}

func TestLockWith(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	wait(t, m, m.Start())

	// Already locked: the value is ignored.
	gen, err := m.LockWith(viewquery.FieldWindow, "30")
	if err != nil {
		t.Fatal(err)
	}
	if s := wait(t, m, gen); s.Selection[viewquery.FieldWindow] != "7" || agg.callCount() != 1 {
		t.Fatalf("window = %q, calls = %d; want 7 and no new cycle", s.Selection[viewquery.FieldWindow], agg.callCount())
	}

	if _, err := m.Unlock(viewquery.FieldWindow); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LockWith(viewquery.FieldWindow, "0"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("LockWith(0) error = %v, want ErrInvalidValue", err)
	}
	if s := m.Snapshot(); s.IsLocked(viewquery.FieldWindow) {
		t.Error("a rejected value engaged the lock")
	}

	gen, err = m.LockWith(viewquery.FieldWindow, "30")
	if err != nil {
		t.Fatal(err)
	}
	s := wait(t, m, gen)
	if !s.IsLocked(viewquery.FieldWindow) || vmString(t, s, "cpuRoll") != "features/cpu/rolling/30" || len(s.Drafts) != 0 {
		t.Errorf("locked = %v, vm = %v, drafts = %v", s.IsLocked(viewquery.FieldWindow), s.ViewModel, s.Drafts)
	}

	if _, err := m.LockWith(viewquery.FieldResource, "cpu"); !errors.Is(err, ErrNotLockable) {
		t.Errorf("LockWith(resource) error = %v, want ErrNotLockable", err)
	}
}

func TestLockWith_Concurrent(t *testing.T) {
	m := New(testTable(t), &echoAgg{})
	defer m.Close()
	wait(t, m, m.Start())
	if _, err := m.Unlock(viewquery.FieldWindow); err != nil {
		t.Fatal(err)
	}

	// Racing submits each lock with their own value; exactly one wins and
	// no value is committed that no submit carried.
	values := []string{"14", "30", "60", "90"}
	var wg sync.WaitGroup
	for _, v := range values {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.LockWith(viewquery.FieldWindow, v); err != nil {
				t.Errorf("LockWith(%s) error = %v", v, err)
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	got := s.Selection[viewquery.FieldWindow]
	found := false
	for _, v := range values {
		found = found || v == got
	}
	if !found || !s.IsLocked(viewquery.FieldWindow) || len(s.Drafts) != 0 {
		t.Errorf("window = %q locked = %v drafts = %v", got, s.IsLocked(viewquery.FieldWindow), s.Drafts)
	}
}

func TestOptions_CachedPerSourcePath(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	wait(t, m, m.Start())
	if _, err := m.SetView("day"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(viewquery.FieldMonth, "2024-03"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		opts, err := m.Options(context.Background(), viewquery.FieldDate)
		if err != nil {
			t.Fatal(err)
		}
		if len(opts) != 1 || opts[0].Value != "features/dates/2024-03" {
			t.Fatalf("Options() = %v", opts)
		}
	}
	if got := agg.callCount(); got != 2 {
		t.Errorf("calls = %d, want the first cycle and one options fetch", got)
	}

	if _, err := m.Set(viewquery.FieldMonth, "2024-04"); err != nil {
		t.Fatal(err)
	}
	opts, err := m.Options(context.Background(), viewquery.FieldDate)
	if err != nil {
		t.Fatal(err)
	}
	if opts[0].Value != "features/dates/2024-04" || agg.callCount() != 3 {
		t.Errorf("after month change: options = %v, calls = %d", opts, agg.callCount())
	}

	// A failed fetch is not cached.
	if _, err := m.Refresh(); err != nil {
		t.Fatal(err)
	}
	agg.setFail(errors.New("down"))
	if _, err := m.Options(context.Background(), viewquery.FieldDate); err == nil {
		t.Fatal("Options() after Refresh used the cache")
	}
	agg.setFail(nil)
	if _, err := m.Options(context.Background(), viewquery.FieldDate); err != nil {
		t.Errorf("Options() after recovery error = %v", err)
	}
}

func TestInputErrors(t *testing.T) {
	agg := &echoAgg{}
	m := New(testTable(t), agg)
	defer m.Close()
	wait(t, m, m.Start())
	if _, err := m.SetView("day"); err != nil {
		t.Fatal(err)
	}
	before := m.Snapshot()

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"unknown field", func() error { _, err := m.Set("nope", "x"); return err }, ErrUnknownField},
		{"bad option", func() error { _, err := m.Set(viewquery.FieldResource, "gpu"); return err }, ErrInvalidValue},
		{"lock without lock", func() error { _, err := m.Lock(viewquery.FieldResource); return err }, ErrNotLockable},
		{"unlock unknown", func() error { _, err := m.Unlock("nope"); return err }, ErrUnknownField},
		{"date with path", func() error { _, err := m.Set(viewquery.FieldDate, "../../models/retrain?force=true#"); return err }, ErrInvalidValue},
		{"date text", func() error { _, err := m.Set(viewquery.FieldDate, "not-a-date"); return err }, ErrInvalidValue},
		{"month with path", func() error { _, err := m.Set(viewquery.FieldMonth, "2024-13/../../x"); return err }, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	after := m.Snapshot()
	if after.Generation != before.Generation || agg.callCount() != 1 {
		t.Errorf("rejected input started a cycle: generation %d -> %d, calls = %d", before.Generation, after.Generation, agg.callCount())
	}
	if after.Selection[viewquery.FieldDate] != "" || after.Selection[viewquery.FieldMonth] != "" {
		t.Errorf("rejected input was committed: %v", after.Selection)
	}
}

func TestClose(t *testing.T) {
	m := New(testTable(t), &echoAgg{})
	wait(t, m, m.Start())
	m.Close()
	m.Close()

	if _, err := m.Refresh(); !errors.Is(err, ErrClosed) {
		t.Errorf("Refresh() after Close error = %v", err)
	}
	if _, err := m.Set(viewquery.FieldResource, "storage"); !errors.Is(err, ErrClosed) {
		t.Errorf("Set() after Close error = %v", err)
	}
}

func TestSnapshotJSON(t *testing.T) {
	m := New(testTable(t), &echoAgg{})
	defer m.Close()
	s := wait(t, m, m.Start())

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"page", "state", "generation", "view", "selection", "locked", "drafts", "viewModel"} {
		if _, ok := decoded[k]; !ok {
			t.Errorf("snapshot JSON missing %q: %s", k, b)
		}
	}
	if string(decoded["state"]) != `"ready"` {
		t.Errorf("state = %s, want \"ready\"", decoded["state"])
	}
	if string(decoded["viewModel"]) != `{"cpuRoll":"features/cpu/rolling/7","usageTrends":"usage-trends"}` {
		t.Errorf("viewModel = %s", decoded["viewModel"])
	}
}
