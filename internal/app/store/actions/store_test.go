package actions

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratacast/internal/testutil"
	"github.com/google/uuid"
)

func TestStore_StartAndFinish(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	id := uuid.NewString()
	started, err := store.Start(ctx, Action{ActionID: id, Kind: KindRetrain, Force: true, Visitor: "v1"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Outcome != OutcomePending || started.StartedAt.IsZero() {
		t.Errorf("Start() = %+v", started)
	}

	if err := store.Finish(ctx, id, OutcomeSucceeded, "Successfully retrained 3 models", 3); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Outcome != OutcomeSucceeded || got.Count != 3 || got.FinishedAt == nil || !got.Force {
		t.Errorf("Get() = %+v", got)
	}
	if got.Duration() < 0 {
		t.Errorf("Duration() = %v", got.Duration())
	}
}

func TestStore_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Start(ctx, Action{Kind: KindSwitch}); err == nil {
		t.Error("Start() without id should fail")
	}
	if _, err := store.Start(ctx, Action{ActionID: "x", Kind: "delete"}); err == nil {
		t.Error("Start() with unknown kind should fail")
	}
	if err := store.Finish(ctx, "missing", OutcomeFailed, "", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_RecentAndRetention(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, visitor := range []string{"a", "b", "a"} {
		_, err := store.Start(ctx, Action{
			ActionID:  uuid.NewString(),
			Kind:      KindSwitch,
			Visitor:   visitor,
			StartedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.Recent(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || !all[0].StartedAt.After(all[2].StartedAt) {
		t.Fatalf("Recent() order wrong: %+v", all)
	}

	mine, err := store.Recent(ctx, "a", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || !mine[0].StartedAt.Equal(base.Add(48*time.Hour)) {
		t.Errorf("Recent(a, 1) = %+v", mine)
	}

	n, err := store.DeleteOlderThan(ctx, base.Add(36*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("DeleteOlderThan() = %d, want 2", n)
	}
}
