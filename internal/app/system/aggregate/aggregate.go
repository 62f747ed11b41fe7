// Package aggregate fans a set of resolved queries out to the backend and
// assembles the replies into one view-model.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ViewModel maps a query key to the verbatim JSON payload the backend
// returned for it.
type ViewModel map[string]json.RawMessage

// Keys returns the keys in sorted order.
func (vm ViewModel) Keys() []string {
	out := make([]string, 0, len(vm))
	for k := range vm {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Decode unmarshals the payload stored under key into v.
func (vm ViewModel) Decode(key string, v any) error {
	raw, ok := vm[key]
	if !ok {
		return fmt.Errorf("view-model has no %q", key)
	}
	return json.Unmarshal(raw, v)
}

// Fetcher performs one backend GET.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (json.RawMessage, error)
}

// AggregationError reports the query that failed a fan-out.
type AggregationError struct {
	Key  string
	Path string
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("query %s (%s): %v", e.Key, e.Path, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

// Outcome describes one finished query.
type Outcome struct {
	Key      string
	Path     string
	Duration time.Duration
	Err      error
}

// Observer receives every finished query, including those that lost the race
// to a sibling failure. It is called from the fetching goroutine.
type Observer func(Outcome)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithObserver installs o. Multiple observers are called in order.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// Aggregator runs fan-outs against a Fetcher.
type Aggregator struct {
	fetcher   Fetcher
	logger    *zap.Logger
	observers []Observer
}

// New returns an Aggregator.
func New(f Fetcher, logger *zap.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{fetcher: f, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate fetches every query concurrently and waits for all of them.
//
// The result is all-or-nothing: if any query fails, the first failure comes
// back as *AggregationError and no view-model is returned. Remaining queries
// are cancelled through their context but still waited for. An empty query
// set yields an empty view-model.
func (a *Aggregator) Aggregate(ctx context.Context, queries []viewquery.Resolved) (ViewModel, error) {
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		if seen[q.Key] {
			return nil, fmt.Errorf("aggregate: duplicate key %q", q.Key)
		}
		seen[q.Key] = true
	}

	results := make([]json.RawMessage, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			start := time.Now()
			raw, err := a.fetcher.Fetch(gctx, q.Path)
			a.observe(Outcome{Key: q.Key, Path: q.Path, Duration: time.Since(start), Err: err})
			if err != nil {
				return &AggregationError{Key: q.Key, Path: q.Path, Err: err}
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Debug("fan-out failed", zap.Int("queries", len(queries)), zap.Error(err))
		return nil, err
	}

	vm := make(ViewModel, len(queries))
	for i, q := range queries {
		vm[q.Key] = results[i]
	}
	return vm, nil
}

// Fetch runs a single query through the same observation path as Aggregate.
func (a *Aggregator) Fetch(ctx context.Context, q viewquery.Resolved) (json.RawMessage, error) {
	vm, err := a.Aggregate(ctx, []viewquery.Resolved{q})
	if err != nil {
		return nil, err
	}
	return vm[q.Key], nil
}

func (a *Aggregator) observe(o Outcome) {
	for _, fn := range a.observers {
		fn(o)
	}
}
