package board

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"go.uber.org/zap"
)

// ErrUnknownPage is returned for a page no table was registered for.
var ErrUnknownPage = errors.New("unknown page")

type page struct {
	table *viewquery.Table
	agg   Aggregator
}

type boardKey struct {
	visitor string
	page    string
}

type entry struct {
	machine  *Machine
	lastSeen time.Time
}

// Registry keeps one Machine per visitor and page. Boards are created on
// first access and discarded by Sweep once idle.
type Registry struct {
	logger  *zap.Logger
	observe func(Event)
	onSize  func(int)
	now     func() time.Time

	mu     sync.Mutex
	pages  map[string]page
	boards map[boardKey]*entry
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCycleObserver forwards every machine's cycle events to fn.
func WithCycleObserver(fn func(Event)) RegistryOption {
	return func(r *Registry) { r.observe = fn }
}

// WithSizeObserver reports the number of live boards after every change.
func WithSizeObserver(fn func(int)) RegistryOption {
	return func(r *Registry) { r.onSize = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		logger: logger,
		now:    time.Now,
		pages:  make(map[string]page),
		boards: make(map[boardKey]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes a page available. Registering a page twice replaces the
// table for boards created afterwards.
func (r *Registry) Register(t *viewquery.Table, agg Aggregator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[t.Page()] = page{table: t, agg: agg}
}

// Pages returns the registered page names, sorted.
func (r *Registry) Pages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.pages))
	for name := range r.pages {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Get returns the visitor's board for page, creating and starting it on
// first use.
func (r *Registry) Get(visitor, pageName string) (*Machine, error) {
	r.mu.Lock()
	key := boardKey{visitor: visitor, page: pageName}
	if e, ok := r.boards[key]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.machine, nil
	}
	p, ok := r.pages[pageName]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, pageName)
	}

	m := New(p.table, p.agg,
		WithLogger(r.logger.With(zap.String("page", pageName))),
		WithObserver(r.observe))
	r.boards[key] = &entry{machine: m, lastSeen: r.now()}
	n := len(r.boards)
	r.mu.Unlock()

	m.Start()
	r.reportSize(n)
	return m, nil
}

// Lookup returns an existing board without creating one or touching its
// idle clock.
func (r *Registry) Lookup(visitor, pageName string) (*Machine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.boards[boardKey{visitor: visitor, page: pageName}]
	if !ok {
		return nil, false
	}
	return e.machine, true
}

// Len returns the number of live boards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}

// Sweep closes every board not accessed within ttl and returns how many
// were removed.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var idle []*Machine
	for key, e := range r.boards {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.machine)
			delete(r.boards, key)
		}
	}
	n := len(r.boards)
	r.mu.Unlock()

	for _, m := range idle {
		m.Close()
	}
	if len(idle) > 0 {
		r.logger.Debug("swept idle boards", zap.Int("removed", len(idle)), zap.Int("remaining", n))
		r.reportSize(n)
	}
	return len(idle)
}

// Close closes every board.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Machine, 0, len(r.boards))
	for key, e := range r.boards {
		all = append(all, e.machine)
		delete(r.boards, key)
	}
	r.mu.Unlock()

	for _, m := range all {
		m.Close()
	}
	r.reportSize(0)
}

func (r *Registry) reportSize(n int) {
	if r.onSize != nil {
		r.onSize(n)
	}
}
