// Package board holds the selection state machine of one dashboard page for
// one visitor.
//
// A Machine owns the committed selection, lock flags and drafts of its page.
// Inputs that touch a field the active view depends on launch a fetch cycle;
// every cycle carries a generation number and only the latest one may publish
// its view-model.
package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"go.uber.org/zap"
)

var (
	// ErrLocked is returned when editing a field whose lock is engaged.
	ErrLocked = errors.New("field is locked")
	// ErrNotLockable is returned by Lock and Unlock on a field without a lock.
	ErrNotLockable = errors.New("field has no lock")
	// ErrClosed is returned by operations on a closed machine.
	ErrClosed = errors.New("board closed")
	// ErrStaleCycle marks a cycle that settled after a newer one launched.
	// Such a cycle is discarded and never reaches a snapshot.
	ErrStaleCycle = errors.New("stale cycle")

	ErrInvalidValue = viewquery.ErrInvalidValue
	ErrUnknownField = viewquery.ErrUnknownField
	ErrUnknownView  = viewquery.ErrUnknownView
)

// State is the lifecycle state of a board.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Aggregator runs one fan-out.
type Aggregator interface {
	Aggregate(ctx context.Context, queries []viewquery.Resolved) (aggregate.ViewModel, error)
}

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
	OutcomeStale     Outcome = "stale"
	OutcomeIdle      Outcome = "idle"
)

// Event reports a settled cycle.
type Event struct {
	Page       string
	View       string
	Generation uint64
	Outcome    Outcome
	Duration   time.Duration
	Err        error
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver installs a callback for every settled cycle. It runs with the
// machine's lock released.
func WithObserver(fn func(Event)) Option {
	return func(m *Machine) {
		m.observe = fn
	}
}

// Machine is the state machine of one board.
type Machine struct {
	table   *viewquery.Table
	agg     Aggregator
	logger  *zap.Logger
	observe func(Event)

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	sel     viewquery.Selection
	locked  map[viewquery.Field]bool
	drafts  map[viewquery.Field]string
	state   State
	vm      aggregate.ViewModel
	vmView  string
	err     error
	gen     uint64
	settled uint64
	cancel  context.CancelFunc
	changed chan struct{}

	// opts caches the raw choices of each sourced field under the path
	// they were loaded from.
	opts map[viewquery.Field]cachedOptions
}

type cachedOptions struct {
	path string
	raw  json.RawMessage
}

// New returns a machine positioned on the table's initial view with every
// field at its default. No cycle runs until Start.
func New(table *viewquery.Table, agg Aggregator, opts ...Option) *Machine {
	base, stop := context.WithCancel(context.Background())
	m := &Machine{
		table:   table,
		agg:     agg,
		logger:  zap.NewNop(),
		base:    base,
		stop:    stop,
		locked:  make(map[viewquery.Field]bool),
		drafts:  make(map[viewquery.Field]string),
		changed: make(chan struct{}),
		opts:    make(map[viewquery.Field]cachedOptions),
	}
	for _, opt := range opts {
		opt(m)
	}

	view := table.Initial()
	m.sel = viewquery.NewSelection(view, nil)
	for _, spec := range table.Fields() {
		m.resetFieldLocked(spec, view)
	}
	return m
}

// Page returns the page name of the board.
func (m *Machine) Page() string {
	return m.table.Page()
}

// Table returns the page configuration.
func (m *Machine) Table() *viewquery.Table {
	return m.table
}

// Start launches the first cycle. Later calls only report the current
// generation.
func (m *Machine) Start() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return m.gen
	}
	m.started = true
	return m.launchLocked()
}

// SetView switches the active view. Every non-persistent field, with its lock
// and draft, returns to the new view's defaults and the previous view-model
// is dropped. Selecting the active view again changes nothing.
func (m *Machine) SetView(view string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.gen, ErrClosed
	}
	if _, ok := m.table.View(view); !ok {
		return m.gen, fmt.Errorf("%w: %s", ErrUnknownView, view)
	}
	if view == m.sel.View() {
		return m.gen, nil
	}

	m.sel = m.sel.WithView(view)
	for _, spec := range m.table.Fields() {
		if spec.Persistent {
			continue
		}
		m.resetFieldLocked(spec, view)
	}
	m.vm = nil
	m.vmView = ""
	m.err = nil
	return m.launchLocked(), nil
}

// Set changes a field. On an unlocked lockable field the value is only
// staged as a draft; otherwise it is committed, dependent fields are reset,
// and a cycle launches when the active view depends on anything that changed.
func (m *Machine) Set(f viewquery.Field, value string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.gen, ErrClosed
	}
	spec, ok := m.table.Field(f)
	if !ok {
		return m.gen, fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	if spec.Lockable && m.locked[f] {
		return m.gen, fmt.Errorf("%w: %s", ErrLocked, f)
	}
	if err := m.table.Validate(m.sel.View(), f, value); err != nil {
		return m.gen, err
	}

	if spec.Lockable {
		m.stageLocked(f, value)
		return m.gen, nil
	}
	if m.commitLocked(spec, value) {
		return m.launchLocked(), nil
	}
	return m.gen, nil
}

// Lock engages f's lock and commits its draft.
func (m *Machine) Lock(f viewquery.Field) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, err := m.lockableLocked(f)
	if err != nil {
		return m.gen, err
	}
	if m.locked[f] {
		return m.gen, nil
	}
	return m.lockLocked(spec), nil
}

// LockWith stages value as f's draft and locks f in one step. When f is
// already locked the value is ignored, as it would be by Set then Lock.
func (m *Machine) LockWith(f viewquery.Field, value string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, err := m.lockableLocked(f)
	if err != nil {
		return m.gen, err
	}
	if m.locked[f] {
		return m.gen, nil
	}
	if err := m.table.Validate(m.sel.View(), f, value); err != nil {
		return m.gen, err
	}
	m.stageLocked(f, value)
	return m.lockLocked(spec), nil
}

func (m *Machine) stageLocked(f viewquery.Field, value string) {
	if value == "" {
		delete(m.drafts, f)
		return
	}
	m.drafts[f] = value
}

// lockLocked commits f's draft, or its current value, and engages the lock.
func (m *Machine) lockLocked(spec viewquery.FieldSpec) uint64 {
	f := spec.Name
	view := m.sel.View()
	value, ok := m.drafts[f]
	if !ok {
		value = m.sel.Get(f)
	}
	if value == "" {
		value = m.table.DefaultValue(view, f)
	}
	m.locked[f] = true
	delete(m.drafts, f)
	if m.commitLocked(spec, value) {
		return m.launchLocked()
	}
	return m.gen
}

// Unlock releases f's lock. The committed value becomes the draft; fields
// declared ClearOnUnlock also withdraw the committed value, which refetches
// when the view depends on it.
func (m *Machine) Unlock(f viewquery.Field) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, err := m.lockableLocked(f)
	if err != nil {
		return m.gen, err
	}
	if !m.locked[f] {
		return m.gen, nil
	}

	m.locked[f] = false
	current := m.sel.Get(f)
	if current != "" {
		m.drafts[f] = current
	}
	if !spec.ClearOnUnlock || current == "" {
		return m.gen, nil
	}
	m.sel = m.sel.With(f, "")
	if m.table.Depends(m.sel.View(), f) {
		return m.launchLocked(), nil
	}
	return m.gen, nil
}

// Refresh re-runs the active view's queries with the current selection.
func (m *Machine) Refresh() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.gen, ErrClosed
	}
	m.started = true
	clear(m.opts)
	return m.launchLocked(), nil
}

// Options loads the choices of f from its option source. A list is fetched
// once per resolved source path and reused until Refresh; the board's
// view-model is untouched.
func (m *Machine) Options(ctx context.Context, f viewquery.Field) ([]viewquery.Option, error) {
	src, ok := m.table.Source(f)
	if !ok {
		return nil, fmt.Errorf("%w: no options for %s", ErrUnknownField, f)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	sel := m.sel
	q, err := m.table.ResolveSource(f, sel)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	cached, hit := m.opts[f]
	m.mu.Unlock()

	if hit && cached.path == q.Path {
		return src.Decode(cached.raw, sel)
	}

	vm, err := m.agg.Aggregate(ctx, []viewquery.Resolved{q})
	if err != nil {
		return nil, err
	}
	raw := vm[q.Key]
	opts, err := src.Decode(raw, sel)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if !m.closed {
		m.opts[f] = cachedOptions{path: q.Path, raw: raw}
	}
	m.mu.Unlock()
	return opts, nil
}

// Wait blocks until the cycle of generation gen, or a newer one, has settled
// and returns the snapshot at that point. When ctx ends first the current
// snapshot comes back with ctx's error.
func (m *Machine) Wait(ctx context.Context, gen uint64) (Snapshot, error) {
	for {
		m.mu.Lock()
		if m.settled >= gen || m.closed {
			s := m.snapshotLocked()
			m.mu.Unlock()
			return s, nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return m.Snapshot(), ctx.Err()
		}
	}
}

// Snapshot returns a copy of the board's state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Close cancels the running cycle and waits for it to return.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.stop()
	m.notifyLocked()
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Machine) lockableLocked(f viewquery.Field) (viewquery.FieldSpec, error) {
	if m.closed {
		return viewquery.FieldSpec{}, ErrClosed
	}
	spec, ok := m.table.Field(f)
	if !ok {
		return spec, fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	if !spec.Lockable {
		return spec, fmt.Errorf("%w: %s", ErrNotLockable, f)
	}
	if !m.table.Editable(m.sel.View(), f) {
		return spec, fmt.Errorf("%w: %s", viewquery.ErrNotEditable, f)
	}
	return spec, nil
}

// resetFieldLocked returns f to its default for view. An unlocked field that
// clears on unlock keeps its default only as a draft.
func (m *Machine) resetFieldLocked(spec viewquery.FieldSpec, view string) {
	def := m.table.DefaultValue(view, spec.Name)
	delete(m.drafts, spec.Name)
	if spec.Lockable {
		m.locked[spec.Name] = spec.Locked
		if !spec.Locked && spec.ClearOnUnlock {
			if def != "" {
				m.drafts[spec.Name] = def
			}
			m.sel = m.sel.With(spec.Name, "")
			return
		}
	}
	m.sel = m.sel.With(spec.Name, def)
}

// commitLocked writes value and the resets it implies, and reports whether
// the active view depends on any field that changed.
func (m *Machine) commitLocked(spec viewquery.FieldSpec, value string) bool {
	if m.sel.Get(spec.Name) == value {
		return false
	}
	view := m.sel.View()
	changed := []viewquery.Field{spec.Name}
	m.sel = m.sel.With(spec.Name, value)

	if value != "" {
		for _, r := range spec.Resets {
			def := m.table.DefaultValue(view, r)
			delete(m.drafts, r)
			if m.sel.Get(r) != def {
				m.sel = m.sel.With(r, def)
				changed = append(changed, r)
			}
		}
	}

	for _, f := range changed {
		if m.table.Depends(view, f) {
			return true
		}
	}
	return false
}

// launchLocked supersedes any running cycle and starts a new one for the
// current selection.
func (m *Machine) launchLocked() uint64 {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	gen := m.gen
	sel := m.sel

	queries, err := m.table.Resolve(sel)
	if err != nil {
		if errors.Is(err, viewquery.ErrIncomplete) {
			m.state = Idle
			m.err = nil
		} else {
			m.state = Error
			m.err = err
		}
		m.vm = nil
		m.vmView = ""
		m.settled = gen
		m.notifyLocked()
		m.emit(Event{Page: m.table.Page(), View: sel.View(), Generation: gen, Outcome: OutcomeIdle, Err: m.err})
		return gen
	}

	ctx, cancel := context.WithCancel(m.base)
	m.cancel = cancel
	m.state = Loading
	m.err = nil

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		start := time.Now()
		vm, err := m.agg.Aggregate(ctx, queries)
		ev := Event{Page: m.table.Page(), View: sel.View(), Generation: gen, Duration: time.Since(start), Err: err}
		if serr := m.settle(gen, sel, vm, err); serr != nil {
			m.logger.Debug("cycle discarded",
				zap.String("page", ev.Page),
				zap.Uint64("generation", gen),
				zap.Error(serr))
			ev.Outcome = OutcomeStale
		} else if err != nil {
			m.logger.Warn("cycle failed",
				zap.String("page", ev.Page),
				zap.String("view", ev.View),
				zap.Uint64("generation", gen),
				zap.Error(err))
			ev.Outcome = OutcomeFailed
		} else {
			ev.Outcome = OutcomePublished
		}
		m.emit(ev)
	}()
	return gen
}

// settle publishes the outcome of cycle gen, or returns ErrStaleCycle when a
// newer cycle has launched since.
func (m *Machine) settle(gen uint64, sel viewquery.Selection, vm aggregate.ViewModel, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return fmt.Errorf("%w: generation %d, latest %d", ErrStaleCycle, gen, m.gen)
	}

	m.cancel = nil
	m.settled = gen
	if err != nil {
		m.state = Error
		m.err = err
		if m.vmView != sel.View() {
			m.vm = nil
			m.vmView = ""
		}
	} else {
		m.state = Ready
		m.err = nil
		m.vm = vm
		m.vmView = sel.View()
	}
	m.notifyLocked()
	return nil
}

func (m *Machine) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Machine) emit(ev Event) {
	if m.observe != nil {
		// Idle transitions are emitted under the lock; hand them off so the
		// observer never runs while it is held.
		go m.observe(ev)
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		Page:       m.table.Page(),
		State:      m.state,
		Generation: m.gen,
		View:       m.sel.View(),
		Selection:  m.sel.Values(),
		Locked:     make(map[viewquery.Field]bool),
		Drafts:     make(map[viewquery.Field]string, len(m.drafts)),
		ViewModel:  make(aggregate.ViewModel, len(m.vm)),
		Err:        m.err,
	}
	for f, v := range m.locked {
		s.Locked[f] = v
	}
	for f, v := range m.drafts {
		s.Drafts[f] = v
	}
	for k, v := range m.vm {
		s.ViewModel[k] = v
	}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	return s
}
