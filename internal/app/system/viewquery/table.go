// Package viewquery maps a page's selection state to the backend queries
// that make up its view-model.
//
// Each page declares a Table: the fields a visitor can set, the views they
// can switch between and, per view, the queries to issue. Resolve is pure:
// the same selection always yields the same queries in the same order.
package viewquery

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

var (
	// ErrUnknownView is returned for a view the table does not declare.
	ErrUnknownView = errors.New("unknown view")
	// ErrUnknownField is returned for a field the table does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrNotEditable is returned when the active view does not expose a field.
	ErrNotEditable = errors.New("field is not editable in this view")
	// ErrInvalidValue is returned for a value outside a field's domain.
	ErrInvalidValue = errors.New("invalid value")
	// ErrIncomplete is returned by Resolve when a required field is empty.
	ErrIncomplete = errors.New("selection incomplete")
)

// Option is one choice of a selector.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldSpec declares one selectable input.
type FieldSpec struct {
	Name    Field
	Label   string
	Default string

	// Options closes the field over a fixed set of values when non-empty.
	Options []Option
	// Numeric restricts the field to positive decimal integers up to Max
	// (Max 0 means unbounded).
	Numeric bool
	Max     int
	// Layout, when set, is a time layout every value must parse with.
	Layout string

	// Persistent fields keep their value and lock state across view changes.
	Persistent bool

	// Lockable fields stage edits as a draft; only locking commits them.
	Lockable bool
	// Locked is the initial lock state.
	Locked bool
	// ClearOnUnlock withdraws the committed value while unlocked.
	ClearOnUnlock bool

	// Resets lists fields returned to their defaults whenever this field's
	// committed value changes.
	Resets []Field
}

// OptionSource loads the choices of a field from the backend.
type OptionSource struct {
	Field    Field
	Query    Query
	Requires []Field
	Decode   func(raw json.RawMessage, sel Selection) ([]Option, error)
}

// View is one closed-enumeration value of a page's view selector.
type View struct {
	Name     string
	Label    string
	Queries  []Query
	Requires []Field
	// Inputs lists the fields the view lets a visitor edit. Nil means all.
	Inputs []Field
	// Defaults overrides field defaults while this view is active.
	Defaults map[Field]string
}

// Config is the declaration a Table is built from.
type Config struct {
	Page    string
	Initial string // defaults to the first view
	Fields  []FieldSpec
	Views   []View
	Sources []OptionSource
}

// Table is a validated page configuration.
type Table struct {
	page    string
	initial string
	fields  []FieldSpec
	byField map[Field]int
	views   []View
	byView  map[string]int
	sources map[Field]OptionSource
}

// NewTable validates cfg.
func NewTable(cfg Config) (*Table, error) {
	if cfg.Page == "" {
		return nil, errors.New("viewquery: page name is required")
	}
	if len(cfg.Views) == 0 {
		return nil, fmt.Errorf("viewquery: page %s declares no views", cfg.Page)
	}

	t := &Table{
		page:    cfg.Page,
		initial: cfg.Initial,
		fields:  append([]FieldSpec(nil), cfg.Fields...),
		byField: make(map[Field]int, len(cfg.Fields)),
		views:   append([]View(nil), cfg.Views...),
		byView:  make(map[string]int, len(cfg.Views)),
		sources: make(map[Field]OptionSource, len(cfg.Sources)),
	}
	if t.initial == "" {
		t.initial = cfg.Views[0].Name
	}

	for i, f := range t.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("viewquery: page %s: field %d has no name", t.page, i)
		}
		if _, dup := t.byField[f.Name]; dup {
			return nil, fmt.Errorf("viewquery: page %s: duplicate field %s", t.page, f.Name)
		}
		t.byField[f.Name] = i
	}
	for _, f := range t.fields {
		if err := t.knownFields(f.Resets); err != nil {
			return nil, fmt.Errorf("viewquery: page %s: field %s resets: %w", t.page, f.Name, err)
		}
		if f.Default != "" {
			if err := checkValue(f, f.Default); err != nil {
				return nil, fmt.Errorf("viewquery: page %s: field %s default: %w", t.page, f.Name, err)
			}
		}
	}

	for i, v := range t.views {
		if v.Name == "" {
			return nil, fmt.Errorf("viewquery: page %s: view %d has no name", t.page, i)
		}
		if _, dup := t.byView[v.Name]; dup {
			return nil, fmt.Errorf("viewquery: page %s: duplicate view %s", t.page, v.Name)
		}
		t.byView[v.Name] = i
		if err := t.checkView(v); err != nil {
			return nil, fmt.Errorf("viewquery: page %s: view %s: %w", t.page, v.Name, err)
		}
	}
	if _, ok := t.byView[t.initial]; !ok {
		return nil, fmt.Errorf("viewquery: page %s: initial view %q: %w", t.page, t.initial, ErrUnknownView)
	}

	for _, s := range cfg.Sources {
		if _, ok := t.byField[s.Field]; !ok {
			return nil, fmt.Errorf("viewquery: page %s: option source %s: %w", t.page, s.Field, ErrUnknownField)
		}
		if s.Decode == nil {
			return nil, fmt.Errorf("viewquery: page %s: option source %s has no decoder", t.page, s.Field)
		}
		if err := t.knownFields(append(s.Query.Deps(), s.Requires...)); err != nil {
			return nil, fmt.Errorf("viewquery: page %s: option source %s: %w", t.page, s.Field, err)
		}
		t.sources[s.Field] = s
	}

	return t, nil
}

func (t *Table) checkView(v View) error {
	keys := make(map[string]bool, len(v.Queries))
	for _, q := range v.Queries {
		if q.key == "" || q.path == nil {
			return errors.New("query without key or path")
		}
		if keys[q.key] {
			return fmt.Errorf("duplicate query key %q", q.key)
		}
		keys[q.key] = true
		if err := t.knownFields(q.deps); err != nil {
			return fmt.Errorf("query %s: %w", q.key, err)
		}
	}
	if err := t.knownFields(v.Requires); err != nil {
		return fmt.Errorf("requires: %w", err)
	}
	if err := t.knownFields(v.Inputs); err != nil {
		return fmt.Errorf("inputs: %w", err)
	}
	for f, val := range v.Defaults {
		spec, ok := t.Field(f)
		if !ok {
			return fmt.Errorf("defaults: %w: %s", ErrUnknownField, f)
		}
		if val != "" {
			if err := checkValue(spec, val); err != nil {
				return fmt.Errorf("default %s: %w", f, err)
			}
		}
	}
	return nil
}

func (t *Table) knownFields(fs []Field) error {
	for _, f := range fs {
		if _, ok := t.byField[f]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, f)
		}
	}
	return nil
}

// Page returns the page name.
func (t *Table) Page() string { return t.page }

// Initial returns the view a new board starts in.
func (t *Table) Initial() string { return t.initial }

// Views returns the declared views in order.
func (t *Table) Views() []View {
	return append([]View(nil), t.views...)
}

// View returns the named view.
func (t *Table) View(name string) (View, bool) {
	i, ok := t.byView[name]
	if !ok {
		return View{}, false
	}
	return t.views[i], true
}

// Fields returns the declared fields in order.
func (t *Table) Fields() []FieldSpec {
	return append([]FieldSpec(nil), t.fields...)
}

// Field returns the spec of f.
func (t *Table) Field(f Field) (FieldSpec, bool) {
	i, ok := t.byField[f]
	if !ok {
		return FieldSpec{}, false
	}
	return t.fields[i], true
}

// DefaultValue returns f's default while view is active.
func (t *Table) DefaultValue(view string, f Field) string {
	if v, ok := t.View(view); ok {
		if d, ok := v.Defaults[f]; ok {
			return d
		}
	}
	spec, _ := t.Field(f)
	return spec.Default
}

// Editable reports whether view exposes f for editing.
func (t *Table) Editable(view string, f Field) bool {
	v, ok := t.View(view)
	if !ok {
		return false
	}
	if _, ok := t.byField[f]; !ok {
		return false
	}
	if v.Inputs == nil {
		return true
	}
	for _, in := range v.Inputs {
		if in == f {
			return true
		}
	}
	return false
}

// Validate checks a proposed value of f while view is active.
func (t *Table) Validate(view string, f Field, value string) error {
	spec, ok := t.Field(f)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	if _, ok := t.View(view); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, view)
	}
	if !t.Editable(view, f) {
		return fmt.Errorf("%w: %s", ErrNotEditable, f)
	}
	if value == "" {
		if t.DefaultValue(view, f) != "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidValue, f)
		}
		return nil
	}
	return checkValue(spec, value)
}

func checkValue(spec FieldSpec, value string) error {
	if spec.Numeric {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidValue, spec.Name, value)
		}
		if spec.Max > 0 && n > spec.Max {
			return fmt.Errorf("%w: %s must be at most %d, got %d", ErrInvalidValue, spec.Name, spec.Max, n)
		}
	}
	if spec.Layout != "" {
		if _, err := time.Parse(spec.Layout, value); err != nil {
			return fmt.Errorf("%w: %s must look like %s, got %q", ErrInvalidValue, spec.Name, spec.Layout, value)
		}
	}
	if len(spec.Options) > 0 {
		for _, o := range spec.Options {
			if o.Value == value {
				return nil
			}
		}
		return fmt.Errorf("%w: %s does not accept %q", ErrInvalidValue, spec.Name, value)
	}
	return nil
}

// Resolve returns the queries of the selection's view bound to concrete
// paths, in declaration order. It fails with ErrIncomplete when a field the
// view requires is empty.
func (t *Table) Resolve(sel Selection) ([]Resolved, error) {
	v, ok := t.View(sel.View())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, sel.View())
	}
	for _, f := range v.Requires {
		if !sel.Has(f) {
			return nil, fmt.Errorf("%w: %s", ErrIncomplete, f)
		}
	}
	out := make([]Resolved, len(v.Queries))
	for i, q := range v.Queries {
		out[i] = q.Resolve(sel)
	}
	return out, nil
}

// DependsOn returns the fields whose committed value affects the resolved
// queries of view, sorted.
func (t *Table) DependsOn(view string) []Field {
	v, ok := t.View(view)
	if !ok {
		return nil
	}
	set := make(map[Field]bool)
	for _, q := range v.Queries {
		for _, f := range q.deps {
			set[f] = true
		}
	}
	for _, f := range v.Requires {
		set[f] = true
	}
	out := make([]Field, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Depends reports whether f is in DependsOn(view).
func (t *Table) Depends(view string, f Field) bool {
	for _, d := range t.DependsOn(view) {
		if d == f {
			return true
		}
	}
	return false
}

// Source returns the option source for f.
func (t *Table) Source(f Field) (OptionSource, bool) {
	s, ok := t.sources[f]
	return s, ok
}

// ResolveSource binds f's option query to the selection.
func (t *Table) ResolveSource(f Field, sel Selection) (Resolved, error) {
	s, ok := t.sources[f]
	if !ok {
		return Resolved{}, fmt.Errorf("%w: no option source for %s", ErrUnknownField, f)
	}
	for _, r := range s.Requires {
		if !sel.Has(r) {
			return Resolved{}, fmt.Errorf("%w: %s", ErrIncomplete, r)
		}
	}
	return s.Query.Resolve(sel), nil
}
