package viewquery

import (
	"sort"
	"strconv"
)

// Field names one user-selectable input of a page.
type Field string

const (
	FieldResource Field = "resource"
	FieldWindow   Field = "window"
	FieldMonth    Field = "month"
	FieldDate     Field = "date"
	FieldDuration Field = "duration"
	FieldService  Field = "service"
	FieldHorizon  Field = "horizon"
	FieldRegion   Field = "region"
)

// Time layouts of the date-valued fields.
const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// Selection is an immutable snapshot of the committed inputs of a page: the
// active view plus a value per field. The zero value is an empty selection.
type Selection struct {
	view   string
	values map[Field]string
}

// NewSelection copies values into a new Selection.
func NewSelection(view string, values map[Field]string) Selection {
	s := Selection{view: view, values: make(map[Field]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// View returns the active view name.
func (s Selection) View() string {
	return s.view
}

// Get returns the committed value of f, or "" when unset.
func (s Selection) Get(f Field) string {
	return s.values[f]
}

// Has reports whether f has a non-empty value.
func (s Selection) Has(f Field) bool {
	return s.values[f] != ""
}

// Int returns f parsed as a decimal integer.
func (s Selection) Int(f Field) (int, bool) {
	n, err := strconv.Atoi(s.values[f])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IntOr returns f as an integer, or def when unset or malformed.
func (s Selection) IntOr(f Field, def int) int {
	if n, ok := s.Int(f); ok {
		return n
	}
	return def
}

// With returns a copy of s with f set to v. An empty v clears the field.
func (s Selection) With(f Field, v string) Selection {
	out := NewSelection(s.view, s.values)
	if v == "" {
		delete(out.values, f)
	} else {
		out.values[f] = v
	}
	return out
}

// WithView returns a copy of s with the view replaced.
func (s Selection) WithView(view string) Selection {
	return NewSelection(view, s.values)
}

// Values returns a copy of the field values.
func (s Selection) Values() map[Field]string {
	out := make(map[Field]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Fields returns the set fields in sorted order.
func (s Selection) Fields() []Field {
	out := make([]Field, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports whether two selections have the same view and values.
func (s Selection) Equal(o Selection) bool {
	if s.view != o.view || len(s.values) != len(o.values) {
		return false
	}
	for k, v := range s.values {
		if ov, ok := o.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
