package board

import (
	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
)

// Snapshot is a point-in-time copy of a board, safe to render or encode.
type Snapshot struct {
	Page       string                     `json:"page"`
	State      State                      `json:"state"`
	Generation uint64                     `json:"generation"`
	View       string                     `json:"view"`
	Selection  map[viewquery.Field]string `json:"selection"`
	Locked     map[viewquery.Field]bool   `json:"locked"`
	Drafts     map[viewquery.Field]string `json:"drafts"`
	ViewModel  aggregate.ViewModel        `json:"viewModel"`
	Error      string                     `json:"error,omitempty"`

	Err error `json:"-"`
}

// Value returns what an input for f should show: the draft when one is
// staged, otherwise the committed value.
func (s Snapshot) Value(f viewquery.Field) string {
	if d, ok := s.Drafts[f]; ok {
		return d
	}
	return s.Selection[f]
}

// IsLocked reports whether f's lock is engaged.
func (s Snapshot) IsLocked(f viewquery.Field) bool {
	return s.Locked[f]
}

// Has reports whether the view-model carries key.
func (s Snapshot) Has(key string) bool {
	_, ok := s.ViewModel[key]
	return ok
}

// Settled reports whether no cycle is in flight.
func (s Snapshot) Settled() bool {
	return s.State != Loading
}
