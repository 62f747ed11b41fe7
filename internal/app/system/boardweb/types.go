package boardweb

import (
	"html/template"

	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/viewdata"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
)

// ViewTab is one entry of the view selector.
type ViewTab struct {
	Name   string
	Label  string
	Active bool
}

// Control is one selector input of the active view.
type Control struct {
	Field   string
	Label   string
	Value   string
	Options []viewquery.Option

	Numeric bool
	Max     int

	Lockable bool
	Locked   bool
	// Draft means edits are staged until the field is locked.
	Draft bool

	// Sourced controls load their options from the backend.
	Sourced bool
	// Waiting is set while a field the options depend on is still empty.
	Waiting      bool
	OptionsError string
}

// HasOptions reports whether the control renders as a select.
func (c Control) HasOptions() bool {
	return len(c.Options) > 0 || c.Sourced
}

// PageVM is the template data of a board page and its panel.
type PageVM struct {
	viewdata.BaseVM

	Page string
	Base string
	Snap board.Snapshot

	Views    []ViewTab
	Controls []Control

	Loading    bool
	Idle       bool
	Error      string
	InputError string

	// Data is the page presenter's output.
	Data any
}

// Keys returns the view-model keys in sorted order.
func (vm PageVM) Keys() []string {
	return vm.Snap.ViewModel.Keys()
}

// Payload returns the view-model entry for key ready to embed in a JSON
// script block.
func (vm PageVM) Payload(key string) template.JS {
	return embedJSON(vm.Snap.ViewModel[key])
}

// Has reports whether the view-model carries key.
func (vm PageVM) Has(key string) bool {
	return vm.Snap.Has(key)
}

// Selected returns the committed value of field f.
func (vm PageVM) Selected(f string) string {
	return vm.Snap.Selection[viewquery.Field(f)]
}

// Empty reports whether there is nothing to show yet.
func (vm PageVM) Empty() bool {
	return len(vm.Snap.ViewModel) == 0
}

// Card is one chart slot of a page: a view-model key and its heading.
type Card struct {
	Key   string
	Title string
	Wide  bool

	Payload template.JS
}

// Cards fills in the payload of each card whose key the snapshot carries.
// Cards without data are dropped.
func Cards(snap board.Snapshot, cards ...Card) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		raw, ok := snap.ViewModel[c.Key]
		if !ok {
			continue
		}
		c.Payload = embedJSON(raw)
		out = append(out, c)
	}
	return out
}
