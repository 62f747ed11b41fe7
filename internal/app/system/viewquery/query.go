package viewquery

import "github.com/dalemusser/stratacast/internal/app/system/catalog"

// Query describes one backend request that contributes a field to a view-model.
//
// A static query wraps a catalog endpoint and is keyed by the endpoint name.
// A generated query carries an explicit key and builds its path from the
// selection at resolve time. Keys never come from the resolved path, so a
// rolling series keeps the same key whatever the window.
type Query struct {
	key  string
	deps []Field
	path func(Selection) string
}

// Static returns a query for a catalog endpoint keyed by its name.
func Static(e catalog.Endpoint) Query {
	return StaticAs(e.Name, e)
}

// StaticAs returns a query for a catalog endpoint under an explicit key.
func StaticAs(key string, e catalog.Endpoint) Query {
	p := e.Path()
	return Query{key: key, path: func(Selection) string { return p }}
}

// Generated returns a query whose path is computed from the selection.
// deps lists every field fn reads; a change to any of them refetches.
func Generated(key string, deps []Field, fn func(Selection) string) Query {
	d := make([]Field, len(deps))
	copy(d, deps)
	return Query{key: key, deps: d, path: fn}
}

// Key returns the view-model field key.
func (q Query) Key() string {
	return q.key
}

// Deps returns the fields the query path depends on.
func (q Query) Deps() []Field {
	out := make([]Field, len(q.deps))
	copy(out, q.deps)
	return out
}

// Resolve evaluates the query against a selection.
func (q Query) Resolve(sel Selection) Resolved {
	return Resolved{Key: q.key, Path: q.path(sel)}
}

// Resolved is a query bound to a concrete path.
type Resolved struct {
	Key  string
	Path string
}
