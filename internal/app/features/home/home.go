// Package home serves the site root.
package home

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DefaultPage is where the root sends visitors.
const DefaultPage = "/overview"

// Handler serves the site root.
type Handler struct {
	target string
}

// NewHandler returns a root handler redirecting to target, or DefaultPage
// when target is empty.
func NewHandler(target string) *Handler {
	if target == "" {
		target = DefaultPage
	}
	return &Handler{target: target}
}

// MountRoot registers the root on r. It is registered directly rather than
// mounted so unmatched paths still reach r's NotFound handler.
func MountRoot(r chi.Router, h *Handler) {
	r.Get("/", h.Index)
	r.Head("/", h.Index)
}

// Index redirects to the landing dashboard, keeping the query string.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	target := h.target
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}
	http.Redirect(w, r, target, http.StatusFound)
}
