// Package boardweb serves one dashboard page over HTTP: the full page, its
// HTMX panel, the JSON state and the selector inputs that drive the page's
// board.
//
// Every page mounts the same routes:
//
//	GET  /                full page
//	GET  /panel           panel partial (polled while loading)
//	GET  /state           board snapshot as JSON
//	POST /view            view=<name>
//	POST /select          field=<f>&value=<v>
//	POST /lock            field=<f>[&value=<v>]
//	POST /unlock          field=<f>
//	POST /refresh
//	GET  /options/{field} choices of a backend-populated selector
//
// Mutations wait up to Config.Wait for the cycle they launched, then answer
// with the panel (htmx), the snapshot (Accept: application/json) or a
// redirect back to the page.
package boardweb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/jsonutil"
	"github.com/dalemusser/stratacast/internal/app/system/timeouts"
	"github.com/dalemusser/stratacast/internal/app/system/viewdata"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"github.com/dalemusser/stratacast/internal/app/system/visitor"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Presenter derives page-specific template data from a snapshot.
type Presenter func(r *http.Request, snap board.Snapshot) any

// Config describes one page.
type Config struct {
	Page     string // table page name; also the URL prefix
	Title    string
	Template string // full page template, e.g. "overview/show"
	Panel    string // panel snippet, e.g. "overview/panel"
	Present  Presenter

	// Wait bounds how long a request waits for a cycle. Defaults to
	// timeouts.Wait().
	Wait time.Duration
	// OptionsTimeout bounds loading backend-populated selectors while
	// rendering. Defaults to timeouts.Request().
	OptionsTimeout time.Duration
}

// Handler serves one page.
type Handler struct {
	cfg    Config
	reg    *board.Registry
	logger *zap.Logger
}

// NewHandler creates a Handler for cfg.Page, whose table must be registered
// with reg.
func NewHandler(reg *board.Registry, cfg Config, logger *zap.Logger) *Handler {
	if cfg.Wait <= 0 {
		cfg.Wait = timeouts.Wait()
	}
	if cfg.OptionsTimeout <= 0 {
		cfg.OptionsTimeout = timeouts.Request()
	}
	if cfg.Title == "" {
		cfg.Title = cfg.Page
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, reg: reg, logger: logger.With(zap.String("page", cfg.Page))}
}

// Base returns the URL prefix of the page.
func (h *Handler) Base() string {
	return "/" + h.cfg.Page
}

// Routes returns the page router. Features add their own routes to it.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Show)
	r.Get("/panel", h.Panel)
	r.Get("/state", h.State)
	r.Post("/view", h.SetView)
	r.Post("/select", h.Select)
	r.Post("/lock", h.Lock)
	r.Post("/unlock", h.Unlock)
	r.Post("/refresh", h.Refresh)
	r.Get("/options/{field}", h.Options)
	return r
}

// Board returns the requesting visitor's board for the page.
func (h *Handler) Board(r *http.Request) (*board.Machine, error) {
	id := visitor.ID(r)
	if id == "" {
		return nil, errNoVisitor
	}
	return h.reg.Get(id, h.cfg.Page)
}

var errNoVisitor = errors.New("request carries no visitor id")

// Show renders the full page, waiting briefly for a first cycle.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	m, ok := h.board(w, r)
	if !ok {
		return
	}
	snap := h.settle(r, m, m.Start())
	vm := h.pageVM(r, m, snap, "")
	templates.Render(w, r, h.cfg.Template, vm)
}

// Panel renders the panel partial. While a cycle is in flight it waits for
// it as a long poll.
func (h *Handler) Panel(w http.ResponseWriter, r *http.Request) {
	m, ok := h.board(w, r)
	if !ok {
		return
	}
	snap := m.Snapshot()
	if !snap.Settled() {
		snap = h.settle(r, m, snap.Generation)
	}
	h.renderPanel(w, r, m, snap, http.StatusOK, "")
}

// State writes the snapshot as JSON. With ?wait=1 it waits for the cycle in
// flight first.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	m, ok := h.board(w, r)
	if !ok {
		return
	}
	snap := m.Snapshot()
	if r.URL.Query().Get("wait") != "" && !snap.Settled() {
		snap = h.settle(r, m, snap.Generation)
	}
	jsonutil.OK(w, snap)
}

// SetView switches the page's view.
func (h *Handler) SetView(w http.ResponseWriter, r *http.Request) {
	view := formValue(r, "view")
	h.mutate(w, r, "", func(m *board.Machine) (uint64, error) {
		return m.SetView(view)
	})
}

// Select changes one field.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	f, value := viewquery.Field(formValue(r, "field")), formValue(r, "value")
	h.mutate(w, r, f, func(m *board.Machine) (uint64, error) {
		return m.Set(f, value)
	})
}

// Lock engages a field's lock. A value in the same form is staged first, so
// a plain form can edit and lock in one submit.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	f := viewquery.Field(formValue(r, "field"))
	values, hasValue := r.PostForm["value"]
	h.mutate(w, r, f, func(m *board.Machine) (uint64, error) {
		if hasValue {
			return m.LockWith(f, strings.TrimSpace(values[0]))
		}
		return m.Lock(f)
	})
}

// Unlock releases a field's lock.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	f := viewquery.Field(formValue(r, "field"))
	h.mutate(w, r, f, func(m *board.Machine) (uint64, error) {
		return m.Unlock(f)
	})
}

// Refresh re-runs the current view.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "", func(m *board.Machine) (uint64, error) {
		return m.Refresh()
	})
}

// Options writes the choices of a backend-populated field as JSON.
func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	m, ok := h.board(w, r)
	if !ok {
		return
	}
	f := viewquery.Field(chi.URLParam(r, "field"))

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OptionsTimeout)
	defer cancel()
	opts, err := m.Options(ctx, f)
	if err != nil {
		status := StatusFor(err)
		if status >= 500 {
			h.logger.Warn("loading options failed", zap.String("field", string(f)), zap.Error(err))
		}
		jsonutil.FieldError(w, status, string(f), Message(err))
		return
	}
	jsonutil.OK(w, opts)
}

// mutate applies op to the visitor's board, retrying once on a board that
// was swept in between, and answers in the format the client asked for.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, f viewquery.Field, op func(*board.Machine) (uint64, error)) {
	m, ok := h.board(w, r)
	if !ok {
		return
	}
	gen, err := op(m)
	if errors.Is(err, board.ErrClosed) {
		if m, ok = h.board(w, r); !ok {
			return
		}
		gen, err = op(m)
	}

	if err != nil {
		status := StatusFor(err)
		if status >= 500 {
			h.logger.Error("board input failed", zap.Error(err))
		} else {
			h.logger.Debug("rejected board input", zap.String("field", string(f)), zap.Error(err))
		}
		switch {
		case wantsJSON(r):
			jsonutil.FieldError(w, status, string(f), Message(err))
		case isHTMX(r):
			h.renderPanel(w, r, m, m.Snapshot(), status, Message(err))
		default:
			http.Error(w, Message(err), status)
		}
		return
	}

	snap := h.settle(r, m, gen)
	switch {
	case wantsJSON(r):
		jsonutil.OK(w, snap)
	case isHTMX(r):
		h.renderPanel(w, r, m, snap, http.StatusOK, "")
	default:
		http.Redirect(w, r, h.Base(), http.StatusSeeOther)
	}
}

func (h *Handler) board(w http.ResponseWriter, r *http.Request) (*board.Machine, bool) {
	m, err := h.Board(r)
	switch {
	case err == nil:
		return m, true
	case errors.Is(err, board.ErrUnknownPage):
		http.NotFound(w, r)
	default:
		h.logger.Error("board unavailable", zap.Error(err))
		http.Error(w, "board unavailable", http.StatusInternalServerError)
	}
	return nil, false
}

// settle waits up to the configured budget for generation gen. A timeout is
// not an error: the caller renders the loading state and the client polls.
func (h *Handler) settle(r *http.Request, m *board.Machine, gen uint64) board.Snapshot {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Wait)
	defer cancel()
	snap, err := m.Wait(ctx, gen)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		h.logger.Warn("waiting for board failed", zap.Error(err))
	}
	return snap
}

func (h *Handler) renderPanel(w http.ResponseWriter, r *http.Request, m *board.Machine, snap board.Snapshot, status int, inputErr string) {
	vm := h.pageVM(r, m, snap, inputErr)
	w.Header().Set("Cache-Control", "no-store")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	templates.RenderSnippet(w, h.cfg.Panel, vm)
}

func (h *Handler) pageVM(r *http.Request, m *board.Machine, snap board.Snapshot, inputErr string) PageVM {
	vm := PageVM{
		BaseVM:     viewdata.New(r, h.cfg.Title),
		Page:       h.cfg.Page,
		Base:       h.Base(),
		Snap:       snap,
		Loading:    snap.State == board.Loading,
		Idle:       snap.State == board.Idle,
		InputError: inputErr,
	}
	if snap.State == board.Error {
		vm.Error = errorText(snap)
	}
	vm.Views, vm.Controls = h.controls(r, m, snap)
	if h.cfg.Present != nil {
		vm.Data = h.cfg.Present(r, snap)
	}
	return vm
}

func (h *Handler) controls(r *http.Request, m *board.Machine, snap board.Snapshot) ([]ViewTab, []Control) {
	t := m.Table()

	views := t.Views()
	tabs := make([]ViewTab, 0, len(views))
	for _, v := range views {
		label := v.Label
		if label == "" {
			label = v.Name
		}
		tabs = append(tabs, ViewTab{Name: v.Name, Label: label, Active: v.Name == snap.View})
	}

	var out []Control
	for _, spec := range t.Fields() {
		if !t.Editable(snap.View, spec.Name) {
			continue
		}
		c := Control{
			Field:    string(spec.Name),
			Label:    spec.Label,
			Value:    snap.Value(spec.Name),
			Options:  spec.Options,
			Numeric:  spec.Numeric,
			Max:      spec.Max,
			Lockable: spec.Lockable,
			Locked:   snap.IsLocked(spec.Name),
			Draft:    spec.Lockable && !snap.IsLocked(spec.Name),
		}
		if c.Label == "" {
			c.Label = string(spec.Name)
		}
		if _, ok := t.Source(spec.Name); ok {
			c.Sourced = true
			ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OptionsTimeout)
			opts, err := m.Options(ctx, spec.Name)
			cancel()
			switch {
			case err == nil:
				c.Options = opts
			case errors.Is(err, viewquery.ErrIncomplete):
				c.Waiting = true
			default:
				c.OptionsError = "Could not load choices"
				h.logger.Warn("loading selector choices failed", zap.String("field", c.Field), zap.Error(err))
			}
		}
		out = append(out, c)
	}
	return tabs, out
}

// StatusFor maps an error from a board operation to an HTTP status.
func StatusFor(err error) int {
	var agg *aggregate.AggregationError
	switch {
	case errors.Is(err, viewquery.ErrInvalidValue),
		errors.Is(err, viewquery.ErrUnknownField),
		errors.Is(err, viewquery.ErrUnknownView),
		errors.Is(err, viewquery.ErrNotEditable),
		errors.Is(err, viewquery.ErrIncomplete),
		errors.Is(err, board.ErrLocked),
		errors.Is(err, board.ErrNotLockable):
		return http.StatusBadRequest
	case errors.Is(err, board.ErrUnknownPage):
		return http.StatusNotFound
	case errors.As(err, &agg):
		return http.StatusBadGateway
	case errors.Is(err, board.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message is the user-facing text of err.
func Message(err error) string {
	var agg *aggregate.AggregationError
	if errors.As(err, &agg) {
		return fmt.Sprintf("Could not load %s from the forecasting service", agg.Key)
	}
	if StatusFor(err) == http.StatusBadRequest {
		if s := err.Error(); s != "" {
			return strings.ToUpper(s[:1]) + s[1:]
		}
	}
	return "Something went wrong"
}

func errorText(snap board.Snapshot) string {
	if snap.Err != nil {
		return Message(snap.Err)
	}
	if snap.Error != "" {
		return "Could not load data from the forecasting service"
	}
	return ""
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func wantsJSON(r *http.Request) bool {
	return !isHTMX(r) && strings.Contains(r.Header.Get("Accept"), "application/json")
}

// embedJSON prepares a view-model entry for a <script type="application/json">
// block. The payload is emitted verbatim so key order survives; "<" is
// escaped so the data cannot close the script element. Invalid JSON yields
// null.
func embedJSON(raw json.RawMessage) template.JS {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return template.JS("null")
	}
	return template.JS(bytes.ReplaceAll(raw, []byte("<"), []byte(`\u003c`)))
}
