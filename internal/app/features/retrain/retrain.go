// Package retrain serves the model retraining page: the status of every
// model, the comparison against retrained candidates, and the retrain and
// switch actions.
//
// Actions run in the background. A trigger answers at once; when the action
// ends the visitor's board is refreshed and the outcome shows once as a
// notification.
package retrain

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	actionstore "github.com/dalemusser/stratacast/internal/app/store/actions"
	"github.com/dalemusser/stratacast/internal/app/system/actions"
	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/boardweb"
	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/jsonutil"
	"github.com/dalemusser/stratacast/internal/app/system/timeouts"
	"github.com/dalemusser/stratacast/internal/app/system/visitor"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RecentLimit is how many ledger entries the page and /actions list.
const RecentLimit = 10

// Runner starts actions and reports on them. *actions.Service satisfies it.
type Runner interface {
	Trigger(visitor string, kind actionstore.Kind, force bool) (string, error)
	Running(visitor string, kind actionstore.Kind) bool
	Notifications(visitor string) []actions.Notification
	Recent(ctx context.Context, visitor string, limit int64) ([]actionstore.Action, error)
}

// Button is one action the page offers.
type Button struct {
	Kind    actionstore.Kind
	Force   bool
	Label   string
	Primary bool
	Running bool
}

// PanelData is the page-specific part of the panel.
type PanelData struct {
	Models        []ModelStatus
	Comparisons   []Comparison
	Notifications []actions.Notification
	Buttons       []Button
	Recent        []actionstore.Action
	// Running is set while any action of the visitor is in flight; the
	// panel keeps polling until it clears.
	Running bool
}

// Handler serves the retraining page and its actions.
type Handler struct {
	page   *boardweb.Handler
	runner Runner
	logger *zap.Logger
}

// NewHandler returns the retraining handler.
func NewHandler(reg *board.Registry, runner Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{runner: runner, logger: logger}
	h.page = boardweb.NewHandler(reg, boardweb.Config{
		Page:     Page,
		Title:    "Model Retraining",
		Template: "retrain/show",
		Panel:    "retrain/panel",
		Present:  h.present,
	}, logger)
	return h
}

// Routes returns the retraining router: the board routes plus the actions.
func Routes(h *Handler) http.Handler {
	r := boardweb.Routes(h.page)
	r.Get("/actions", h.ListActions)
	r.Post("/actions/{kind}", h.Trigger)
	return r
}

// RefreshOnCompletion returns the completion hook for the action service:
// it re-reads the visitor's retraining board if one exists.
func RefreshOnCompletion(reg *board.Registry, logger *zap.Logger) func(string, actionstore.Kind) {
	return func(visitorID string, kind actionstore.Kind) {
		m, ok := reg.Lookup(visitorID, Page)
		if !ok {
			return
		}
		if _, err := m.Refresh(); err != nil && logger != nil {
			logger.Warn("refresh after action failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
}

func (h *Handler) present(r *http.Request, snap board.Snapshot) any {
	var data PanelData
	if raw, ok := snap.ViewModel[catalog.RetrainStatus.Name]; ok {
		models, err := DecodeStatus(raw)
		if err != nil {
			h.logger.Warn("retrain status not understood", zap.Error(err))
		}
		data.Models = models
	}
	if raw, ok := snap.ViewModel[catalog.RetrainCompare.Name]; ok {
		cmps, err := DecodeComparisons(raw)
		if err != nil {
			h.logger.Warn("retrain comparison not understood", zap.Error(err))
		}
		data.Comparisons = cmps
	}

	id := visitor.ID(r)
	if id == "" || h.runner == nil {
		return data
	}
	data.Notifications = h.runner.Notifications(id)
	data.Buttons = []Button{
		{Kind: actionstore.KindRetrain, Label: "Retrain Needed", Primary: true},
		{Kind: actionstore.KindRetrain, Force: true, Label: "Force Retrain"},
		{Kind: actionstore.KindSwitch, Label: "Switch If Better", Primary: true},
		{Kind: actionstore.KindSwitch, Force: true, Label: "Force Switch"},
	}
	for i := range data.Buttons {
		data.Buttons[i].Running = h.runner.Running(id, data.Buttons[i].Kind)
		data.Running = data.Running || data.Buttons[i].Running
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	recent, err := h.runner.Recent(ctx, id, RecentLimit)
	if err != nil {
		h.logger.Warn("failed to list recent actions", zap.Error(err))
	}
	data.Recent = recent
	return data
}

// TriggerResponse is the JSON answer to an accepted action.
type TriggerResponse struct {
	ActionID string           `json:"actionId"`
	Kind     actionstore.Kind `json:"kind"`
	Force    bool             `json:"force"`
}

// Trigger starts a retrain or switch for the visitor. htmx requests get the
// panel back; others get 202 with the action id.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	id := visitor.ID(r)
	if id == "" {
		jsonutil.Error(w, http.StatusUnauthorized, "no visitor session")
		return
	}
	kind := actionstore.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		jsonutil.NotFound(w, "unknown action")
		return
	}
	force, _ := strconv.ParseBool(r.FormValue("force"))

	actionID, err := h.runner.Trigger(id, kind, force)
	switch {
	case errors.Is(err, actions.ErrBusy):
		jsonutil.Conflict(w, "This action is already running.")
		return
	case errors.Is(err, actions.ErrClosed):
		jsonutil.Error(w, http.StatusServiceUnavailable, "The server is shutting down.")
		return
	case err != nil:
		h.logger.Error("failed to start action", zap.String("kind", string(kind)), zap.Error(err))
		jsonutil.InternalError(w, "The action could not be started.")
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		h.page.Panel(w, r)
		return
	}
	jsonutil.Accepted(w, TriggerResponse{ActionID: actionID, Kind: kind, Force: force})
}

// ListActions writes the visitor's recent actions as JSON.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	id := visitor.ID(r)
	if id == "" {
		jsonutil.Error(w, http.StatusUnauthorized, "no visitor session")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	recent, err := h.runner.Recent(ctx, id, RecentLimit)
	if err != nil {
		h.logger.Error("failed to list actions", zap.Error(err))
		jsonutil.InternalError(w, "Recent actions are unavailable.")
		return
	}
	jsonutil.OK(w, map[string]any{"actions": recent})
}
