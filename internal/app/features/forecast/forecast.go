// Package forecast serves the capacity forecast of one service in one
// region, its derived summary and the CSV export.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	errorsfeature "github.com/dalemusser/stratacast/internal/app/features/errors"
	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/boardweb"
	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"go.uber.org/zap"
)

// Downloader streams a backend file into w.
type Downloader interface {
	Download(ctx context.Context, path string, w io.Writer) (int64, error)
}

// PanelData is the page-specific part of the panel.
type PanelData struct {
	Summary     *Summary
	Cards       []boardweb.Card
	DownloadURL string
}

// Handler serves the forecast page.
type Handler struct {
	page     *boardweb.Handler
	dl       Downloader
	errPages *errorsfeature.Handler
	logger   *zap.Logger
}

// NewHandler returns the forecast handler.
func NewHandler(reg *board.Registry, dl Downloader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{dl: dl, errPages: errorsfeature.NewHandler(), logger: logger}
	h.page = boardweb.NewHandler(reg, boardweb.Config{
		Page:     Page,
		Title:    "Forecast",
		Template: "forecast/show",
		Panel:    "forecast/panel",
		Present:  h.present,
	}, logger)
	return h
}

// Routes returns the forecast router: the board routes plus /download.
func Routes(h *Handler) http.Handler {
	r := boardweb.Routes(h.page)
	r.Get("/download", h.Download)
	return r
}

func (h *Handler) present(_ *http.Request, snap board.Snapshot) any {
	sel := viewquery.NewSelection(snap.View, snap.Selection)
	data := PanelData{DownloadURL: "/" + Page + "/download"}

	region, svc, hz, err := Params(sel)
	if err != nil {
		return data
	}
	data.DownloadURL += fmt.Sprintf("?region=%d&service=%s&horizon=%d", int(region), svc, int(hz))

	raw, ok := snap.ViewModel[Key]
	if !ok {
		return data
	}
	s, err := Summarize(raw, svc, hz)
	if err != nil {
		h.logger.Warn("forecast payload not understood", zap.Error(err))
	} else {
		data.Summary = &s
	}
	name := strings.ToUpper(string(svc))
	data.Cards = boardweb.Cards(snap, boardweb.Card{Key: Key, Title: name + " Forecast", Wide: true})
	return data
}

// Download streams the forecast CSV. Query parameters override the
// visitor's current selection.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	m, err := h.page.Board(r)
	if err != nil {
		http.Error(w, "board unavailable", boardweb.StatusFor(err))
		return
	}
	sel := viewquery.NewSelection(Page, m.Snapshot().Selection)
	q := r.URL.Query()
	for _, f := range []viewquery.Field{viewquery.FieldRegion, viewquery.FieldService, viewquery.FieldHorizon} {
		if v := q.Get(string(f)); v != "" {
			sel = sel.With(f, v)
		}
	}

	region, svc, hz, err := Params(sel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_forecast_region_%d.csv", svc, int(region)))
	n, err := h.dl.Download(r.Context(), catalog.ForecastDownload(region, svc, hz), w)
	if err == nil {
		return
	}
	h.logger.Warn("forecast download failed",
		zap.String("service", string(svc)),
		zap.Int("region", int(region)),
		zap.Int64("written", n),
		zap.Error(err))
	// A broken copy has already sent headers; only a failure before the
	// first byte can still become an error page.
	if n > 0 || errors.Is(err, context.Canceled) {
		return
	}
	w.Header().Del("Content-Disposition")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.errPages.BackendUnavailable(w, r)
}
