// Package rawdata serves the raw dataset tables behind the charts.
package rawdata

import (
	"net/http"

	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/boardweb"
	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"go.uber.org/zap"
)

// Page is the board and URL name of the raw data page.
const Page = "rawdata"

// MaxRows caps the rows rendered into the page.
const MaxRows = 2000

// NewTable returns the raw data configuration. Each dataset is a view.
func NewTable() (*viewquery.Table, error) {
	return viewquery.NewTable(viewquery.Config{
		Page: Page,
		Views: []viewquery.View{
			{
				Name:    "insights",
				Label:   "Insights",
				Inputs:  []viewquery.Field{},
				Queries: []viewquery.Query{viewquery.Static(catalog.InsightsRawData)},
			},
			{
				Name:    "features",
				Label:   "Features",
				Inputs:  []viewquery.Field{},
				Queries: []viewquery.Query{viewquery.Static(catalog.FeaturesRawData)},
			},
		},
	})
}

// PanelData is the page-specific part of the panel.
type PanelData struct {
	Grid  *Grid
	Error string
}

type presenter struct {
	logger *zap.Logger
}

func (p presenter) present(_ *http.Request, snap board.Snapshot) any {
	key := catalog.InsightsRawData.Name
	if snap.View == "features" {
		key = catalog.FeaturesRawData.Name
	}
	raw, ok := snap.ViewModel[key]
	if !ok {
		return PanelData{}
	}
	g, err := DecodeGrid(raw, MaxRows)
	if err != nil {
		p.logger.Warn("raw dataset not understood", zap.String("view", snap.View), zap.Error(err))
		return PanelData{Error: "The dataset could not be read."}
	}
	return PanelData{Grid: &g}
}

// NewHandler returns the raw data page handler.
func NewHandler(reg *board.Registry, logger *zap.Logger) *boardweb.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return boardweb.NewHandler(reg, boardweb.Config{
		Page:     Page,
		Title:    "Raw Data",
		Template: "rawdata/show",
		Panel:    "rawdata/panel",
		Present:  presenter{logger: logger}.present,
	}, logger)
}

// Routes returns the raw data router.
func Routes(h *boardweb.Handler) http.Handler {
	return boardweb.Routes(h)
}
