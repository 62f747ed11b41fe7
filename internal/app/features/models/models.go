// Package models serves the model performance page: the selected model per
// target, its March backtest and the three best candidates.
package models

import (
	"net/http"

	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/boardweb"
	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"go.uber.org/zap"
)

// Page is the board and URL name of the models page.
const Page = "models"

// NewTable returns the models configuration. Neither view has inputs.
func NewTable() (*viewquery.Table, error) {
	return viewquery.NewTable(viewquery.Config{
		Page: Page,
		Views: []viewquery.View{
			{
				Name:   "metrics",
				Label:  "Selected models",
				Inputs: []viewquery.Field{},
				Queries: []viewquery.Query{
					viewquery.Static(catalog.MetricsCPU),
					viewquery.Static(catalog.MetricsStorage),
					viewquery.Static(catalog.MetricsUsers),
					viewquery.Static(catalog.MarchCPU),
					viewquery.Static(catalog.MarchStorage),
					viewquery.Static(catalog.MarchUsers),
					viewquery.Static(catalog.MetricsCPUTop3),
					viewquery.Static(catalog.MetricsStorageTop3),
					viewquery.Static(catalog.MetricsUsersTop3),
				},
			},
			{
				Name:   "monitoring",
				Label:  "Monitoring",
				Inputs: []viewquery.Field{},
				Queries: []viewquery.Query{
					viewquery.Static(catalog.Monitoring),
					viewquery.Static(catalog.MetricsTop),
				},
			},
		},
	})
}

// Section is a titled group of cards.
type Section struct {
	Title string
	Cards []boardweb.Card
}

// PanelData is the page-specific part of the panel.
type PanelData struct {
	Sections []Section
}

// Sections groups the snapshot's payloads the way the page lays them out.
// Sections without data are dropped.
func Sections(snap board.Snapshot) []Section {
	var raw []Section
	switch snap.View {
	case "metrics":
		raw = []Section{
			{Title: "Selected Model Metrics", Cards: []boardweb.Card{
				{Key: catalog.MetricsCPU.Name, Title: "CPU Model Metrics"},
				{Key: catalog.MetricsStorage.Name, Title: "Storage Model Metrics"},
				{Key: catalog.MetricsUsers.Name, Title: "Users Model Metrics"},
			}},
			{Title: "Actual vs Predicted for March", Cards: []boardweb.Card{
				{Key: catalog.MarchCPU.Name, Title: "CPU"},
				{Key: catalog.MarchStorage.Name, Title: "Storage"},
				{Key: catalog.MarchUsers.Name, Title: "Users"},
			}},
			{Title: "Top 3 Models", Cards: []boardweb.Card{
				{Key: catalog.MetricsCPUTop3.Name, Title: "Top 3 models to predict CPU usage"},
				{Key: catalog.MetricsStorageTop3.Name, Title: "Top 3 models to predict storage usage"},
				{Key: catalog.MetricsUsersTop3.Name, Title: "Top 3 models to predict active users"},
			}},
		}
	case "monitoring":
		raw = []Section{
			{Title: "Monitoring", Cards: []boardweb.Card{
				{Key: catalog.Monitoring.Name, Title: "Live error against the selected models", Wide: true},
				{Key: catalog.MetricsTop.Name, Title: "Best model per target", Wide: true},
			}},
		}
	}

	var out []Section
	for _, s := range raw {
		if cards := boardweb.Cards(snap, s.Cards...); len(cards) > 0 {
			out = append(out, Section{Title: s.Title, Cards: cards})
		}
	}
	return out
}

func present(_ *http.Request, snap board.Snapshot) any {
	return PanelData{Sections: Sections(snap)}
}

// NewHandler returns the models page handler.
func NewHandler(reg *board.Registry, logger *zap.Logger) *boardweb.Handler {
	return boardweb.NewHandler(reg, boardweb.Config{
		Page:     Page,
		Title:    "Models",
		Template: "models/show",
		Panel:    "models/panel",
		Present:  present,
	}, logger)
}

// Routes returns the models router.
func Routes(h *boardweb.Handler) http.Handler {
	return boardweb.Routes(h)
}
