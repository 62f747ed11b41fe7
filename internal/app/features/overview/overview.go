// Package overview serves the overview dashboard: usage, regions and peak
// demand for CPU and storage, plus rolling averages over a lockable window.
package overview

import (
	"fmt"
	"net/http"

	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/boardweb"
	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"go.uber.org/zap"
)

// Page is the board and URL name of the overview.
const Page = "overview"

// Resource selector values.
const (
	ResourceCPU     = "cpu"
	ResourceStorage = "storage"
)

// DefaultWindow is the rolling window in days a board starts with.
const DefaultWindow = 7

func rolling(key string, r catalog.Resource) viewquery.Query {
	return viewquery.Generated(key, []viewquery.Field{viewquery.FieldWindow}, func(s viewquery.Selection) string {
		return catalog.Rolling(r, s.IntOr(viewquery.FieldWindow, DefaultWindow))
	})
}

// NewTable returns the overview configuration.
//
// The overview view fetches both resources at once; the resource selector
// only picks which cards are shown, so changing it never refetches.
func NewTable() (*viewquery.Table, error) {
	return viewquery.NewTable(viewquery.Config{
		Page: Page,
		Fields: []viewquery.FieldSpec{
			{
				Name:       viewquery.FieldResource,
				Label:      "Resource",
				Default:    ResourceCPU,
				Persistent: true,
				Options: []viewquery.Option{
					{Value: ResourceCPU, Label: "CPU"},
					{Value: ResourceStorage, Label: "Storage"},
				},
			},
			{
				Name:     viewquery.FieldWindow,
				Label:    "Rolling window (days)",
				Default:  fmt.Sprint(DefaultWindow),
				Numeric:  true,
				Max:      365,
				Lockable: true,
				Locked:   true,
			},
		},
		Views: []viewquery.View{
			{
				Name:   "overview",
				Label:  "Overview",
				Inputs: []viewquery.Field{viewquery.FieldResource, viewquery.FieldWindow},
				Queries: []viewquery.Query{
					viewquery.Static(catalog.UsageTrends),
					viewquery.Static(catalog.Insights),
					viewquery.Static(catalog.TopRegions),
					viewquery.Static(catalog.PeakDemand),
					viewquery.Static(catalog.PeakDemandStorage),
					viewquery.Static(catalog.TopRegionsStorage),
					viewquery.Static(catalog.InsightsStorage),
					viewquery.Static(catalog.UsageTrendsStorage),
					viewquery.Static(catalog.PeakEfficiency),
					viewquery.Static(catalog.TopRegionsEfficiency),
					rolling("cpuRoll", catalog.CPU),
					rolling("storageRoll", catalog.Storage),
					rolling("usersRoll", catalog.Users),
				},
			},
			{
				Name:   "resources",
				Label:  "Resources",
				Inputs: []viewquery.Field{},
				Queries: []viewquery.Query{
					viewquery.Static(catalog.MonthlyTrends),
					viewquery.Static(catalog.HolidayImpact),
					viewquery.Static(catalog.HolidayEfficiencyImpact),
				},
			},
			{
				Name:   "regions",
				Label:  "Regions",
				Inputs: []viewquery.Field{},
				Queries: []viewquery.Query{
					viewquery.Static(catalog.RegionalComparison),
					viewquery.Static(catalog.TopRegions),
					viewquery.Static(catalog.TopRegionsStorage),
					viewquery.Static(catalog.RegionalComparisonEfficiency),
					viewquery.Static(catalog.TopRegionsEfficiency),
				},
			},
		},
	})
}

// Cards returns the chart slots for the snapshot's view and resource.
func Cards(snap board.Snapshot) []boardweb.Card {
	window := snap.Selection[viewquery.FieldWindow]
	if window == "" {
		window = fmt.Sprint(DefaultWindow)
	}
	roll := func(what string) string {
		return fmt.Sprintf("%s Rolling (Last %s Days)", what, window)
	}

	var cards []boardweb.Card
	switch snap.View {
	case "overview":
		if snap.Selection[viewquery.FieldResource] == ResourceStorage {
			cards = []boardweb.Card{
				{Key: catalog.InsightsStorage.Name, Title: "Storage Insights Summary"},
				{Key: catalog.UsageTrendsStorage.Name, Title: "Storage Usage Trends", Wide: true},
				{Key: "storageRoll", Title: roll("Storage")},
				{Key: catalog.TopRegionsStorage.Name, Title: "Top Regions by Storage"},
				{Key: catalog.PeakDemandStorage.Name, Title: "Peak Demand (Monthly)"},
				{Key: catalog.PeakEfficiency.Name, Title: "Peak Efficiency"},
				{Key: catalog.TopRegionsEfficiency.Name, Title: "Top Regions by Efficiency"},
			}
		} else {
			cards = []boardweb.Card{
				{Key: catalog.Insights.Name, Title: "Insights Summary"},
				{Key: catalog.UsageTrends.Name, Title: "CPU Usage Trends", Wide: true},
				{Key: "cpuRoll", Title: roll("CPU")},
				{Key: "usersRoll", Title: roll("Users")},
				{Key: catalog.TopRegions.Name, Title: "Top Regions"},
				{Key: catalog.PeakDemand.Name, Title: "Peak Demand (Monthly)"},
			}
		}
	case "resources":
		cards = []boardweb.Card{
			{Key: catalog.MonthlyTrends.Name, Title: "Monthly Trends", Wide: true},
			{Key: catalog.HolidayImpact.Name, Title: "Holiday Impact"},
			{Key: catalog.HolidayEfficiencyImpact.Name, Title: "Holiday Efficiency Impact"},
		}
	case "regions":
		cards = []boardweb.Card{
			{Key: catalog.RegionalComparison.Name, Title: "Regional Comparison", Wide: true},
			{Key: catalog.TopRegions.Name, Title: "Top Regions by CPU"},
			{Key: catalog.TopRegionsStorage.Name, Title: "Top Regions by Storage"},
			{Key: catalog.RegionalComparisonEfficiency.Name, Title: "Regional Efficiency"},
			{Key: catalog.TopRegionsEfficiency.Name, Title: "Top Regions by Efficiency"},
		}
	}
	return boardweb.Cards(snap, cards...)
}

// PanelData is the page-specific part of the panel.
type PanelData struct {
	Cards []boardweb.Card
}

func present(_ *http.Request, snap board.Snapshot) any {
	return PanelData{Cards: Cards(snap)}
}

// NewHandler returns the overview page handler. The table must be
// registered with reg under Page.
func NewHandler(reg *board.Registry, logger *zap.Logger) *boardweb.Handler {
	return boardweb.NewHandler(reg, boardweb.Config{
		Page:     Page,
		Title:    "Overview",
		Template: "overview/show",
		Panel:    "overview/panel",
		Present:  present,
	}, logger)
}

// Routes returns the overview router.
func Routes(h *boardweb.Handler) http.Handler {
	return boardweb.Routes(h)
}
