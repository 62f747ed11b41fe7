// Package explorer serves the feature explorer: the engineered features of
// one date or of a date range, chosen month first.
package explorer

import (
	"fmt"
	"net/http"

	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/boardweb"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"go.uber.org/zap"
)

var cardTitles = []boardweb.Card{
	{Key: "cpu", Title: "CPU"},
	{Key: "storage", Title: "Storage"},
	{Key: "users", Title: "Users"},
	{Key: "economy", Title: "Economy"},
	{Key: "holidays", Title: "Holidays"},
	{Key: "summary", Title: "Summary", Wide: true},
	{Key: "cpuInsights", Title: "CPU Insights"},
	{Key: "storageInsights", Title: "Storage Insights"},
	{Key: "usersInsights", Title: "Users Insights"},
}

// PanelData is the page-specific part of the panel.
type PanelData struct {
	Heading string
	Cards   []boardweb.Card
}

// Heading describes what the loaded features cover, or "" before a date is
// picked.
func Heading(snap board.Snapshot) string {
	date := snap.Selection[viewquery.FieldDate]
	if date == "" || len(snap.ViewModel) == 0 {
		return ""
	}
	switch snap.View {
	case ViewWeek:
		return fmt.Sprintf("Features for %s (%d days)", date, WeekDays)
	case ViewCustom:
		return fmt.Sprintf("Features for %s (%s days)", date, snap.Selection[viewquery.FieldDuration])
	}
	return "Features for " + date
}

func present(_ *http.Request, snap board.Snapshot) any {
	return PanelData{Heading: Heading(snap), Cards: boardweb.Cards(snap, cardTitles...)}
}

// NewHandler returns the explorer page handler.
func NewHandler(reg *board.Registry, logger *zap.Logger) *boardweb.Handler {
	return boardweb.NewHandler(reg, boardweb.Config{
		Page:     Page,
		Title:    "Feature Explorer",
		Template: "explorer/show",
		Panel:    "explorer/panel",
		Present:  present,
	}, logger)
}

// Routes returns the explorer router.
func Routes(h *boardweb.Handler) http.Handler {
	return boardweb.Routes(h)
}
