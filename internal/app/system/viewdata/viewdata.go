// Package viewdata builds the fields every stratacast page template shares.
package viewdata

import (
	"net/http"
	"strings"

	"github.com/dalemusser/waffle/pantry/httpnav"
	"github.com/gorilla/csrf"
)

// DefaultSiteName is shown in the header and page titles.
const DefaultSiteName = "Stratacast"

// NavItem is one entry of the top navigation.
type NavItem struct {
	Path   string
	Label  string
	Active bool
}

// nav lists the dashboard pages in menu order.
var nav = []NavItem{
	{Path: "/overview", Label: "Overview"},
	{Path: "/explorer", Label: "Feature Explorer"},
	{Path: "/forecast", Label: "Forecast"},
	{Path: "/models", Label: "Model Metrics"},
	{Path: "/retrain", Label: "Retraining"},
	{Path: "/rawdata", Label: "Raw Data"},
	{Path: "/querystats", Label: "Query Stats"},
}

// BaseVM contains common fields for all view models.
// Embed it in feature view models:
//
//	type pageData struct {
//	    viewdata.BaseVM
//	    // page-specific fields...
//	}
type BaseVM struct {
	SiteName    string
	Title       string
	CurrentPath string
	Nav         []NavItem

	// CSRFToken goes into a hidden input or the hx-headers of forms.
	CSRFToken string
}

// New creates a BaseVM for r.
func New(r *http.Request, title string) BaseVM {
	path := httpnav.CurrentPath(r)
	items := make([]NavItem, len(nav))
	for i, it := range nav {
		it.Active = path == it.Path || strings.HasPrefix(path, it.Path+"/")
		items[i] = it
	}
	return BaseVM{
		SiteName:    DefaultSiteName,
		Title:       title,
		CurrentPath: path,
		Nav:         items,
		CSRFToken:   csrf.Token(r),
	}
}
