package forecast

import (
	"strconv"
	"strings"

	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
)

// Page is the board and URL name of the forecast page.
const Page = "forecast"

// Key is the view-model key of the forecast payload.
const Key = "forecast"

// Params returns the typed forecast parameters of a selection.
func Params(sel viewquery.Selection) (catalog.Region, catalog.Service, catalog.Horizon, error) {
	region, err := catalog.ParseRegion(sel.Get(viewquery.FieldRegion))
	if err != nil {
		return 0, "", 0, err
	}
	svc, err := catalog.ParseService(sel.Get(viewquery.FieldService))
	if err != nil {
		return 0, "", 0, err
	}
	h, err := catalog.ParseHorizon(sel.Get(viewquery.FieldHorizon))
	if err != nil {
		return 0, "", 0, err
	}
	return region, svc, h, nil
}

func serviceOptions() []viewquery.Option {
	var out []viewquery.Option
	for _, s := range catalog.Services() {
		out = append(out, viewquery.Option{Value: string(s), Label: strings.ToUpper(string(s[:1])) + string(s[1:])})
	}
	return out
}

func horizonOptions() []viewquery.Option {
	var out []viewquery.Option
	for _, h := range catalog.Horizons() {
		n := strconv.Itoa(int(h))
		out = append(out, viewquery.Option{Value: n, Label: n + " Days"})
	}
	return out
}

func regionOptions() []viewquery.Option {
	var out []viewquery.Option
	for _, r := range catalog.Regions() {
		out = append(out, viewquery.Option{Value: strconv.Itoa(int(r)), Label: r.String()})
	}
	return out
}

// NewTable returns the forecast configuration: one view whose single query
// follows the service, horizon and region selectors.
func NewTable() (*viewquery.Table, error) {
	deps := []viewquery.Field{viewquery.FieldRegion, viewquery.FieldService, viewquery.FieldHorizon}
	return viewquery.NewTable(viewquery.Config{
		Page: Page,
		Fields: []viewquery.FieldSpec{
			{Name: viewquery.FieldService, Label: "Service", Default: string(catalog.ServiceCompute), Options: serviceOptions()},
			{Name: viewquery.FieldHorizon, Label: "Horizon", Default: "7", Options: horizonOptions()},
			{Name: viewquery.FieldRegion, Label: "Region", Default: "0", Options: regionOptions()},
		},
		Views: []viewquery.View{{
			Name:  "forecast",
			Label: "Forecast",
			Queries: []viewquery.Query{
				viewquery.Generated(Key, deps, func(s viewquery.Selection) string {
					region, svc, h, _ := Params(s)
					return catalog.Forecast(region, svc, h)
				}),
			},
		}},
	})
}
