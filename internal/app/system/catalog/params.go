package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrInvalidParam is returned by the Parse helpers for out-of-range input.
var ErrInvalidParam = errors.New("invalid endpoint parameter")

// Kind selects the metric family of a day or range feature endpoint.
type Kind string

const (
	KindCPU      Kind = "cpu"
	KindStorage  Kind = "storage"
	KindUsers    Kind = "users"
	KindEconomy  Kind = "economy"
	KindSummary  Kind = "summary"
	KindHolidays Kind = "holidays" // range endpoints only
)

// DayKinds are the kinds served for a single date.
func DayKinds() []Kind {
	return []Kind{KindCPU, KindStorage, KindUsers, KindEconomy, KindSummary}
}

// RangeKinds are the kinds served for a date range.
func RangeKinds() []Kind {
	return []Kind{KindCPU, KindStorage, KindUsers, KindEconomy, KindHolidays, KindSummary}
}

// Resource is a forecastable resource as named in feature paths.
type Resource string

const (
	CPU     Resource = "cpu"
	Storage Resource = "storage"
	Users   Resource = "users"
)

// Resources lists the resources in display order.
func Resources() []Resource {
	return []Resource{CPU, Storage, Users}
}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	switch r {
	case CPU, Storage, Users:
		return true
	}
	return false
}

// Service names a model family on the forecast endpoints.
type Service string

const (
	ServiceCompute Service = "compute"
	ServiceStorage Service = "storage"
	ServiceUsers   Service = "users"
)

// Services lists the forecast services in display order.
func Services() []Service {
	return []Service{ServiceCompute, ServiceStorage, ServiceUsers}
}

// Valid reports whether s is a known service.
func (s Service) Valid() bool {
	switch s {
	case ServiceCompute, ServiceStorage, ServiceUsers:
		return true
	}
	return false
}

// ParseService validates s.
func ParseService(s string) (Service, error) {
	svc := Service(s)
	if !svc.Valid() {
		return "", fmt.Errorf("%w: service %q", ErrInvalidParam, s)
	}
	return svc, nil
}

// Horizon is a forecast length in days.
type Horizon int

// Horizons lists the horizons the backend accepts.
func Horizons() []Horizon {
	return []Horizon{7, 14, 30}
}

// Valid reports whether h is one of Horizons.
func (h Horizon) Valid() bool {
	return h == 7 || h == 14 || h == 30
}

// ParseHorizon validates a decimal horizon.
func ParseHorizon(s string) (Horizon, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !Horizon(n).Valid() {
		return 0, fmt.Errorf("%w: horizon %q", ErrInvalidParam, s)
	}
	return Horizon(n), nil
}

// Region is the backend's encoded region index.
type Region int

var regionNames = []string{"East US", "North Europe", "Southeast Asia", "West US"}

// Regions lists every region in index order.
func Regions() []Region {
	out := make([]Region, len(regionNames))
	for i := range regionNames {
		out[i] = Region(i)
	}
	return out
}

// Valid reports whether r is a known region index.
func (r Region) Valid() bool {
	return r >= 0 && int(r) < len(regionNames)
}

// String returns the region's display name.
func (r Region) String() string {
	if !r.Valid() {
		return "Region " + strconv.Itoa(int(r))
	}
	return regionNames[r]
}

// ParseRegion validates a decimal region index.
func ParseRegion(s string) (Region, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !Region(n).Valid() {
		return 0, fmt.Errorf("%w: region %q", ErrInvalidParam, s)
	}
	return Region(n), nil
}

// Dates and months are caller input; they are escaped as single path
// segments.

// DatesInMonth returns the dates available in month (YYYY-MM).
func DatesInMonth(month string) string {
	return Features.Path("dates/" + url.PathEscape(month))
}

// Day returns the per-date feature endpoint: date, then kind.
func Day(date string, kind Kind) string {
	return Features.Path(url.PathEscape(date) + "/" + string(kind))
}

// Range returns the date-range feature endpoint: start date, length in
// days, then kind.
func Range(date string, days int, kind Kind) string {
	return Features.Path(fmt.Sprintf("range/%s/%d/%s", url.PathEscape(date), days, kind))
}

// RangeInsights returns the insight series for a date range: start date,
// length in days, then resource.
func RangeInsights(date string, days int, r Resource) string {
	return Features.Path(fmt.Sprintf("range/%s/%d/insights/%s", url.PathEscape(date), days, r))
}

// Rolling returns the rolling-average series for a resource and window.
func Rolling(r Resource, window int) string {
	return Features.Path(fmt.Sprintf("%s/rolling/%d", r, window))
}

// Forecast returns the forecast endpoint: region, service, horizon.
func Forecast(region Region, svc Service, h Horizon) string {
	return Models.Path(fmt.Sprintf("forecast?region=%d&service=%s&horizon=%d", int(region), svc, int(h)))
}

// ForecastDownload returns the CSV export for the same parameters as Forecast.
func ForecastDownload(region Region, svc Service, h Horizon) string {
	return Models.Path(fmt.Sprintf("forecast/download?region=%d&service=%s&horizon=%d", int(region), svc, int(h)))
}

// Retrain returns the retrain action endpoint.
func Retrain(force bool) string {
	return Models.Path("retrain" + forceQuery(force))
}

// Switch returns the model switch action endpoint.
func Switch(force bool) string {
	return Models.Path("switch" + forceQuery(force))
}

func forceQuery(force bool) string {
	if force {
		return "?force=true"
	}
	return ""
}
