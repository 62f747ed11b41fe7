// Package catalog is the registry of forecasting backend endpoints.
//
// Static endpoints are package-level values registered by name within their
// namespace. Parameterized endpoints are plain functions that build a path
// from typed arguments. Nothing here performs I/O or holds mutable state once
// the package is initialized.
//
// Every path is relative to the backend API prefix (see the backend package):
//
//	Analytics     usage-trends              -> /api/usage-trends
//	Features      months                    -> /api/features/months
//	Models        predict/march/cpu         -> /api/models/predict/march/cpu
//	ModelMetrics  usage_cpu/top3            -> /api/model_metrics/usage_cpu/top3
package catalog

import (
	"fmt"
	"sort"
)

// Namespace groups endpoints that share a path prefix on the backend.
type Namespace string

const (
	Analytics    Namespace = ""
	Features     Namespace = "features"
	Models       Namespace = "models"
	ModelMetrics Namespace = "model_metrics"
)

// Namespaces lists every namespace in display order.
func Namespaces() []Namespace {
	return []Namespace{Analytics, Features, Models, ModelMetrics}
}

// Path joins rel onto the namespace prefix.
func (ns Namespace) Path(rel string) string {
	if ns == Analytics {
		return rel
	}
	return string(ns) + "/" + rel
}

// String returns a printable namespace name.
func (ns Namespace) String() string {
	if ns == Analytics {
		return "analytics"
	}
	return string(ns)
}

// Endpoint is a static backend endpoint.
type Endpoint struct {
	Namespace Namespace
	Name      string
	rel       string
}

// Path returns the endpoint path relative to the API prefix.
func (e Endpoint) Path() string {
	return e.Namespace.Path(e.rel)
}

// IsZero reports whether e is the zero Endpoint.
func (e Endpoint) IsZero() bool {
	return e.Name == "" && e.rel == ""
}

var (
	registry = map[Namespace]map[string]Endpoint{}
	order    = map[Namespace][]string{}
)

// define registers a static endpoint. Names are unique per namespace.
func define(ns Namespace, name, rel string) Endpoint {
	if registry[ns] == nil {
		registry[ns] = map[string]Endpoint{}
	}
	if _, dup := registry[ns][name]; dup {
		panic(fmt.Sprintf("catalog: duplicate endpoint %s/%s", ns, name))
	}
	e := Endpoint{Namespace: ns, Name: name, rel: rel}
	registry[ns][name] = e
	order[ns] = append(order[ns], name)
	return e
}

// Lookup returns the static endpoint registered under name in ns.
func Lookup(ns Namespace, name string) (Endpoint, bool) {
	e, ok := registry[ns][name]
	return e, ok
}

// Names returns the static endpoint names of ns in registration order.
func Names(ns Namespace) []string {
	out := make([]string, len(order[ns]))
	copy(out, order[ns])
	return out
}

// All returns every static endpoint of ns sorted by name.
func All(ns Namespace) []Endpoint {
	out := make([]Endpoint, 0, len(registry[ns]))
	for _, e := range registry[ns] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Analytics endpoints.
var (
	UsageTrends                  = define(Analytics, "usageTrends", "usage-trends")
	Insights                     = define(Analytics, "insights", "insights")
	TopRegions                   = define(Analytics, "topRegions", "top-regions")
	PeakDemand                   = define(Analytics, "peakDemand", "peak-demand")
	PeakDemandStorage            = define(Analytics, "peakDemandStorage", "peak-demand/storage")
	TopRegionsStorage            = define(Analytics, "topRegionsStorage", "top-regions/storage")
	InsightsStorage              = define(Analytics, "insightsStorage", "insights/storage")
	UsageTrendsStorage           = define(Analytics, "usageTrendsStorage", "usage-trends/storage")
	PeakEfficiency               = define(Analytics, "peakEfficiency", "peak-demand/efficiency")
	TopRegionsEfficiency         = define(Analytics, "topRegionsEfficiency", "top-regions/efficiency")
	MonthlyTrends                = define(Analytics, "monthlyTrends", "monthly-trends")
	HolidayImpact                = define(Analytics, "holidayImpact", "holiday-impact")
	HolidayEfficiencyImpact      = define(Analytics, "holidayEfficiencyImpact", "holiday-impact/efficiency")
	RegionalComparison           = define(Analytics, "regionalComparison", "regional-comparison")
	RegionalComparisonEfficiency = define(Analytics, "regionalComparisonEfficiency", "regional-comparison/efficiency")
	InsightsRawData              = define(Analytics, "insightsRawData", "raw-data-insights")
	FeaturesRawData              = define(Analytics, "featuresRawData", "raw-data-features")
)

// Feature endpoints.
var (
	Dates  = define(Features, "dates", "dates")
	Months = define(Features, "months", "months")
)

// Model metric endpoints.
var (
	MetricsTop         = define(ModelMetrics, "all", "all/top")
	MetricsCPU         = define(ModelMetrics, "cpu", "usage_cpu")
	MetricsCPUAll      = define(ModelMetrics, "cpuAll", "usage_cpu/all")
	MetricsCPUTop3     = define(ModelMetrics, "cpuTop3", "usage_cpu/top3")
	MetricsStorage     = define(ModelMetrics, "storage", "usage_storage")
	MetricsStorageAll  = define(ModelMetrics, "storageAll", "usage_storage/all")
	MetricsStorageTop3 = define(ModelMetrics, "storageTop3", "usage_storage/top3")
	MetricsUsers       = define(ModelMetrics, "users", "users_active")
	MetricsUsersAll    = define(ModelMetrics, "usersAll", "users_active/all")
	MetricsUsersTop3   = define(ModelMetrics, "usersTop3", "users_active/top3")
)

// Model endpoints.
var (
	MarchCPU       = define(Models, "marchCpu", "predict/march/cpu")
	MarchStorage   = define(Models, "marchStorage", "predict/march/storage")
	MarchUsers     = define(Models, "marchUsers", "predict/march/users")
	Monitoring     = define(Models, "monitoring", "monitoring")
	RetrainStatus  = define(Models, "retrainStatus", "retrain/status")
	RetrainCompare = define(Models, "retrainCompare", "retrain/compare")
)
