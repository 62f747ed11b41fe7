package catalog

import (
	"errors"
	"testing"
)

func TestStaticPaths(t *testing.T) {
	tests := []struct {
		endpoint Endpoint
		want     string
	}{
		{UsageTrends, "usage-trends"},
		{PeakDemandStorage, "peak-demand/storage"},
		{RegionalComparisonEfficiency, "regional-comparison/efficiency"},
		{InsightsRawData, "raw-data-insights"},
		{Months, "features/months"},
		{MarchCPU, "models/predict/march/cpu"},
		{RetrainStatus, "models/retrain/status"},
		{MetricsTop, "model_metrics/all/top"},
		{MetricsUsersTop3, "model_metrics/users_active/top3"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint.Name, func(t *testing.T) {
			if got := tt.endpoint.Path(); got != tt.want {
				t.Errorf("Path() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	e, ok := Lookup(Analytics, "topRegions")
	if !ok {
		t.Fatal("Lookup(topRegions) not found")
	}
	if e != TopRegions {
		t.Errorf("Lookup(topRegions) = %+v, want %+v", e, TopRegions)
	}

	if _, ok := Lookup(Models, "topRegions"); ok {
		t.Error("Lookup should be scoped to the namespace")
	}
	if _, ok := Lookup(Analytics, "nope"); ok {
		t.Error("Lookup(nope) should not be found")
	}
}

func TestNames_RegistrationOrder(t *testing.T) {
	names := Names(Features)
	if len(names) != 2 || names[0] != "dates" || names[1] != "months" {
		t.Errorf("Names(Features) = %v, want [dates months]", names)
	}

	names[0] = "mutated"
	if Names(Features)[0] != "dates" {
		t.Error("Names should return a copy")
	}
}

func TestAll_SortedByName(t *testing.T) {
	all := All(Models)
	for i := 1; i < len(all); i++ {
		if all[i-1].Name > all[i].Name {
			t.Fatalf("All(Models) not sorted: %q before %q", all[i-1].Name, all[i].Name)
		}
	}
}

func TestParameterizedPaths(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dates in month", DatesInMonth("2024-03"), "features/dates/2024-03"},
		{"day", Day("2024-03-05", KindEconomy), "features/2024-03-05/economy"},
		{"range", Range("2024-03-05", 7, KindHolidays), "features/range/2024-03-05/7/holidays"},
		{"range insights", RangeInsights("2024-03-05", 14, Storage), "features/range/2024-03-05/14/insights/storage"},
		{"day escapes date", Day("../../models/retrain?force=true#", KindCPU), "features/..%2F..%2Fmodels%2Fretrain%3Fforce=true%23/cpu"},
		{"range escapes date", Range("a/b", 7, KindSummary), "features/range/a%2Fb/7/summary"},
		{"insights escape date", RangeInsights("a?b", 7, CPU), "features/range/a%3Fb/7/insights/cpu"},
		{"dates escape month", DatesInMonth("2024-13/../../x"), "features/dates/2024-13%2F..%2F..%2Fx"},
		{"rolling", Rolling(CPU, 30), "features/cpu/rolling/30"},
		{"forecast", Forecast(2, ServiceStorage, 14), "models/forecast?region=2&service=storage&horizon=14"},
		{"download", ForecastDownload(0, ServiceCompute, 7), "models/forecast/download?region=0&service=compute&horizon=7"},
		{"retrain", Retrain(false), "models/retrain"},
		{"retrain forced", Retrain(true), "models/retrain?force=true"},
		{"switch forced", Switch(true), "models/switch?force=true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseRegion(t *testing.T) {
	tests := []struct {
		in      string
		want    Region
		wantErr bool
	}{
		{"0", 0, false},
		{"3", 3, false},
		{"4", 0, true},
		{"-1", 0, true},
		{"east", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseRegion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRegion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidParam) {
			t.Errorf("ParseRegion(%q) error = %v, want ErrInvalidParam", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseRegion(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if Region(1).String() != "North Europe" {
		t.Errorf("Region(1) = %q, want North Europe", Region(1).String())
	}
}

func TestParseHorizonAndService(t *testing.T) {
	if h, err := ParseHorizon("30"); err != nil || h != 30 {
		t.Errorf("ParseHorizon(30) = %d, %v", h, err)
	}
	if _, err := ParseHorizon("10"); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("ParseHorizon(10) error = %v, want ErrInvalidParam", err)
	}
	if s, err := ParseService("users"); err != nil || s != ServiceUsers {
		t.Errorf("ParseService(users) = %q, %v", s, err)
	}
	if _, err := ParseService("gpu"); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("ParseService(gpu) error = %v, want ErrInvalidParam", err)
	}
}
