package explorer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
)

// Page is the board and URL name of the feature explorer.
const Page = "explorer"

// Views of the explorer.
const (
	ViewDate   = "date"
	ViewWeek   = "week"
	ViewCustom = "custom"
)

// WeekDays is the fixed length of the week view.
const WeekDays = 7

// MaxDuration bounds the custom range.
const MaxDuration = 90

func dayQuery(kind catalog.Kind) viewquery.Query {
	return viewquery.Generated(string(kind), []viewquery.Field{viewquery.FieldDate}, func(s viewquery.Selection) string {
		return catalog.Day(s.Get(viewquery.FieldDate), kind)
	})
}

// rangeQueries returns the range feature and insight queries. days reads the
// range length from the selection.
func rangeQueries(deps []viewquery.Field, days func(viewquery.Selection) int) []viewquery.Query {
	var qs []viewquery.Query
	for _, kind := range catalog.RangeKinds() {
		qs = append(qs, viewquery.Generated(string(kind), deps, func(s viewquery.Selection) string {
			return catalog.Range(s.Get(viewquery.FieldDate), days(s), kind)
		}))
	}
	for _, r := range catalog.Resources() {
		qs = append(qs, viewquery.Generated(string(r)+"Insights", deps, func(s viewquery.Selection) string {
			return catalog.RangeInsights(s.Get(viewquery.FieldDate), days(s), r)
		}))
	}
	return qs
}

// NewTable returns the explorer configuration.
//
// A month narrows the date selector; picking a date loads the features of
// that day (date view) or of the range starting there (week, custom). The
// custom duration is staged while unlocked and only applies once locked.
func NewTable() (*viewquery.Table, error) {
	var dayQueries []viewquery.Query
	for _, kind := range catalog.DayKinds() {
		dayQueries = append(dayQueries, dayQuery(kind))
	}

	return viewquery.NewTable(viewquery.Config{
		Page: Page,
		Fields: []viewquery.FieldSpec{
			{
				Name:          viewquery.FieldDuration,
				Label:         "Duration (days)",
				Default:       fmt.Sprint(WeekDays),
				Numeric:       true,
				Max:           MaxDuration,
				Lockable:      true,
				ClearOnUnlock: true,
				Resets:        []viewquery.Field{viewquery.FieldDate},
			},
			{Name: viewquery.FieldMonth, Label: "Month", Layout: viewquery.MonthLayout, Resets: []viewquery.Field{viewquery.FieldDate}},
			{Name: viewquery.FieldDate, Label: "Date", Layout: viewquery.DateLayout},
		},
		Views: []viewquery.View{
			{
				Name:     ViewDate,
				Label:    "Date",
				Inputs:   []viewquery.Field{viewquery.FieldMonth, viewquery.FieldDate},
				Requires: []viewquery.Field{viewquery.FieldDate},
				Queries:  dayQueries,
			},
			{
				Name:     ViewWeek,
				Label:    "Week",
				Inputs:   []viewquery.Field{viewquery.FieldMonth, viewquery.FieldDate},
				Requires: []viewquery.Field{viewquery.FieldDate},
				Queries: rangeQueries([]viewquery.Field{viewquery.FieldDate}, func(viewquery.Selection) int {
					return WeekDays
				}),
			},
			{
				Name:     ViewCustom,
				Label:    "Custom",
				Inputs:   []viewquery.Field{viewquery.FieldDuration, viewquery.FieldMonth, viewquery.FieldDate},
				Requires: []viewquery.Field{viewquery.FieldDuration, viewquery.FieldDate},
				Queries: rangeQueries([]viewquery.Field{viewquery.FieldDate, viewquery.FieldDuration}, func(s viewquery.Selection) int {
					return s.IntOr(viewquery.FieldDuration, WeekDays)
				}),
			},
		},
		Sources: []viewquery.OptionSource{
			{
				Field:  viewquery.FieldMonth,
				Query:  viewquery.StaticAs("months", catalog.Months),
				Decode: decodeMonths,
			},
			{
				Field: viewquery.FieldDate,
				Query: viewquery.Generated("dates", []viewquery.Field{viewquery.FieldMonth}, func(s viewquery.Selection) string {
					return catalog.DatesInMonth(s.Get(viewquery.FieldMonth))
				}),
				Requires: []viewquery.Field{viewquery.FieldMonth},
				Decode:   decodeDates,
			},
		},
	})
}

func decodeMonths(raw json.RawMessage, _ viewquery.Selection) ([]viewquery.Option, error) {
	var body struct {
		Months []string `json:"available_months"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode months: %w", err)
	}
	out := make([]viewquery.Option, len(body.Months))
	for i, m := range body.Months {
		out[i] = viewquery.Option{Value: m, Label: MonthLabel(m)}
	}
	return out, nil
}

// MonthLabel renders YYYY-MM as "January 2024". Other input is returned
// unchanged.
func MonthLabel(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}
	return t.Format("January 2006")
}

// decodeDates lists the dates of the selected month. For ranges the last
// duration-1 dates are dropped so every choice has a full range after it.
func decodeDates(raw json.RawMessage, sel viewquery.Selection) ([]viewquery.Option, error) {
	var body struct {
		Dates []string `json:"available_dates"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode dates: %w", err)
	}

	days := 1
	switch sel.View() {
	case ViewWeek:
		days = WeekDays
	case ViewCustom:
		n, ok := sel.Int(viewquery.FieldDuration)
		if !ok {
			return nil, fmt.Errorf("%w: %s", viewquery.ErrIncomplete, viewquery.FieldDuration)
		}
		days = n
	}
	dates := TrimDates(body.Dates, days)

	out := make([]viewquery.Option, len(dates))
	for i, d := range dates {
		out[i] = viewquery.Option{Value: d, Label: d}
	}
	return out, nil
}

// TrimDates drops the last days-1 entries of dates.
func TrimDates(dates []string, days int) []string {
	if days <= 1 {
		return dates
	}
	keep := len(dates) - (days - 1)
	if keep <= 0 {
		return nil
	}
	return dates[:keep]
}
