// Package querystats serves the backend query statistics page: request
// counts, failures and latency per page and view-model key.
package querystats

import (
	"strconv"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/viewdata"
)

// ListVM is the view model of the statistics page.
type ListVM struct {
	viewdata.BaseVM

	CurrentBucket string
	Buckets       []Option

	TimeRange  string
	TimeRanges []Option
	StartTime  time.Time
	EndTime    time.Time

	// PageFilter limits the series to one dashboard page.
	PageFilter string
	Pages      []string

	Summaries []SummaryVM
	Series    []PointVM
}

// SummaryVM is one (page, key) row.
type SummaryVM struct {
	Page          string
	Key           string
	TotalRequests int64
	TotalErrors   int64
	ErrorRate     float64
	AvgMs         float64
	MinMs         int64
	MaxMs         int64
	LastBucket    time.Time
}

// PointVM is one bucket of the page series, summed over keys.
type PointVM struct {
	Timestamp time.Time
	Requests  int64
	Errors    int64
	AvgMs     float64
	MaxMs     int64
}

// Option is a choice of a select input.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// bucketOptions lists the recording resolutions an operator can choose.
var bucketOptions = []Option{
	{Value: "1m", Label: "1 minute"},
	{Value: "5m", Label: "5 minutes"},
	{Value: "15m", Label: "15 minutes"},
	{Value: "1h", Label: "1 hour"},
	{Value: "6h", Label: "6 hours"},
	{Value: "24h", Label: "24 hours"},
}

var timeRanges = []struct {
	Option
	span time.Duration
}{
	{Option{Value: "1h", Label: "Last hour"}, time.Hour},
	{Option{Value: "6h", Label: "Last 6 hours"}, 6 * time.Hour},
	{Option{Value: "24h", Label: "Last 24 hours"}, 24 * time.Hour},
	{Option{Value: "7d", Label: "Last 7 days"}, 7 * 24 * time.Hour},
	{Option{Value: "30d", Label: "Last 30 days"}, 30 * 24 * time.Hour},
}

// DefaultRange is used when ?range is missing or unknown.
const DefaultRange = "24h"

// rangeSpan returns the span of a range value, falling back to DefaultRange.
func rangeSpan(v string) (string, time.Duration) {
	for _, r := range timeRanges {
		if r.Value == v {
			return r.Value, r.span
		}
	}
	return DefaultRange, 24 * time.Hour
}

func rangeOptions(selected string) []Option {
	out := make([]Option, len(timeRanges))
	for i, r := range timeRanges {
		o := r.Option
		o.Selected = o.Value == selected
		out[i] = o
	}
	return out
}

func bucketChoices(current string) []Option {
	out := make([]Option, len(bucketOptions))
	for i, o := range bucketOptions {
		o.Selected = o.Value == current
		out[i] = o
	}
	return out
}

// validBucket reports whether v is one of the offered resolutions.
func validBucket(v string) (time.Duration, bool) {
	for _, o := range bucketOptions {
		if o.Value == v {
			d, err := time.ParseDuration(v)
			return d, err == nil
		}
	}
	return 0, false
}

// formatDuration renders d the way the bucket options spell it.
func formatDuration(d time.Duration) string {
	switch {
	case d%(time.Hour) == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%(time.Minute) == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	}
	return d.String()
}
