package forecast

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/dalemusser/stratacast/internal/app/system/catalog"
)

// Risk classifies the recommended adjustment.
type Risk string

const (
	RiskShort      Risk = "Short"
	RiskOver       Risk = "Over-provisioned"
	RiskSufficient Risk = "Sufficient"
)

// riskThreshold is the adjustment, in percent of previous usage, beyond
// which capacity is flagged.
const riskThreshold = 10

// Class returns the CSS class for the risk badge.
func (r Risk) Class() string {
	switch r {
	case RiskShort:
		return "risk-short"
	case RiskOver:
		return "risk-over"
	}
	return "risk-ok"
}

// RiskFor maps an adjustment percentage to a risk.
func RiskFor(adjustmentPercent float64) Risk {
	switch {
	case adjustmentPercent > riskThreshold:
		return RiskShort
	case adjustmentPercent < -riskThreshold:
		return RiskOver
	}
	return RiskSufficient
}

// Payload is the forecast reply of the backend.
type Payload struct {
	Forecasts             []json.RawMessage `json:"forecasts"`
	ForecastMean          float64           `json:"forecast_mean"`
	ForecastSum           float64           `json:"forecast_sum"`
	PreviousMean          float64           `json:"previous_mean"`
	PreviousSum           float64           `json:"previous_sum"`
	RecommendedAdjustment float64           `json:"recommended_adjustment"`
}

// Summary is the derived headline of a forecast.
type Summary struct {
	Service catalog.Service
	Horizon int

	PreviousSum       float64
	ForecastSum       float64
	Adjustment        float64
	PercentChange     float64
	AdjustmentPercent float64
	Points            int

	Risk Risk
}

// Summarize derives the summary from a forecast payload. Percentages are 0
// when there is no previous usage to compare against.
func Summarize(raw json.RawMessage, svc catalog.Service, h catalog.Horizon) (Summary, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Summary{}, fmt.Errorf("decode forecast: %w", err)
	}
	s := Summary{
		Service:     svc,
		Horizon:     int(h),
		PreviousSum: round2(p.PreviousSum),
		ForecastSum: round2(p.ForecastSum),
		Adjustment:  round2(p.RecommendedAdjustment),
		Points:      len(p.Forecasts),
	}
	if p.PreviousSum > 0 {
		s.PercentChange = round2((p.ForecastSum/p.PreviousSum - 1) * 100)
		s.AdjustmentPercent = round2(p.RecommendedAdjustment / p.PreviousSum * 100)
	}
	s.Risk = RiskFor(s.AdjustmentPercent)
	return s, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Noun is "activity" for users and "usage" otherwise.
func (s Summary) Noun() string {
	if s.Service == catalog.ServiceUsers {
		return "activity"
	}
	return "usage"
}

// Trend describes the direction of the change, e.g. "Increased usage".
func (s Summary) Trend() string {
	if s.PercentChange > 0 {
		return "Increased " + s.Noun()
	}
	return "Decreased " + s.Noun()
}

// ShowsCapacity reports whether the adjustment and risk apply. Users are
// not provisioned capacity.
func (s Summary) ShowsCapacity() bool {
	return s.Service != catalog.ServiceUsers
}

// SignedAdjustment renders the adjustment with an explicit plus sign.
func (s Summary) SignedAdjustment() string {
	if s.Adjustment > 0 {
		return fmt.Sprintf("+%.2f", s.Adjustment)
	}
	return fmt.Sprintf("%.2f", s.Adjustment)
}
