package retrain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
)

// Page is the board and URL name of the retraining page.
const Page = "retrain"

// NewTable returns the retraining configuration: one view reading the
// retrain status and the original-vs-retrained comparison.
func NewTable() (*viewquery.Table, error) {
	return viewquery.NewTable(viewquery.Config{
		Page: Page,
		Views: []viewquery.View{{
			Name:   "dashboard",
			Label:  "Retraining",
			Inputs: []viewquery.Field{},
			Queries: []viewquery.Query{
				viewquery.Static(catalog.RetrainStatus),
				viewquery.Static(catalog.RetrainCompare),
			},
		}},
	})
}

// ModelStatus is one entry of the retrain status.
type ModelStatus struct {
	Service         string `json:"service"`
	NeedsRetrain    bool   `json:"needs_retrain"`
	LastTrainedDate string `json:"last_trained_date"`
	LastDataDate    string `json:"last_data_date"`
	RetrainReason   string `json:"retrain_reason"`
}

// Title is the upper-cased service name.
func (m ModelStatus) Title() string {
	return strings.ToUpper(m.Service)
}

// Metrics are the error measures of one model.
type Metrics struct {
	MAE  float64 `json:"MAE"`
	RMSE float64 `json:"RMSE"`
	MAPE float64 `json:"MAPE"`
}

// Comparison pits the serving model against its retrained candidate.
type Comparison struct {
	Target           string  `json:"target"`
	Service          string  `json:"service"`
	OriginalMetrics  Metrics `json:"original_metrics"`
	RetrainedMetrics Metrics `json:"retrained_metrics"`
	Summary          struct {
		MetricsImproved int     `json:"metrics_improved"`
		TotalMetrics    int     `json:"total_metrics"`
		PercentImproved float64 `json:"percent_improved"`
	} `json:"improvement_summary"`
	Improvements struct {
		Overall string `json:"Overall"`
	} `json:"improvements"`
}

// Improved reports whether the candidate beats the serving model overall.
func (c Comparison) Improved() bool {
	return c.Improvements.Overall == "improved"
}

// Title is the card heading of the comparison.
func (c Comparison) Title() string {
	return strings.ToUpper(c.Service) + " Comparison"
}

// DecodeStatus reads the retrain status payload. Reasons are cleaned for
// display.
func DecodeStatus(raw json.RawMessage) ([]ModelStatus, error) {
	var body struct {
		ModelsStatus []ModelStatus `json:"models_status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode retrain status: %w", err)
	}
	for i := range body.ModelsStatus {
		body.ModelsStatus[i].RetrainReason = htmlsanitize.Text(body.ModelsStatus[i].RetrainReason)
	}
	return body.ModelsStatus, nil
}

// DecodeComparisons reads the retrain comparison payload.
func DecodeComparisons(raw json.RawMessage) ([]Comparison, error) {
	var body struct {
		Comparisons []Comparison `json:"comparisons"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode retrain comparison: %w", err)
	}
	return body.Comparisons, nil
}
