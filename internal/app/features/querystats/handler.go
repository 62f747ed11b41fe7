package querystats

import (
	"context"
	"net/http"
	"sort"
	"time"

	errorsfeature "github.com/dalemusser/stratacast/internal/app/features/errors"
	statsstore "github.com/dalemusser/stratacast/internal/app/store/querystats"
	"github.com/dalemusser/stratacast/internal/app/system/timeouts"
	"github.com/dalemusser/stratacast/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Reader reads recorded statistics. *statsstore.Store satisfies it.
type Reader interface {
	GetSummary(ctx context.Context, start, end time.Time) ([]statsstore.Summary, error)
	GetRange(ctx context.Context, page string, start, end time.Time) ([]statsstore.Bucket, error)
}

// Bucketer reads and changes the recording resolution.
// *system/querystats.Recorder satisfies it.
type Bucketer interface {
	BucketDuration() time.Duration
	SetBucketDuration(d time.Duration)
}

// Handler serves the statistics page.
type Handler struct {
	store    Reader
	recorder Bucketer
	errLog   *errorsfeature.ErrorLogger
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a statistics handler.
func NewHandler(store Reader, recorder Bucketer, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errLog == nil {
		errLog = errorsfeature.NewErrorLogger(logger)
	}
	return &Handler{store: store, recorder: recorder, errLog: errLog, logger: logger, now: time.Now}
}

// Routes returns the statistics router.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.ServeList)
	r.Post("/bucket", h.HandleSetBucket)
	return r
}

// ServeList renders the summary of the selected range (?range=24h) and the
// series of one page (?page=overview).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	timeRange, span := rangeSpan(r.URL.Query().Get("range"))
	end := h.now().UTC()
	start := end.Add(-span)

	summaries, err := h.store.GetSummary(ctx, start, end)
	if err != nil {
		h.errLog.Log(r, "failed to load query stats summary", err)
	}

	pages := map[string]bool{}
	vms := make([]SummaryVM, 0, len(summaries))
	for _, s := range summaries {
		pages[s.Page] = true
		vms = append(vms, SummaryVM{
			Page:          s.Page,
			Key:           s.Key,
			TotalRequests: s.TotalRequests,
			TotalErrors:   s.TotalErrors,
			ErrorRate:     s.ErrorRate(),
			AvgMs:         s.AvgMs,
			MinMs:         s.MinMs,
			MaxMs:         s.MaxMs,
			LastBucket:    s.LastBucket,
		})
	}
	pageNames := make([]string, 0, len(pages))
	for p := range pages {
		pageNames = append(pageNames, p)
	}
	sort.Strings(pageNames)

	pageFilter := r.URL.Query().Get("page")
	if !pages[pageFilter] {
		pageFilter = ""
	}
	var series []PointVM
	if pageFilter != "" {
		series = h.series(ctx, r, pageFilter, start, end)
	}

	current := formatDuration(h.recorder.BucketDuration())
	templates.Render(w, r, "querystats/list", ListVM{
		BaseVM:        viewdata.New(r, "Query Statistics"),
		CurrentBucket: current,
		Buckets:       bucketChoices(current),
		TimeRange:     timeRange,
		TimeRanges:    rangeOptions(timeRange),
		StartTime:     start,
		EndTime:       end,
		PageFilter:    pageFilter,
		Pages:         pageNames,
		Summaries:     vms,
		Series:        series,
	})
}

// series sums a page's buckets over its keys, oldest first.
func (h *Handler) series(ctx context.Context, r *http.Request, page string, start, end time.Time) []PointVM {
	buckets, err := h.store.GetRange(ctx, page, start, end)
	if err != nil {
		h.errLog.Log(r, "failed to load query stats series", err, zap.String("stats_page", page))
		return nil
	}

	type acc struct {
		PointVM
		totalMs int64
	}
	byTime := map[time.Time]*acc{}
	var order []time.Time
	for _, b := range buckets {
		a, ok := byTime[b.Bucket]
		if !ok {
			a = &acc{PointVM: PointVM{Timestamp: b.Bucket}}
			byTime[b.Bucket] = a
			order = append(order, b.Bucket)
		}
		a.Requests += b.Requests
		a.Errors += b.Errors
		a.totalMs += b.TotalMs
		if b.MaxMs > a.MaxMs {
			a.MaxMs = b.MaxMs
		}
	}

	out := make([]PointVM, 0, len(order))
	for _, ts := range order {
		a := byTime[ts]
		if a.Requests > 0 {
			a.AvgMs = float64(a.totalMs) / float64(a.Requests)
		}
		out = append(out, a.PointVM)
	}
	return out
}

// HandleSetBucket changes the recording resolution. Existing buckets keep
// their resolution.
func (h *Handler) HandleSetBucket(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	d, ok := validBucket(r.PostFormValue("bucket"))
	if !ok {
		http.Error(w, "Invalid bucket duration", http.StatusBadRequest)
		return
	}
	h.recorder.SetBucketDuration(d)
	h.logger.Info("query stats bucket changed", zap.Duration("bucket", d))

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Refresh", "true")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/querystats", http.StatusSeeOther)
}
