// Package querystats feeds the query statistics store from backend fan-outs
// and page handlers.
package querystats

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dalemusser/stratacast/internal/app/store/querystats"
	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"go.uber.org/zap"
)

// HTTPKey is the key page handler timings are stored under.
const HTTPKey = "http"

// Sink persists one sample.
type Sink interface {
	Record(ctx context.Context, sample querystats.Sample, bucketDuration time.Duration) error
}

// Recorder writes samples to a Sink without blocking the caller.
type Recorder struct {
	sink           Sink
	logger         *zap.Logger
	bucketDuration time.Duration
	mu             sync.RWMutex
	wg             sync.WaitGroup
}

// NewRecorder creates a recorder. A nil sink disables recording.
func NewRecorder(sink Sink, logger *zap.Logger, bucketDuration time.Duration) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bucketDuration <= 0 {
		bucketDuration = time.Hour
	}
	return &Recorder{sink: sink, logger: logger, bucketDuration: bucketDuration}
}

// SetBucketDuration changes the bucket size for new samples.
func (r *Recorder) SetBucketDuration(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bucketDuration = d
}

// BucketDuration returns the current bucket size.
func (r *Recorder) BucketDuration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bucketDuration
}

// Record stores a sample asynchronously.
func (r *Recorder) Record(sample querystats.Sample) {
	if r == nil || r.sink == nil {
		return
	}
	d := r.BucketDuration()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := r.sink.Record(ctx, sample, d); err != nil {
			r.logger.Error("failed to record query stats",
				zap.String("page", sample.Page),
				zap.String("key", sample.Key),
				zap.Error(err))
		}
	}()
}

// Flush waits for pending writes.
func (r *Recorder) Flush() {
	if r != nil {
		r.wg.Wait()
	}
}

// Observer returns an aggregate observer recording every query of page.
// Queries cancelled because a sibling failed are skipped.
func (r *Recorder) Observer(page string) aggregate.Observer {
	return func(o aggregate.Outcome) {
		if errors.Is(o.Err, context.Canceled) {
			return
		}
		r.Record(querystats.Sample{Page: page, Key: o.Key, Duration: o.Duration, Failed: o.Err != nil})
	}
}

// Middleware records the latency and status of every request served by next
// under (page, HTTPKey). A nil recorder passes requests through.
func Middleware(r *Recorder, page string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, req)
			r.Record(querystats.Sample{
				Page:     page,
				Key:      HTTPKey,
				Duration: time.Since(start),
				Failed:   wrapped.statusCode >= 500,
			})
		})
	}
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher.
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
