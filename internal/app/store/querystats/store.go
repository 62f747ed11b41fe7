// Package querystats stores time-bucketed statistics of backend queries,
// one bucket per page and view-model key.
package querystats

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection for query statistics.
const CollectionName = "query_stats"

// Bucket is one time bucket of aggregated statistics for a query.
type Bucket struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Bucket         time.Time          `bson:"bucket"`          // bucket start
	BucketDuration string             `bson:"bucket_duration"` // e.g. "1h"
	Page           string             `bson:"page"`
	Key            string             `bson:"key"` // view-model key
	Requests       int64              `bson:"requests"`
	Errors         int64              `bson:"errors"`
	TotalMs        int64              `bson:"total_ms"`
	MinMs          int64              `bson:"min_ms"`
	MaxMs          int64              `bson:"max_ms"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

// AvgMs returns the mean latency in milliseconds.
func (b *Bucket) AvgMs() float64 {
	if b.Requests == 0 {
		return 0
	}
	return float64(b.TotalMs) / float64(b.Requests)
}

// Sample is one finished query.
type Sample struct {
	Page     string
	Key      string
	Duration time.Duration
	Failed   bool
}

// Store provides query statistics persistence.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

// New creates a query stats store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName), now: time.Now}
}

// TruncateToBucket truncates t to the start of its bucket.
func TruncateToBucket(t time.Time, d time.Duration) time.Time {
	return t.UTC().Truncate(d)
}

// Record folds one sample into its bucket, creating the bucket if needed.
func (s *Store) Record(ctx context.Context, sample Sample, bucketDuration time.Duration) error {
	now := s.now().UTC()
	bucket := TruncateToBucket(now, bucketDuration)
	durationStr := bucketDuration.String()
	ms := sample.Duration.Milliseconds()

	// $min/$max also initialise the fields on insert, so they stay out of
	// $setOnInsert.
	inc := bson.M{"requests": 1, "total_ms": ms}
	if sample.Failed {
		inc["errors"] = 1
	}
	update := bson.M{
		"$inc": inc,
		"$set": bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"_id":             primitive.NewObjectID(),
			"bucket":          bucket,
			"bucket_duration": durationStr,
			"page":            sample.Page,
			"key":             sample.Key,
		},
		"$min": bson.M{"min_ms": ms},
		"$max": bson.M{"max_ms": ms},
	}

	_, err := s.c.UpdateOne(ctx, bson.M{
		"bucket":          bucket,
		"page":            sample.Page,
		"key":             sample.Key,
		"bucket_duration": durationStr,
	}, update, options.Update().SetUpsert(true))
	return err
}

// GetRange returns a page's buckets in [start, end], oldest first. An empty
// page matches every page.
func (s *Store) GetRange(ctx context.Context, page string, start, end time.Time) ([]Bucket, error) {
	filter := bson.M{
		"bucket": bson.M{"$gte": start.UTC(), "$lte": end.UTC()},
	}
	if page != "" {
		filter["page"] = page
	}

	opts := options.Find().SetSort(bson.D{{Key: "bucket", Value: 1}, {Key: "page", Value: 1}, {Key: "key", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var buckets []Bucket
	if err := cur.All(ctx, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

// Summary aggregates every bucket of one (page, key) pair.
type Summary struct {
	Page          string
	Key           string
	TotalRequests int64
	TotalErrors   int64
	AvgMs         float64
	MinMs         int64
	MaxMs         int64
	LastBucket    time.Time
}

// ErrorRate returns the failed share of requests as a percentage.
func (s Summary) ErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalErrors) / float64(s.TotalRequests) * 100
}

// GetSummary returns one summary per (page, key) with buckets in
// [start, end], sorted by page then key.
func (s *Store) GetSummary(ctx context.Context, start, end time.Time) ([]Summary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"bucket": bson.M{"$gte": start.UTC(), "$lte": end.UTC()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":         bson.M{"page": "$page", "key": "$key"},
			"requests":    bson.M{"$sum": "$requests"},
			"errors":      bson.M{"$sum": "$errors"},
			"total_ms":    bson.M{"$sum": "$total_ms"},
			"min_ms":      bson.M{"$min": "$min_ms"},
			"max_ms":      bson.M{"$max": "$max_ms"},
			"last_bucket": bson.M{"$max": "$bucket"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.page", Value: 1}, {Key: "_id.key", Value: 1}}}},
	}

	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Summary
	for cur.Next(ctx) {
		var doc struct {
			ID struct {
				Page string `bson:"page"`
				Key  string `bson:"key"`
			} `bson:"_id"`
			Requests   int64     `bson:"requests"`
			Errors     int64     `bson:"errors"`
			TotalMs    int64     `bson:"total_ms"`
			MinMs      int64     `bson:"min_ms"`
			MaxMs      int64     `bson:"max_ms"`
			LastBucket time.Time `bson:"last_bucket"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		var avg float64
		if doc.Requests > 0 {
			avg = float64(doc.TotalMs) / float64(doc.Requests)
		}
		out = append(out, Summary{
			Page:          doc.ID.Page,
			Key:           doc.ID.Key,
			TotalRequests: doc.Requests,
			TotalErrors:   doc.Errors,
			AvgMs:         avg,
			MinMs:         doc.MinMs,
			MaxMs:         doc.MaxMs,
			LastBucket:    doc.LastBucket,
		})
	}
	return out, cur.Err()
}

// DeleteOlderThan removes buckets that start before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"bucket": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
