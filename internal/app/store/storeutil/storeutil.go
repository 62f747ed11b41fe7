// internal/app/store/storeutil/storeutil.go
package storeutil

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Newest returns *options.FindOptions sorting by field descending and
// capping the result at limit. A limit ≤ 0 means no cap.
func Newest(field string, limit int64) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: field, Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return opts
}
