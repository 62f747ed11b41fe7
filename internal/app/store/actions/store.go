// Package actions records retrain and switch requests sent to the model
// backend.
package actions

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratacast/internal/app/store/storeutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// CollectionName is the MongoDB collection of the action ledger.
const CollectionName = "write_actions"

// Kind is the type of write action.
type Kind string

const (
	KindRetrain Kind = "retrain"
	KindSwitch  Kind = "switch"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindRetrain || k == KindSwitch
}

// Outcome is how an action ended.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeNoop      Outcome = "noop" // backend answered but changed no model
	OutcomeFailed    Outcome = "failed"
)

// ErrNotFound is returned when no action matches.
var ErrNotFound = errors.New("action not found")

// Action is one ledger entry.
type Action struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ActionID   string             `bson:"action_id" json:"actionId"`
	Kind       Kind               `bson:"kind" json:"kind"`
	Force      bool               `bson:"force" json:"force"`
	Visitor    string             `bson:"visitor" json:"-"`
	StartedAt  time.Time          `bson:"started_at" json:"startedAt"`
	FinishedAt *time.Time         `bson:"finished_at,omitempty" json:"finishedAt,omitempty"`
	Outcome    Outcome            `bson:"outcome" json:"outcome"`
	Message    string             `bson:"message,omitempty" json:"message,omitempty"`
	Count      int                `bson:"count" json:"count"`
}

// Duration returns how long a finished action ran.
func (a Action) Duration() time.Duration {
	if a.FinishedAt == nil {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Store provides ledger persistence.
type Store struct {
	c *mongo.Collection
}

// New creates an action store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// Start inserts a pending entry. StartedAt defaults to now.
func (s *Store) Start(ctx context.Context, a Action) (Action, error) {
	if a.ActionID == "" {
		return Action{}, errors.New("actions: action id is required")
	}
	if !a.Kind.Valid() {
		return Action{}, errors.New("actions: unknown kind " + string(a.Kind))
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	a.ID = primitive.NewObjectID()
	a.Outcome = OutcomePending
	a.FinishedAt = nil
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		return Action{}, err
	}
	return a, nil
}

// Finish records the outcome of a pending action.
func (s *Store) Finish(ctx context.Context, actionID string, outcome Outcome, message string, count int) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"action_id": actionID},
		bson.M{"$set": bson.M{
			"outcome":     outcome,
			"message":     message,
			"count":       count,
			"finished_at": now,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one entry by action id.
func (s *Store) Get(ctx context.Context, actionID string) (Action, error) {
	var a Action
	err := s.c.FindOne(ctx, bson.M{"action_id": actionID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Action{}, ErrNotFound
	}
	return a, err
}

// Recent returns the newest entries, newest first. A non-empty visitor
// restricts the list to that visitor.
func (s *Store) Recent(ctx context.Context, visitor string, limit int64) ([]Action, error) {
	filter := bson.M{}
	if visitor != "" {
		filter["visitor"] = visitor
	}
	cur, err := s.c.Find(ctx, filter, storeutil.Newest("started_at", limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Action{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOlderThan removes entries started before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"started_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
