// Package mongo provides a MongoDB implementation of
// subscription.SubscriptionStore, for parity with registry/store/mongo's
// pattern of a durable backend alongside the in-memory reference
// implementation. It uses go.mongodb.org/mongo-driver/v2, the same driver
// generation internal/toolregistry/semsearch uses, so a deployment can share
// one MongoDB cluster for both the vector-search corpus and subscription
// state.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mberto10/researchctl/internal/subscription"
)

// Store is a MongoDB-backed subscription.SubscriptionStore.
type Store struct {
	collection *mongo.Collection
}

var _ subscription.SubscriptionStore = (*Store)(nil)

// New builds a Store using the provided collection. The collection should
// be from a connected MongoDB client.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// document is the MongoDB representation of a subscription.Subscription.
type document struct {
	ID            string    `bson:"_id"`
	Topic         string    `bson:"topic"`
	StrategyHint  string    `bson:"strategy_hint,omitempty"`
	DepthOverride string    `bson:"depth_override,omitempty"`
	Frequency     string    `bson:"frequency"`
	UserID        string    `bson:"user_id,omitempty"`
	TaskID        string    `bson:"task_id,omitempty"`
	Callback      string    `bson:"callback,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
}

func toDocument(sub subscription.Subscription) document {
	return document{
		ID:            sub.ID,
		Topic:         sub.Topic,
		StrategyHint:  sub.StrategyHint,
		DepthOverride: sub.DepthOverride,
		Frequency:     sub.Frequency,
		UserID:        sub.Identity.UserID,
		TaskID:        sub.Identity.TaskID,
		Callback:      sub.Callback,
		CreatedAt:     sub.CreatedAt,
	}
}

func fromDocument(d document) subscription.Subscription {
	return subscription.Subscription{
		ID:            d.ID,
		Topic:         d.Topic,
		StrategyHint:  d.StrategyHint,
		DepthOverride: d.DepthOverride,
		Frequency:     d.Frequency,
		Identity:      subscription.Identity{UserID: d.UserID, TaskID: d.TaskID},
		Callback:      d.Callback,
		CreatedAt:     d.CreatedAt,
	}
}

// ListByFrequency returns every Subscription document with the given
// frequency.
func (s *Store) ListByFrequency(ctx context.Context, frequency string) ([]subscription.Subscription, error) {
	cur, err := s.collection.Find(ctx, bson.M{"frequency": frequency})
	if err != nil {
		return nil, fmt.Errorf("mongo: list subscriptions by frequency %q: %w", frequency, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode subscriptions: %w", err)
	}
	out := make([]subscription.Subscription, len(docs))
	for i, d := range docs {
		out[i] = fromDocument(d)
	}
	return out, nil
}

// Get retrieves a Subscription by ID.
func (s *Store) Get(ctx context.Context, id string) (subscription.Subscription, error) {
	var d document
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, fmt.Errorf("mongo: get subscription %q: %w", id, err)
	}
	return fromDocument(d), nil
}

// Save upserts a Subscription.
func (s *Store) Save(ctx context.Context, sub subscription.Subscription) error {
	doc := toDocument(sub)
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": sub.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongo: save subscription %q: %w", sub.ID, err)
	}
	return nil
}

// Delete removes a Subscription by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo: delete subscription %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return subscription.ErrNotFound
	}
	return nil
}
