// Package lockstore is a MongoDB implementation of lockstore.Store.
package lockstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

const collectionName = "recharge_idempotency"

// Store keeps one document per key with _id set to the key, so the primary index
// enforces insert-if-absent.
type Store struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		collection: db.Collection(collectionName),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the secondary indexes used by rate limiting and listing.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "phone", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

type document struct {
	Key              string    `bson:"_id"`
	OrderID          string    `bson:"orderId"`
	CheckoutID       string    `bson:"checkoutId"`
	Phone            string    `bson:"phone"`
	Amount           string    `bson:"amount"`
	BundleOperatorID int64     `bson:"bundleOperatorId"`
	ProductTitle     string    `bson:"productTitle"`
	Status           string    `bson:"status"`
	TransactionID    string    `bson:"transactionId"`
	LastError        string    `bson:"lastError"`
	CreatedAt        time.Time `bson:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

func (d document) toRecord() lockstore.Record {
	return lockstore.Record{
		Key:              lockstore.Key(d.Key),
		OrderID:          d.OrderID,
		CheckoutID:       d.CheckoutID,
		Phone:            d.Phone,
		Amount:           d.Amount,
		BundleOperatorID: d.BundleOperatorID,
		ProductTitle:     d.ProductTitle,
		Status:           lockstore.Status(d.Status),
		TransactionID:    d.TransactionID,
		LastError:        d.LastError,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

func (s *Store) TryLock(ctx context.Context, rec lockstore.Record) (bool, error) {
	if err := lockstore.ValidateInsert(rec); err != nil {
		return false, err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.collection.InsertOne(ctx, document{
		Key:              string(rec.Key),
		OrderID:          rec.OrderID,
		CheckoutID:       rec.CheckoutID,
		Phone:            rec.Phone,
		Amount:           rec.Amount,
		BundleOperatorID: rec.BundleOperatorID,
		ProductTitle:     rec.ProductTitle,
		Status:           string(rec.Status),
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Transition(ctx context.Context, key lockstore.Key, from, to lockstore.Status, out lockstore.Outcome) (bool, error) {
	if err := lockstore.ValidateTransition(from, to); err != nil {
		return false, err
	}
	set := bson.M{"status": string(to), "updatedAt": s.now()}
	if out.TransactionID != "" {
		set["transactionId"] = out.TransactionID
	}
	if out.LastError != "" {
		set["lastError"] = out.LastError
	}
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": string(key), "status": string(from)},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (s *Store) Get(ctx context.Context, key lockstore.Key) (lockstore.Record, error) {
	var d document
	err := s.collection.FindOne(ctx, bson.M{"_id": string(key)}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return lockstore.Record{}, lockstore.ErrNotFound
		}
		return lockstore.Record{}, err
	}
	return d.toRecord(), nil
}

func (s *Store) CountSuccessesSince(ctx context.Context, phone string, since time.Time) (int, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{
		"phone":     phone,
		"status":    string(lockstore.StatusSuccess),
		"createdAt": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) List(ctx context.Context, f lockstore.ListFilter) ([]lockstore.Record, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(f.NormalizeLimit()))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]lockstore.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toRecord())
	}
	return out, nil
}
