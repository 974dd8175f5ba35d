// Package lockstore is a BoltDB implementation of lockstore.Store.
//
// Bolt allows a single writer at a time, so the get-then-put inside one Update
// transaction is the insert-if-absent primitive.
package lockstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

const bucketName = "recharge_idempotency"

type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database file at path and ensures the bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

type storedRecord struct {
	Key              string    `json:"key"`
	OrderID          string    `json:"orderId,omitempty"`
	CheckoutID       string    `json:"checkoutId,omitempty"`
	Phone            string    `json:"phone"`
	Amount           string    `json:"amount"`
	BundleOperatorID int64     `json:"bundleOperatorId,omitempty"`
	ProductTitle     string    `json:"productTitle,omitempty"`
	Status           string    `json:"status"`
	TransactionID    string    `json:"transactionId,omitempty"`
	LastError        string    `json:"lastError,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toStored(r lockstore.Record) storedRecord {
	return storedRecord{
		Key:              string(r.Key),
		OrderID:          r.OrderID,
		CheckoutID:       r.CheckoutID,
		Phone:            r.Phone,
		Amount:           r.Amount,
		BundleOperatorID: r.BundleOperatorID,
		ProductTitle:     r.ProductTitle,
		Status:           string(r.Status),
		TransactionID:    r.TransactionID,
		LastError:        r.LastError,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r storedRecord) toRecord() lockstore.Record {
	return lockstore.Record{
		Key:              lockstore.Key(r.Key),
		OrderID:          r.OrderID,
		CheckoutID:       r.CheckoutID,
		Phone:            r.Phone,
		Amount:           r.Amount,
		BundleOperatorID: r.BundleOperatorID,
		ProductTitle:     r.ProductTitle,
		Status:           lockstore.Status(r.Status),
		TransactionID:    r.TransactionID,
		LastError:        r.LastError,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func decode(v []byte) (lockstore.Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(v, &sr); err != nil {
		return lockstore.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return sr.toRecord(), nil
}

func put(b *bolt.Bucket, rec lockstore.Record) error {
	data, err := json.Marshal(toStored(rec))
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.Key), data)
}

func (s *Store) TryLock(ctx context.Context, rec lockstore.Record) (bool, error) {
	_ = ctx
	if err := lockstore.ValidateInsert(rec); err != nil {
		return false, err
	}
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Get([]byte(rec.Key)) != nil {
			return nil
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = s.now()
		}
		rec.UpdatedAt = rec.CreatedAt
		rec.TransactionID = ""
		rec.LastError = ""
		created = true
		return put(b, rec)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *Store) Transition(ctx context.Context, key lockstore.Key, from, to lockstore.Status, out lockstore.Outcome) (bool, error) {
	_ = ctx
	if err := lockstore.ValidateTransition(from, to); err != nil {
		return false, err
	}
	moved := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		rec, err := decode(v)
		if err != nil {
			return err
		}
		if rec.Status != from {
			return nil
		}
		rec.Status = to
		if out.TransactionID != "" {
			rec.TransactionID = out.TransactionID
		}
		if out.LastError != "" {
			rec.LastError = out.LastError
		}
		rec.UpdatedAt = s.now()
		moved = true
		return put(b, rec)
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

func (s *Store) Get(ctx context.Context, key lockstore.Key) (lockstore.Record, error) {
	_ = ctx
	var rec lockstore.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return lockstore.ErrNotFound
		}
		var err error
		rec, err = decode(v)
		return err
	})
	if err != nil {
		return lockstore.Record{}, err
	}
	return rec, nil
}

// scan visits every record. Bolt has no secondary indexes; the bucket is small enough
// for a single-node deployment that full scans are acceptable.
func (s *Store) scan(fn func(lockstore.Record)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			rec, err := decode(v)
			if err != nil {
				return err
			}
			fn(rec)
			return nil
		})
	})
}

func (s *Store) CountSuccessesSince(ctx context.Context, phone string, since time.Time) (int, error) {
	_ = ctx
	n := 0
	err := s.scan(func(rec lockstore.Record) {
		if rec.Phone == phone && rec.Status == lockstore.StatusSuccess && !rec.CreatedAt.Before(since) {
			n++
		}
	})
	return n, err
}

func (s *Store) List(ctx context.Context, f lockstore.ListFilter) ([]lockstore.Record, error) {
	_ = ctx
	var out []lockstore.Record
	err := s.scan(func(rec lockstore.Record) {
		if f.Status == "" || rec.Status == f.Status {
			out = append(out, rec)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	if limit := f.NormalizeLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
