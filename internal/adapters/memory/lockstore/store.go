package lockstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

// Store is an in-memory implementation of lockstore.Store.
// It is safe for concurrent use within one process but not durable; use it in tests only.
type Store struct {
	mu  sync.RWMutex
	m   map[lockstore.Key]lockstore.Record
	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		m:   make(map[lockstore.Key]lockstore.Record),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// NewStoreWithClock lets tests control CreatedAt/UpdatedAt stamps.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

func (s *Store) TryLock(ctx context.Context, rec lockstore.Record) (bool, error) {
	_ = ctx
	if err := lockstore.ValidateInsert(rec); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[rec.Key]; ok {
		return false, nil
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	s.m[rec.Key] = rec
	return true, nil
}

func (s *Store) Transition(ctx context.Context, key lockstore.Key, from, to lockstore.Status, out lockstore.Outcome) (bool, error) {
	_ = ctx
	if err := lockstore.ValidateTransition(from, to); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[key]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	if out.TransactionID != "" {
		rec.TransactionID = out.TransactionID
	}
	if out.LastError != "" {
		rec.LastError = out.LastError
	}
	rec.UpdatedAt = s.now()
	s.m[key] = rec
	return true, nil
}

func (s *Store) Get(ctx context.Context, key lockstore.Key) (lockstore.Record, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m[key]
	if !ok {
		return lockstore.Record{}, lockstore.ErrNotFound
	}
	return rec, nil
}

func (s *Store) CountSuccessesSince(ctx context.Context, phone string, since time.Time) (int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.m {
		if rec.Phone == phone && rec.Status == lockstore.StatusSuccess && !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, f lockstore.ListFilter) ([]lockstore.Record, error) {
	_ = ctx
	s.mu.RLock()
	out := make([]lockstore.Record, 0, len(s.m))
	for _, rec := range s.m {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := f.NormalizeLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
