package contracttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	lockstoreport "github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

type CleanupFunc = func()

type LockStoreFactory func(t *testing.T) (lockstoreport.Store, CleanupFunc)

// RunLockStore exercises the behavior every lockstore.Store backend must share.
// Keys are prefixed with the test name so shared databases do not collide across runs.
func RunLockStore(t *testing.T, newStore LockStoreFactory) {
	t.Helper()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	prefix := fmt.Sprintf("%s-%d-", t.Name(), time.Now().UnixNano())
	key := func(s string) lockstoreport.Key { return lockstoreport.Key(prefix + s) }

	t.Run("TryLockIsInsertIfAbsent", func(t *testing.T) {
		ctx := context.Background()
		rec := lockstoreport.Record{
			Key:          key("order-1001"),
			OrderID:      "1001",
			Phone:        "12345678",
			Amount:       "10",
			ProductTitle: "Recharge",
			Status:       lockstoreport.StatusLocked,
			CreatedAt:    time.Unix(1000, 0).UTC(),
		}
		ok, err := store.TryLock(ctx, rec)
		if err != nil || !ok {
			t.Fatalf("TryLock first: ok=%v err=%v", ok, err)
		}
		ok, err = store.TryLock(ctx, rec)
		if err != nil || ok {
			t.Fatalf("TryLock second: ok=%v err=%v, want false", ok, err)
		}

		got, err := store.Get(ctx, rec.Key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != lockstoreport.StatusLocked || got.OrderID != "1001" || got.Phone != "12345678" || got.Amount != "10" {
			t.Fatalf("unexpected record: %+v", got)
		}
		if !got.CreatedAt.Equal(rec.CreatedAt) {
			t.Fatalf("CreatedAt=%v want %v", got.CreatedAt, rec.CreatedAt)
		}

		// Terminal keys still block.
		if err := lockstoreport.MarkFailed(ctx, store, rec.Key, "boom"); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
		ok, err = store.TryLock(ctx, rec)
		if err != nil || ok {
			t.Fatalf("TryLock after failed: ok=%v err=%v, want false", ok, err)
		}
	})

	t.Run("TryLockRejectsTerminalInsert", func(t *testing.T) {
		_, err := store.TryLock(context.Background(), lockstoreport.Record{Key: key("bad"), Status: lockstoreport.StatusSuccess})
		if !errors.Is(err, lockstoreport.ErrInvalidTransition) {
			t.Fatalf("err=%v, want ErrInvalidTransition", err)
		}
		if _, err := store.Get(context.Background(), key("bad")); !errors.Is(err, lockstoreport.ErrNotFound) {
			t.Fatalf("Get err=%v, want ErrNotFound", err)
		}
	})

	t.Run("Transitions", func(t *testing.T) {
		ctx := context.Background()
		k := key("tx")
		if ok, err := store.TryLock(ctx, lockstoreport.Record{Key: k, Phone: "37123456", Amount: "25", Status: lockstoreport.StatusLocked}); err != nil || !ok {
			t.Fatalf("TryLock: ok=%v err=%v", ok, err)
		}
		ok, err := store.Transition(ctx, k, lockstoreport.StatusLocked, lockstoreport.StatusSuccess, lockstoreport.Outcome{TransactionID: "tx-42"})
		if err != nil || !ok {
			t.Fatalf("Transition locked->success: ok=%v err=%v", ok, err)
		}
		ok, err = store.Transition(ctx, k, lockstoreport.StatusLocked, lockstoreport.StatusFailed, lockstoreport.Outcome{LastError: "late"})
		if err != nil || ok {
			t.Fatalf("Transition from stale status: ok=%v err=%v, want false", ok, err)
		}
		if _, err := store.Transition(ctx, k, lockstoreport.StatusSuccess, lockstoreport.StatusFailed, lockstoreport.Outcome{}); !errors.Is(err, lockstoreport.ErrInvalidTransition) {
			t.Fatalf("Transition success->failed err=%v, want ErrInvalidTransition", err)
		}
		got, err := store.Get(ctx, k)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != lockstoreport.StatusSuccess || got.TransactionID != "tx-42" || got.LastError != "" {
			t.Fatalf("unexpected record: %+v", got)
		}
	})

	t.Run("MarkOnMissingKeyIsNoop", func(t *testing.T) {
		ctx := context.Background()
		if err := lockstoreport.MarkSuccess(ctx, store, key("missing"), "tx"); err != nil {
			t.Fatalf("MarkSuccess: %v", err)
		}
		if err := lockstoreport.MarkFailed(ctx, store, key("missing"), "x"); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
		if _, err := store.Get(ctx, key("missing")); !errors.Is(err, lockstoreport.ErrNotFound) {
			t.Fatalf("Get err=%v, want ErrNotFound", err)
		}
	})

	t.Run("PendingConfirmAndReject", func(t *testing.T) {
		ctx := context.Background()
		for _, k := range []lockstoreport.Key{key("p1"), key("p2")} {
			if ok, err := store.TryLock(ctx, lockstoreport.Record{Key: k, Phone: "37123456", Amount: "50", Status: lockstoreport.StatusPending}); err != nil || !ok {
				t.Fatalf("TryLock pending: ok=%v err=%v", ok, err)
			}
		}
		// Completing a pending record without confirmation is not a thing.
		if ok, err := store.Transition(ctx, key("p1"), lockstoreport.StatusLocked, lockstoreport.StatusSuccess, lockstoreport.Outcome{}); err != nil || ok {
			t.Fatalf("MarkSuccess on pending: ok=%v err=%v, want false", ok, err)
		}
		if ok, err := store.Transition(ctx, key("p1"), lockstoreport.StatusPending, lockstoreport.StatusLocked, lockstoreport.Outcome{}); err != nil || !ok {
			t.Fatalf("confirm: ok=%v err=%v", ok, err)
		}
		if ok, err := store.Transition(ctx, key("p1"), lockstoreport.StatusPending, lockstoreport.StatusLocked, lockstoreport.Outcome{}); err != nil || ok {
			t.Fatalf("second confirm: ok=%v err=%v, want false", ok, err)
		}
		if ok, err := store.Transition(ctx, key("p2"), lockstoreport.StatusPending, lockstoreport.StatusFailed, lockstoreport.Outcome{LastError: "rejected"}); err != nil || !ok {
			t.Fatalf("reject: ok=%v err=%v", ok, err)
		}
		got, err := store.Get(ctx, key("p2"))
		if err != nil || got.Status != lockstoreport.StatusFailed || got.LastError != "rejected" {
			t.Fatalf("rejected record=%+v err=%v", got, err)
		}
	})

	t.Run("ConcurrentTryLockHasOneWinner", func(t *testing.T) {
		ctx := context.Background()
		k := key("race")
		const n = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
			errs []error
		)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				ok, err := store.TryLock(ctx, lockstoreport.Record{Key: k, Phone: "37123456", Amount: "10", Status: lockstoreport.StatusLocked})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				}
				if ok {
					wins++
				}
			}()
		}
		close(start)
		wg.Wait()
		if len(errs) > 0 {
			t.Fatalf("TryLock errors: %v", errs)
		}
		if wins != 1 {
			t.Fatalf("winners=%d, want exactly 1", wins)
		}
	})

	t.Run("CountSuccessesSince", func(t *testing.T) {
		ctx := context.Background()
		phone := fmt.Sprintf("4%07d", time.Now().UnixNano()%10000000)
		base := time.Unix(50_000, 0).UTC()
		for i, at := range []time.Time{base.Add(-time.Hour), base, base.Add(time.Hour)} {
			k := key(fmt.Sprintf("count-%d", i))
			if ok, err := store.TryLock(ctx, lockstoreport.Record{Key: k, Phone: phone, Amount: "10", Status: lockstoreport.StatusLocked, CreatedAt: at}); err != nil || !ok {
				t.Fatalf("TryLock: ok=%v err=%v", ok, err)
			}
			if err := lockstoreport.MarkSuccess(ctx, store, k, fmt.Sprintf("tx-%d", i)); err != nil {
				t.Fatalf("MarkSuccess: %v", err)
			}
		}
		// Failed records do not count.
		fk := key("count-failed")
		if ok, err := store.TryLock(ctx, lockstoreport.Record{Key: fk, Phone: phone, Amount: "10", Status: lockstoreport.StatusLocked, CreatedAt: base.Add(2 * time.Hour)}); err != nil || !ok {
			t.Fatalf("TryLock failed-record: ok=%v err=%v", ok, err)
		}
		if err := lockstoreport.MarkFailed(ctx, store, fk, "x"); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}

		n, err := store.CountSuccessesSince(ctx, phone, base)
		if err != nil {
			t.Fatalf("CountSuccessesSince: %v", err)
		}
		if n != 2 {
			t.Fatalf("CountSuccessesSince=%d, want 2", n)
		}
	})

	t.Run("ListFiltersAndOrders", func(t *testing.T) {
		ctx := context.Background()
		// Future-dated so rows left behind by earlier runs on a shared database sort after these.
		base := time.Now().UTC().Truncate(time.Second).Add(24 * time.Hour)
		for i := 0; i < 3; i++ {
			k := key(fmt.Sprintf("list-%d", i))
			if ok, err := store.TryLock(ctx, lockstoreport.Record{Key: k, Phone: "37123456", Amount: "10", Status: lockstoreport.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil || !ok {
				t.Fatalf("TryLock: ok=%v err=%v", ok, err)
			}
		}
		got, err := store.List(ctx, lockstoreport.ListFilter{Status: lockstoreport.StatusPending, Limit: 2})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List len=%d, want 2", len(got))
		}
		if got[0].Key != key("list-2") || got[1].Key != key("list-1") {
			t.Fatalf("unexpected ordering: %v, %v", got[0].Key, got[1].Key)
		}
		for _, r := range got {
			if r.Status != lockstoreport.StatusPending {
				t.Fatalf("unexpected status in filtered list: %+v", r)
			}
		}
	})
}
