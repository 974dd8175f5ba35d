package lockstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/lakay-digital/recharge-relay/internal/adapters/postgres"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

// Store is a Postgres implementation of lockstore.Store.
//
// TryLock relies on the primary key of recharge_idempotency: INSERT ... ON CONFLICT DO NOTHING
// is a single atomic statement, so concurrent deliveries of the same key cannot both win.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

const recordColumns = `unique_key, order_id, checkout_id, phone, amount, bundle_operator_id,
	product_title, status, transaction_id, last_error, created_at, updated_at`

func (s *Store) TryLock(ctx context.Context, rec lockstore.Record) (bool, error) {
	if s.pool == nil {
		return false, errors.New("nil postgres pool")
	}
	if err := lockstore.ValidateInsert(rec); err != nil {
		return false, err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO recharge_idempotency (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', '', $9, $9)
		ON CONFLICT (unique_key) DO NOTHING
	`,
		string(rec.Key),
		rec.OrderID,
		rec.CheckoutID,
		rec.Phone,
		rec.Amount,
		rec.BundleOperatorID,
		rec.ProductTitle,
		string(rec.Status),
		createdAt.UTC(),
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) Transition(ctx context.Context, key lockstore.Key, from, to lockstore.Status, out lockstore.Outcome) (bool, error) {
	if s.pool == nil {
		return false, errors.New("nil postgres pool")
	}
	if err := lockstore.ValidateTransition(from, to); err != nil {
		return false, err
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE recharge_idempotency
		SET status = $3,
		    transaction_id = CASE WHEN $4 <> '' THEN $4 ELSE transaction_id END,
		    last_error = CASE WHEN $5 <> '' THEN $5 ELSE last_error END,
		    updated_at = $6
		WHERE unique_key = $1
		  AND status = $2
	`,
		string(key),
		string(from),
		string(to),
		out.TransactionID,
		out.LastError,
		s.now(),
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, key lockstore.Key) (lockstore.Record, error) {
	if s.pool == nil {
		return lockstore.Record{}, errors.New("nil postgres pool")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM recharge_idempotency
		WHERE unique_key = $1
	`, string(key))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockstore.Record{}, lockstore.ErrNotFound
		}
		return lockstore.Record{}, err
	}
	return rec, nil
}

func (s *Store) CountSuccessesSince(ctx context.Context, phone string, since time.Time) (int, error) {
	if s.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM recharge_idempotency
		WHERE phone = $1
		  AND status = 'success'
		  AND created_at >= $2
	`, phone, since.UTC()).Scan(&n)
	return n, err
}

func (s *Store) List(ctx context.Context, f lockstore.ListFilter) ([]lockstore.Record, error) {
	if s.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM recharge_idempotency
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, unique_key ASC
		LIMIT $2
	`, string(f.Status), f.NormalizeLimit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lockstore.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (lockstore.Record, error) {
	var (
		rec    lockstore.Record
		key    string
		status string
	)
	if err := row.Scan(
		&key,
		&rec.OrderID,
		&rec.CheckoutID,
		&rec.Phone,
		&rec.Amount,
		&rec.BundleOperatorID,
		&rec.ProductTitle,
		&status,
		&rec.TransactionID,
		&rec.LastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return lockstore.Record{}, err
	}
	rec.Key = lockstore.Key(key)
	rec.Status = lockstore.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
