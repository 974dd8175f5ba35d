// Package lockstore is an embedded SQLite implementation of lockstore.Store.
package lockstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

//go:embed schema.sql
var schemaSQL string

// Store keeps idempotency records in a single SQLite file.
//
// The pool is pinned to one connection, so every statement is serialized by database/sql;
// INSERT OR IGNORE on the primary key provides the insert-if-absent primitive.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const recordColumns = `unique_key, order_id, checkout_id, phone, amount, bundle_operator_id,
	product_title, status, transaction_id, last_error, created_at_us, updated_at_us`

func (s *Store) TryLock(ctx context.Context, rec lockstore.Record) (bool, error) {
	if err := lockstore.ValidateInsert(rec); err != nil {
		return false, err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO recharge_idempotency (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)
	`,
		string(rec.Key),
		rec.OrderID,
		rec.CheckoutID,
		rec.Phone,
		rec.Amount,
		rec.BundleOperatorID,
		rec.ProductTitle,
		string(rec.Status),
		createdAt.UnixMicro(),
		createdAt.UnixMicro(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Transition(ctx context.Context, key lockstore.Key, from, to lockstore.Status, out lockstore.Outcome) (bool, error) {
	if err := lockstore.ValidateTransition(from, to); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE recharge_idempotency
		SET status = ?,
		    transaction_id = CASE WHEN ? <> '' THEN ? ELSE transaction_id END,
		    last_error = CASE WHEN ? <> '' THEN ? ELSE last_error END,
		    updated_at_us = ?
		WHERE unique_key = ? AND status = ?
	`,
		string(to),
		out.TransactionID, out.TransactionID,
		out.LastError, out.LastError,
		s.now().UnixMicro(),
		string(key),
		string(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Get(ctx context.Context, key lockstore.Key) (lockstore.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM recharge_idempotency WHERE unique_key = ?`, string(key))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lockstore.Record{}, lockstore.ErrNotFound
		}
		return lockstore.Record{}, err
	}
	return rec, nil
}

func (s *Store) CountSuccessesSince(ctx context.Context, phone string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM recharge_idempotency
		WHERE phone = ? AND status = 'success' AND created_at_us >= ?
	`, phone, since.UnixMicro()).Scan(&n)
	return n, err
}

func (s *Store) List(ctx context.Context, f lockstore.ListFilter) ([]lockstore.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM recharge_idempotency
		WHERE (? = '' OR status = ?)
		ORDER BY created_at_us DESC, unique_key ASC
		LIMIT ?
	`, string(f.Status), string(f.Status), f.NormalizeLimit())
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

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (lockstore.Record, error) {
	var (
		rec                  lockstore.Record
		key, status          string
		createdUS, updatedUS int64
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
		&createdUS,
		&updatedUS,
	); err != nil {
		return lockstore.Record{}, err
	}
	rec.Key = lockstore.Key(key)
	rec.Status = lockstore.Status(status)
	rec.CreatedAt = time.UnixMicro(createdUS).UTC()
	rec.UpdatedAt = time.UnixMicro(updatedUS).UTC()
	return rec, nil
}
