// Package storage implements the durable local store for expense records.
// It is the durability boundary of the engine: a mutation is considered
// committed once it lands here, regardless of remote reachability.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spend/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the authoritative local copy of the record set, scoped by
// owner. All mutation goes through its CRUD surface; after every committing
// write it invokes the registered change notifier with the affected owner.
type SQLiteStore struct {
	db     *sql.DB
	notify func(ownerID string)
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// OnChange registers the notifier driving the reactive query surface.
// Must be called before the store is shared between goroutines.
func (s *SQLiteStore) OnChange(fn func(ownerID string)) {
	s.notify = fn
}

func (s *SQLiteStore) changed(ownerID string) {
	if s.notify != nil {
		s.notify(ownerID)
	}
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// fatal maps a driver error to the StorageFatal kind. Storage errors abort
// the calling operation and are never silently swallowed.
func fatal(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrStorageFatal, op, err)
}

// Put inserts or replaces a record by id. Replacing is not an error; last
// write wins for a single device.
func (s *SQLiteStore) Put(ctx context.Context, r core.Record) error {
	const query = `
		INSERT INTO records
			(id, owner_id, amount_cents, category, note, attachment_ref,
			 occurred_at, synced, last_sync_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id        = excluded.owner_id,
			amount_cents    = excluded.amount_cents,
			category        = excluded.category,
			note            = excluded.note,
			attachment_ref  = excluded.attachment_ref,
			occurred_at     = excluded.occurred_at,
			synced          = excluded.synced,
			last_sync_error = excluded.last_sync_error,
			created_at      = excluded.created_at,
			updated_at      = excluded.updated_at`

	synced := 0
	if r.SyncState == core.Synced {
		synced = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.OwnerID, r.Amount.Cents, r.Category, r.Note, r.AttachmentRef,
		r.OccurredAt.UnixMilli(), synced, r.LastSyncError, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fatal("put record", err)
	}

	s.changed(r.OwnerID)
	return nil
}

// Get returns the record with the given id, or core.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fatal("get record", err)
	}
	return r, nil
}

// ListByOwner returns all records for an owner ordered by occurred_at
// descending; this is the sequence the reactive surface exposes live.
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]core.Record, error) {
	const query = selectColumns + `
		FROM records WHERE owner_id = ?
		ORDER BY occurred_at DESC, created_at DESC`
	return s.list(ctx, "list by owner", query, ownerID)
}

// ListUnsynced returns the owner's records not yet acknowledged by the
// remote backend.
func (s *SQLiteStore) ListUnsynced(ctx context.Context, ownerID string) ([]core.Record, error) {
	const query = selectColumns + `
		FROM records WHERE owner_id = ? AND synced = 0
		ORDER BY occurred_at DESC, created_at DESC`
	return s.list(ctx, "list unsynced", query, ownerID)
}

// MarkSynced transitions a record to Synced and clears its last sync error.
// Idempotent: a no-op if the record is already synced or absent.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id string) error {
	const query = `
		UPDATE records SET synced = 1, last_sync_error = ''
		WHERE id = ? AND synced = 0
		RETURNING owner_id`

	var ownerID string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fatal("mark synced", err)
	}

	s.changed(ownerID)
	return nil
}

// SetSyncError records the outcome of a failed remote attempt on the record
// itself, so convergence state stays discoverable without reading logs.
// A no-op if the record is absent.
func (s *SQLiteStore) SetSyncError(ctx context.Context, id string, message string) error {
	const query = `
		UPDATE records SET last_sync_error = ?
		WHERE id = ?
		RETURNING owner_id`

	var ownerID string
	err := s.db.QueryRowContext(ctx, query, message, id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fatal("set sync error", err)
	}

	s.changed(ownerID)
	return nil
}

// Delete removes the record from the local store. Deleting an absent record
// is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, r core.Record) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, r.ID); err != nil {
		return fatal("delete record", err)
	}
	s.changed(r.OwnerID)
	return nil
}

func (s *SQLiteStore) DeleteAllForOwner(ctx context.Context, ownerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE owner_id = ?`, ownerID); err != nil {
		return fatal("delete all for owner", err)
	}
	s.changed(ownerID)
	return nil
}

// SumByCategory returns total spent per category for an owner.
func (s *SQLiteStore) SumByCategory(ctx context.Context, ownerID string) ([]core.CategoryTotal, error) {
	const query = `
		SELECT category, SUM(amount_cents)
		FROM records WHERE owner_id = ?
		GROUP BY category
		ORDER BY category`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fatal("sum by category", err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var t core.CategoryTotal
		if err := rows.Scan(&t.Category, &t.Total.Cents); err != nil {
			return nil, fatal("sum by category", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fatal("sum by category", err)
	}
	return totals, nil
}

// SumInRange returns total spent between start and end inclusive, zero if
// the owner has no records in the range.
func (s *SQLiteStore) SumInRange(ctx context.Context, ownerID string, start, end time.Time) (core.Money, error) {
	const query = `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM records
		WHERE owner_id = ? AND occurred_at BETWEEN ? AND ?`

	var cents int64
	err := s.db.QueryRowContext(ctx, query, ownerID, start.UnixMilli(), end.UnixMilli()).Scan(&cents)
	if err != nil {
		return core.Money{}, fatal("sum in range", err)
	}
	return core.Money{Cents: cents}, nil
}

// OwnersWithUnsynced returns every owner that has at least one unsynced
// record; the background worker uses it to schedule sync passes.
func (s *SQLiteStore) OwnersWithUnsynced(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM records WHERE synced = 0`)
	if err != nil {
		return nil, fatal("owners with unsynced", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fatal("owners with unsynced", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fatal("owners with unsynced", err)
	}
	return owners, nil
}

const selectColumns = `
	SELECT id, owner_id, amount_cents, category, note, attachment_ref,
	       occurred_at, synced, last_sync_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core.Record, error) {
	var (
		r          core.Record
		occurredMs int64
		synced     int
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.Amount.Cents, &r.Category, &r.Note,
		&r.AttachmentRef, &occurredMs, &synced, &r.LastSyncError, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.OccurredAt = time.UnixMilli(occurredMs).UTC()
	r.SyncState = core.Unsynced
	if synced == 1 {
		r.SyncState = core.Synced
	}
	return &r, nil
}

func (s *SQLiteStore) list(ctx context.Context, op, query string, args ...any) ([]core.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fatal(op, err)
	}
	defer rows.Close()

	var result []core.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fatal(op, err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fatal(op, err)
	}

	slog.DebugContext(ctx, "records listed", "op", op, "count", len(result))
	return result, nil
}
