package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/offbeat/internal/shared"
)

// SQLiteStore implements [Store] with one sqlite table per collection.
//
// Writers are serialized per collection so no reader observes a torn write; each Put is a single upsert.
type SQLiteStore struct {
	db    *sql.DB
	locks map[Collection]*sync.Mutex
}

// NewSQLiteStore creates a new SQLiteStore over an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	locks := make(map[Collection]*sync.Mutex, len(Collections))
	for _, c := range Collections {
		locks[c] = &sync.Mutex{}
	}
	return &SQLiteStore{db: db, locks: locks}
}

// OpenSQLiteStore opens the database at path, applies pending migrations and returns the store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}

	return NewSQLiteStore(db), nil
}

// DB exposes the underlying connection pool.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get retrieves a record by key.
func (s *SQLiteStore) Get(ctx context.Context, c Collection, key string) (*Record, error) {
	table, err := c.Table()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT id, data, blob, synced, updated_at FROM %s WHERE id = ?", table)
	row := s.db.QueryRowContext(ctx, query, key)

	r, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", shared.ErrNotFound, c, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %s/%s: %v", shared.ErrStoreUnavailable, c, key, err)
	}
	return r, nil
}

// GetAll retrieves every record of a collection in insertion order.
func (s *SQLiteStore) GetAll(ctx context.Context, c Collection) ([]*Record, error) {
	table, err := c.Table()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT id, data, blob, synced, updated_at FROM %s ORDER BY rowid", table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query %s: %v", shared.ErrStoreUnavailable, c, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan %s: %v", shared.ErrStoreUnavailable, c, err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStoreUnavailable, err)
	}

	return records, nil
}

// Put inserts or replaces a record. The upsert keeps the row's original position.
func (s *SQLiteStore) Put(ctx context.Context, c Collection, r *Record) error {
	if err := validateRecord(c, r); err != nil {
		return err
	}
	table, _ := c.Table()

	mu := s.locks[c]
	mu.Lock()
	defer mu.Unlock()

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data, blob, synced, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			blob = excluded.blob,
			synced = excluded.synced,
			updated_at = excluded.updated_at
	`, table)

	if _, err := s.db.ExecContext(ctx, query, r.ID, string(r.Data), r.Blob, r.Synced, r.UpdatedAt); err != nil {
		return fmt.Errorf("%w: failed to put %s/%s: %v", shared.ErrStoreUnavailable, c, r.ID, err)
	}
	return nil
}

// Delete removes a record by key.
func (s *SQLiteStore) Delete(ctx context.Context, c Collection, key string) error {
	table, err := c.Table()
	if err != nil {
		return err
	}

	mu := s.locks[c]
	mu.Lock()
	defer mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("%w: failed to delete %s/%s: %v", shared.ErrStoreUnavailable, c, key, err)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var (
		id        string
		data      string
		blob      []byte
		synced    bool
		updatedAt time.Time
	)

	if err := scan(&id, &data, &blob, &synced, &updatedAt); err != nil {
		return nil, err
	}

	return &Record{
		ID:        id,
		Data:      []byte(data),
		Blob:      blob,
		Synced:    synced,
		UpdatedAt: updatedAt,
	}, nil
}
