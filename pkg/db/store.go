package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a key or record does not exist.
var ErrNotFound = errors.New("db: not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the key-value and record store with change notification.
// Writers are expected to be sequential; subscribers run synchronously
// on the writer's goroutine after the write is committed.
type Store struct {
	conn *sql.DB

	mu      sync.Mutex
	nextSub int
	subs    map[string]map[int]func()
}

// New wraps an open connection and runs migrations.
func New(conn *sql.DB) (*Store, error) {
	if err := InitDB(conn); err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return &Store{conn: conn, subs: make(map[string]map[int]func())}, nil
}

// Conn returns the underlying connection.
func (s *Store) Conn() *sql.DB { return s.conn }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }

// Subscribe registers fn to run after every write to key. The returned
// function removes the subscription.
func (s *Store) Subscribe(key string, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func())
	}
	s.subs[key][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
	}
}

func (s *Store) notify(key string) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs[key]))
	for id := range s.subs[key] {
		ids = append(ids, id)
	}
	fns := make([]func(), 0, len(ids))
	// Run in registration order.
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[key][id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func toMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// UpsertRecord inserts or replaces one record of a collection.
func UpsertRecord(ctx context.Context, db DBExecutor, collection string, id int64, dataUpdatedAt *time.Time, body []byte) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("collection must be non-empty")
	}
	_, err := db.ExecContext(ctx, `INSERT INTO records (collection, id, data_updated_at, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
		  data_updated_at = excluded.data_updated_at,
		  body = excluded.body`,
		collection, id, toMillis(dataUpdatedAt), string(body))
	if err != nil {
		return fmt.Errorf("upsert %s/%d: %w", collection, id, err)
	}
	return nil
}

// GetRecord returns the body of one record or ErrNotFound.
func GetRecord(ctx context.Context, db DBExecutor, collection string, id int64) ([]byte, error) {
	var body string
	err := db.QueryRowContext(ctx, `SELECT body FROM records WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// GetRecords returns every record body of a collection keyed by id.
func GetRecords(ctx context.Context, db DBExecutor, collection string) (map[int64][]byte, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, body FROM records WHERE collection = ?`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]byte)
	for rows.Next() {
		var id int64
		var body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		out[id] = []byte(body)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteCollection removes every record and the watermark of a collection.
func DeleteCollection(ctx context.Context, db DBExecutor, collection string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection)
	return err
}

// GetLastUpdated returns the watermark of a collection, or nil if it was never synced.
func GetLastUpdated(ctx context.Context, db DBExecutor, collection string) (*time.Time, error) {
	var v sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT last_updated FROM collections WHERE name = ?`, collection).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromMillis(v), nil
}

// SetLastUpdated stores the watermark of a collection.
func SetLastUpdated(ctx context.Context, db DBExecutor, collection string, t *time.Time) error {
	_, err := db.ExecContext(ctx, `INSERT INTO collections (name, last_updated) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_updated = excluded.last_updated`,
		collection, toMillis(t))
	return err
}

// GetValue returns the raw value stored under key or ErrNotFound.
func GetValue(ctx context.Context, db DBExecutor, key string) ([]byte, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// SetValue stores value under key, replacing any previous value.
func SetValue(ctx context.Context, db DBExecutor, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key must be non-empty")
	}
	_, err := db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UnixMilli())
	return err
}

// DeleteValue removes key.
func DeleteValue(ctx context.Context, db DBExecutor, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// CollectionInfo summarises one record collection.
type CollectionInfo struct {
	Name        string
	Count       int
	LastUpdated *time.Time
}

// GetCollectionInfo returns the record count and watermark of a collection.
func GetCollectionInfo(ctx context.Context, db DBExecutor, collection string) (CollectionInfo, error) {
	info := CollectionInfo{Name: collection}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&info.Count); err != nil {
		return info, err
	}
	lu, err := GetLastUpdated(ctx, db, collection)
	if err != nil {
		return info, err
	}
	info.LastUpdated = lu
	return info, nil
}
