package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const upsertBatchSize = 500

// Snapshot is the full contents of a record collection.
type Snapshot[T any] struct {
	LastUpdated *time.Time
	Records     map[int64]T
}

// RecordStore is an id-keyed collection of JSON records plus a single
// "last synced" watermark. One instance exists per logical collection.
type RecordStore[T any] struct {
	store     *Store
	name      string
	id        func(T) int64
	updatedAt func(T) time.Time
}

// NewRecordStore returns the collection called name. id extracts the record
// key; updatedAt, when non-nil, is stored alongside for inspection.
func NewRecordStore[T any](s *Store, name string, id func(T) int64, updatedAt func(T) time.Time) *RecordStore[T] {
	return &RecordStore[T]{store: s, name: name, id: id, updatedAt: updatedAt}
}

// Name returns the collection name, which is also its subscription key.
func (r *RecordStore[T]) Name() string { return r.name }

// Get loads every record and the watermark.
func (r *RecordStore[T]) Get(ctx context.Context) (Snapshot[T], error) {
	snap := Snapshot[T]{Records: make(map[int64]T)}
	lu, err := GetLastUpdated(ctx, r.store.conn, r.name)
	if err != nil {
		return snap, fmt.Errorf("%s: last updated: %w", r.name, err)
	}
	snap.LastUpdated = lu

	bodies, err := GetRecords(ctx, r.store.conn, r.name)
	if err != nil {
		return snap, fmt.Errorf("%s: load records: %w", r.name, err)
	}
	for id, body := range bodies {
		var rec T
		if err := json.Unmarshal(body, &rec); err != nil {
			return snap, fmt.Errorf("%s: decode record %d: %w", r.name, id, err)
		}
		snap.Records[id] = rec
	}
	return snap, nil
}

// Lookup returns one record.
func (r *RecordStore[T]) Lookup(ctx context.Context, id int64) (T, bool, error) {
	var rec T
	body, err := GetRecord(ctx, r.store.conn, r.name, id)
	if errors.Is(err, ErrNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	if err := json.Unmarshal(body, &rec); err != nil {
		return rec, false, fmt.Errorf("%s: decode record %d: %w", r.name, id, err)
	}
	return rec, true, nil
}

// All returns the records accepted by filter (every record when filter is nil).
func (r *RecordStore[T]) All(ctx context.Context, filter func(T) bool) ([]T, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(snap.Records))
	for _, rec := range snap.Records {
		if filter == nil || filter(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// LastUpdated returns the stored watermark, nil if never synced.
func (r *RecordStore[T]) LastUpdated(ctx context.Context) (*time.Time, error) {
	return GetLastUpdated(ctx, r.store.conn, r.name)
}

// Upsert merges records by id and advances the watermark. The watermark is
// written last so an interrupted merge is re-fetched on the next sync.
func (r *RecordStore[T]) Upsert(ctx context.Context, records []T, watermark time.Time) error {
	bw := NewBatchWriter(ctx, r.store.conn, upsertBatchSize)
	for _, rec := range records {
		id := r.id(rec)
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%s: encode record %d: %w", r.name, id, err)
		}
		var updated *time.Time
		if r.updatedAt != nil {
			if t := r.updatedAt(rec); !t.IsZero() {
				updated = &t
			}
		}
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			return UpsertRecord(ctx, tx, r.name, id, updated, body)
		}); err != nil {
			return err
		}
	}
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return SetLastUpdated(ctx, tx, r.name, &watermark)
	}); err != nil {
		return err
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("%s: upsert: %w", r.name, err)
	}
	r.store.notify(r.name)
	return nil
}

// Reset clears the collection and its watermark.
func (r *RecordStore[T]) Reset(ctx context.Context) error {
	if err := DeleteCollection(ctx, r.store.conn, r.name); err != nil {
		return fmt.Errorf("%s: reset: %w", r.name, err)
	}
	r.store.notify(r.name)
	return nil
}

// Info returns the record count and watermark.
func (r *RecordStore[T]) Info(ctx context.Context) (CollectionInfo, error) {
	return GetCollectionInfo(ctx, r.store.conn, r.name)
}

// Subscribe runs fn after every change to the collection.
func (r *RecordStore[T]) Subscribe(fn func()) func() {
	return r.store.Subscribe(r.name, fn)
}

// Value is a single JSON value stored under a key, with a default returned
// while nothing has been stored.
type Value[T any] struct {
	store *Store
	key   string
	def   []byte
}

// NewValue returns the value stored under key.
func NewValue[T any](s *Store, key string, def T) *Value[T] {
	b, err := json.Marshal(def)
	if err != nil {
		panic(fmt.Sprintf("db: default for %s is not JSON-encodable: %v", key, err))
	}
	return &Value[T]{store: s, key: key, def: b}
}

// Key returns the storage key, which is also the subscription key.
func (v *Value[T]) Key() string { return v.key }

// Get returns the stored value or a fresh copy of the default.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	var out T
	b, err := GetValue(ctx, v.store.conn, v.key)
	if errors.Is(err, ErrNotFound) {
		b = v.def
	} else if err != nil {
		return out, fmt.Errorf("%s: get: %w", v.key, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("%s: decode: %w", v.key, err)
	}
	return out, nil
}

// Set stores val and notifies subscribers.
func (v *Value[T]) Set(ctx context.Context, val T) error {
	b, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", v.key, err)
	}
	if err := SetValue(ctx, v.store.conn, v.key, b); err != nil {
		return fmt.Errorf("%s: set: %w", v.key, err)
	}
	v.store.notify(v.key)
	return nil
}

// Update applies fn to the current value and stores the result.
func (v *Value[T]) Update(ctx context.Context, fn func(*T)) error {
	cur, err := v.Get(ctx)
	if err != nil {
		return err
	}
	fn(&cur)
	return v.Set(ctx, cur)
}

// Reset drops the stored value so Get returns the default again.
func (v *Value[T]) Reset(ctx context.Context) error {
	if err := DeleteValue(ctx, v.store.conn, v.key); err != nil {
		return fmt.Errorf("%s: reset: %w", v.key, err)
	}
	v.store.notify(v.key)
	return nil
}

// Subscribe runs fn after every change to the value.
func (v *Value[T]) Subscribe(fn func()) func() {
	return v.store.Subscribe(v.key, fn)
}
