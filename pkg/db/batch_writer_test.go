package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestBatchWriterTransactions(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	bw := NewBatchWriter(context.Background(), db, 2)
	for _, v := range []string{"A", "B", "C"} {
		v := v
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO test (val) VALUES (?)", v)
			return err
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	// First batch of two is already committed, C is still buffered.
	if bw.Committed != 2 {
		t.Fatalf("expected 2 committed writes before close, got %d", bw.Committed)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM test").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}
}

func TestBatchWriterRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	bw := NewBatchWriter(context.Background(), db, 2)
	var reported error
	bw.OnError = func(e error) { reported = e }

	// Batch of 2: First succeeds, second fails. Whole batch should roll back.
	_ = bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO test (val) VALUES (?)", "C")
		return err
	})
	intentional := fmt.Errorf("intentional error")
	err = bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return intentional
	})
	if !errors.Is(err, intentional) {
		t.Fatalf("expected submit to surface the batch error, got %v", err)
	}
	if reported == nil {
		t.Fatal("expected OnError to be called")
	}
	// Further submissions are rejected.
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }); !errors.Is(err, intentional) {
		t.Fatalf("expected sticky error, got %v", err)
	}
	if err := bw.Close(); !errors.Is(err, intentional) {
		t.Fatalf("expected close to return the first error, got %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM test").Scan(&count); err != nil {
		t.Fatalf("failed to query row count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rows (rollback), got %d", count)
	}
}

func TestBatchWriterFlushesBySize(t *testing.T) {
	bw := NewBatchWriter(context.Background(), nil, 5)
	called := 0
	for i := 0; i < 12; i++ {
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			called++
			return nil
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	if called != 10 {
		t.Fatalf("expected 10 calls before close, got %d", called)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if called != 12 {
		t.Fatalf("expected 12 calls, got %d", called)
	}
}

func TestBatchWriterClosed(t *testing.T) {
	bw := NewBatchWriter(context.Background(), nil, 1)
	if err := bw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil }); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed, got %v", err)
	}
	if err := bw.Close(); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed on second close, got %v", err)
	}
}
