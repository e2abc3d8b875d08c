package db

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteFunc is a callback that performs database writes inside a transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// BatchWriter buffers write operations and flushes them in batches inside a
// transaction. Flushes happen on the caller's goroutine when the buffer
// fills up and on Close.
type BatchWriter struct {
	ctx    context.Context
	db     *sql.DB
	buf    []WriteFunc
	cap    int
	closed bool

	// OnError is called for every failed batch.
	OnError func(error)

	// lastErr stores the first error seen by the writer.
	lastErr error
	// Committed counts writes that are part of a committed batch.
	Committed int
}

// NewBatchWriter creates a new BatchWriter.
// db: the database connection to use for transactions.
// bufferSize: flush when buffer reaches this size.
func NewBatchWriter(ctx context.Context, db *sql.DB, bufferSize int) *BatchWriter {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &BatchWriter{
		ctx: ctx,
		db:  db,
		buf: make([]WriteFunc, 0, bufferSize),
		cap: bufferSize,
	}
}

// Submit enqueues a write function. Once a batch has failed, further
// submissions are rejected with that error.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	if bw.closed {
		return ErrBatchWriterClosed
	}
	if bw.lastErr != nil {
		return bw.lastErr
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.cap {
		return bw.Flush()
	}
	return nil
}

// Flush commits the buffered writes in one transaction.
func (bw *BatchWriter) Flush() error {
	if len(bw.buf) == 0 {
		return bw.lastErr
	}
	batch := bw.buf
	bw.buf = make([]WriteFunc, 0, bw.cap)

	if err := bw.executeBatch(batch); err != nil {
		if bw.lastErr == nil {
			bw.lastErr = err
		}
		if bw.OnError != nil {
			bw.OnError(err)
		}
		return err
	}
	bw.Committed += len(batch)
	return nil
}

func (bw *BatchWriter) executeBatch(batch []WriteFunc) error {
	// If no DB is configured (e.g. testing without DB), just run callbacks with nil tx
	if bw.db == nil {
		for _, w := range batch {
			if err := w(bw.ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := bw.db.BeginTx(bw.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, w := range batch {
		if err := w(bw.ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch (%d items): %w", len(batch), err)
	}
	return nil
}

// Close flushes remaining writes and returns the first error seen.
func (bw *BatchWriter) Close() error {
	if bw.closed {
		return ErrBatchWriterClosed
	}
	if bw.lastErr == nil {
		_ = bw.Flush()
	}
	bw.closed = true
	return bw.lastErr
}

var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
