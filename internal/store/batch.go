package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// ErrBatchClosed is returned when writes are queued on a closed batch.
var ErrBatchClosed = errors.New("batch already closed")

// Batch queues writes and applies them in a single transaction on Close.
// A Batch is not safe for concurrent use.
type Batch struct {
	db     *sql.DB
	ops    []func(tx *sql.Tx) error
	closed bool
	err    error
}

// NewBatch returns an empty batch bound to the store.
func (s *Store) NewBatch() *Batch {
	return &Batch{db: s.db}
}

func (b *Batch) queue(op func(tx *sql.Tx) error) error {
	if b.closed {
		return ErrBatchClosed
	}
	b.ops = append(b.ops, op)
	return nil
}

// Len returns the number of queued writes.
func (b *Batch) Len() int { return len(b.ops) }

// ReplaceClaims queues deleting the attempt's claims and inserting the given ones.
func (b *Batch) ReplaceClaims(attemptID string, claims []model.Claim) error {
	claims = append([]model.Claim(nil), claims...)
	return b.queue(func(tx *sql.Tx) error {
		return replaceClaims(tx, attemptID, claims)
	})
}

// SubmitAttempt queues storing the graded attempt.
func (b *Batch) SubmitAttempt(a model.Attempt) error {
	return b.queue(func(tx *sql.Tx) error {
		return submitAttempt(tx, a)
	})
}

// PutMoveState queues an upsert of a user's move state.
func (b *Batch) PutMoveState(userID int64, ms model.MoveState) error {
	return b.queue(func(tx *sql.Tx) error {
		return putMoveState(tx, userID, ms)
	})
}

// Close applies every queued write in one transaction. Close is idempotent: later
// calls return the result of the first one.
func (b *Batch) Close() error {
	if b.closed {
		return b.err
	}
	b.closed = true
	b.err = b.flush()
	b.ops = nil
	return b.err
}

func (b *Batch) flush() error {
	if len(b.ops) == 0 {
		return nil
	}
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for i, op := range b.ops {
		if err := op(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("batch write %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
