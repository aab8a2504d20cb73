package store

import (
	"context"
	"fmt"

	"github.com/deveshk/invoicescan/internal/invoice"
)

// Store is a key-addressable upsert collection of records. Upsert is
// atomic at single-key granularity; there are no cross-record
// transactions because each document's records share no key with
// another's except through the overwrite rule itself.
type Store interface {
	// Upsert creates the record if its key is absent, or overwrites it
	// in place (last-write-wins). Returns whether a new record was created.
	Upsert(ctx context.Context, rec *invoice.Record) (created bool, err error)

	// List returns all records belonging to one owner.
	List(ctx context.Context, ownerID string) ([]*invoice.Record, error)

	// Delete removes the record at the given key. Returns whether a
	// record existed.
	Delete(ctx context.Context, key invoice.Key) (bool, error)

	// Close releases the underlying resources.
	Close() error
}

// Error wraps a failed store operation. Store failures indicate
// data-loss risk and must surface immediately, so callers can match
// them apart from per-document pipeline failures.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
