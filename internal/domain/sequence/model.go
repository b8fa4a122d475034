// Package sequence provides transactional allocation of gap-free document
// numbers backed by persisted counters. All coordination state lives in the
// store: the allocator is stateless and safe to run behind any number of
// service instances.
package sequence

import (
	"context"
	"time"

	"numera/internal/core/docnum"
	"numera/internal/core/id"
)

// Counter is the authoritative last-issued value for one (type, period) key.
// Created lazily on first allocation, never deleted, mutated only by the
// allocator: LastNumber is non-decreasing and every successful allocation
// raises it by exactly one.
type Counter struct {
	ID         id.ID              `db:"id"`
	DocType    docnum.DocType     `db:"doc_type"`
	PeriodKind docnum.ResetPolicy `db:"period_kind"`
	Year       int                `db:"year"`
	Month      int                `db:"month"`
	Day        int                `db:"day"`
	LastNumber int64              `db:"last_number"`
	UpdatedAt  time.Time          `db:"updated_at"`
}

// NewCounter creates the first counter row for a key, carrying value 1.
func NewCounter(docType docnum.DocType, key docnum.PeriodKey) *Counter {
	return &Counter{
		ID:         id.New(),
		DocType:    docType,
		PeriodKind: key.Kind,
		Year:       key.Year,
		Month:      key.Month,
		Day:        key.Day,
		LastNumber: 1,
		UpdatedAt:  time.Now().UTC(),
	}
}

// Key returns the counter's period key.
func (c *Counter) Key() docnum.PeriodKey {
	return docnum.PeriodKey{Kind: c.PeriodKind, Year: c.Year, Month: c.Month, Day: c.Day}
}

// Store is the durable counter state. Uniqueness of
// (doc_type, period_kind, year, month, day) is enforced by the store.
type Store interface {
	// Find returns the counter for a key, or nil when absent.
	Find(ctx context.Context, docType docnum.DocType, key docnum.PeriodKey) (*Counter, error)

	// Insert creates a counter row. A concurrent insert for the same key
	// must fail with a SEQUENCE_CONFLICT error, not silently overwrite.
	Insert(ctx context.Context, counter *Counter) error

	// Increment bumps last_number by one iff it still equals expectedLast,
	// returning the new value. A concurrent modification must fail with a
	// SEQUENCE_CONFLICT error so the caller can retry.
	Increment(ctx context.Context, counterID id.ID, expectedLast int64) (int64, error)

	// Set forces the counter for a key to an absolute value, creating the
	// row when absent. Used for migrations only.
	Set(ctx context.Context, docType docnum.DocType, key docnum.PeriodKey, value int64) error
}
