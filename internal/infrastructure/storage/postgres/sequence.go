package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"numera/internal/core/apperror"
	"numera/internal/core/docnum"
	"numera/internal/core/id"
	"numera/internal/domain/sequence"
)

// Compile-time check that SequenceStore implements sequence.Store.
var _ sequence.Store = (*SequenceStore)(nil)

const sequenceTable = "doc_sequences"

var sequenceColumns = ExtractDBColumns[sequence.Counter]()

// SequenceStore is the PostgreSQL counter store behind the number allocator.
// A unique index on (doc_type, period_kind, year, month, day) backs the
// first-allocation race; the conditional increment backs all later ones.
type SequenceStore struct {
	txManager *TxManager
}

// NewSequenceStore creates a sequence store bound to a transaction manager.
func NewSequenceStore(txManager *TxManager) *SequenceStore {
	return &SequenceStore{txManager: txManager}
}

func (s *SequenceStore) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Find returns the counter for a key, or nil when no counter exists yet.
func (s *SequenceStore) Find(ctx context.Context, docType docnum.DocType, key docnum.PeriodKey) (*sequence.Counter, error) {
	sql, args, err := s.builder().
		Select(sequenceColumns...).
		From(sequenceTable).
		Where(squirrel.Eq{
			"doc_type":    docType,
			"period_kind": key.Kind,
			"year":        key.Year,
			"month":       key.Month,
			"day":         key.Day,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var counter sequence.Counter
	err = pgxscan.Get(ctx, s.txManager.GetQuerier(ctx), &counter, sql, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s: %w", sequenceTable, mapConflict(err, docType))
	}

	return &counter, nil
}

// Insert creates a counter row. A concurrent insert for the same key loses
// the unique-index race and surfaces as SEQUENCE_CONFLICT.
func (s *SequenceStore) Insert(ctx context.Context, counter *sequence.Counter) error {
	sql, args, err := s.builder().
		Insert(sequenceTable).
		SetMap(StructToMap(counter)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) || isSerializationFailure(err) {
			return apperror.NewSequenceConflict(string(counter.DocType)).WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", sequenceTable, err)
	}

	return nil
}

// Increment bumps last_number by one iff it still equals expectedLast.
// Zero rows updated means another writer got there first; the resulting
// error is retryable and the allocator retries the whole attempt.
func (s *SequenceStore) Increment(ctx context.Context, counterID id.ID, expectedLast int64) (int64, error) {
	sql, args, err := s.builder().
		Update(sequenceTable).
		Set("last_number", squirrel.Expr("last_number + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": counterID, "last_number": expectedLast}).
		Suffix("RETURNING last_number").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	var newValue int64
	err = s.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&newValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isSerializationFailure(err) {
			return 0, apperror.NewConcurrentModification("SequenceCounter", counterID.String()).
				WithCause(err)
		}
		return 0, fmt.Errorf("update %s: %w", sequenceTable, err)
	}

	return newValue, nil
}

// Set forces the counter for a key to an absolute value, creating the row
// when absent. Migration path only; never used by the allocator.
func (s *SequenceStore) Set(ctx context.Context, docType docnum.DocType, key docnum.PeriodKey, value int64) error {
	counter := &sequence.Counter{
		ID:         id.New(),
		DocType:    docType,
		PeriodKind: key.Kind,
		Year:       key.Year,
		Month:      key.Month,
		Day:        key.Day,
		LastNumber: value,
		UpdatedAt:  time.Now().UTC(),
	}

	sql, args, err := s.builder().
		Insert(sequenceTable).
		SetMap(StructToMap(counter)).
		Suffix(`ON CONFLICT (doc_type, period_kind, year, month, day)
			DO UPDATE SET last_number = EXCLUDED.last_number, updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", sequenceTable, err)
	}

	return nil
}

// mapConflict converts serialization failures into retryable conflicts.
func mapConflict(err error, docType docnum.DocType) error {
	if isSerializationFailure(err) {
		return apperror.NewSequenceConflict(string(docType)).WithCause(err)
	}
	return err
}

// isUniqueViolation reports a unique constraint violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isSerializationFailure reports a serializable-isolation failure (40001)
// or deadlock (40P01); both are safe to retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
