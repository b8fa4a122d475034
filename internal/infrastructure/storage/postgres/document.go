package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"numera/internal/core/apperror"
	"numera/internal/core/id"
	"numera/internal/domain/document"
)

// Compile-time check that DocumentRepo implements document.Repository.
var _ document.Repository = (*DocumentRepo)(nil)

const documentTable = "crm_documents"

var documentColumns = ExtractDBColumns[document.Document]()

// DocumentRepo is the PostgreSQL document repository. Writes go through an
// optimistic version check; issuance and unlock additionally take a row lock
// via GetForUpdate inside their transaction.
type DocumentRepo struct {
	txManager *TxManager
}

// NewDocumentRepo creates a document repository bound to a transaction manager.
func NewDocumentRepo(txManager *TxManager) *DocumentRepo {
	return &DocumentRepo{txManager: txManager}
}

func (r *DocumentRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetByID loads a document by primary key.
func (r *DocumentRepo) GetByID(ctx context.Context, docID id.ID) (*document.Document, error) {
	return r.get(ctx, docID, false)
}

// GetForUpdate loads a document and locks its row for the current
// transaction. Callers must hold an open transaction in ctx.
func (r *DocumentRepo) GetForUpdate(ctx context.Context, docID id.ID) (*document.Document, error) {
	return r.get(ctx, docID, true)
}

func (r *DocumentRepo) get(ctx context.Context, docID id.ID, forUpdate bool) (*document.Document, error) {
	q := r.builder().
		Select(documentColumns...).
		From(documentTable).
		Where(squirrel.Eq{"id": docID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var doc document.Document
	err = pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &doc, sql, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("Document", docID.String())
		}
		return nil, fmt.Errorf("select %s: %w", documentTable, err)
	}

	return &doc, nil
}

// Update persists document changes with an optimistic version check.
// The version the caller read must still be current; otherwise the row was
// changed by another writer and CONCURRENT_MODIFICATION is returned.
func (r *DocumentRepo) Update(ctx context.Context, doc *document.Document) error {
	data := StructToMap(doc)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in document")
	}

	// id and creation fields are immutable; version is managed here.
	filtered := make(map[string]any, len(data))
	for col, val := range data {
		switch col {
		case "id", "created_at", "version":
			continue
		}
		filtered[col] = val
	}

	sql, args, err := r.builder().
		Update(documentTable).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": doc.ID, "version": doc.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", documentTable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("Document", doc.ID.String())
	}

	doc.Version++
	return nil
}

// Insert persists a new draft document.
func (r *DocumentRepo) Insert(ctx context.Context, doc *document.Document) error {
	sql, args, err := r.builder().
		Insert(documentTable).
		SetMap(StructToMap(doc)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	_, err = r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", documentTable, err)
	}

	return nil
}

// Delete removes a document row. Lifecycle guards run in the service layer;
// this is a plain delete.
func (r *DocumentRepo) Delete(ctx context.Context, docID id.ID) error {
	sql, args, err := r.builder().
		Delete(documentTable).
		Where(squirrel.Eq{"id": docID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", documentTable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("Document", docID.String())
	}

	return nil
}
