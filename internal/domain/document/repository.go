package document

import (
	"context"

	"numera/internal/core/id"
)

// Repository persists business documents.
// The PostgreSQL implementation lives in infrastructure/storage/postgres.
type Repository interface {
	// GetByID loads a document. Returns a NOT_FOUND error when absent.
	GetByID(ctx context.Context, docID id.ID) (*Document, error)

	// GetForUpdate loads a document with a row lock for the current
	// transaction. Issuance and unlock use this to serialize writers on
	// the same document.
	GetForUpdate(ctx context.Context, docID id.ID) (*Document, error)

	// Update persists document changes with an optimistic version check.
	// Returns a CONCURRENT_MODIFICATION error when the row changed since
	// it was read.
	Update(ctx context.Context, doc *Document) error
}
