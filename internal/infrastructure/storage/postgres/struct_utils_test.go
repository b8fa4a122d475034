package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"numera/internal/core/id"
	"numera/internal/domain/document"
	"numera/internal/domain/sequence"
)

func TestExtractDBColumns_Document(t *testing.T) {
	cols := ExtractDBColumns[document.Document]()

	expected := []string{
		"id", "doc_type", "number", "draft_number", "is_draft", "is_locked",
		"status", "issued_at", "issued_by_id", "total_ht", "total_vat",
		"total_ttc", "version", "created_at", "updated_at",
	}

	assert.Equal(t, expected, cols)
}

func TestExtractDBColumns_Counter(t *testing.T) {
	cols := ExtractDBColumns[sequence.Counter]()

	expected := []string{
		"id", "doc_type", "period_kind", "year", "month", "day",
		"last_number", "updated_at",
	}

	assert.Equal(t, expected, cols)
}

func TestStructToMap_Document(t *testing.T) {
	now := time.Now().UTC()
	doc := document.Document{
		ID:       id.New(),
		Type:     document.TypeInvoice,
		Number:   "FAC-2026-000001",
		IsDraft:  false,
		IsLocked: true,
		Status:   document.StatusSent,
		IssuedAt: &now,
		TotalTTC: decimal.NewFromInt(1200),
		Version:  3,
	}

	m := StructToMap(doc)

	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, document.TypeInvoice, m["doc_type"])
	assert.Equal(t, "FAC-2026-000001", m["number"])
	assert.Equal(t, true, m["is_locked"])
	assert.Equal(t, false, m["is_draft"])
	assert.Equal(t, document.StatusSent, m["status"])
	assert.Equal(t, &now, m["issued_at"])
	assert.Equal(t, 3, m["version"])
}

func TestStructToMap_Pointer(t *testing.T) {
	counter := &sequence.Counter{
		ID:         id.New(),
		LastNumber: 42,
	}

	m := StructToMap(counter)
	assert.Equal(t, int64(42), m["last_number"])
	assert.Equal(t, counter.ID, m["id"])
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap("not a struct"))
	assert.Nil(t, StructToMap(42))
}
