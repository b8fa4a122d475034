// Package document provides the business document lifecycle: the one-way
// transition from mutable draft to issued, numbered, locked record, plus the
// guards that keep locked documents immutable.
package document

import (
	"time"

	"github.com/shopspring/decimal"

	"numera/internal/core/docnum"
	"numera/internal/core/id"
)

// Type is the business document category as stored on document rows.
// Numbering uses the mapped docnum type (see NumberingType).
type Type string

const (
	TypeQuote           Type = "DEVIS"
	TypePurchaseOrder   Type = "BON_COMMANDE"
	TypeDeliveryNote    Type = "BON_LIVRAISON"
	TypeReceptionReport Type = "PV_RECEPTION"
	TypeInvoice         Type = "FACTURE"
	TypeDepositInvoice  Type = "FACTURE_ACOMPTE"
	TypeCreditNote      Type = "AVOIR"
)

// NumberingType resolves the numbering category for this document type.
func (t Type) NumberingType() docnum.DocType {
	return docnum.MapLegacyType(string(t))
}

// Status is the business workflow state of a document.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusConfirmed Status = "CONFIRMED"
	StatusDelivered Status = "DELIVERED"
	StatusSigned    Status = "SIGNED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// PostIssuanceStatus returns the status a document advances to when issued.
// A reception report stays in DRAFT: issuance and counterparty signature are
// distinct events.
func (t Type) PostIssuanceStatus() Status {
	switch t {
	case TypePurchaseOrder:
		return StatusConfirmed
	case TypeDeliveryNote:
		return StatusDelivered
	case TypeReceptionReport:
		return StatusDraft
	default:
		// Quotes, invoices, deposit invoices and credit notes are sent out.
		return StatusSent
	}
}

// Document is a numbered business record.
//
// Invariants: while IsDraft is true, IsLocked is false. Once IsLocked is
// true the number, line totals and issuance fields are immutable except via
// the audited emergency unlock, which never re-runs numbering.
type Document struct {
	ID id.ID `db:"id"`

	Type Type `db:"doc_type"`

	// Number is the official number once issued; before issuance it holds
	// a DRAFT- placeholder that is never reused as an official number.
	Number string `db:"number"`

	// DraftNumber preserves the placeholder the document carried before
	// issuance.
	DraftNumber string `db:"draft_number"`

	IsDraft  bool   `db:"is_draft"`
	IsLocked bool   `db:"is_locked"`
	Status   Status `db:"status"`

	IssuedAt   *time.Time `db:"issued_at"`
	IssuedByID string     `db:"issued_by_id"`

	// Monetary totals, immutable once locked.
	TotalHT  decimal.Decimal `db:"total_ht"`
	TotalVAT decimal.Decimal `db:"total_vat"`
	TotalTTC decimal.Decimal `db:"total_ttc"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewDraft creates a draft document with a placeholder number.
func NewDraft(docType Type) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        id.New(),
		Type:      docType,
		Number:    docnum.DraftNumber(string(docType)),
		IsDraft:   true,
		Status:    StatusDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- Lifecycle predicates ---
// Every mutation entry point consults these; the "can this document change"
// rule lives here and nowhere else.

// CanEdit reports whether the document accepts modifications.
func (d *Document) CanEdit() bool {
	return !d.IsLocked && d.IsDraft
}

// CanDelete reports whether the document may be deleted. A document that has
// progressed status-wise, even while nominally still a draft, must not be
// silently deletable.
func (d *Document) CanDelete() bool {
	return d.CanEdit() && d.Status == StatusDraft
}

// CanIssue reports whether the document is eligible for issuance.
func (d *Document) CanIssue() bool {
	return d.CanEdit() && d.Status == StatusDraft
}

// Touch updates the UpdatedAt timestamp.
func (d *Document) Touch() {
	d.UpdatedAt = time.Now().UTC()
}
