package document

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"numera/internal/core/apperror"
	"numera/internal/core/docnum"
	"numera/internal/core/id"
	"numera/internal/core/tx"
	"numera/internal/domain/audit"
	"numera/internal/domain/sequence"
	"numera/pkg/logger"
)

// Service orchestrates the document lifecycle: issuance, guards, lock status
// and the audited emergency unlock.
type Service struct {
	repo      Repository
	sequences *sequence.Service
	audit     audit.Logger
	txm       tx.Manager
}

// NewService creates a document lifecycle service.
func NewService(repo Repository, sequences *sequence.Service, auditLogger audit.Logger, txm tx.Manager) *Service {
	return &Service{
		repo:      repo,
		sequences: sequences,
		audit:     auditLogger,
		txm:       txm,
	}
}

// IssueOptions are hints passed through untouched to out-of-scope
// collaborators (email sending, PDF rendering). This core acts on neither.
type IssueOptions struct {
	SendEmail   bool
	GeneratePDF bool
}

// IssueResult describes a successful issuance.
type IssueResult struct {
	ID             id.ID
	Number         string
	Type           Type
	Status         Status
	IsLocked       bool
	IssuedAt       time.Time
	PreviousNumber string
	Options        IssueOptions
}

// Issue converts a draft document into an official, numbered, locked record.
//
// Allocation happens first, outside the issuance transaction, so each
// allocation attempt owns its serializable transaction and conflicts stay
// retryable. The document write and its audit entry then commit or roll back
// together: a failure after allocation leaves a small gap in the sequence,
// which is tolerated; a partially applied issuance is not.
func (s *Service) Issue(ctx context.Context, docID id.ID, actorID string, opts *IssueOptions) (*IssueResult, error) {
	if opts == nil {
		opts = &IssueOptions{}
	}

	// Preconditions are checked before allocation so rejected attempts
	// never consume a number, and re-checked under the row lock below.
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := checkIssuable(doc); err != nil {
		return nil, err
	}

	numberingType := doc.Type.NumberingType()
	issuedAt := time.Now().UTC()

	seq, err := s.sequences.Allocate(ctx, numberingType, issuedAt)
	if err != nil {
		return nil, err
	}
	number, err := docnum.Format(numberingType, issuedAt, seq)
	if err != nil {
		return nil, err
	}

	var result *IssueResult
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		// A concurrent issuance may have won the race since the check
		// above; its number stands and this one becomes a gap.
		if err := checkIssuable(doc); err != nil {
			return err
		}

		previousNumber := doc.Number
		previousStatus := doc.Status
		newStatus := doc.Type.PostIssuanceStatus()

		doc.DraftNumber = previousNumber
		doc.Number = number
		doc.IsDraft = false
		doc.IsLocked = true
		doc.IssuedAt = &issuedAt
		doc.IssuedByID = actorID
		doc.Status = newStatus
		doc.Touch()

		if err := s.repo.Update(ctx, doc); err != nil {
			return err
		}

		if err := s.logIssuance(ctx, doc, actorID, previousNumber, previousStatus); err != nil {
			return err
		}

		result = &IssueResult{
			ID:             doc.ID,
			Number:         doc.Number,
			Type:           doc.Type,
			Status:         doc.Status,
			IsLocked:       doc.IsLocked,
			IssuedAt:       issuedAt,
			PreviousNumber: previousNumber,
			Options:        *opts,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document issued",
		"id", result.ID, "number", result.Number, "type", result.Type)
	return result, nil
}

// checkIssuable rejects documents that must not be issued.
func checkIssuable(doc *Document) error {
	if doc.IsLocked || !doc.IsDraft {
		return apperror.NewAlreadyIssued(doc.ID.String(), doc.Number)
	}
	if doc.Status != StatusDraft {
		return apperror.NewInvalidDocumentState(
			fmt.Sprintf("Document must be in DRAFT status to be issued. Current status: %s", doc.Status)).
			WithDetail("document_id", doc.ID.String()).
			WithDetail("status", string(doc.Status))
	}
	return nil
}

// logIssuance appends the issuance audit entry. Part of the issuance
// transaction: its failure rolls the whole issuance back.
func (s *Service) logIssuance(ctx context.Context, doc *Document, actorID, previousNumber string, previousStatus Status) error {
	changes, err := audit.EncodeChanges(map[string]audit.FieldChange{
		"number":   {Old: previousNumber, New: doc.Number},
		"isDraft":  {Old: true, New: false},
		"isLocked": {Old: false, New: true},
		"status":   {Old: previousStatus, New: doc.Status},
	})
	if err != nil {
		return fmt.Errorf("encode audit changes: %w", err)
	}

	metadata, err := json.Marshal(map[string]any{
		"documentType":   doc.Type,
		"documentAmount": doc.TotalTTC,
	})
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	return s.audit.Log(ctx, audit.Entry{
		ActorID:     actorID,
		Action:      audit.ActionIssue,
		Entity:      "Document",
		EntityID:    doc.ID.String(),
		Description: fmt.Sprintf("Document issued: %s -> %s", previousNumber, doc.Number),
		Changes:     changes,
		Metadata:    metadata,
		Severity:    audit.SeverityInfo,
	})
}

// BatchFailure records a per-document issuance failure.
type BatchFailure struct {
	ID    id.ID
	Error string
}

// BatchResult collects independent per-document outcomes.
type BatchResult struct {
	Successful []*IssueResult
	Failed     []BatchFailure
}

// IssueMany issues documents independently: one failure never aborts the
// others. Each document gets its own transaction.
func (s *Service) IssueMany(ctx context.Context, docIDs []id.ID, actorID string) *BatchResult {
	result := &BatchResult{}
	for _, docID := range docIDs {
		issued, err := s.Issue(ctx, docID, actorID, nil)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{ID: docID, Error: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, issued)
	}
	return result
}

// LockStatus is a derived, read-only view of a document's lifecycle state.
type LockStatus struct {
	IsLocked   bool
	IsDraft    bool
	IssuedAt   *time.Time
	IssuedByID string
	CanEdit    bool
	CanDelete  bool
	CanIssue   bool
}

// GetLockStatus returns the document's lock state and permitted actions.
// Performs no writes.
func (s *Service) GetLockStatus(ctx context.Context, docID id.ID) (*LockStatus, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	return &LockStatus{
		IsLocked:   doc.IsLocked,
		IsDraft:    doc.IsDraft,
		IssuedAt:   doc.IssuedAt,
		IssuedByID: doc.IssuedByID,
		CanEdit:    doc.CanEdit(),
		CanDelete:  doc.CanDelete(),
		CanIssue:   doc.CanIssue(),
	}, nil
}

// GuardEdit rejects modification of locked or issued documents.
// Must be invoked by every mutation entry point before any write occurs;
// performs no writes itself.
func (s *Service) GuardEdit(ctx context.Context, docID id.ID) error {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if !doc.CanEdit() {
		return apperror.NewDocumentLocked(doc.ID.String(), doc.Number)
	}
	return nil
}

// GuardDelete rejects deletion of locked documents and of drafts whose
// status has progressed beyond DRAFT.
func (s *Service) GuardDelete(ctx context.Context, docID id.ID) error {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if !doc.CanEdit() {
		return apperror.NewDocumentLocked(doc.ID.String(), doc.Number)
	}
	if doc.Status != StatusDraft {
		return apperror.NewInvalidDocumentState(
			fmt.Sprintf("Cannot delete document %s with status %s", doc.Number, doc.Status)).
			WithDetail("document_id", doc.ID.String()).
			WithDetail("status", string(doc.Status))
	}
	return nil
}

// Unlock removes the immutability lock from an issued document.
// Emergency administrative path: requires a non-empty justification, writes
// a critical audit entry, and never touches the number or re-runs numbering.
func (s *Service) Unlock(ctx context.Context, docID id.ID, adminID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperror.NewValidation("unlock reason is required").
			WithDetail("field", "reason")
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}

		if !doc.IsLocked {
			return apperror.NewInvalidDocumentState(
				fmt.Sprintf("Document %s is not locked.", doc.Number)).
				WithDetail("document_id", doc.ID.String())
		}

		doc.IsLocked = false
		doc.Touch()
		if err := s.repo.Update(ctx, doc); err != nil {
			return err
		}

		changes, err := audit.EncodeChanges(map[string]audit.FieldChange{
			"isLocked":     {Old: true, New: false},
			"unlockReason": {Old: nil, New: reason},
		})
		if err != nil {
			return fmt.Errorf("encode audit changes: %w", err)
		}

		return s.audit.Log(ctx, audit.Entry{
			ActorID:     adminID,
			Action:      audit.ActionUnlock,
			Entity:      "Document",
			EntityID:    doc.ID.String(),
			Description: fmt.Sprintf("ADMIN ACTION: Document %s unlocked. Reason: %s", doc.Number, reason),
			Changes:     changes,
			Severity:    audit.SeverityCritical,
		})
	})
	if err != nil {
		return err
	}

	logger.Warn(ctx, "document unlocked by administrator",
		"id", docID, "admin_id", adminID, "reason", reason)
	return nil
}
