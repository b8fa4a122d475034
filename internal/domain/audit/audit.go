// Package audit defines the append-only audit trail contract.
// Entries are never updated or deleted by this core.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"numera/internal/core/id"
)

// Action is the audited operation type.
type Action string

const (
	ActionIssue       Action = "issue"
	ActionUnlock      Action = "unlock"
	ActionSequenceGap Action = "sequence_gap"
)

// Severity classifies audit entries for operator triage.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// FieldChange records a before/after pair for one field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Entry is a single immutable audit record.
type Entry struct {
	ID          id.ID           `db:"id"`
	ActorID     string          `db:"actor_id"`
	Action      Action          `db:"action"`
	Entity      string          `db:"entity"`
	EntityID    string          `db:"entity_id"`
	Description string          `db:"description"`
	Changes     json.RawMessage `db:"changes"`
	Metadata    json.RawMessage `db:"metadata"`
	Severity    Severity        `db:"severity"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Logger appends audit entries. Implementations must honor the transaction
// in context: issuance audit writes commit and roll back with the issuance
// transaction, while gap warnings are written best-effort by the caller.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// EncodeChanges marshals a before/after change set for an Entry.
func EncodeChanges(changes map[string]FieldChange) (json.RawMessage, error) {
	return json.Marshal(changes)
}
