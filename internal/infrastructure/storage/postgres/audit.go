package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appcontext "numera/internal/core/context"
	"numera/internal/core/id"
	"numera/internal/domain/audit"
)

// Compile-time check that AuditService implements audit.Logger.
var _ audit.Logger = (*AuditService)(nil)

// CompressionAlgo specifies the compression algorithm used for a stored
// change set.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditService writes the append-only audit trail. Entries are inserted
// through the ambient transaction when one is open, so issuance and unlock
// audit records commit and roll back with their operation; callers without
// a transaction get a plain autocommit insert (gap warnings).
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024, // 10KB
	}, nil
}

// Log appends an audit entry. Never updates or deletes existing rows.
func (s *AuditService) Log(ctx context.Context, entry audit.Entry) error {
	// Fall back to the actor from context
	if entry.ActorID == "" {
		entry.ActorID = appcontext.GetActorID(ctx)
	}

	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = audit.SeverityInfo
	}

	// Compress large change sets
	changes := entry.Changes
	var compressed []byte
	algo := CompressionNone
	if len(changes) > s.compressThreshold {
		compressed = s.encoder.EncodeAll(changes, nil)
		changes = nil
		algo = CompressionZstd
	}

	sql := `
		INSERT INTO sys_audit (
			id, actor_id, action, entity, entity_id, description,
			changes, changes_compressed, compression_algo, metadata,
			severity, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	querier := s.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		entry.ID, entry.ActorID, entry.Action, entry.Entity, entry.EntityID,
		entry.Description,
		changes, compressed, algo,
		entry.Metadata, entry.Severity, entry.CreatedAt,
	)

	return err
}

// GetEntityHistory retrieves audit history for an entity, newest first.
func (s *AuditService) GetEntityHistory(ctx context.Context, entity, entityID string, limit int) ([]audit.Entry, error) {
	sql := `
		SELECT id, actor_id, action, entity, entity_id, description,
			   changes, changes_compressed, compression_algo, metadata,
			   severity, created_at
		FROM sys_audit
		WHERE entity = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, entity, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var compressed []byte
		var algo CompressionAlgo
		err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Description,
			&e.Changes, &compressed, &algo,
			&e.Metadata, &e.Severity, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if algo == CompressionZstd && len(compressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(compressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress changes: %w", err)
			}
			e.Changes = decompressed
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
