package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "registra/internal/core/context"
	"registra/internal/core/id"
	"registra/internal/domain"
	"registra/pkg/logger"
)

// CompressionAlgo identifies how an audit payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is a single row of the mutation trail. Payloads above the
// compression threshold are stored zstd-compressed.
type AuditEntry struct {
	ID              id.ID           `db:"id"`
	EntityType      string          `db:"entity_type"`
	EntityID        id.ID           `db:"entity_id"`
	Action          string          `db:"action"`
	UserID          string          `db:"user_id"`
	SessionID       string          `db:"session_id"`
	Changes         json.RawMessage `db:"changes"`
	ChangesPacked   []byte          `db:"changes_packed"`
	CompressionAlgo CompressionAlgo `db:"compression_algo"`
	CreatedAt       time.Time       `db:"created_at"`
}

// AuditTrail persists entity mutations to sys_audit.
type AuditTrail struct {
	txManager *TxManager
	log       *logger.Logger
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder

	// payloads above this size are compressed
	compressThreshold int
}

var _ domain.AuditSink = (*AuditTrail)(nil)

// NewAuditTrail creates the audit trail writer.
func NewAuditTrail(txManager *TxManager, log *logger.Logger) (*AuditTrail, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditTrail{
		txManager:         txManager,
		log:               log,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record implements domain.AuditSink. Failures are logged, never
// propagated: the audit trail must not abort the business operation.
func (t *AuditTrail) Record(ctx context.Context, action domain.AuditAction, entityType string, entityID id.ID, changes any) {
	if err := t.record(ctx, action, entityType, entityID, changes); err != nil {
		t.log.WithContext(ctx).Warnw("audit record failed",
			"entity_type", entityType,
			"entity_id", entityID.String(),
			"action", string(action),
			"error", err,
		)
	}
}

func (t *AuditTrail) record(ctx context.Context, action domain.AuditAction, entityType string, entityID id.ID, changes any) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	entry := AuditEntry{
		ID:              id.New(),
		EntityType:      entityType,
		EntityID:        entityID,
		Action:          string(action),
		Changes:         payload,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if user := appctx.GetUser(ctx); user != nil {
		entry.UserID = user.UserID.String()
		entry.SessionID = user.SessionID
	}

	if len(entry.Changes) > t.compressThreshold {
		entry.ChangesPacked = t.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, action, user_id, session_id,
			changes, changes_packed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	querier := t.txManager.GetQuerier(ctx)
	_, err = querier.Exec(ctx, sql,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.UserID, entry.SessionID,
		entry.Changes, entry.ChangesPacked, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	return err
}

// EntityHistory retrieves the mutation trail for one entity, newest
// first, transparently decompressing packed payloads.
func (t *AuditTrail) EntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	sql := `
		SELECT id, entity_type, entity_id, action, user_id, session_id,
		       changes, changes_packed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := t.txManager.GetQuerier(ctx).Query(ctx, sql, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.UserID, &e.SessionID,
			&e.Changes, &e.ChangesPacked, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.ChangesPacked) > 0 {
			unpacked, err := t.decoder.DecodeAll(e.ChangesPacked, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress changes: %w", err)
			}
			e.Changes = unpacked
			e.ChangesPacked = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Diff computes a field-level old/new delta between two entity states.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !equal(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}

func equal(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
