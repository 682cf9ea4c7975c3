package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"medstock/internal/core/audit"
	appctx "medstock/internal/core/context"
	"medstock/internal/core/id"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the change payload size above which zstd is applied.
const DefaultCompressThreshold = 1024

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	TenantID          id.ID           `db:"tenant_id"`
	CompanyID         id.ID           `db:"company_id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            string          `db:"action"`
	UserID            string          `db:"user_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

var auditColumns = []string{
	"id", "tenant_id", "company_id", "entity_type", "entity_id", "action", "user_id",
	"changes", "changes_compressed", "compression_algo", "created_at",
}

// AuditService writes audit entries in the caller's transaction and reads them back.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
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
		compressThreshold: DefaultCompressThreshold,
	}, nil
}

// compress moves large change payloads into ChangesCompressed.
func (s *AuditService) compress(entry *AuditEntry) {
	entry.CompressionAlgo = CompressionNone
	if len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}
}

// decompress restores Changes for entries read back from storage.
func (s *AuditService) decompress(entry *AuditEntry) error {
	if entry.CompressionAlgo != CompressionZstd || len(entry.ChangesCompressed) == 0 {
		return nil
	}
	raw, err := s.decoder.DecodeAll(entry.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	entry.Changes = raw
	entry.ChangesCompressed = nil
	return nil
}

// Log records an audit entry.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	if entry.UserID == "" {
		entry.UserID = appctx.GetUserID(ctx)
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.compress(&entry)

	sql, args, err := psql.Insert("sys_audit").
		Columns(auditColumns...).
		Values(entry.ID, entry.TenantID, entry.CompanyID, entry.EntityType, entry.EntityID, entry.Action, entry.UserID,
			entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}

// LogChange records one change of an entity scoped to the session's tenant and company.
func (s *AuditService) LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes any) error {
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	entry := AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Changes:    changesJSON,
	}
	if u := appctx.GetUser(ctx); u != nil {
		entry.TenantID, _ = id.Parse(u.TenantID)
		entry.CompanyID, _ = id.Parse(u.CompanyID)
	}

	return s.Log(ctx, entry)
}

// EntityHistory returns the audit entries of an entity within a company, newest first.
func (s *AuditService) EntityHistory(ctx context.Context, companyID id.ID, entityType string, entityID id.ID, limit int) ([]audit.Record, error) {
	sql, args, err := historyQuery(companyID, entityType, entityID, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var entries []AuditEntry
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, MapError(err)
	}

	records := make([]audit.Record, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if err := s.decompress(e); err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, err)
		}
		records = append(records, audit.Record{
			ID:         e.ID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			UserID:     e.UserID,
			Changes:    e.Changes,
			CreatedAt:  e.CreatedAt,
		})
	}
	return records, nil
}

func historyQuery(companyID id.ID, entityType string, entityID id.ID, limit int) squirrel.SelectBuilder {
	return psql.Select(auditColumns...).
		From("sys_audit").
		Where(squirrel.Eq{
			"company_id":  companyID,
			"entity_type": entityType,
			"entity_id":   entityID,
		}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
}
