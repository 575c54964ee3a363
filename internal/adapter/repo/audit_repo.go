package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"tunesmith/internal/domain"
)

// AuditRepositoryPG implements domain.AuditRepository using PostgreSQL.
// Rows are append-only; there is deliberately no update or delete path.
type AuditRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs a new audit repository instance.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepositoryPG {
	return &AuditRepositoryPG{pool: pool}
}

// Append records one raw inbound notification.
func (r *AuditRepositoryPG) Append(ctx context.Context, event *domain.CallbackEvent) error {
	query := `
INSERT INTO callback_events (id, external_id, detected_type, raw_payload, processing_status, origin_country)
VALUES ($1, $2, $3, COALESCE($4::jsonb, '{}'::jsonb), $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.ExternalID,
		event.DetectedType,
		nullableBytes(event.RawPayload),
		event.ProcessingStatus,
		event.OriginCountry,
	)
	return err
}
