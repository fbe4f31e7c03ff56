package sink

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/dispatchd/internal/domain"
)

// MessageRecord is one audit row per delivery attempt.
type MessageRecord struct {
	ID                string
	JobID             string
	BusinessID        string
	CampaignID        string
	RecipientID       string
	Provider          domain.Provider
	SenderChannelID   string
	IdempotencyKey    string
	Success           bool
	ProviderMessageID string
	ErrorMessage      string
	RawResponse       string
	LatencyMs         int64
	CreatedAt         time.Time
}

// AuditSink appends message audit records in batches.
type AuditSink struct {
	*batcher[MessageRecord]
}

func NewAuditSink(db *pgxpool.Pool, size int, interval time.Duration, log *zap.Logger) *AuditSink {
	flush := func(ctx context.Context, records []MessageRecord) error {
		var batch pgx.Batch
		for _, r := range records {
			batch.Queue(`
				INSERT INTO message_logs (
					id, job_id, business_id, campaign_id, recipient_id,
					provider, sender_channel_id, idempotency_key,
					success, provider_message_id, error_message, raw_response,
					latency_ms, created_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
				r.ID, r.JobID, r.BusinessID, r.CampaignID, r.RecipientID,
				r.Provider, r.SenderChannelID, r.IdempotencyKey,
				r.Success, r.ProviderMessageID, r.ErrorMessage, r.RawResponse,
				r.LatencyMs, r.CreatedAt)
		}
		return errors.Wrap(db.SendBatch(ctx, &batch).Close(), "flush message logs")
	}
	return &AuditSink{batcher: newBatcher("audit", size, interval, flush, log)}
}

// Enqueue buffers a record without blocking the caller.
func (s *AuditSink) Enqueue(r MessageRecord) { s.enqueue(r) }

// Run drains until ctx is done, then flushes the remainder.
func (s *AuditSink) Run(ctx context.Context) { s.run(ctx) }

// Wait blocks until Run has returned.
func (s *AuditSink) Wait() { s.wait() }
