package sink

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SendLogRecord is one campaign-level send-log row per delivery attempt.
type SendLogRecord struct {
	ID          string
	CampaignID  string
	JobID       string
	RecipientID string
	Status      string
	Attempt     int
	Error       string
	CreatedAt   time.Time
}

// SendLogSink appends campaign send-log records in batches.
type SendLogSink struct {
	*batcher[SendLogRecord]
}

func NewSendLogSink(db *pgxpool.Pool, size int, interval time.Duration, log *zap.Logger) *SendLogSink {
	flush := func(ctx context.Context, records []SendLogRecord) error {
		var batch pgx.Batch
		for _, r := range records {
			batch.Queue(`
				INSERT INTO campaign_send_logs (
					id, campaign_id, job_id, recipient_id, status, attempt, error, created_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				r.ID, r.CampaignID, r.JobID, r.RecipientID, r.Status, r.Attempt, r.Error, r.CreatedAt)
		}
		return errors.Wrap(db.SendBatch(ctx, &batch).Close(), "flush campaign send logs")
	}
	return &SendLogSink{batcher: newBatcher("sendlog", size, interval, flush, log)}
}

func (s *SendLogSink) Enqueue(r SendLogRecord) { s.enqueue(r) }

func (s *SendLogSink) Run(ctx context.Context) { s.run(ctx) }

func (s *SendLogSink) Wait() { s.wait() }
