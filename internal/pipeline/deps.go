// Package pipeline implements the outbound dispatch pipeline: a claim
// producer feeding a bounded queue, a pool of dispatch consumers, and a
// lease reaper. The job store is the only synchronization point between the
// three roles; multiple processes may run the same roles against the same
// store.
package pipeline

import (
	"context"
	"time"

	"github.com/you/dispatchd/internal/domain"
	"github.com/you/dispatchd/internal/sink"
)

// JobStore is the durable job table with atomic claim semantics.
type JobStore interface {
	// ClaimDueJobs atomically selects, locks and transitions up to limit due
	// jobs to in_flight with the given lease. Concurrent claimers never
	// observe the same row, and rows at or past maxAttempts are never
	// claimed.
	ClaimDueJobs(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]*domain.DispatchJob, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, attempt int, cause string) error
	RecoverStaleInFlight(ctx context.Context) (int64, error)
	DeadLetterExhausted(ctx context.Context, maxAttempts int) (int64, error)
}

// RecipientResolver maps a job's recipient reference to a destination
// address.
type RecipientResolver interface {
	ResolveAddress(ctx context.Context, recipientID string) (string, error)
}

// TemplateResolver loads the structural template definition a job references.
type TemplateResolver interface {
	GetTemplate(ctx context.Context, businessID string, p domain.Provider, name, language string) (*domain.TemplateMeta, error)
}

// Transport sends a provider wire payload.
type Transport interface {
	Send(ctx context.Context, businessID string, p domain.Provider, payload []byte, senderChannelID string) (domain.SendResult, error)
}

// AuditSink receives one message record per attempt. Implementations are
// async and never fail into the caller.
type AuditSink interface {
	Enqueue(r sink.MessageRecord)
}

// SendLogSink receives one campaign send-log record per attempt.
type SendLogSink interface {
	Enqueue(r sink.SendLogRecord)
}

// BillingIngestor records usage from the raw provider response.
type BillingIngestor interface {
	IngestFromSendResponse(ctx context.Context, businessID, logID string, p domain.Provider, rawResponse string) error
}

// PolicyPublisher shares tightened rate limits with other processes.
// Optional; a nil publisher keeps throttling process-local.
type PolicyPublisher interface {
	Save(ctx context.Context, key domain.SenderKey, perSec float64, burst int) error
}
