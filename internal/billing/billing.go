// Package billing records usage events from raw provider send responses so
// cost accounting stays consistent with what was actually sent.
package billing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/dispatchd/internal/domain"
	"github.com/you/dispatchd/internal/provider"
)

// Ingestor writes one billing event per delivery attempt.
type Ingestor struct {
	db *pgxpool.Pool
}

func NewIngestor(db *pgxpool.Pool) *Ingestor {
	return &Ingestor{db: db}
}

// IngestFromSendResponse parses what the provider reported and records a
// billing event against the message log id.
func (i *Ingestor) IngestFromSendResponse(ctx context.Context, businessID, logID string, p domain.Provider, rawResponse string) error {
	messageID := provider.MessageID(p, rawResponse)
	category := conversationCategory(rawResponse)

	_, err := i.db.Exec(ctx, `
		INSERT INTO billing_events (
			id, business_id, message_log_id, provider, provider_message_id,
			category, raw_response, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.NewString(), businessID, logID, p, messageID,
		category, rawResponse, time.Now().UTC())
	return errors.Wrap(err, "ingest billing event")
}

// conversationCategory pulls the pricing category out of a raw response if
// the provider surfaced one.
func conversationCategory(raw string) string {
	var body struct {
		Messages []struct {
			Pricing struct {
				Category string `json:"category"`
			} `json:"pricing"`
		} `json:"messages"`
	}
	if json.Unmarshal([]byte(raw), &body) == nil && len(body.Messages) > 0 {
		return body.Messages[0].Pricing.Category
	}
	return ""
}
