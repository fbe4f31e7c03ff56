package store

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/dispatchd/internal/domain"
)

const maxErrorLen = 1024

// Store is the Postgres job store. It is the single source of truth and the
// only synchronization point between producer, consumers and reaper; every
// state transition here is a single atomic statement.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{db: db} }

const jobColumns = `id, business_id, campaign_id, recipient_id, provider, sender_channel_id,
template_name, language_code, media_type, header_media_url,
resolved_params, resolved_button_urls, message_body, idempotency_key,
status, attempt, next_attempt_at, last_error, created_at`

// ClaimDueJobs atomically claims up to limit due jobs: it selects candidate
// rows with FOR UPDATE SKIP LOCKED and moves them to in_flight with a lease
// expiry in the same statement, so two claimers can never take the same row.
// Rows that already spent maxAttempts are left for the reaper to dead-letter;
// claiming them would grant an extra attempt.
func (s *Store) ClaimDueJobs(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]*domain.DispatchJob, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE dispatch_jobs SET
			status = 'in_flight',
			next_attempt_at = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM dispatch_jobs
			WHERE status IN ('pending', 'failed')
			  AND attempt < $3
			  AND (next_attempt_at IS NULL OR next_attempt_at <= now())
			ORDER BY next_attempt_at ASC NULLS FIRST, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		limit, lease.Seconds(), maxAttempts)
	if err != nil {
		return nil, errors.Wrap(err, "claim due jobs")
	}
	defer rows.Close()

	var jobs []*domain.DispatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, errors.Wrap(rows.Err(), "claim due jobs")
}

// MarkSent finalizes a successful attempt. The in_flight guard keeps a
// writer whose lease expired from clobbering a row the reaper already
// handed to another claimer.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE dispatch_jobs SET
			status = 'sent',
			attempt = attempt + 1,
			next_attempt_at = NULL,
			last_error = ''
		WHERE id = $1 AND status = 'in_flight'`, id)
	return errors.Wrap(err, "mark sent")
}

// MarkFailed records a failed attempt and schedules the retry with
// exponential backoff capped at 60s. Guarded like MarkSent: only the
// current lease holder's row is still in_flight.
func (s *Store) MarkFailed(ctx context.Context, id string, attempt int, cause string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE dispatch_jobs SET
			status = 'failed',
			attempt = $2,
			next_attempt_at = now() + make_interval(secs => $3),
			last_error = $4
		WHERE id = $1 AND status = 'in_flight'`,
		id, attempt, BackoffSeconds(attempt), truncate(cause, maxErrorLen))
	return errors.Wrap(err, "mark failed")
}

// RecoverStaleInFlight requeues rows whose lease expired without a terminal
// write. Set-based so it does not contend row by row with the producer; the
// small jitter spreads the re-claims.
func (s *Store) RecoverStaleInFlight(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE dispatch_jobs SET
			status = 'pending',
			next_attempt_at = now() + make_interval(secs => 2 + random() * 2),
			last_error = 'lease expired; requeued by reaper'
		WHERE status = 'in_flight' AND next_attempt_at < now()`)
	if err != nil {
		return 0, errors.Wrap(err, "recover stale in-flight")
	}
	return tag.RowsAffected(), nil
}

// DeadLetterExhausted moves every non-terminal row that spent its retry
// budget to dead. Dead rows are permanently excluded from claims.
func (s *Store) DeadLetterExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE dispatch_jobs SET
			status = 'dead',
			next_attempt_at = NULL,
			last_error = left('retry budget exhausted: ' || last_error, $2)
		WHERE status IN ('pending', 'in_flight', 'failed') AND attempt >= $1`,
		maxAttempts, maxErrorLen)
	if err != nil {
		return 0, errors.Wrap(err, "dead-letter exhausted")
	}
	return tag.RowsAffected(), nil
}

// RequeueDead puts dead jobs back in the pending pool with a fresh attempt
// budget. Operator re-drive only; the pipeline never calls this.
func (s *Store) RequeueDead(ctx context.Context, campaignID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE dispatch_jobs SET
			status = 'pending',
			attempt = 0,
			next_attempt_at = NULL,
			last_error = ''
		WHERE status = 'dead' AND ($1 = '' OR campaign_id = $1)`, campaignID)
	if err != nil {
		return 0, errors.Wrap(err, "requeue dead")
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns the job counts per lifecycle status.
func (s *Store) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT status, count(*) FROM dispatch_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count by status")
	}
	defer rows.Close()

	out := make(map[domain.Status]int64)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, errors.Wrap(err, "count by status")
		}
		out[domain.Status(st)] = n
	}
	return out, errors.Wrap(rows.Err(), "count by status")
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// BackoffSeconds computes the retry delay after the given attempt count:
// min(60, 2^attempt * 2) seconds.
func BackoffSeconds(attempt int) float64 {
	return math.Min(60, math.Pow(2, float64(attempt))*2)
}

func scanJob(rows pgx.Rows) (*domain.DispatchJob, error) {
	var j domain.DispatchJob
	err := rows.Scan(
		&j.ID, &j.BusinessID, &j.CampaignID, &j.RecipientID, &j.Provider, &j.SenderChannelID,
		&j.TemplateName, &j.LanguageCode, &j.MediaType, &j.HeaderMediaURL,
		&j.ResolvedParameters, &j.ResolvedButtonURLs, &j.MessageBody, &j.IdempotencyKey,
		&j.Status, &j.Attempt, &j.NextAttemptAt, &j.LastError, &j.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "scan job")
	}
	return &j, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
