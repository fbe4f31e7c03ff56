package pipeline

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/you/dispatchd/internal/domain"
	"github.com/you/dispatchd/internal/provider"
	"github.com/you/dispatchd/internal/sink"
)

// consumer turns claimed jobs into sent or definitively failed outcomes. No
// failure of a single job ever escapes the loop.
type consumer struct {
	store      JobStore
	recipients RecipientResolver
	templates  TemplateResolver
	adapters   provider.Adapters
	transport  Transport
	audit      AuditSink
	sendLog    SendLogSink
	billing    BillingIngestor
	policies   PolicyPublisher
	registry   *Registry
	queue      chan *domain.DispatchJob
	cfg        Config
	log        *zap.Logger
}

// outcome is the terminal result of one delivery attempt.
type outcome struct {
	sent        bool
	rateLimited bool
	cause       string
	res         domain.SendResult
}

func (c *consumer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.queue:
			// A dequeued job finishes even during shutdown: aborting a
			// send mid-flight leaves ambiguous provider-side state.
			jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.JobTimeout)
			c.dispatch(ctx, jobCtx, job)
			cancel()
		}
	}
}

// dispatch runs the gate/rate-limit admission and the attempt for one job.
func (c *consumer) dispatch(loopCtx, ctx context.Context, job *domain.DispatchJob) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("panic processing job",
				zap.String("job_id", job.ID), zap.Any("panic", rec))
			c.persist(ctx, job, outcome{cause: "internal error"})
		}
	}()

	// Admission (gate slot, rate lease) observes the worker loop context so
	// shutdown is not held up; once admitted, the attempt runs on the
	// detached job context. An abandoned lease falls to the reaper.
	key := job.SenderKey()
	if err := c.registry.Gate.Acquire(loopCtx, key); err != nil {
		return
	}
	defer c.registry.Gate.Release(key)

	// Throttling is flow control, not a send failure: yield and retry the
	// same job without touching its attempt counter.
	for !c.registry.Limiter.Allow(key) {
		if !sleep(loopCtx, 50*time.Millisecond+time.Duration(rand.Int63n(int64(100*time.Millisecond)))) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	c.persist(ctx, job, c.attempt(ctx, job))
}

// attempt runs the stage machine: resolve, build, validate, send.
func (c *consumer) attempt(ctx context.Context, job *domain.DispatchJob) outcome {
	addr, err := c.recipients.ResolveAddress(ctx, job.RecipientID)
	if err != nil {
		return outcome{cause: failStage("recipient", "%v", err).String()}
	}

	var tmpl *domain.TemplateMeta
	if job.TemplateName != "" {
		tmpl, err = c.templates.GetTemplate(ctx, job.BusinessID, job.Provider, job.TemplateName, job.LanguageCode)
		if err != nil {
			return outcome{cause: failStage("template", "%v", err).String()}
		}
	}

	env, fail := buildEnvelope(job, addr, tmpl)
	if fail == nil {
		fail = validateEnvelope(env, tmpl)
	}
	if fail != nil {
		return outcome{cause: fail.String()}
	}

	adapter, err := c.adapters.For(job.Provider)
	if err != nil {
		return outcome{cause: failStage("adapter", "%v", err).String()}
	}
	payload, err := adapter.BuildPayload(env)
	if err != nil {
		return outcome{cause: failStage("adapter", "%v", err).String()}
	}

	res, err := c.transport.Send(ctx, job.BusinessID, job.Provider, payload, job.SenderChannelID)
	if err != nil {
		return outcome{cause: failStage("send", "%v", err).String(), res: res}
	}
	if res.Success {
		if res.ProviderMessageID == "" {
			res.ProviderMessageID = provider.MessageID(job.Provider, res.RawResponse)
		}
		return outcome{sent: true, res: res}
	}

	out := outcome{cause: failStage("send", "%s", res.ErrorMessage).String(), res: res}
	if provider.RateLimited(res) {
		out.rateLimited = true
		c.tighten(ctx, job.SenderKey())
	}
	return out
}

// tighten reduces the sender key's admission limits in response to a
// provider rate-limit signal and publishes the reduction if a policy store
// is wired.
func (c *consumer) tighten(ctx context.Context, key domain.SenderKey) {
	c.registry.rateLimited.Add(1)
	perSec, burst := c.registry.Limiter.Tighten(key)
	c.log.Warn("provider rate limit hit, tightening sender key",
		zap.String("sender_key", key.String()),
		zap.Float64("per_sec", perSec), zap.Int("burst", burst))
	if c.policies != nil {
		if err := c.policies.Save(ctx, key, perSec, burst); err != nil {
			c.log.Warn("publish rate-limit policy failed", zap.Error(err))
		}
	}
}

// persist writes the job row update, the audit and send-log records and the
// billing event. Sink and billing failures never fail the job.
func (c *consumer) persist(ctx context.Context, job *domain.DispatchJob, out outcome) {
	attempt := job.Attempt + 1
	logID := uuid.NewString()
	now := time.Now().UTC()

	if out.sent {
		c.registry.sent.Add(1)
		if err := c.store.MarkSent(ctx, job.ID); err != nil {
			c.log.Error("mark sent failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		c.log.Info("message sent",
			zap.String("job_id", job.ID),
			zap.String("provider_message_id", out.res.ProviderMessageID),
			zap.Duration("latency", out.res.Latency))
	} else {
		c.registry.failed.Add(1)
		if err := c.store.MarkFailed(ctx, job.ID, attempt, out.cause); err != nil {
			c.log.Error("mark failed update errored", zap.String("job_id", job.ID), zap.Error(err))
		}
		c.log.Warn("message attempt failed",
			zap.String("job_id", job.ID),
			zap.Int("attempt", attempt),
			zap.String("cause", out.cause))
	}

	c.audit.Enqueue(sink.MessageRecord{
		ID:                logID,
		JobID:             job.ID,
		BusinessID:        job.BusinessID,
		CampaignID:        job.CampaignID,
		RecipientID:       job.RecipientID,
		Provider:          job.Provider,
		SenderChannelID:   job.SenderChannelID,
		IdempotencyKey:    job.IdempotencyKey,
		Success:           out.sent,
		ProviderMessageID: out.res.ProviderMessageID,
		ErrorMessage:      out.cause,
		RawResponse:       out.res.RawResponse,
		LatencyMs:         out.res.Latency.Milliseconds(),
		CreatedAt:         now,
	})

	status := string(domain.StatusFailed)
	if out.sent {
		status = string(domain.StatusSent)
	}
	c.sendLog.Enqueue(sink.SendLogRecord{
		ID:          uuid.NewString(),
		CampaignID:  job.CampaignID,
		JobID:       job.ID,
		RecipientID: job.RecipientID,
		Status:      status,
		Attempt:     attempt,
		Error:       out.cause,
		CreatedAt:   now,
	})

	if out.res.RawResponse != "" {
		if err := c.billing.IngestFromSendResponse(ctx, job.BusinessID, logID, job.Provider, out.res.RawResponse); err != nil {
			c.log.Warn("billing ingest failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}
