package pipeline

import (
	"context"
	"sync"

	"github.com/you/dispatchd/internal/domain"
	"github.com/you/dispatchd/internal/provider"
	"github.com/you/dispatchd/internal/sink"
)

// Deps collects the pipeline's collaborators. Store, Recipients, Templates,
// Transport and Registry are required; the sinks default to no-ops when nil.
type Deps struct {
	Store      JobStore
	Recipients RecipientResolver
	Templates  TemplateResolver
	Adapters   provider.Adapters
	Transport  Transport
	Audit      AuditSink
	SendLog    SendLogSink
	Billing    BillingIngestor
	Policies   PolicyPublisher
	Registry   *Registry
}

// Pipeline wires one claim producer, a consumer pool and a lease reaper
// around a bounded in-memory queue.
type Pipeline struct {
	deps  Deps
	cfg   Config
	queue chan *domain.DispatchJob
}

func New(deps Deps, opts ...Option) *Pipeline {
	if deps.Store == nil {
		panic("pipeline: nil JobStore")
	}
	if deps.Recipients == nil {
		panic("pipeline: nil RecipientResolver")
	}
	if deps.Templates == nil {
		panic("pipeline: nil TemplateResolver")
	}
	if deps.Transport == nil {
		panic("pipeline: nil Transport")
	}
	if deps.Registry == nil {
		panic("pipeline: nil Registry")
	}
	if deps.Adapters == nil {
		deps.Adapters = provider.DefaultAdapters()
	}
	if deps.Audit == nil {
		deps.Audit = nopAudit{}
	}
	if deps.SendLog == nil {
		deps.SendLog = nopSendLog{}
	}
	if deps.Billing == nil {
		deps.Billing = nopBilling{}
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Pipeline{
		deps:  deps,
		cfg:   cfg,
		queue: make(chan *domain.DispatchJob, cfg.QueueCapacity),
	}
}

// Run starts the producer, the consumer pool and the reaper and blocks until
// ctx is done and every loop has exited between its units of work.
func (p *Pipeline) Run(ctx context.Context) {
	log := p.cfg.Logger

	prod := &producer{
		store:    p.deps.Store,
		queue:    p.queue,
		registry: p.deps.Registry,
		cfg:      p.cfg,
		log:      log.Named("producer"),
	}
	reap := &reaper{
		store:    p.deps.Store,
		registry: p.deps.Registry,
		cfg:      p.cfg,
		log:      log.Named("reaper"),
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		prod.run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reap.run(ctx)
	}()

	for i := 0; i < p.cfg.Workers; i++ {
		cons := &consumer{
			store:      p.deps.Store,
			recipients: p.deps.Recipients,
			templates:  p.deps.Templates,
			adapters:   p.deps.Adapters,
			transport:  p.deps.Transport,
			audit:      p.deps.Audit,
			sendLog:    p.deps.SendLog,
			billing:    p.deps.Billing,
			policies:   p.deps.Policies,
			registry:   p.deps.Registry,
			queue:      p.queue,
			cfg:        p.cfg,
			log:        log.Named("consumer"),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cons.run(ctx)
		}()
	}

	wg.Wait()
}

// QueueDepth reports the number of claimed jobs waiting in memory.
func (p *Pipeline) QueueDepth() int { return len(p.queue) }

type nopAudit struct{}

func (nopAudit) Enqueue(sink.MessageRecord) {}

type nopSendLog struct{}

func (nopSendLog) Enqueue(sink.SendLogRecord) {}

type nopBilling struct{}

func (nopBilling) IngestFromSendResponse(context.Context, string, string, domain.Provider, string) error {
	return nil
}
