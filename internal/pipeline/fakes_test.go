package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/you/dispatchd/internal/domain"
	"github.com/you/dispatchd/internal/sink"
	"github.com/you/dispatchd/internal/store"
)

// fakeStore is an in-memory job store with the same claim semantics as the
// real one: a row is handed to exactly one claimer. Retries are scheduled
// immediately so tests run fast; the would-be backoff is recorded instead.
type fakeStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.DispatchJob
	backoffs map[string][]float64
	claims   int
}

func newFakeStore(jobs ...*domain.DispatchJob) *fakeStore {
	s := &fakeStore{
		jobs:     make(map[string]*domain.DispatchJob),
		backoffs: make(map[string][]float64),
	}
	for _, j := range jobs {
		cp := *j
		if cp.Status == "" {
			cp.Status = domain.StatusPending
		}
		s.jobs[j.ID] = &cp
	}
	return s
}

func (s *fakeStore) ClaimDueJobs(_ context.Context, limit int, lease time.Duration, maxAttempts int) ([]*domain.DispatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var due []*domain.DispatchJob
	for _, j := range s.jobs {
		claimable := (j.Status == domain.StatusPending || j.Status == domain.StatusFailed) && j.Attempt < maxAttempts
		if claimable && (j.NextAttemptAt == nil || !j.NextAttemptAt.After(now)) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].CreatedAt.Before(due[k].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*domain.DispatchJob, 0, len(due))
	for _, j := range due {
		j.Status = domain.StatusInFlight
		expiry := now.Add(lease)
		j.NextAttemptAt = &expiry
		cp := *j
		out = append(out, &cp)
	}
	s.claims += len(out)
	return out, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("no job %s", id)
	}
	// Same guard as the SQL store: only the current lease holder's row is
	// still in_flight, so a late write after requeue is a no-op.
	if j.Status != domain.StatusInFlight {
		return nil
	}
	j.Status = domain.StatusSent
	j.Attempt++
	j.NextAttemptAt = nil
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, attempt int, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("no job %s", id)
	}
	if j.Status != domain.StatusInFlight {
		return nil
	}
	j.Status = domain.StatusFailed
	j.Attempt = attempt
	now := time.Now()
	j.NextAttemptAt = &now
	j.LastError = cause
	s.backoffs[id] = append(s.backoffs[id], store.BackoffSeconds(attempt))
	return nil
}

func (s *fakeStore) RecoverStaleInFlight(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for _, j := range s.jobs {
		if j.Status == domain.StatusInFlight && j.NextAttemptAt != nil && j.NextAttemptAt.Before(now) {
			j.Status = domain.StatusPending
			j.NextAttemptAt = &now
			j.LastError = "lease expired; requeued by reaper"
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) DeadLetterExhausted(_ context.Context, maxAttempts int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, j := range s.jobs {
		if !j.Status.Terminal() && j.Attempt >= maxAttempts {
			j.Status = domain.StatusDead
			j.NextAttemptAt = nil
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) get(id string) domain.DispatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeStore) countByStatus() map[domain.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Status]int)
	for _, j := range s.jobs {
		out[j.Status]++
	}
	return out
}

type fakeRecipients struct {
	missing map[string]bool
}

func (r *fakeRecipients) ResolveAddress(_ context.Context, recipientID string) (string, error) {
	if r.missing[recipientID] {
		return "", store.ErrNotFound
	}
	return "+1555" + recipientID, nil
}

type fakeTemplates struct {
	mu    sync.Mutex
	metas map[string]*domain.TemplateMeta
	calls int
}

func tmplKey(name, language string) string { return name + "|" + language }

func (t *fakeTemplates) GetTemplate(_ context.Context, _ string, _ domain.Provider, name, language string) (*domain.TemplateMeta, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	m, ok := t.metas[tmplKey(name, language)]
	if !ok {
		return nil, fmt.Errorf("template %s not found", name)
	}
	return m, nil
}

// fakeTransport records sends and tracks concurrency per destination.
type fakeTransport struct {
	mu           sync.Mutex
	result       func(to string) domain.SendResult
	sends        map[string]int
	inFlight     int
	maxInFlight  int
	perSendDelay time.Duration
}

func newFakeTransport(result func(to string) domain.SendResult) *fakeTransport {
	return &fakeTransport{result: result, sends: make(map[string]int)}
}

func (t *fakeTransport) Send(_ context.Context, _ string, p domain.Provider, payload []byte, _ string) (domain.SendResult, error) {
	to := destination(p, payload)

	t.mu.Lock()
	t.sends[to]++
	t.inFlight++
	if t.inFlight > t.maxInFlight {
		t.maxInFlight = t.inFlight
	}
	delay := t.perSendDelay
	t.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	t.mu.Lock()
	t.inFlight--
	t.mu.Unlock()

	return t.result(to), nil
}

func (t *fakeTransport) totalSends() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.sends {
		n += c
	}
	return n
}

func destination(p domain.Provider, payload []byte) string {
	switch p {
	case domain.ProviderGupshup:
		var body struct {
			Destination string `json:"destination"`
		}
		_ = json.Unmarshal(payload, &body)
		return body.Destination
	default:
		var body struct {
			To string `json:"to"`
		}
		_ = json.Unmarshal(payload, &body)
		return body.To
	}
}

type captureAudit struct {
	mu      sync.Mutex
	records []sink.MessageRecord
}

func (c *captureAudit) Enqueue(r sink.MessageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *captureAudit) all() []sink.MessageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sink.MessageRecord(nil), c.records...)
}

type captureSendLog struct {
	mu      sync.Mutex
	records []sink.SendLogRecord
}

func (c *captureSendLog) Enqueue(r sink.SendLogRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

type captureBilling struct {
	mu    sync.Mutex
	calls int
	raws  []string
}

func (c *captureBilling) IngestFromSendResponse(_ context.Context, _, _ string, _ domain.Provider, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.raws = append(c.raws, raw)
	return nil
}

type capturePolicies struct {
	mu    sync.Mutex
	saved []domain.SenderKey
}

func (c *capturePolicies) Save(_ context.Context, key domain.SenderKey, _ float64, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, key)
	return nil
}

func okResult(string) domain.SendResult {
	return domain.SendResult{
		Success:     true,
		RawResponse: `{"messages":[{"id":"wamid.OK"}]}`,
		StatusCode:  200,
		Latency:     time.Millisecond,
	}
}

func failResult(string) domain.SendResult {
	return domain.SendResult{
		ErrorMessage: "provider unavailable",
		RawResponse:  `{"error":{"message":"provider unavailable"}}`,
		StatusCode:   500,
	}
}

func rateLimitedResult(string) domain.SendResult {
	return domain.SendResult{
		ErrorMessage: "Too many requests",
		RawResponse:  `{"error":{"message":"Too many requests"}}`,
		StatusCode:   429,
	}
}
