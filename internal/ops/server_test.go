package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/you/dispatchd/internal/domain"
	"github.com/you/dispatchd/internal/pipeline"
)

type fakeStore struct {
	pingErr  error
	counts   map[domain.Status]int64
	requeued int64
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) CountByStatus(context.Context) (map[domain.Status]int64, error) {
	return s.counts, nil
}

func (s *fakeStore) RequeueDead(_ context.Context, _ string) (int64, error) {
	return s.requeued, nil
}

func newTestServer(s *fakeStore) *Server {
	return NewServer(":0", s, pipeline.NewRegistry(8, 20, 40), nil, zap.NewNop())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	srv = newTestServer(&fakeStore{pingErr: errors.New("down")})
	rec = httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when store is down", rec.Code)
	}
}

func TestStats(t *testing.T) {
	srv := newTestServer(&fakeStore{counts: map[domain.Status]int64{domain.StatusSent: 7}})
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Jobs map[string]int64 `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Jobs["sent"] != 7 {
		t.Fatalf("stats = %s", rec.Body.String())
	}
}

func TestRequeueDead(t *testing.T) {
	srv := newTestServer(&fakeStore{requeued: 3})
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/requeue-dead?campaign_id=camp-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["requeued"] != 3 {
		t.Fatalf("requeued = %d, want 3", body["requeued"])
	}
}
