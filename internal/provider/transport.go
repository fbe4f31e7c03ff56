package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/you/dispatchd/internal/domain"
)

// Transport sends a wire payload through a provider's messaging API.
type Transport interface {
	Send(ctx context.Context, businessID string, p domain.Provider, payload []byte, senderChannelID string) (domain.SendResult, error)
}

// Endpoint holds the per-provider API base and credential.
type Endpoint struct {
	BaseURL string
	Token   string
}

// HTTPTransport posts payloads to each provider's send endpoint. The sender
// channel id selects the outbound number/account on the provider side.
type HTTPTransport struct {
	client    *http.Client
	endpoints map[domain.Provider]Endpoint
}

func NewHTTPTransport(endpoints map[domain.Provider]Endpoint) *HTTPTransport {
	return &HTTPTransport{
		client:    &http.Client{Timeout: 30 * time.Second},
		endpoints: endpoints,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, businessID string, p domain.Provider, payload []byte, senderChannelID string) (domain.SendResult, error) {
	ep, ok := t.endpoints[p]
	if !ok {
		return domain.SendResult{}, errors.Wrapf(ErrUnknownProvider, "%s", p)
	}

	url := strings.TrimRight(ep.BaseURL, "/") + "/" + senderChannelID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.SendResult{}, errors.Wrap(err, "build send request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ep.Token)
	req.Header.Set("X-Business-Id", businessID)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return domain.SendResult{}, errors.Wrap(err, "provider send")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	res := domain.SendResult{
		RawResponse: string(body),
		StatusCode:  resp.StatusCode,
		Latency:     time.Since(start),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Success = true
		res.ProviderMessageID = MessageID(p, res.RawResponse)
		return res, nil
	}

	res.ErrorMessage = errorMessage(res.RawResponse, resp.StatusCode)
	return res, nil
}

func errorMessage(raw string, status int) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(raw), &body) == nil {
		if body.Error.Message != "" {
			return body.Error.Message
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return http.StatusText(status)
}

// RateLimited classifies a failed result as a provider rate-limit response.
// Some providers answer 429, others bury the signal in the error text.
func RateLimited(res domain.SendResult) bool {
	if res.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(res.ErrorMessage + " " + res.RawResponse)
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "throughput")
}
