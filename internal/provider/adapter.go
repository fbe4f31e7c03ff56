// Package provider maps provider-agnostic envelopes to concrete wire
// payloads and sends them.
package provider

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/you/dispatchd/internal/domain"
)

// ErrUnknownProvider is returned when no adapter is registered for a job's
// provider.
var ErrUnknownProvider = errors.New("unknown provider")

// PayloadAdapter builds the provider-specific wire payload from a validated
// envelope.
type PayloadAdapter interface {
	BuildPayload(env *domain.Envelope) ([]byte, error)
}

// Adapters is the fixed adapter set, one per supported provider.
type Adapters map[domain.Provider]PayloadAdapter

// DefaultAdapters returns adapters for every supported provider.
func DefaultAdapters() Adapters {
	return Adapters{
		domain.ProviderMeta:    metaAdapter{},
		domain.ProviderGupshup: gupshupAdapter{},
	}
}

func (a Adapters) For(p domain.Provider) (PayloadAdapter, error) {
	adapter, ok := a[p]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "%s", p)
	}
	return adapter, nil
}

// MessageID extracts the provider message id from a raw success response.
// Used as a fallback when the transport did not surface an id directly.
func MessageID(p domain.Provider, raw string) string {
	switch p {
	case domain.ProviderMeta:
		var body struct {
			Messages []struct {
				ID string `json:"id"`
			} `json:"messages"`
		}
		if json.Unmarshal([]byte(raw), &body) == nil && len(body.Messages) > 0 {
			return body.Messages[0].ID
		}
	case domain.ProviderGupshup:
		var body struct {
			MessageID string `json:"messageId"`
		}
		if json.Unmarshal([]byte(raw), &body) == nil {
			return body.MessageID
		}
	}
	return ""
}
