package provider

import (
	"github.com/you/dispatchd/internal/domain"
)

// gupshupAdapter builds Gupshup template-message payloads.
type gupshupAdapter struct{}

func (gupshupAdapter) BuildPayload(env *domain.Envelope) ([]byte, error) {
	if env.TemplateName == "" {
		return marshal(map[string]any{
			"channel":     "whatsapp",
			"destination": env.To,
			"message": map[string]any{
				"type": "text",
				"text": env.Body,
			},
		})
	}

	msg := map[string]any{
		"id":     env.TemplateName,
		"params": env.BodyParams,
	}
	if env.HeaderKind.Media() && env.HeaderMediaURL != "" {
		msg["media"] = map[string]string{
			"type": string(env.HeaderKind),
			"url":  env.HeaderMediaURL,
		}
	}
	if len(env.ButtonParams) > 0 {
		buttons := make([]map[string]any, len(env.ButtonParams))
		for i, b := range env.ButtonParams {
			buttons[i] = map[string]any{
				"index":    b.Index,
				"sub_type": b.SubType,
				"value":    b.Value,
			}
		}
		msg["buttons"] = buttons
	}

	return marshal(map[string]any{
		"channel":     "whatsapp",
		"destination": env.To,
		"lang":        env.LanguageCode,
		"template":    msg,
	})
}
