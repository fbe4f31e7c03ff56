package provider

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/you/dispatchd/internal/domain"
)

// metaAdapter builds WhatsApp Cloud API payloads.
type metaAdapter struct{}

type metaComponent struct {
	Type       string          `json:"type"`
	SubType    string          `json:"sub_type,omitempty"`
	Index      string          `json:"index,omitempty"`
	Parameters []metaParameter `json:"parameters,omitempty"`
}

type metaParameter struct {
	Type     string     `json:"type"`
	Text     string     `json:"text,omitempty"`
	Image    *metaMedia `json:"image,omitempty"`
	Video    *metaMedia `json:"video,omitempty"`
	Document *metaMedia `json:"document,omitempty"`
}

type metaMedia struct {
	Link string `json:"link"`
}

func (metaAdapter) BuildPayload(env *domain.Envelope) ([]byte, error) {
	if env.TemplateName == "" {
		// free-text fallback
		payload := map[string]any{
			"messaging_product": "whatsapp",
			"to":                env.To,
			"type":              "text",
			"text":              map[string]string{"body": env.Body},
		}
		return marshal(payload)
	}

	var components []metaComponent
	if env.HeaderKind.Media() && env.HeaderMediaURL != "" {
		components = append(components, metaComponent{
			Type:       "header",
			Parameters: []metaParameter{mediaParameter(env.HeaderKind, env.HeaderMediaURL)},
		})
	}
	if len(env.BodyParams) > 0 {
		params := make([]metaParameter, len(env.BodyParams))
		for i, v := range env.BodyParams {
			params[i] = metaParameter{Type: "text", Text: v}
		}
		components = append(components, metaComponent{Type: "body", Parameters: params})
	}
	for _, b := range env.ButtonParams {
		components = append(components, metaComponent{
			Type:       "button",
			SubType:    b.SubType,
			Index:      strconv.Itoa(b.Index),
			Parameters: []metaParameter{{Type: "text", Text: b.Value}},
		})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                env.To,
		"type":              "template",
		"template": map[string]any{
			"name":       env.TemplateName,
			"language":   map[string]string{"code": env.LanguageCode},
			"components": components,
		},
	}
	return marshal(payload)
}

func mediaParameter(kind domain.HeaderKind, url string) metaParameter {
	m := &metaMedia{Link: url}
	switch kind {
	case domain.HeaderVideo:
		return metaParameter{Type: "video", Video: m}
	case domain.HeaderDocument:
		return metaParameter{Type: "document", Document: m}
	default:
		return metaParameter{Type: "image", Image: m}
	}
}

func marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, errors.Wrap(err, "build payload")
}
