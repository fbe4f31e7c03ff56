package template

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/you/dispatchd/internal/domain"
)

type parsedButton struct {
	subType string
	text    string
	dynamic bool
}

// rawButton mirrors the stored template button JSON.
type rawButton struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// parseButtons decodes stored button JSON. A url button is dynamic when its
// target carries a template variable that must be supplied per message.
func parseButtons(raw []byte) ([]parsedButton, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var defs []rawButton
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, errors.Wrap(err, "parse template buttons")
	}
	out := make([]parsedButton, 0, len(defs))
	for _, d := range defs {
		sub := strings.ToLower(d.Type)
		out = append(out, parsedButton{
			subType: sub,
			text:    d.Text,
			dynamic: sub == "url" && strings.Contains(d.URL, "{{"),
		})
	}
	return out, nil
}

func toMeta(buttons []parsedButton) []domain.ButtonMeta {
	if len(buttons) == 0 {
		return nil
	}
	out := make([]domain.ButtonMeta, len(buttons))
	for i, b := range buttons {
		out[i] = domain.ButtonMeta{
			Index:   i,
			SubType: b.subType,
			Text:    b.text,
			Dynamic: b.dynamic,
		}
	}
	return out
}
