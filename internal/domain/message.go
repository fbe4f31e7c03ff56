package domain

import "time"

// HeaderKind is the media kind of a template header.
type HeaderKind string

const (
	HeaderText     HeaderKind = "text"
	HeaderImage    HeaderKind = "image"
	HeaderVideo    HeaderKind = "video"
	HeaderDocument HeaderKind = "document"
)

// Media reports whether the header kind requires a media URL.
func (k HeaderKind) Media() bool {
	return k == HeaderImage || k == HeaderVideo || k == HeaderDocument
}

// Envelope is the provider-agnostic message built from a job and its template
// metadata. Provider adapters map it to the concrete wire payload.
type Envelope struct {
	To             string
	TemplateName   string
	LanguageCode   string
	HeaderKind     HeaderKind
	HeaderMediaURL string
	BodyParams     []string
	ButtonParams   []ButtonParam
	Body           string
	IdempotencyKey string
}

// ButtonParam is a dynamic value for a single template button, addressed by
// the button's position in the template definition.
type ButtonParam struct {
	Index   int
	SubType string
	Value   string
}

// SendResult is the transport outcome of one delivery attempt.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	ErrorMessage      string
	RawResponse       string
	StatusCode        int
	Latency           time.Duration
}
