package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/you/dispatchd/internal/domain"
)

// stageFailure is the typed outcome of a pipeline stage that could not
// produce a sendable message. It is an expected value, not an error: the
// consumer loop is a state machine over these, not a chain of catches.
type stageFailure struct {
	stage string
	cause string
}

func failStage(stage, format string, args ...any) *stageFailure {
	return &stageFailure{stage: stage, cause: fmt.Sprintf(format, args...)}
}

func (f *stageFailure) String() string {
	return f.stage + ": " + f.cause
}

// headerKind prefers the template's stored kind and falls back to the job's
// own media-type hint.
func headerKind(job *domain.DispatchJob, tmpl *domain.TemplateMeta) domain.HeaderKind {
	if tmpl != nil && tmpl.HeaderKind != "" {
		return tmpl.HeaderKind
	}
	if job.MediaType != "" {
		return domain.HeaderKind(job.MediaType)
	}
	return domain.HeaderText
}

// buildEnvelope assembles the provider-agnostic message from the job's
// resolved payloads and the template's button metadata.
func buildEnvelope(job *domain.DispatchJob, addr string, tmpl *domain.TemplateMeta) (*domain.Envelope, *stageFailure) {
	env := &domain.Envelope{
		To:             addr,
		Body:           job.MessageBody,
		IdempotencyKey: job.IdempotencyKey,
	}
	if tmpl == nil {
		return env, nil
	}

	env.TemplateName = job.TemplateName
	env.LanguageCode = job.LanguageCode
	env.HeaderKind = headerKind(job, tmpl)
	env.HeaderMediaURL = job.HeaderMediaURL

	if len(job.ResolvedParameters) > 0 {
		if err := json.Unmarshal(job.ResolvedParameters, &env.BodyParams); err != nil {
			return nil, failStage("build", "bad resolved parameters: %v", err)
		}
	}

	var urls []string
	if len(job.ResolvedButtonURLs) > 0 {
		if err := json.Unmarshal(job.ResolvedButtonURLs, &urls); err != nil {
			return nil, failStage("build", "bad resolved button urls: %v", err)
		}
	}
	dynamic := tmpl.DynamicButtons()
	for i, b := range dynamic {
		p := domain.ButtonParam{Index: b.Index, SubType: b.SubType}
		if i < len(urls) {
			p.Value = urls[i]
		}
		env.ButtonParams = append(env.ButtonParams, p)
	}

	return env, nil
}

// validateEnvelope checks the envelope against the template's structural
// requirements before any send is attempted.
func validateEnvelope(env *domain.Envelope, tmpl *domain.TemplateMeta) *stageFailure {
	if tmpl == nil {
		if env.Body == "" {
			return failStage("validate", "no template and empty message body")
		}
		return nil
	}
	if len(env.BodyParams) != tmpl.BodyVarCount {
		return failStage("validate", "expected %d body parameters, got %d",
			tmpl.BodyVarCount, len(env.BodyParams))
	}
	if tmpl.HeaderKind.Media() && env.HeaderMediaURL == "" {
		return failStage("validate", "template header kind %s requires a media url", tmpl.HeaderKind)
	}
	for _, b := range env.ButtonParams {
		if b.Value == "" {
			return failStage("validate", "missing value for dynamic url button %d", b.Index)
		}
	}
	return nil
}
