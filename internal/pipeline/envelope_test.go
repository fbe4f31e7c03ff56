package pipeline

import (
	"testing"

	"github.com/you/dispatchd/internal/domain"
)

func TestHeaderKindPrefersTemplate(t *testing.T) {
	job := newJob("j1", func(j *domain.DispatchJob) { j.MediaType = "video" })
	tmpl := &domain.TemplateMeta{HeaderKind: domain.HeaderImage}

	if got := headerKind(job, tmpl); got != domain.HeaderImage {
		t.Fatalf("headerKind = %s, want template's image", got)
	}
	if got := headerKind(job, &domain.TemplateMeta{}); got != domain.HeaderVideo {
		t.Fatalf("headerKind = %s, want job fallback video", got)
	}
	if got := headerKind(newJob("j2"), &domain.TemplateMeta{}); got != domain.HeaderText {
		t.Fatalf("headerKind = %s, want text default", got)
	}
}

func TestBuildEnvelope(t *testing.T) {
	job := newJob("j1", func(j *domain.DispatchJob) {
		j.ResolvedParameters = []byte(`["Ada","42"]`)
		j.ResolvedButtonURLs = []byte(`["order-42"]`)
		j.HeaderMediaURL = "https://cdn.example.com/a.png"
	})
	tmpl := &domain.TemplateMeta{
		HeaderKind:   domain.HeaderImage,
		BodyVarCount: 2,
		Buttons: []domain.ButtonMeta{
			{Index: 0, SubType: "quick_reply"},
			{Index: 1, SubType: "url", Dynamic: true},
		},
	}

	env, fail := buildEnvelope(job, "+15551", tmpl)
	if fail != nil {
		t.Fatalf("buildEnvelope: %v", fail)
	}
	if env.To != "+15551" || env.TemplateName != "welcome" {
		t.Fatalf("envelope = %+v", env)
	}
	if len(env.BodyParams) != 2 || env.BodyParams[0] != "Ada" {
		t.Fatalf("body params = %v", env.BodyParams)
	}
	if len(env.ButtonParams) != 1 {
		t.Fatalf("button params = %v, want only the dynamic button", env.ButtonParams)
	}
	if env.ButtonParams[0].Index != 1 || env.ButtonParams[0].Value != "order-42" {
		t.Fatalf("button param = %+v", env.ButtonParams[0])
	}

	if fail := validateEnvelope(env, tmpl); fail != nil {
		t.Fatalf("validateEnvelope: %v", fail)
	}
}

func TestBuildEnvelopeBadParameters(t *testing.T) {
	job := newJob("j1", func(j *domain.DispatchJob) {
		j.ResolvedParameters = []byte(`{not json`)
	})
	if _, fail := buildEnvelope(job, "+15551", &domain.TemplateMeta{}); fail == nil {
		t.Fatal("want build failure for malformed parameters")
	}
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name string
		env  domain.Envelope
		tmpl *domain.TemplateMeta
		ok   bool
	}{
		{
			name: "param count mismatch",
			env:  domain.Envelope{BodyParams: []string{"a"}},
			tmpl: &domain.TemplateMeta{BodyVarCount: 2},
		},
		{
			name: "media header without url",
			env:  domain.Envelope{},
			tmpl: &domain.TemplateMeta{HeaderKind: domain.HeaderImage},
		},
		{
			name: "dynamic button without value",
			env:  domain.Envelope{ButtonParams: []domain.ButtonParam{{Index: 0, SubType: "url"}}},
			tmpl: &domain.TemplateMeta{},
		},
		{
			name: "free text without body",
			env:  domain.Envelope{},
			tmpl: nil,
		},
		{
			name: "free text with body",
			env:  domain.Envelope{Body: "hello"},
			tmpl: nil,
			ok:   true,
		},
		{
			name: "text header needs no url",
			env:  domain.Envelope{},
			tmpl: &domain.TemplateMeta{HeaderKind: domain.HeaderText},
			ok:   true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fail := validateEnvelope(&tc.env, tc.tmpl)
			if tc.ok && fail != nil {
				t.Fatalf("unexpected failure: %v", fail)
			}
			if !tc.ok && fail == nil {
				t.Fatal("want validation failure")
			}
		})
	}
}
