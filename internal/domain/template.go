package domain

// ButtonMeta describes one button defined on a template version. Button shape
// is immutable for a given template version, so parsed metadata is cacheable.
type ButtonMeta struct {
	Index   int
	SubType string // quick_reply, url, phone_number
	Text    string
	// Dynamic is true for url buttons whose target carries a {{1}} variable
	// that must be supplied per message.
	Dynamic bool
}

// TemplateMeta is the structural definition the dispatch pipeline validates
// an envelope against.
type TemplateMeta struct {
	BusinessID   string
	Provider     Provider
	Name         string
	LanguageCode string
	HeaderKind   HeaderKind
	BodyVarCount int
	Buttons      []ButtonMeta
}

// DynamicButtons returns the buttons that require a per-message value.
func (t *TemplateMeta) DynamicButtons() []ButtonMeta {
	var out []ButtonMeta
	for _, b := range t.Buttons {
		if b.Dynamic {
			out = append(out, b)
		}
	}
	return out
}
