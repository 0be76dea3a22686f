package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// LanguageSpec declares an answer language the assistant supports and the
// instruction injected into the prompt to enforce it. An empty instruction
// means the model answers in whatever language it prefers (the default).
type LanguageSpec struct {
	ID          string
	Name        string
	Instruction string
}

// Profile is the assistant profile: the prompt preamble and the set of
// answer languages. It is loaded from a TOML file or falls back to the
// built-in defaults.
type Profile struct {
	Preamble  string
	Languages []LanguageSpec
}

// DefaultProfile returns the built-in assistant profile
func DefaultProfile() *Profile {
	return &Profile{
		Preamble: "You are an assistant answering questions about ESG (Environmental, Social, Governance) topics. " +
			"Answer using only the provided context. If the context does not contain the answer, say so.",
		Languages: []LanguageSpec{
			{ID: "en", Name: "English"},
			{
				ID:          "fr",
				Name:        "Français",
				Instruction: "Réponds toujours en français, quelle que soit la langue de la question.",
			},
			{
				ID:          "ar",
				Name:        "Arabic",
				Instruction: "أجب دائمًا باللغة العربية، بغض النظر عن لغة السؤال.",
			},
		},
	}
}

// Language resolves a language by ID or name, case-insensitively.
// An empty name resolves to the first declared language.
func (p *Profile) Language(name string) (*LanguageSpec, bool) {
	if name == "" {
		if len(p.Languages) == 0 {
			return nil, false
		}
		return &p.Languages[0], true
	}
	for i := range p.Languages {
		if strings.EqualFold(p.Languages[i].ID, name) || strings.EqualFold(p.Languages[i].Name, name) {
			return &p.Languages[i], true
		}
	}
	return nil, false
}

// Validate checks the profile for missing names and duplicate IDs
func (p *Profile) Validate() error {
	if len(p.Languages) == 0 {
		return goerr.New("profile must declare at least one language")
	}

	ids := make(map[string]bool)
	for _, lang := range p.Languages {
		if lang.ID == "" {
			return goerr.New("language ID is required", goerr.V("name", lang.Name))
		}
		if lang.Name == "" {
			return goerr.New("language name is required", goerr.V("id", lang.ID))
		}
		key := strings.ToLower(lang.ID)
		if ids[key] {
			return goerr.New("duplicate language ID", goerr.V("id", lang.ID))
		}
		ids[key] = true
	}

	return nil
}
