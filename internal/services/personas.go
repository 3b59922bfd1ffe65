package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultPersonasYAML []byte

// Persona is a system prompt for the plan generator plus the scene count its
// plans must have.
type Persona struct {
	Name         string   `yaml:"name"`
	Brackets     []string `yaml:"brackets"`
	SceneCount   int      `yaml:"scene_count"`
	SystemPrompt string   `yaml:"system_prompt"`
}

type personaFile struct {
	DefaultBracket string    `yaml:"default_bracket"`
	Personas       []Persona `yaml:"personas"`
}

// PersonaRegistry resolves an age bracket to a persona.
type PersonaRegistry struct {
	byBracket      map[string]*Persona
	defaultBracket string
}

// LoadPersonas reads the registry from path, or the embedded default when
// path is empty.
func LoadPersonas(path string) (*PersonaRegistry, error) {
	data := defaultPersonasYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read personas file: %w", err)
		}
		data = b
	}
	return ParsePersonas(data)
}

// ParsePersonas builds a registry from YAML.
func ParsePersonas(data []byte) (*PersonaRegistry, error) {
	var pf personaFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse personas: %w", err)
	}

	reg := &PersonaRegistry{
		byBracket:      make(map[string]*Persona),
		defaultBracket: strings.TrimSpace(pf.DefaultBracket),
	}

	for i := range pf.Personas {
		p := &pf.Personas[i]
		if strings.TrimSpace(p.SystemPrompt) == "" {
			return nil, fmt.Errorf("persona %q has no system prompt", p.Name)
		}
		if p.SceneCount <= 0 {
			return nil, fmt.Errorf("persona %q needs a positive scene_count", p.Name)
		}
		for _, b := range p.Brackets {
			b = strings.TrimSpace(b)
			if _, dup := reg.byBracket[b]; dup {
				return nil, fmt.Errorf("bracket %q is mapped twice", b)
			}
			reg.byBracket[b] = p
		}
	}

	if _, ok := reg.byBracket[reg.defaultBracket]; !ok {
		return nil, fmt.Errorf("default bracket %q has no persona", reg.defaultBracket)
	}
	return reg, nil
}

// ForBracket returns the persona for an age bracket, falling back to the
// default bracket for anything unknown.
func (r *PersonaRegistry) ForBracket(bracket string) *Persona {
	if p, ok := r.byBracket[strings.TrimSpace(bracket)]; ok {
		return p
	}
	return r.byBracket[r.defaultBracket]
}

// Brackets lists the configured age brackets.
func (r *PersonaRegistry) Brackets() []string {
	out := make([]string, 0, len(r.byBracket))
	for b := range r.byBracket {
		out = append(out, b)
	}
	return out
}
