package converter

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

//go:embed prompts.toml
var defaultPromptsTOML []byte

const rowsPlaceholder = "{{rows}}"

// PromptPair is the system and user template of one task
type PromptPair struct {
	System string `toml:"system"`
	User   string `toml:"user"`
}

// Prompts holds the prompt templates used by the converter
type Prompts struct {
	Convert PromptPair `toml:"convert"`
}

// DefaultPrompts returns the built-in prompts
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPromptsTOML)
	if err != nil {
		panic(fmt.Sprintf("built-in prompts are invalid: %v", err))
	}
	return p
}

// ParsePrompts decodes prompts from TOML
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	p.Convert.System = strings.TrimSpace(p.Convert.System)
	p.Convert.User = strings.TrimSpace(p.Convert.User)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPrompts reads prompts from a TOML file. Templates missing from the
// file keep their built-in text.
func LoadPrompts(fs afero.Fs, path string) (*Prompts, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file '%s': %w", path, err)
	}

	var override Prompts
	if err := toml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file '%s': %w", path, err)
	}

	p := DefaultPrompts()
	if s := strings.TrimSpace(override.Convert.System); s != "" {
		p.Convert.System = s
	}
	if s := strings.TrimSpace(override.Convert.User); s != "" {
		p.Convert.User = s
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the templates are usable
func (p *Prompts) Validate() error {
	if p.Convert.System == "" {
		return fmt.Errorf("convert.system prompt cannot be empty")
	}
	if !strings.Contains(p.Convert.User, rowsPlaceholder) {
		return fmt.Errorf("convert.user prompt must contain %s", rowsPlaceholder)
	}
	return nil
}

// ConvertUser renders the user prompt for a chunk of rows encoded as JSON
func (p *Prompts) ConvertUser(rowsJSON string) string {
	return strings.ReplaceAll(p.Convert.User, rowsPlaceholder, rowsJSON)
}
