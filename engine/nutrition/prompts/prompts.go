package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	appconfig "github.com/compozy/nutrilens/pkg/config"
	"github.com/spf13/afero"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Kind names one prompt template.
type Kind string

const (
	KindVision  Kind = "vision"
	KindText    Kind = "text"
	KindCompute Kind = "compute"
)

// Data is the input every template is rendered with.
type Data struct {
	Text               string
	Estimates          string
	Context            string
	FormatInstructions string
}

// Set holds the parsed templates for every kind.
type Set struct {
	templates map[Kind]*template.Template
}

// Default returns the embedded templates.
func Default() (*Set, error) {
	return Load(nil, nil)
}

// Load parses the embedded templates, replacing any kind whose override path is set.
func Load(fs afero.Fs, cfg *appconfig.PromptsConfig) (*Set, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	overrides := map[Kind]string{}
	if cfg != nil {
		overrides[KindVision] = cfg.VisionPath
		overrides[KindText] = cfg.TextPath
		overrides[KindCompute] = cfg.ComputePath
	}
	set := &Set{templates: make(map[Kind]*template.Template, 3)}
	for _, kind := range []Kind{KindVision, KindText, KindCompute} {
		source, err := readSource(fs, kind, overrides[kind])
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(string(kind)).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(source)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt: %w", kind, err)
		}
		set.templates[kind] = tmpl
	}
	return set, nil
}

func readSource(fs afero.Fs, kind Kind, override string) (string, error) {
	if override != "" {
		data, err := afero.ReadFile(fs, override)
		if err != nil {
			return "", fmt.Errorf("failed to read %s prompt override %s: %w", kind, override, err)
		}
		return string(data), nil
	}
	data, err := templateFS.ReadFile(path.Join("templates", string(kind)+".tmpl"))
	if err != nil {
		return "", fmt.Errorf("missing embedded %s prompt: %w", kind, err)
	}
	return string(data), nil
}

// Render executes the template for kind.
func (s *Set) Render(kind Kind, data Data) (string, error) {
	tmpl, ok := s.templates[kind]
	if !ok {
		return "", fmt.Errorf("template not found: %s", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", kind, err)
	}
	return buf.String(), nil
}
