package ingest

import (
	"strings"

	appconfig "github.com/compozy/nutrilens/pkg/config"
)

// Options controls which files a run considers.
type Options struct {
	DataPath          string
	AllowedExtensions []string
	Recursive         bool
}

// OptionsFromConfig maps the knowledge section onto run options.
func OptionsFromConfig(cfg *appconfig.KnowledgeConfig) Options {
	return Options{
		DataPath:          cfg.DataPath,
		AllowedExtensions: cfg.AllowedExtensions,
		Recursive:         cfg.Recursive,
	}
}

func (o Options) extensions() []string {
	out := make([]string, 0, len(o.AllowedExtensions))
	seen := make(map[string]struct{}, len(o.AllowedExtensions))
	for _, ext := range o.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		ext = strings.TrimPrefix(ext, ".")
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

// pattern builds the doublestar pattern matched against lowercased relative paths.
func (o Options) pattern() string {
	exts := o.extensions()
	prefix := "*"
	if o.Recursive {
		prefix = "**/*"
	}
	switch len(exts) {
	case 0:
		return ""
	case 1:
		return prefix + "." + exts[0]
	default:
		return prefix + ".{" + strings.Join(exts, ",") + "}"
	}
}
