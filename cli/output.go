package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tidwall/pretty"
)

// isRunningInCI checks the common CI markers.
func isRunningInCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE", "JENKINS_URL"} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// shouldUseColor reports whether w is an interactive terminal that accepts color.
func shouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || isRunningInCI() {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeJSON prints v as indented JSON, colored when color is set.
func writeJSON(w io.Writer, v any, color bool) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	out := pretty.Pretty(raw)
	if color {
		out = pretty.Color(out, nil)
	}
	_, err = w.Write(out)
	return err
}

func printJSON(w io.Writer, v any) error {
	return writeJSON(w, v, shouldUseColor(w))
}
