package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/storyline/internal/artifact"
)

// exitOnError prints err to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// writeYAML encodes v with two-space indentation.
func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeFormatted renders v as yaml or json.
func writeFormatted(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", "yaml", "yml":
		return writeYAML(w, v)
	case "json":
		return writeJSON(w, v)
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}

// findItem looks a story id up in the plans tree and returns it at its
// current stage.
func (s *session) findItem(id string) (artifact.WorkItem, error) {
	if !artifact.IsValidID(id) {
		return artifact.WorkItem{}, fmt.Errorf("invalid story id %q", id)
	}
	items, err := s.store.Catalog(s.resolver)
	if err != nil {
		return artifact.WorkItem{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return artifact.WorkItem{}, fmt.Errorf("work item %s not found under %s", id, s.resolver.Root())
}

// itemAt resolves id at an explicit stage when one is given, otherwise at its
// current stage in the plans tree.
func (s *session) itemAt(id, stage string) (artifact.WorkItem, error) {
	if stage == "" {
		return s.findItem(id)
	}
	parsed, err := artifact.ParseStage(stage)
	if err != nil {
		return artifact.WorkItem{}, err
	}
	return artifact.NewWorkItem(id, parsed)
}

// tail keeps the last n lines of output.
func tail(output string, n int) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
