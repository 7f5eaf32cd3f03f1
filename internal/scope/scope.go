// Package scope models the scope document a work item carries: which
// surfaces a change touches, which risks it raises and which paths it is
// expected to modify. Flags are advisory hints for gating later stages.
package scope

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/execerr"
)

// SchemaVersion is the only schema value Validate accepts.
const SchemaVersion = 1

// Touches records the surfaces a change is expected to modify.
type Touches struct {
	Backend   bool `yaml:"backend" json:"backend"`
	Frontend  bool `yaml:"frontend" json:"frontend"`
	Packages  bool `yaml:"packages" json:"packages"`
	DB        bool `yaml:"db" json:"db"`
	Contracts bool `yaml:"contracts" json:"contracts"`
	UI        bool `yaml:"ui" json:"ui"`
	Infra     bool `yaml:"infra" json:"infra"`
}

// RiskFlags records the risk categories a change raises.
type RiskFlags struct {
	Auth         bool `yaml:"auth" json:"auth"`
	Payments     bool `yaml:"payments" json:"payments"`
	Migrations   bool `yaml:"migrations" json:"migrations"`
	ExternalAPIs bool `yaml:"external_apis" json:"external_apis"`
	Security     bool `yaml:"security" json:"security"`
	Performance  bool `yaml:"performance" json:"performance"`
}

// Document is the persisted scope artifact.
type Document struct {
	Schema            int       `yaml:"schema" json:"schema"`
	StoryID           string    `yaml:"story_id" json:"story_id"`
	Timestamp         time.Time `yaml:"timestamp" json:"timestamp"`
	Touches           Touches   `yaml:"touches" json:"touches"`
	TouchedPathsGlobs []string  `yaml:"touched_paths_globs" json:"touched_paths_globs"`
	RiskFlags         RiskFlags `yaml:"risk_flags" json:"risk_flags"`
	Summary           string    `yaml:"summary,omitempty" json:"summary,omitempty"`
}

// CreateEmpty returns a document for storyID with every flag false.
func CreateEmpty(storyID string) Document {
	return createEmptyAt(storyID, time.Now())
}

func createEmptyAt(storyID string, now time.Time) Document {
	return Document{
		Schema:            SchemaVersion,
		StoryID:           strings.TrimSpace(storyID),
		Timestamp:         now.UTC().Truncate(time.Second),
		TouchedPathsGlobs: []string{},
	}
}

// Infer builds a fresh document for storyID with flags inferred from text.
func Infer(storyID, text string) Document {
	doc := CreateEmpty(storyID)
	doc.Touches = InferTouches(text)
	doc.RiskFlags = InferRiskFlags(text)
	return doc
}

// Refine raises any flag inferred from text. Flags already set stay set.
func (d *Document) Refine(text string) {
	t := InferTouches(text)
	d.Touches.Backend = d.Touches.Backend || t.Backend
	d.Touches.Frontend = d.Touches.Frontend || t.Frontend
	d.Touches.Packages = d.Touches.Packages || t.Packages
	d.Touches.DB = d.Touches.DB || t.DB
	d.Touches.Contracts = d.Touches.Contracts || t.Contracts
	d.Touches.UI = d.Touches.UI || t.UI
	d.Touches.Infra = d.Touches.Infra || t.Infra

	r := InferRiskFlags(text)
	d.RiskFlags.Auth = d.RiskFlags.Auth || r.Auth
	d.RiskFlags.Payments = d.RiskFlags.Payments || r.Payments
	d.RiskFlags.Migrations = d.RiskFlags.Migrations || r.Migrations
	d.RiskFlags.ExternalAPIs = d.RiskFlags.ExternalAPIs || r.ExternalAPIs
	d.RiskFlags.Security = d.RiskFlags.Security || r.Security
	d.RiskFlags.Performance = d.RiskFlags.Performance || r.Performance
}

// Validate reports the first malformed field as a VALIDATION_FAILED error.
// A schema other than SchemaVersion is always rejected.
func Validate(doc Document) error {
	if doc.Schema != SchemaVersion {
		return execerr.Validation("schema", fmt.Sprintf("unsupported schema %d, expected %d", doc.Schema, SchemaVersion))
	}
	if !artifact.IsValidID(doc.StoryID) {
		return execerr.Validation("story_id", fmt.Sprintf("%q does not match PREFIX-NUMBER", doc.StoryID))
	}
	if doc.Timestamp.IsZero() {
		return execerr.Validation("timestamp", "timestamp is required")
	}
	for i, glob := range doc.TouchedPathsGlobs {
		field := fmt.Sprintf("touched_paths_globs[%d]", i)
		if strings.TrimSpace(glob) == "" {
			return execerr.Validation(field, "glob is empty")
		}
		if !doublestar.ValidatePattern(glob) {
			return execerr.Validation(field, fmt.Sprintf("invalid glob %q", glob))
		}
	}
	return nil
}

// Parse decodes a YAML scope document and validates it. A value of the wrong
// type fails as VALIDATION_FAILED naming its field, and schema is checked
// before any other field.
func Parse(data []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Document{}, fmt.Errorf("scope: parse: %w", err)
	}
	doc, err := decodeDocument(&root)
	if err != nil {
		return Document{}, err
	}
	if doc.TouchedPathsGlobs == nil {
		doc.TouchedPathsGlobs = []string{}
	}
	if err := Validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func decodeDocument(root *yaml.Node) (Document, error) {
	var doc Document
	node := root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	switch {
	case node.Kind == 0 || node.Tag == "!!null":
		return doc, nil
	case node.Kind != yaml.MappingNode:
		return doc, execerr.Validation("document", "scope document must be a mapping")
	}

	fields := map[string]any{
		"schema":              &doc.Schema,
		"story_id":            &doc.StoryID,
		"timestamp":           &doc.Timestamp,
		"touches":             &doc.Touches,
		"touched_paths_globs": &doc.TouchedPathsGlobs,
		"risk_flags":          &doc.RiskFlags,
		"summary":             &doc.Summary,
	}
	if value := mappingValue(node, "schema"); value != nil {
		if err := decodeField("schema", value, &doc.Schema); err != nil {
			return doc, err
		}
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		target, ok := fields[key]
		if !ok || key == "schema" {
			continue
		}
		if key == "touches" || key == "risk_flags" {
			if err := checkFlags(key, value); err != nil {
				return doc, err
			}
		}
		if err := decodeField(key, value, target); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

// checkFlags names the first flag in a touches or risk_flags mapping that is
// not a boolean.
func checkFlags(field string, value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		var flag bool
		if err := decodeField(field+"."+value.Content[i].Value, value.Content[i+1], &flag); err != nil {
			return err
		}
	}
	return nil
}

func decodeField(field string, value *yaml.Node, out any) error {
	err := value.Decode(out)
	if err == nil {
		return nil
	}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		return execerr.Validation(field, typeErr.Errors[0])
	}
	return execerr.Validation(field, err.Error())
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// Marshal validates doc and encodes it as YAML.
func Marshal(doc Document) ([]byte, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	if doc.TouchedPathsGlobs == nil {
		doc.TouchedPathsGlobs = []string{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("scope: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("scope: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// MatchesPath reports whether path matches any touched glob. Paths are
// compared in slash form.
func (d Document) MatchesPath(path string) bool {
	path = filepath.ToSlash(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	for _, glob := range d.TouchedPathsGlobs {
		if ok, err := doublestar.Match(glob, path); err == nil && ok {
			return true
		}
	}
	return false
}
