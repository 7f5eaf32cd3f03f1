package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kingrea/storyline/internal/execerr"
)

var idPattern = regexp.MustCompile(`^([A-Za-z]+)-[0-9]+$`)

// IsValidID reports whether id has the PREFIX-NUMBER shape, e.g. WISH-2001.
func IsValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ExtractFeature returns the lowercased prefix of a valid id.
func ExtractFeature(id string) (string, bool) {
	match := idPattern.FindStringSubmatch(id)
	if match == nil {
		return "", false
	}
	return strings.ToLower(match[1]), true
}

// WorkItem identifies one story at its current stage.
type WorkItem struct {
	ID      string `json:"id" yaml:"id"`
	Feature string `json:"feature" yaml:"feature"`
	Stage   Stage  `json:"stage" yaml:"stage"`
}

// NewWorkItem validates id and stage and derives the feature.
func NewWorkItem(id string, stage Stage) (WorkItem, error) {
	id = strings.TrimSpace(id)
	feature, ok := ExtractFeature(id)
	if !ok {
		return WorkItem{}, execerr.Validation("id", fmt.Sprintf("%q does not match PREFIX-NUMBER", id))
	}
	if !stage.Valid() {
		return WorkItem{}, execerr.Validation("stage", fmt.Sprintf("unknown stage %q", stage))
	}
	return WorkItem{ID: id, Feature: feature, Stage: stage}, nil
}

// String renders the item as feature/stage/id.
func (w WorkItem) String() string {
	return fmt.Sprintf("%s/%s/%s", w.Feature, w.Stage, w.ID)
}
