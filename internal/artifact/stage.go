// Package artifact locates, reads and writes the documents a work item
// accumulates as it moves through the pipeline. Locations are a pure function
// of (feature, stage, story id, kind) under a plans root:
//
//	<plansRoot>/<feature>/<stage directory>/<STORY-ID>/<filename>
package artifact

import (
	"fmt"
	"strings"
)

// Stage is a canonical lifecycle stage key. Keys are always lowercase; the
// directory a stage maps to may not be.
type Stage string

const (
	StageDraft      Stage = "draft"
	StageBacklog    Stage = "backlog"
	StageInProgress Stage = "in-progress"
	StageUAT        Stage = "uat"
	StageDone       Stage = "done"
)

var stageOrder = []Stage{StageDraft, StageBacklog, StageInProgress, StageUAT, StageDone}

var stageDirectories = map[Stage]string{
	StageDraft:      "backlog",
	StageBacklog:    "ready-to-work",
	StageInProgress: "in-progress",
	StageUAT:        "UAT",
	StageDone:       "completed",
}

// Stages returns the lifecycle order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage accepts a canonical stage key in any case.
func ParseStage(value string) (Stage, error) {
	candidate := Stage(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := stageDirectories[candidate]; ok {
		return candidate, nil
	}
	return "", fmt.Errorf("artifact: unknown stage %q", value)
}

// Valid reports whether s is a canonical stage.
func (s Stage) Valid() bool {
	_, ok := stageDirectories[s]
	return ok
}

// Index is the position of s in the lifecycle, or -1.
func (s Stage) Index() int {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Next returns the stage after s. The final stage has no successor.
func (s Stage) Next() (Stage, bool) {
	idx := s.Index()
	if idx < 0 || idx == len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[idx+1], true
}

// StageDirectory maps a stage to its on-disk directory name. Unknown stages
// map to "".
func StageDirectory(stage Stage) string {
	return stageDirectories[stage]
}

// StageFromDirectory maps a directory name back to its stage, ignoring case.
func StageFromDirectory(dir string) (Stage, bool) {
	dir = strings.TrimSpace(dir)
	for _, stage := range stageOrder {
		if strings.EqualFold(stageDirectories[stage], dir) {
			return stage, true
		}
	}
	return "", false
}
