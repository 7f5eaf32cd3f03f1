package artifact

import (
	"fmt"
	"strings"
)

// Kind names one document type a work item carries.
type Kind string

const (
	KindStory        Kind = "story"
	KindElaboration  Kind = "elaboration"
	KindPlan         Kind = "plan"
	KindVerification Kind = "verification"
	// KindProof is the historical predecessor of KindVerification.
	KindProof      Kind = "proof"
	KindScope      Kind = "scope"
	KindReview     Kind = "review"
	KindEvidence   Kind = "evidence"
	KindCheckpoint Kind = "checkpoint"
	// KindOutcome holds node execution results recorded by the engine.
	KindOutcome Kind = "outcome"
)

var kindOrder = []Kind{
	KindStory,
	KindElaboration,
	KindPlan,
	KindVerification,
	KindProof,
	KindScope,
	KindReview,
	KindEvidence,
	KindCheckpoint,
	KindOutcome,
}

var kindFilenames = map[Kind]string{
	KindStory:        "story.yaml",
	KindElaboration:  "elaboration.yaml",
	KindPlan:         "plan.yaml",
	KindVerification: "verification.yaml",
	KindProof:        "proof.md",
	KindScope:        "scope.yaml",
	KindReview:       "review.yaml",
	KindEvidence:     "evidence.yaml",
	KindCheckpoint:   "checkpoint.yaml",
	KindOutcome:      "outcome.yaml",
}

// Kinds lists every known artifact kind.
func Kinds() []Kind {
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// ParseKind accepts a kind name in any case.
func ParseKind(value string) (Kind, error) {
	candidate := Kind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := kindFilenames[candidate]; ok {
		return candidate, nil
	}
	return "", fmt.Errorf("artifact: unknown kind %q", value)
}

// ArtifactFilename returns the canonical filename for kind, or "".
func ArtifactFilename(kind Kind) string {
	return kindFilenames[kind]
}

// ArtifactKindFromFilename maps a filename back to its kind, ignoring case.
func ArtifactKindFromFilename(name string) (Kind, bool) {
	name = strings.TrimSpace(name)
	for _, kind := range kindOrder {
		if strings.EqualFold(kindFilenames[kind], name) {
			return kind, true
		}
	}
	return "", false
}
