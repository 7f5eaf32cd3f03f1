package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolver maps work item identity to artifact paths under a plans root. It
// performs no I/O; every method is a pure function of its arguments and the
// resolver's configuration.
type Resolver struct {
	root                   string
	preferVerificationYAML bool
}

// ResolverOption customizes a Resolver during construction.
type ResolverOption func(*Resolver)

// PreferVerificationYAML selects whether verification.yaml (true) or the
// historical proof.md (false) is probed first by PrimaryAndFallback.
func PreferVerificationYAML(prefer bool) ResolverOption {
	return func(r *Resolver) {
		r.preferVerificationYAML = prefer
	}
}

// NewResolver builds a resolver rooted at plansRoot. A relative root is made
// absolute against the working directory once, here.
func NewResolver(plansRoot string, opts ...ResolverOption) (*Resolver, error) {
	plansRoot = strings.TrimSpace(plansRoot)
	if plansRoot == "" {
		return nil, fmt.Errorf("artifact: plans root is required")
	}
	abs, err := filepath.Abs(plansRoot)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolve plans root %s: %w", plansRoot, err)
	}
	r := &Resolver{root: filepath.Clean(abs), preferVerificationYAML: true}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the absolute plans root.
func (r *Resolver) Root() string {
	return r.root
}

// ResolvedArtifact is the structured form of one artifact location.
type ResolvedArtifact struct {
	AbsolutePath   string `json:"absolute_path" yaml:"absolute_path"`
	RelativePath   string `json:"relative_path" yaml:"relative_path"`
	Feature        string `json:"feature" yaml:"feature"`
	Stage          Stage  `json:"stage" yaml:"stage"`
	StageDirectory string `json:"stage_directory" yaml:"stage_directory"`
	StoryID        string `json:"story_id" yaml:"story_id"`
	ArtifactKind   Kind   `json:"artifact_kind" yaml:"artifact_kind"`
	Filename       string `json:"filename" yaml:"filename"`
}

// WorkItemDirectory returns <root>/<feature>/<stage dir>/<id>, or "" for an
// unknown stage.
func (r *Resolver) WorkItemDirectory(feature string, stage Stage, id string) string {
	dir := StageDirectory(stage)
	if dir == "" {
		return ""
	}
	return filepath.Join(r.root, feature, dir, id)
}

// ArtifactPath returns the file path of kind for the work item, or "" when
// stage or kind is unknown.
func (r *Resolver) ArtifactPath(feature string, stage Stage, id string, kind Kind) string {
	name := ArtifactFilename(kind)
	dir := r.WorkItemDirectory(feature, stage, id)
	if name == "" || dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}

// Resolve returns every component of an artifact location at once.
func (r *Resolver) Resolve(feature string, stage Stage, id string, kind Kind) ResolvedArtifact {
	res := ResolvedArtifact{
		Feature:        feature,
		Stage:          stage,
		StageDirectory: StageDirectory(stage),
		StoryID:        id,
		ArtifactKind:   kind,
		Filename:       ArtifactFilename(kind),
	}
	res.AbsolutePath = r.ArtifactPath(feature, stage, id, kind)
	if res.AbsolutePath != "" {
		res.RelativePath = filepath.Join(feature, res.StageDirectory, id, res.Filename)
	}
	return res
}

// ResolveItem is Resolve for a WorkItem.
func (r *Resolver) ResolveItem(item WorkItem, kind Kind) ResolvedArtifact {
	return r.Resolve(item.Feature, item.Stage, item.ID, kind)
}

// ParsePath inverts Resolve. Relative paths are taken relative to the root.
// It reports false for anything outside the root or not shaped
// feature/stage-dir/ID/filename with a known stage directory and filename.
func (r *Resolver) ParsePath(path string) (ResolvedArtifact, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ResolvedArtifact{}, false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, path)
	}
	rel, err := filepath.Rel(r.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ResolvedArtifact{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 {
		return ResolvedArtifact{}, false
	}
	feature, stageDir, id, filename := parts[0], parts[1], parts[2], parts[3]
	if feature == "" || !IsValidID(id) {
		return ResolvedArtifact{}, false
	}
	stage, ok := StageFromDirectory(stageDir)
	if !ok {
		return ResolvedArtifact{}, false
	}
	kind, ok := ArtifactKindFromFilename(filename)
	if !ok {
		return ResolvedArtifact{}, false
	}
	return r.Resolve(feature, stage, id, kind), true
}

// SearchPaths lists one candidate path per stage, in lifecycle order, for
// callers that must probe for a work item's current stage.
func (r *Resolver) SearchPaths(feature, id string, kind Kind) []string {
	paths := make([]string, 0, len(stageOrder))
	for _, stage := range stageOrder {
		if p := r.ArtifactPath(feature, stage, id, kind); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Candidates is an ordered pair of paths. Callers read Primary first and only
// fall back when it is absent; contents are never merged.
type Candidates struct {
	Primary  string `json:"primary" yaml:"primary"`
	Fallback string `json:"fallback" yaml:"fallback"`
}

// Paths returns the candidates in probe order.
func (c Candidates) Paths() []string {
	return []string{c.Primary, c.Fallback}
}

// PrimaryAndFallback returns the verification/proof pair for a work item,
// ordered by the PreferVerificationYAML setting.
func (r *Resolver) PrimaryAndFallback(feature string, stage Stage, id string) Candidates {
	verification := r.ArtifactPath(feature, stage, id, KindVerification)
	proof := r.ArtifactPath(feature, stage, id, KindProof)
	if r.preferVerificationYAML {
		return Candidates{Primary: verification, Fallback: proof}
	}
	return Candidates{Primary: proof, Fallback: verification}
}
