package artifact

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestResolver(t *testing.T, opts ...ResolverOption) *Resolver {
	t.Helper()
	r, err := NewResolver(filepath.Join(t.TempDir(), "plans"), opts...)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func TestNewResolverRequiresRoot(t *testing.T) {
	if _, err := NewResolver("  "); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestStageDirectoryRoundTrip(t *testing.T) {
	for _, stage := range Stages() {
		dir := StageDirectory(stage)
		if dir == "" {
			t.Fatalf("stage %s has no directory", stage)
		}
		got, ok := StageFromDirectory(dir)
		if !ok || got != stage {
			t.Fatalf("round trip for %s: got %q ok=%v", stage, got, ok)
		}
	}
}

func TestStageDirectoryAliases(t *testing.T) {
	cases := map[Stage]string{
		StageDraft:      "backlog",
		StageInProgress: "in-progress",
		StageUAT:        "UAT",
		StageDone:       "completed",
	}
	for stage, want := range cases {
		if got := StageDirectory(stage); got != want {
			t.Fatalf("%s: expected %q, got %q", stage, want, got)
		}
	}
	if got, ok := StageFromDirectory("uat"); !ok || got != StageUAT {
		t.Fatalf("directory lookup must ignore case, got %q ok=%v", got, ok)
	}
	if _, ok := StageFromDirectory("archive"); ok {
		t.Fatalf("unknown directory must not resolve")
	}
	if StageDirectory(Stage("nope")) != "" {
		t.Fatalf("unknown stage must map to empty directory")
	}
}

func TestParseStageAndNext(t *testing.T) {
	stage, err := ParseStage("In-Progress")
	if err != nil || stage != StageInProgress {
		t.Fatalf("parse stage: %q %v", stage, err)
	}
	if _, err := ParseStage("completed"); err == nil {
		t.Fatalf("directory names are not stage keys")
	}
	next, ok := StageInProgress.Next()
	if !ok || next != StageUAT {
		t.Fatalf("expected uat after in-progress, got %q", next)
	}
	if _, ok := StageDone.Next(); ok {
		t.Fatalf("done has no successor")
	}
}

func TestArtifactFilenameRoundTrip(t *testing.T) {
	seen := map[string]Kind{}
	for _, kind := range Kinds() {
		name := ArtifactFilename(kind)
		if other, dup := seen[name]; dup {
			t.Fatalf("filename %s shared by %s and %s", name, kind, other)
		}
		seen[name] = kind
		got, ok := ArtifactKindFromFilename(name)
		if !ok || got != kind {
			t.Fatalf("round trip for %s: got %q", kind, got)
		}
	}
	if _, ok := ArtifactKindFromFilename("notes.txt"); ok {
		t.Fatalf("unknown filename must not resolve")
	}
}

func TestIDValidation(t *testing.T) {
	valid := []string{"WISH-2001", "wish-1", "Ab-0099"}
	for _, id := range valid {
		if !IsValidID(id) {
			t.Fatalf("expected %q valid", id)
		}
	}
	invalid := []string{"WISH-", "2001", "", "-2001", "WISH2001", "WISH-20a1", "WI SH-1", "WISH-1/..", "WI_SH-1"}
	for _, id := range invalid {
		if IsValidID(id) {
			t.Fatalf("expected %q invalid", id)
		}
	}
	if feature, ok := ExtractFeature("WISH-2001"); !ok || feature != "wish" {
		t.Fatalf("extract feature: %q %v", feature, ok)
	}
	if _, ok := ExtractFeature("2001"); ok {
		t.Fatalf("expected no feature for invalid id")
	}
}

func TestNewWorkItem(t *testing.T) {
	item, err := NewWorkItem("KNOW-12", StageBacklog)
	if err != nil {
		t.Fatalf("new work item: %v", err)
	}
	if item.Feature != "know" {
		t.Fatalf("expected feature know, got %q", item.Feature)
	}
	if _, err := NewWorkItem("KNOW-", StageBacklog); err == nil || !strings.Contains(err.Error(), `"id"`) {
		t.Fatalf("expected id validation error, got %v", err)
	}
	if _, err := NewWorkItem("KNOW-1", Stage("shipped")); err == nil || !strings.Contains(err.Error(), `"stage"`) {
		t.Fatalf("expected stage validation error, got %v", err)
	}
}

func TestResolveLayout(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve("wish", StageUAT, "WISH-2001", KindPlan)
	want := ResolvedArtifact{
		AbsolutePath:   filepath.Join(r.Root(), "wish", "UAT", "WISH-2001", "plan.yaml"),
		RelativePath:   filepath.Join("wish", "UAT", "WISH-2001", "plan.yaml"),
		Feature:        "wish",
		Stage:          StageUAT,
		StageDirectory: "UAT",
		StoryID:        "WISH-2001",
		ArtifactKind:   KindPlan,
		Filename:       "plan.yaml",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
	if r.ArtifactPath("wish", Stage("bogus"), "WISH-1", KindPlan) != "" {
		t.Fatalf("unknown stage must yield empty path")
	}
}

func TestResolveParseRoundTrip(t *testing.T) {
	r := newTestResolver(t)
	for _, stage := range Stages() {
		for _, kind := range Kinds() {
			resolved := r.Resolve("wish", stage, "WISH-2001", kind)
			parsed, ok := r.ParsePath(resolved.AbsolutePath)
			if !ok {
				t.Fatalf("parse %s failed", resolved.AbsolutePath)
			}
			if diff := cmp.Diff(resolved, parsed); diff != "" {
				t.Fatalf("round trip %s/%s (-want +got):\n%s", stage, kind, diff)
			}
			relParsed, ok := r.ParsePath(resolved.RelativePath)
			if !ok || relParsed.AbsolutePath != resolved.AbsolutePath {
				t.Fatalf("relative parse %s failed: %+v", resolved.RelativePath, relParsed)
			}
		}
	}
}

func TestParsePathRejects(t *testing.T) {
	r := newTestResolver(t)
	root := r.Root()
	cases := []string{
		"",
		root,
		filepath.Join(root, "wish", "UAT", "WISH-1"),
		filepath.Join(root, "wish", "archive", "WISH-1", "plan.yaml"),
		filepath.Join(root, "wish", "UAT", "WISH-1", "notes.txt"),
		filepath.Join(root, "wish", "UAT", "not-an-id", "plan.yaml"),
		filepath.Join(root, "wish", "UAT", "WISH-1", "extra", "plan.yaml"),
		filepath.Join(filepath.Dir(root), "elsewhere", "UAT", "WISH-1", "plan.yaml"),
	}
	for _, path := range cases {
		if got, ok := r.ParsePath(path); ok {
			t.Fatalf("expected %q to be rejected, got %+v", path, got)
		}
	}
}

func TestParsePathIgnoresStageDirectoryCase(t *testing.T) {
	r := newTestResolver(t)
	got, ok := r.ParsePath(filepath.Join(r.Root(), "wish", "Completed", "WISH-7", "SCOPE.yaml"))
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if got.Stage != StageDone || got.StageDirectory != "completed" || got.ArtifactKind != KindScope {
		t.Fatalf("unexpected parse result: %+v", got)
	}
}

func TestSearchPathsFollowStageOrder(t *testing.T) {
	r := newTestResolver(t)
	paths := r.SearchPaths("wish", "WISH-3", KindStory)
	if len(paths) != len(Stages()) {
		t.Fatalf("expected one path per stage, got %d", len(paths))
	}
	for i, stage := range Stages() {
		want := r.ArtifactPath("wish", stage, "WISH-3", KindStory)
		if paths[i] != want {
			t.Fatalf("path %d: expected %s, got %s", i, want, paths[i])
		}
	}
}

func TestPrimaryAndFallback(t *testing.T) {
	preferred := newTestResolver(t, PreferVerificationYAML(true))
	c := preferred.PrimaryAndFallback("wish", StageUAT, "WISH-1")
	if !strings.HasSuffix(c.Primary, "verification.yaml") || !strings.HasSuffix(c.Fallback, "proof.md") {
		t.Fatalf("unexpected preferred order: %+v", c)
	}
	legacy := newTestResolver(t, PreferVerificationYAML(false))
	c = legacy.PrimaryAndFallback("wish", StageUAT, "WISH-1")
	if !strings.HasSuffix(c.Primary, "proof.md") || !strings.HasSuffix(c.Fallback, "verification.yaml") {
		t.Fatalf("unexpected legacy order: %+v", c)
	}
}
