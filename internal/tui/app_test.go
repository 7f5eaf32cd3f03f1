package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/config"
	"github.com/kingrea/storyline/internal/workflow/engine"
	"github.com/kingrea/storyline/internal/workflow/runner"
)

func testItems() []artifact.WorkItem {
	return []artifact.WorkItem{
		{ID: "WISH-1", Feature: "wish", Stage: artifact.StageDraft},
		{ID: "WISH-2", Feature: "wish", Stage: artifact.StageDraft},
		{ID: "KNOW-7", Feature: "know", Stage: artifact.StageUAT},
	}
}

func newTestBoard(t *testing.T, items []artifact.WorkItem, opts ...BoardOption) *Board {
	t.Helper()
	opts = append([]BoardOption{WithRefreshInterval(0)}, opts...)
	board := NewBoard(func() ([]artifact.WorkItem, error) { return items, nil }, opts...)
	board = runCommands(t, board, board.Init())
	model, _ := board.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return model.(*Board)
}

// runCommands resolves cmd synchronously and feeds the resulting message back
// into the board.
func runCommands(t *testing.T, board *Board, cmd tea.Cmd) *Board {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			break
		}
		var model tea.Model
		model, cmd = board.Update(msg)
		board = model.(*Board)
	}
	return board
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestGroupByStage(t *testing.T) {
	groups := GroupByStage(testItems())
	if len(groups[artifact.StageDraft]) != 2 || len(groups[artifact.StageUAT]) != 1 {
		t.Fatalf("unexpected grouping: %+v", groups)
	}
	if groups[artifact.StageDraft][0].ID != "WISH-1" {
		t.Fatalf("grouping must keep order, got %s first", groups[artifact.StageDraft][0].ID)
	}
	if len(groups[artifact.StageDone]) != 0 {
		t.Fatalf("expected no done items")
	}
}

func TestBoardShowsStageCounts(t *testing.T) {
	board := newTestBoard(t, testItems())
	view := board.View()
	for _, want := range []string{"STORYLINE", "Draft (2)", "Backlog (0)", "In Progress (0)", "UAT (1)", "Done (0)", "WISH-1", "WISH-2", "3 work item(s)"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "KNOW-7") {
		t.Fatalf("items of other stages must not be listed:\n%s", view)
	}
}

func TestBoardTabsBetweenStages(t *testing.T) {
	board := newTestBoard(t, testItems())
	for i := 0; i < 3; i++ {
		model, _ := board.Update(key("tab"))
		board = model.(*Board)
	}
	if board.stage() != artifact.StageUAT {
		t.Fatalf("expected uat after three tabs, got %s", board.stage())
	}
	if view := board.View(); !strings.Contains(view, "KNOW-7") || strings.Contains(view, "WISH-1") {
		t.Fatalf("uat view should list only KNOW-7:\n%s", view)
	}
	model, _ := board.Update(key("tab"))
	board = model.(*Board)
	if view := board.View(); !strings.Contains(view, "No work items in Done.") {
		t.Fatalf("expected empty-stage note:\n%s", view)
	}
	model, _ = board.Update(key("tab"))
	board = model.(*Board)
	if board.stage() != artifact.StageDraft {
		t.Fatalf("tab should wrap to draft, got %s", board.stage())
	}
	model, _ = board.Update(key("shift+tab"))
	board = model.(*Board)
	if board.stage() != artifact.StageDone {
		t.Fatalf("shift+tab should wrap to done, got %s", board.stage())
	}
}

func TestBoardShowsLastRun(t *testing.T) {
	loader := func(item artifact.WorkItem) (engine.State, error) {
		if item.ID != "WISH-1" {
			return engine.State{}, engine.ErrNoOutcome
		}
		return engine.State{
			RunID:        "01HZX",
			Item:         item,
			Status:       engine.EngineStatusFailed,
			StatusReason: "lint failed",
			Nodes: []engine.NodeStatus{
				{Name: "lint", State: engine.NodeStateFailed},
				{Name: "test", State: engine.NodeStateSkipped, BlockedBy: []string{"lint"}},
			},
		}, nil
	}
	board := newTestBoard(t, testItems(), WithOutcomeLoader(loader))
	model, cmd := board.Update(key("enter"))
	board = runCommands(t, model.(*Board), cmd)
	view := board.View()
	for _, want := range []string{"run 01HZX", "lint failed", "[skipped]", "blocked by lint"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	model, _ = board.Update(tea.KeyMsg{Type: tea.KeyDown})
	board = model.(*Board)
	model, cmd = board.Update(key("enter"))
	board = runCommands(t, model.(*Board), cmd)
	if view := board.View(); !strings.Contains(view, "WISH-2 has no recorded run.") {
		t.Fatalf("expected missing-run note:\n%s", view)
	}
}

func TestBoardReportsCatalogErrors(t *testing.T) {
	board := NewBoard(func() ([]artifact.WorkItem, error) {
		return nil, errors.New("plans root unreadable")
	}, WithRefreshInterval(0))
	board = runCommands(t, board, board.Init())
	if view := board.View(); !strings.Contains(view, "plans root unreadable") {
		t.Fatalf("expected error in view:\n%s", view)
	}
}

func TestBoardQuits(t *testing.T) {
	board := newTestBoard(t, testItems())
	_, cmd := board.Update(key("q"))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestNewProjectBoardReadsPlansTree(t *testing.T) {
	projectDir := t.TempDir()
	t.Setenv(config.EnvPlansRoot, "")
	if err := config.InitDir(projectDir); err != nil {
		t.Fatalf("init dir: %v", err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	resolver, err := cfg.Resolver()
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	store := artifact.NewFileStore()
	item, _ := artifact.NewWorkItem("WISH-9", artifact.StageInProgress)
	if err := store.WriteArtifact(resolver.ResolveItem(item, artifact.KindStory).AbsolutePath, []byte("title: x")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	eng, err := engine.New(runner.New(), engine.NewRepository(store, resolver))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if _, err := eng.Execute(t.Context(), item, []engine.Node{{Name: "noop", Work: func(ctx context.Context, _ runner.Attempt) (any, error) {
		return nil, nil
	}}}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	board, err := NewProjectBoard(cfg, WithRefreshInterval(0))
	if err != nil {
		t.Fatalf("project board: %v", err)
	}
	board = runCommands(t, board, board.Init())
	model, _ := board.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	board = model.(*Board)
	board.selectStage(2)
	model, cmd := board.Update(key("enter"))
	board = runCommands(t, model.(*Board), cmd)
	view := board.View()
	if !strings.Contains(view, "In Progress (1)") || !strings.Contains(view, "[succeeded]") {
		t.Fatalf("unexpected project board view:\n%s", view)
	}
}
