// internal/tui/app.go
//
// The board is a read-only terminal view over the plans tree. It uses
// bubbletea, which follows The Elm Architecture:
//
// 1. Model: the catalog of work items plus the selected stage
// 2. Update: key presses and catalog refreshes produce a new model
// 3. View: renders the stage tabs, the item list and the selected outcome
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/config"
	"github.com/kingrea/storyline/internal/workflow/engine"
)

const boardRefreshInterval = 3 * time.Second

// CatalogFunc lists the work items the board displays.
type CatalogFunc func() ([]artifact.WorkItem, error)

// OutcomeFunc loads the last recorded run of a work item.
type OutcomeFunc func(artifact.WorkItem) (engine.State, error)

// BoardOption customizes Board construction for tests and alternate runtimes.
type BoardOption func(*Board)

// WithOutcomeLoader lets the board show the last run of the selected item.
func WithOutcomeLoader(loader OutcomeFunc) BoardOption {
	return func(b *Board) {
		if loader != nil {
			b.outcome = loader
		}
	}
}

// WithRefreshInterval overrides how often the catalog is rescanned. Zero
// disables periodic refresh.
func WithRefreshInterval(d time.Duration) BoardOption {
	return func(b *Board) {
		b.refresh = d
	}
}

type catalogLoadedMsg struct {
	items []artifact.WorkItem
	err   error
}

type outcomeLoadedMsg struct {
	item  artifact.WorkItem
	state engine.State
	err   error
}

// workItem implements list.Item for a catalog entry.
type workItem struct {
	item artifact.WorkItem
}

func (i workItem) Title() string { return i.item.ID }
func (i workItem) Description() string {
	return fmt.Sprintf("%s · %s", i.item.Feature, stageLabel(i.item.Stage))
}
func (i workItem) FilterValue() string { return i.item.ID }

// Board is the main application model. In bubbletea, this holds ALL your state.
type Board struct {
	catalog CatalogFunc
	outcome OutcomeFunc
	refresh time.Duration

	items   []artifact.WorkItem
	groups  map[artifact.Stage][]artifact.WorkItem
	stages  []artifact.Stage
	current int

	list      list.Model
	detail    string
	statusMsg string
	err       error

	width  int
	height int
}

// NewBoard builds a board over catalog.
func NewBoard(catalog CatalogFunc, opts ...BoardOption) *Board {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	b := &Board{
		catalog: catalog,
		refresh: boardRefreshInterval,
		stages:  artifact.Stages(),
		groups:  map[artifact.Stage][]artifact.WorkItem{},
		list:    l,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// NewProjectBoard wires a board to the plans tree and outcome artifacts of a
// loaded project config.
func NewProjectBoard(cfg *config.Config, opts ...BoardOption) (*Board, error) {
	resolver, err := cfg.Resolver()
	if err != nil {
		return nil, err
	}
	store := artifact.NewFileStore()
	repo := engine.NewRepository(store, resolver)
	catalog := func() ([]artifact.WorkItem, error) {
		return store.Catalog(resolver)
	}
	opts = append([]BoardOption{WithOutcomeLoader(repo.Load)}, opts...)
	return NewBoard(catalog, opts...), nil
}

// GroupByStage buckets items by stage, keeping their relative order.
func GroupByStage(items []artifact.WorkItem) map[artifact.Stage][]artifact.WorkItem {
	groups := make(map[artifact.Stage][]artifact.WorkItem, len(artifact.Stages()))
	for _, item := range items {
		groups[item.Stage] = append(groups[item.Stage], item)
	}
	return groups
}

// Init loads the catalog.
func (b *Board) Init() tea.Cmd {
	return b.loadCatalog()
}

// Update handles key presses, window resizes and async loads.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
		b.list.SetSize(max(20, msg.Width-4), max(5, msg.Height-10))
		return b, nil
	case catalogLoadedMsg:
		return b, b.applyCatalog(msg)
	case outcomeLoadedMsg:
		b.detail = renderOutcome(msg)
		return b, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return b, tea.Quit
		case "tab", "right", "l":
			b.selectStage(b.current + 1)
			return b, nil
		case "shift+tab", "left", "h":
			b.selectStage(b.current - 1)
			return b, nil
		case "r":
			b.statusMsg = "Refreshing…"
			return b, b.loadCatalog()
		case "enter":
			return b, b.loadOutcome()
		}
	}
	var cmd tea.Cmd
	b.list, cmd = b.list.Update(msg)
	return b, cmd
}

// View renders the board.
func (b *Board) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ STORYLINE")
	tabs := b.renderTabs()
	var body string
	if len(b.groups[b.stage()]) == 0 {
		body = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Render(fmt.Sprintf("No work items in %s.", stageLabel(b.stage())))
	} else {
		body = b.list.View()
	}
	width := max(40, b.width-2)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, tabs, "", body))
	sections := []string{header, box}
	if b.detail != "" {
		sections = append(sections, lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1).
			Width(width).
			Render(b.detail))
	}
	footerText := b.statusMsg
	if b.err != nil {
		footerText = fmt.Sprintf("⚠ %v", b.err)
	}
	hint := "Tab/Shift+Tab → stage    Enter → last run    r → refresh    q → quit"
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(strings.TrimSpace(footerText + "\n" + hint))
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (b *Board) stage() artifact.Stage {
	return b.stages[b.current]
}

func (b *Board) selectStage(idx int) {
	n := len(b.stages)
	b.current = ((idx % n) + n) % n
	b.detail = ""
	b.syncList()
}

func (b *Board) syncList() {
	group := b.groups[b.stage()]
	entries := make([]list.Item, len(group))
	for i, item := range group {
		entries[i] = workItem{item: item}
	}
	b.list.SetItems(entries)
	b.list.Select(0)
}

func (b *Board) applyCatalog(msg catalogLoadedMsg) tea.Cmd {
	if msg.err != nil {
		b.err = msg.err
		b.statusMsg = ""
	} else {
		b.err = nil
		b.items = msg.items
		b.groups = GroupByStage(msg.items)
		b.statusMsg = fmt.Sprintf("%d work item(s)", len(msg.items))
		selected := b.list.Index()
		b.syncList()
		if selected < len(b.groups[b.stage()]) {
			b.list.Select(selected)
		}
	}
	if b.refresh <= 0 {
		return nil
	}
	return tea.Tick(b.refresh, func(time.Time) tea.Msg {
		return b.fetchCatalog()
	})
}

func (b *Board) loadCatalog() tea.Cmd {
	return func() tea.Msg {
		return b.fetchCatalog()
	}
}

func (b *Board) fetchCatalog() catalogLoadedMsg {
	if b.catalog == nil {
		return catalogLoadedMsg{err: errors.New("tui: no catalog configured")}
	}
	items, err := b.catalog()
	return catalogLoadedMsg{items: items, err: err}
}

func (b *Board) loadOutcome() tea.Cmd {
	selected, ok := b.list.SelectedItem().(workItem)
	if !ok || b.outcome == nil {
		return nil
	}
	loader := b.outcome
	return func() tea.Msg {
		state, err := loader(selected.item)
		return outcomeLoadedMsg{item: selected.item, state: state, err: err}
	}
}

func (b *Board) renderTabs() string {
	active := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Underline(true)
	inactive := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	tabs := make([]string, len(b.stages))
	for i, stage := range b.stages {
		label := fmt.Sprintf("%s (%d)", stageLabel(stage), len(b.groups[stage]))
		if i == b.current {
			tabs[i] = active.Render(label)
		} else {
			tabs[i] = inactive.Render(label)
		}
	}
	return strings.Join(tabs, "  ")
}

var (
	labelStyleSucceeded = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleSkipped   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleDefault   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
)

func renderOutcome(msg outcomeLoadedMsg) string {
	if errors.Is(msg.err, engine.ErrNoOutcome) {
		return fmt.Sprintf("%s has no recorded run.", msg.item.ID)
	}
	if msg.err != nil {
		return fmt.Sprintf("%s: %v", msg.item.ID, msg.err)
	}
	state := msg.state
	lines := []string{fmt.Sprintf("%s · run %s · %s", msg.item.ID, state.RunID, state.Status)}
	if state.StatusReason != "" {
		lines = append(lines, state.StatusReason)
	}
	for _, node := range state.Nodes {
		line := fmt.Sprintf("  %s %s", nodeLabel(node.State), node.Name)
		if node.Outcome != nil && node.Outcome.Error != nil {
			line += fmt.Sprintf(" · %s", node.Outcome.Error.Message)
		}
		if len(node.BlockedBy) > 0 {
			line += fmt.Sprintf(" · blocked by %s", strings.Join(node.BlockedBy, ", "))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func nodeLabel(state engine.NodeState) string {
	label := fmt.Sprintf("[%s]", state)
	switch state {
	case engine.NodeStateSucceeded:
		return labelStyleSucceeded.Render(label)
	case engine.NodeStateFailed, engine.NodeStateRejected, engine.NodeStateCancelled:
		return labelStyleFailed.Render(label)
	case engine.NodeStateSkipped:
		return labelStyleSkipped.Render(label)
	default:
		return labelStyleDefault.Render(label)
	}
}

func stageLabel(stage artifact.Stage) string {
	parts := strings.Split(string(stage), "-")
	for i, part := range parts {
		parts[i] = titleCase(part)
	}
	if stage == artifact.StageUAT {
		return "UAT"
	}
	return strings.Join(parts, " ")
}

func titleCase(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
