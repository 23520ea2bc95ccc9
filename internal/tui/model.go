// Package tui renders a pipeline view as a terminal kanban board.
package tui

import (
	"context"
	"errors"

	"dealership_portal/internal/pipeline"
	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/reconciler"

	textinput "github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Board is the part of a pipeline view the TUI drives.
type Board interface {
	Snapshot() pipeline.Snapshot
	Watch() (<-chan struct{}, func())
	Drop(ctx context.Context, drop domain.DropEvent) error
	SetFilter(ctx context.Context, filter domain.FilterContext) error
	Refresh(ctx context.Context) error
	LoadMore(ctx context.Context, stageID string) error
	ResolveConflict(ctx context.Context, ticketID string, confirm bool) error
	DismissAlert(ctx context.Context, alertID string) error
}

var _ Board = (*pipeline.View)(nil)

type changedMsg struct{}

type closedMsg struct{}

type errMsg struct{ err error }

// Model is the bubbletea model of the board.
type Model struct {
	ctx     context.Context
	board   Board
	changes <-chan struct{}

	snap        pipeline.Snapshot
	selectedCol int
	cursors     map[string]int
	offsets     map[string]int
	width       int
	height      int

	searching   bool
	searchInput textinput.Model
	lastSearch  string

	err    error
	styles styles
}

// New creates the model. changes is the board's Watch channel.
func New(ctx context.Context, board Board, changes <-chan struct{}) Model {
	ti := textinput.New()
	ti.Placeholder = "search leads..."
	ti.CharLimit = 200

	snap := board.Snapshot()
	return Model{
		ctx:         ctx,
		board:       board,
		changes:     changes,
		snap:        snap,
		cursors:     make(map[string]int),
		offsets:     make(map[string]int),
		searchInput: ti,
		lastSearch:  snap.Filter.Search,
		styles:      newStyles(),
	}
}

func (m Model) Init() tea.Cmd { return waitForChange(m.changes) }

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return closedMsg{}
		}
		return changedMsg{}
	}
}

// call runs a board command off the UI goroutine.
func (m Model) call(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampCursors()
		return m, nil

	case changedMsg:
		m.snap = m.board.Snapshot()
		m.clampCursors()
		return m, waitForChange(m.changes)

	case closedMsg:
		return m, tea.Quit

	case errMsg:
		if !errors.Is(msg.err, reconciler.ErrNoTransition) {
			m.err = msg.err
		}
		return m, nil

	case tea.KeyMsg:
		if m.snap.Conflict != nil {
			return m.updateConflict(msg)
		}
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateBoard(msg)
	}
	return m, nil
}

func (m Model) updateConflict(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ticketID := m.snap.Conflict.ID
	switch msg.String() {
	case "y", "Y", "enter":
		return m, m.call(func(ctx context.Context) error { return m.board.ResolveConflict(ctx, ticketID, true) })
	case "n", "N", "esc":
		return m, m.call(func(ctx context.Context) error { return m.board.ResolveConflict(ctx, ticketID, false) })
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.searching = false
		m.searchInput.Blur()
		m.searchInput.SetValue(m.lastSearch)
		return m, m.applySearch(m.lastSearch)
	case tea.KeyEnter:
		m.searching = false
		m.searchInput.Blur()
		m.lastSearch = m.searchInput.Value()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, tea.Batch(cmd, m.applySearch(m.searchInput.Value()))
}

// The view debounces filter changes, so every keystroke can be sent.
func (m Model) applySearch(text string) tea.Cmd {
	filter := m.snap.Filter
	if filter.Search == text {
		return nil
	}
	filter.Search = text
	return m.call(func(ctx context.Context) error { return m.board.SetFilter(ctx, filter) })
}

func (m Model) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "left", "h":
		if m.selectedCol > 0 {
			m.selectedCol--
		}
	case "right", "l":
		if m.selectedCol < len(m.snap.Buckets)-1 {
			m.selectedCol++
		}
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "<", "H", "shift+left":
		return m, m.shiftLead(-1)
	case ">", "L", "shift+right":
		return m, m.shiftLead(1)
	case "m":
		if b, ok := m.currentBucket(); ok {
			stageID := b.StageID
			return m, m.call(func(ctx context.Context) error { return m.board.LoadMore(ctx, stageID) })
		}
	case "/":
		m.searching = true
		m.searchInput.SetValue(m.snap.Filter.Search)
		m.searchInput.CursorEnd()
		return m, m.searchInput.Focus()
	case "v":
		filter := m.snap.Filter
		filter.ViewMode = filter.ViewMode.Next()
		return m, m.call(func(ctx context.Context) error { return m.board.SetFilter(ctx, filter) })
	case "t":
		filter := m.snap.Filter
		if filter.Layout == domain.LayoutList {
			filter.Layout = domain.LayoutPipeline
		} else {
			filter.Layout = domain.LayoutList
		}
		m.selectedCol = 0
		return m, m.call(func(ctx context.Context) error { return m.board.SetFilter(ctx, filter) })
	case "r":
		m.err = nil
		return m, m.call(m.board.Refresh)
	case "x":
		m.err = nil
		if len(m.snap.Alerts) > 0 {
			alertID := m.snap.Alerts[0].ID
			return m, m.call(func(ctx context.Context) error { return m.board.DismissAlert(ctx, alertID) })
		}
	}
	return m, nil
}

// shiftLead drops the selected lead on the neighbouring stage column.
func (m Model) shiftLead(dir int) tea.Cmd {
	lead, ok := m.currentLead()
	if !ok {
		return nil
	}
	target := m.selectedCol + dir
	if target < 0 || target >= len(m.snap.Buckets) {
		return nil
	}
	drop := domain.DropEvent{LeadID: lead.ID, TargetID: m.snap.Buckets[target].StageID}
	return m.call(func(ctx context.Context) error { return m.board.Drop(ctx, drop) })
}

func (m Model) currentBucket() (domain.Bucket, bool) {
	if m.selectedCol < 0 || m.selectedCol >= len(m.snap.Buckets) {
		return domain.Bucket{}, false
	}
	return m.snap.Buckets[m.selectedCol], true
}

func (m Model) currentLead() (domain.Lead, bool) {
	b, ok := m.currentBucket()
	if !ok || len(b.Leads) == 0 {
		return domain.Lead{}, false
	}
	idx := m.cursors[b.StageID]
	if idx < 0 || idx >= len(b.Leads) {
		return domain.Lead{}, false
	}
	return b.Leads[idx], true
}

func (m *Model) moveCursor(delta int) {
	b, ok := m.currentBucket()
	if !ok || len(b.Leads) == 0 {
		return
	}
	idx := min(max(m.cursors[b.StageID]+delta, 0), len(b.Leads)-1)
	m.cursors[b.StageID] = idx
	m.ensureVisible(b.StageID, idx)
}

func (m *Model) clampCursors() {
	if m.selectedCol >= len(m.snap.Buckets) {
		m.selectedCol = max(len(m.snap.Buckets)-1, 0)
	}
	for _, b := range m.snap.Buckets {
		idx := m.cursors[b.StageID]
		if idx >= len(b.Leads) {
			idx = max(len(b.Leads)-1, 0)
		}
		m.cursors[b.StageID] = idx
		m.ensureVisible(b.StageID, idx)
	}
}

func (m *Model) ensureVisible(stageID string, idx int) {
	window := m.itemsWindow()
	off := m.offsets[stageID]
	if idx < off {
		off = idx
	}
	if idx >= off+window {
		off = idx - window + 1
	}
	m.offsets[stageID] = max(off, 0)
}

func (m Model) itemsWindow() int {
	if m.height <= 0 {
		return 10
	}
	return max(m.height-12, 3)
}

// Start runs the TUI until the user quits or the board is disposed.
func Start(ctx context.Context, board Board) error {
	changes, stop := board.Watch()
	defer stop()

	p := tea.NewProgram(New(ctx, board, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
