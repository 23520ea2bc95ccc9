package tui

import (
	"fmt"
	"slices"
	"strings"

	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/platform/phone"

	"github.com/charmbracelet/lipgloss"
)

const helpLine = "←/→ column • ↑/↓ lead • </> move lead • m more • / search • v view • t layout • r refresh • x dismiss • q quit"

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.searching {
		b.WriteString("Search: " + m.searchInput.View() + "\n")
	}

	if m.snap.Conflict != nil {
		b.WriteString(m.renderConflict())
		b.WriteString("\n")
	}

	b.WriteString(m.renderColumns())
	b.WriteString("\n")
	if detail := m.renderDetail(); detail != "" {
		b.WriteString(detail + "\n")
	}

	for _, a := range m.snap.Alerts {
		b.WriteString(m.styles.alert.Render("! "+a.Message) + "\n")
	}
	if m.err != nil {
		b.WriteString(m.styles.error.Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString(m.styles.help.Render(helpLine))
	return b.String()
}

func (m Model) renderHeader() string {
	f := m.snap.Filter
	parts := []string{
		m.styles.header.Render("Pipeline"),
		"view: " + string(f.ViewMode),
		"layout: " + string(f.Layout),
	}
	if f.Search != "" {
		parts = append(parts, fmt.Sprintf("search: %q", f.Search))
	}
	if m.snap.Fetching {
		parts = append(parts, m.styles.muted.Render("refreshing…"))
	}
	if n := len(m.snap.Pending); n > 0 {
		parts = append(parts, m.styles.pending.Render(fmt.Sprintf("%d pending", n)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderConflict() string {
	t := m.snap.Conflict
	w := t.Warning
	lines := []string{
		m.styles.header.Render("Lead is being worked by " + w.AssignedToName),
	}
	if w.Message != "" {
		lines = append(lines, w.Message)
	}
	lines = append(lines, fmt.Sprintf("Move %s to %s anyway? [y/n]", w.LeadName, m.stageLabel(t.Move.TargetStageID)))
	if m.snap.Queued > 0 {
		lines = append(lines, m.styles.muted.Render(fmt.Sprintf("%d more waiting", m.snap.Queued)))
	}
	return m.styles.prompt.Render(strings.Join(lines, "\n"))
}

func (m Model) renderColumns() string {
	if len(m.snap.Buckets) == 0 {
		if m.snap.Fetching {
			return m.styles.muted.Render("(loading…)")
		}
		return m.styles.muted.Render("(no stages)")
	}

	colWidth := 28
	if m.width > 0 {
		colWidth = max(m.width/len(m.snap.Buckets)-4, 14)
	}

	pending := make(map[string]bool, len(m.snap.Pending))
	for _, p := range m.snap.Pending {
		pending[p.LeadID] = true
	}

	cols := make([]string, 0, len(m.snap.Buckets))
	for i, bucket := range m.snap.Buckets {
		cols = append(cols, m.renderColumn(i, bucket, colWidth, pending))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m Model) renderColumn(idx int, bucket domain.Bucket, width int, pending map[string]bool) string {
	active := idx == m.selectedCol
	color := ""
	if s, ok := m.stage(bucket.StageID); ok {
		color = s.Color
	}

	title := fmt.Sprintf("%s (%d)", m.stageLabel(bucket.StageID), bucket.Pagination.Total)
	lines := []string{m.styles.columnTitle(color).Render(clip(title, width))}

	if msg, ok := m.snap.StageErrors[bucket.StageID]; ok {
		lines = append(lines, m.styles.error.Render(clip("failed: "+msg, width)))
	}

	window := m.itemsWindow()
	offset := m.offsets[bucket.StageID]
	cursor := m.cursors[bucket.StageID]

	switch {
	case len(bucket.Leads) == 0 && m.snap.Fetching:
		lines = append(lines, m.styles.muted.Render("(loading…)"))
	case len(bucket.Leads) == 0:
		lines = append(lines, m.styles.muted.Render("(empty)"))
	default:
		if offset > 0 {
			lines = append(lines, m.styles.muted.Render(fmt.Sprintf("… %d above", offset)))
		}
		end := min(offset+window, len(bucket.Leads))
		for i := offset; i < end; i++ {
			lead := bucket.Leads[i]
			text := clip(leadLine(lead), width)
			switch {
			case active && i == cursor:
				text = m.styles.selected.Render(text)
			case pending[lead.ID]:
				text = m.styles.pending.Render(text)
			}
			lines = append(lines, text)
		}
		if rest := len(bucket.Leads) - end; rest > 0 {
			lines = append(lines, m.styles.muted.Render(fmt.Sprintf("… %d below", rest)))
		}
	}

	switch {
	case m.snap.LoadingMore == bucket.StageID:
		lines = append(lines, m.styles.muted.Render("loading more…"))
	case bucket.Pagination.HasMore:
		lines = append(lines, m.styles.muted.Render("[m] load more"))
	}

	box := m.styles.box
	if active {
		box = m.styles.boxActive
	}
	return box.Width(width).Render(strings.Join(lines, "\n"))
}

// renderDetail describes the lead under the cursor.
func (m Model) renderDetail() string {
	l, ok := m.currentLead()
	if !ok {
		return ""
	}
	parts := []string{leadLine(l)}
	if l.Phone != "" {
		parts = append(parts, phone.Display(l.Phone))
	}
	if l.Email != "" {
		parts = append(parts, l.Email)
	}
	if l.AssignedToName != "" {
		parts = append(parts, "assigned to "+l.AssignedToName)
	}
	if l.Source != "" {
		parts = append(parts, "via "+l.Source)
	}
	return m.styles.muted.Render(strings.Join(parts, " · "))
}

func leadLine(l domain.Lead) string {
	name := l.Name
	if name == "" {
		name = l.ID
	}
	if l.Vehicle != "" {
		return name + " · " + l.Vehicle
	}
	return name
}

func (m Model) stage(id string) (domain.Stage, bool) {
	idx := slices.IndexFunc(m.snap.Stages, func(s domain.Stage) bool { return s.ID == id })
	if idx < 0 {
		return domain.Stage{}, false
	}
	return m.snap.Stages[idx], true
}

func (m Model) stageLabel(id string) string {
	if id == domain.ListBucketID {
		return "All leads"
	}
	if s, ok := m.stage(id); ok {
		return s.Label()
	}
	return id
}

func clip(s string, w int) string {
	if w <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w == 1 {
		return "…"
	}
	return string(r[:w-1]) + "…"
}
