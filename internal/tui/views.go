package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mmcdole/mediacovers/internal/cover"
	"github.com/mmcdole/mediacovers/internal/domain"
	"github.com/mmcdole/mediacovers/internal/tui/styles"
)

const (
	glyphWidth = 2
	sizeWidth  = 9
	minName    = 16
)

// View renders the UI
func (m Model) View() string {
	if !m.Ready {
		return ""
	}
	if m.ShowHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderRows())
	b.WriteString(m.renderFilterLine())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.Dir
	if m.Loading {
		title = m.spinner.View() + " " + title
	}
	status := fmt.Sprintf("%d items", len(m.rows))
	if q := m.filterInput.Value(); q != "" {
		status = fmt.Sprintf("%d/%d items", len(m.rows), len(m.Listing.Entries))
	}
	if !m.CoverSvc.Gate().Enabled() {
		status += " · waiting for listing"
	}

	gap := m.Width - lipgloss.Width(title) - lipgloss.Width(status) - 2
	if gap < 1 {
		title = styles.Truncate(title, max(1, m.Width-lipgloss.Width(status)-3))
		gap = 1
	}
	return styles.HeaderStyle.Width(m.Width).Render(title + strings.Repeat(" ", gap) + status)
}

func (m Model) renderRows() string {
	h := m.listHeight()
	var b strings.Builder
	if m.Err != nil {
		b.WriteString(styles.ErrorStyle.Render(styles.Truncate(m.Err.Error(), m.Width)))
		b.WriteString("\n")
		h--
	}

	end := min(m.offset+h, len(m.rows))
	drawn := 0
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderRow(m.rows[i], i == m.cursor))
		b.WriteString("\n")
		drawn++
	}
	for ; drawn < h; drawn++ {
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderRow(r filteredRow, selected bool) string {
	e := r.Entry
	statusWidth := max(0, (m.Width-glyphWidth-sizeWidth)/2)
	nameWidth := max(minName, m.Width-glyphWidth-sizeWidth-statusWidth-2)

	name := styles.Truncate(e.Name, nameWidth)
	if len(r.Matched) > 0 && !selected {
		name = highlight(name, r.Matched)
	}

	size := ""
	if !e.IsDir && e.Size > 0 {
		size = humanize.Bytes(uint64(e.Size))
	}

	line := glyph(e) + " " +
		styles.Pad(name, nameWidth) + " " +
		fmt.Sprintf("%*s", sizeWidth, size) + " " +
		m.renderCoverState(e, statusWidth)

	if selected {
		return styles.SelectedRowStyle.Width(m.Width).Render(line)
	}
	return styles.NormalRowStyle.Render(line)
}

func (m Model) renderCoverState(e domain.Entry, width int) string {
	if !m.CoverSvc.Resolver().Classify(e).HasCover() {
		return ""
	}
	state, url := m.CoverSvc.Status(e)
	switch state {
	case cover.StateResolved:
		return styles.CoverResolvedStyle.Render(styles.Truncate(url, width))
	case cover.StateTrying:
		return styles.CoverTryingStyle.Render(styles.Truncate("trying "+url, width))
	case cover.StateExhausted:
		return styles.CoverNoneStyle.Render("no cover")
	default:
		return styles.CoverPendingStyle.Render(state.String())
	}
}

func glyph(e domain.Entry) string {
	if e.IsDir {
		return styles.AccentStyle.Render(styles.FolderChar)
	}
	switch domain.Classify(e) {
	case domain.ClassAudio:
		return styles.AudioChar
	case domain.ClassVideo:
		return styles.VideoChar
	case domain.ClassNativeImage:
		return styles.ImageChar
	default:
		return styles.DimStyle.Render(styles.FileChar)
	}
}

// highlight renders the matched byte positions of s in the accent style.
func highlight(s string, matched []int) string {
	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}
	var b strings.Builder
	for i, r := range s {
		if hit[i] {
			b.WriteString(styles.MatchHighlightStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (m Model) renderFilterLine() string {
	if m.filtering || m.filterInput.Value() != "" {
		return m.filterInput.View()
	}
	stats := m.CoverSvc.Stats()
	return styles.DimStyle.Render(fmt.Sprintf(
		"covers: %d queued · %d active · %d fetched",
		stats.Queued, stats.Active, stats.Completed,
	))
}

func (m Model) renderFooter() string {
	return styles.FooterStyle.Render(m.help.ShortHelpView(Keys.ShortHelp()))
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Keys"))
	b.WriteString("\n\n")
	b.WriteString(m.help.FullHelpView(Keys.FullHelp()))
	b.WriteString("\n\n")
	b.WriteString(styles.HelpDescStyle.Render("press ? to close"))
	return b.String()
}
