package tui

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/mediacovers/internal/domain"
	"github.com/mmcdole/mediacovers/internal/listing"
	"github.com/mmcdole/mediacovers/internal/service"
	"github.com/mmcdole/mediacovers/internal/tui/styles"
	"github.com/mmcdole/mediacovers/internal/visibility"
)

const (
	tickInterval = 250 * time.Millisecond

	// header, filter line and footer
	chromeHeight = 3
)

// Model is the main application model
type Model struct {
	// Services
	BrowseSvc   *service.BrowseService
	CoverSvc    *service.CoverService
	PlaybackSvc *service.PlaybackService // nil disables play and view

	// Shared with the visibility gate
	view      *ViewState
	readiness *visibility.Readiness
	ctx       context.Context
	cancel    context.CancelFunc

	// Listing
	Dir     string
	Listing domain.Listing
	rows    []filteredRow
	cursor  int
	offset  int
	Loading bool

	// Filter
	filtering   bool
	filterInput textinput.Model

	// Chrome
	help     help.Model
	spinner  spinner.Model
	ShowHelp bool
	Err      error

	Width  int
	Height int
	Ready  bool
}

// NewModel creates a new application model rooted at dir
func NewModel(
	browseSvc *service.BrowseService,
	coverSvc *service.CoverService,
	playbackSvc *service.PlaybackService,
	readinessCfg visibility.ReadinessConfig,
	view *ViewState,
	dir string,
) Model {
	if view == nil {
		view = NewViewState()
	}

	input := textinput.New()
	input.Prompt = "/"
	input.PromptStyle = styles.FilterPromptStyle
	input.Placeholder = "filter"

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = styles.AccentStyle

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		ctx:         ctx,
		cancel:      cancel,
		BrowseSvc:   browseSvc,
		CoverSvc:    coverSvc,
		PlaybackSvc: playbackSvc,
		view:        view,
		Dir:         listing.CleanDir(dir),
		Loading:     true,
		filterInput: input,
		help:        help.New(),
		spinner:     sp,
	}
	m.readiness = visibility.NewReadiness(readinessCfg, view.count, coverSvc.Gate().Enable)
	return m
}

// Init starts the listing load, the cover event pump and the readiness poll
func (m Model) Init() tea.Cmd {
	m.readiness.Start(m.ctx)

	return tea.Batch(
		LoadListingCmd(m.BrowseSvc, m.Dir, "", false),
		ListenCoversCmd(m.CoverSvc),
		m.spinner.Tick,
		TickCmd(tickInterval),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.help.Width = msg.Width
		m.syncWindow()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		// Cover states are read from the resolver at render time; the tick
		// only forces a redraw.
		return m, TickCmd(tickInterval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ListingLoadedMsg:
		m.Loading = false
		m.Err = nil
		m.Listing = msg.Listing
		m.Dir = msg.Listing.Dir
		m.clearFilter()
		m.applyRows()
		m.cursor = 0
		if msg.Focus != "" {
			m.focus(msg.Focus)
		}
		m.registerCovers()
		m.syncWindow()
		return m, nil

	case CoverEventMsg:
		return m, ListenCoversCmd(m.CoverSvc)

	case ErrMsg:
		m.Loading = false
		m.Err = msg
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		m.shutdown()
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.ShowHelp = !m.ShowHelp
		return m, nil

	case key.Matches(msg, Keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, Keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, Keys.PageUp):
		m.moveCursor(-m.listHeight())
	case key.Matches(msg, Keys.PageDown):
		m.moveCursor(m.listHeight())
	case key.Matches(msg, Keys.Home):
		m.moveCursor(-len(m.rows))
	case key.Matches(msg, Keys.End):
		m.moveCursor(len(m.rows))

	case key.Matches(msg, Keys.Enter):
		return m.handleEnter()

	case key.Matches(msg, Keys.Back):
		return m.handleBack()

	case key.Matches(msg, Keys.OpenCover):
		if e, ok := m.selected(); ok && m.PlaybackSvc != nil {
			return m, ViewCoverCmd(m.PlaybackSvc, e)
		}

	case key.Matches(msg, Keys.Filter):
		m.filtering = true
		return m, m.filterInput.Focus()

	case key.Matches(msg, Keys.Escape):
		if m.filterInput.Value() != "" {
			m.clearFilter()
			m.applyRows()
			m.syncWindow()
		}

	case key.Matches(msg, Keys.Refresh):
		m.Loading = true
		return m, LoadListingCmd(m.BrowseSvc, m.Dir, m.selectedName(), true)
	}
	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filtering = false
		m.clearFilter()
		m.applyRows()
		m.syncWindow()
		return m, nil
	case tea.KeyEnter:
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	}

	before := m.filterInput.Value()
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	if m.filterInput.Value() != before {
		m.applyRows()
		m.cursor = 0
		m.syncWindow()
	}
	return m, cmd
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	e, ok := m.selected()
	if !ok {
		return m, nil
	}
	if !e.IsDir {
		if m.PlaybackSvc == nil {
			return m, nil
		}
		return m, PlayCmd(m.PlaybackSvc, e)
	}
	m.Loading = true
	return m, LoadListingCmd(m.BrowseSvc, m.Dir+e.Name+"/", "", false)
}

func (m Model) handleBack() (tea.Model, tea.Cmd) {
	if m.Dir == "/" {
		return m, nil
	}
	from := path.Base(strings.TrimSuffix(m.Dir, "/"))
	m.Loading = true
	return m, LoadListingCmd(m.BrowseSvc, listing.ParentDir(m.Dir), from, false)
}

// applyRows recomputes the displayed rows and publishes their order.
func (m *Model) applyRows() {
	m.rows = filterEntries(m.Listing.Entries, m.filterInput.Value())
	keys := make([]string, len(m.rows))
	for i, r := range m.rows {
		keys[i] = r.Entry.Key()
	}
	m.view.setRows(keys)
	if m.cursor >= len(m.rows) {
		m.cursor = max(0, len(m.rows)-1)
	}
}

// registerCovers binds every displayed media row to the visibility gate.
func (m *Model) registerCovers() {
	for _, r := range m.rows {
		m.CoverSvc.Register(r.Entry, rowElement{view: m.view, key: r.Entry.Key()})
	}
}

func (m *Model) clearFilter() {
	m.filterInput.SetValue("")
	m.filterInput.Blur()
	m.filtering = false
}

func (m *Model) moveCursor(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.rows)-1)
	m.syncWindow()
}

// syncWindow keeps the cursor on screen and tells the gate about scrolling.
func (m *Model) syncWindow() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if h > 0 && m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	if maxOffset := max(0, len(m.rows)-h); m.offset > maxOffset {
		m.offset = maxOffset
	}
	m.view.setWindow(m.offset, h, m.Width)
	m.CoverSvc.Gate().CheckAll()
}

func (m *Model) focus(name string) {
	for i, r := range m.rows {
		if r.Entry.Name == name {
			m.cursor = i
			return
		}
	}
}

func (m Model) selected() (domain.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return domain.Entry{}, false
	}
	return m.rows[m.cursor].Entry, true
}

func (m Model) selectedName() string {
	if e, ok := m.selected(); ok {
		return e.Name
	}
	return ""
}

func (m Model) listHeight() int {
	return max(0, m.Height-chromeHeight)
}

// shutdown stops readiness polling and tears the cover pipeline down.
func (m *Model) shutdown() {
	m.cancel()
	m.readiness.Stop()
	m.CoverSvc.Close()
}
