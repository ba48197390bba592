package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/desertthunder/genrefy/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ScanView ViewState = iota
	GenreListView
	ConfirmView
	DoneView
)

// ScanFunc produces the grouped library, reporting progress on the given channel.
type ScanFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.ScanResult, error)

// Selection is what the operator picked.
type Selection struct {
	Genre  string
	Tracks int
	Scan   *tasks.ScanResult
}

// Model is the genre picker: it runs a scan, lists the genres and confirms one.
type Model struct {
	ctx          context.Context
	view         ViewState
	scan         ScanFunc
	batchSize    int
	width        int
	height       int
	genreList    list.Model
	progressChan chan tasks.ProgressUpdate
	outcome      chan scanOutcome
	progress     tasks.ProgressUpdate
	result       *tasks.ScanResult
	selected     *models.GenreCount
	cancelled    bool
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a picker that runs scan on start.
func NewModel(ctx context.Context, scan ScanFunc, batchSize int) *Model {
	return &Model{
		ctx:       ctx,
		view:      ScanView,
		scan:      scan,
		batchSize: batchSize,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Pick runs the picker on the terminal and returns the confirmed genre.
//
// Quitting before confirming returns [shared.ErrCancelled].
func Pick(ctx context.Context, scan ScanFunc, batchSize int, opts ...tea.ProgramOption) (*Selection, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(ctx, scan, batchSize)
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)

	if _, err := tea.NewProgram(m, opts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("genre picker failed: %w", err)
	}
	return m.Selection()
}

// Selection returns the confirmed genre, the scan error, or [shared.ErrCancelled].
func (m *Model) Selection() (*Selection, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.cancelled || m.selected == nil || m.view != DoneView {
		return nil, shared.ErrCancelled
	}
	return &Selection{Genre: m.selected.Genre, Tracks: m.selected.Tracks, Scan: m.result}, nil
}

// Init starts the scan.
func (m *Model) Init() tea.Cmd {
	return m.startScan()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view != ScanView && msg.Width > 4 && msg.Height > 8 {
			m.genreList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ScanView:
			return m.handleScanKeys(msg)
		case GenreListView:
			return m.handleGenreListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}
		return m, nil

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.progress = msg.data.(tasks.ProgressUpdate)
			return m, m.waitForProgress()
		case MsgScanComplete:
			return m.handleScanComplete(msg.data.(scanOutcome))
		}
	}

	if m.view == GenreListView {
		var cmd tea.Cmd
		m.genreList, cmd = m.genreList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleScanComplete(o scanOutcome) (tea.Model, tea.Cmd) {
	if o.err != nil {
		m.err = o.err
		return m, tea.Quit
	}

	counts := o.result.Index.Counts()
	if len(counts) == 0 {
		m.err = fmt.Errorf("%w: no saved tracks to group", shared.ErrNotFound)
		return m, tea.Quit
	}

	m.result = o.result
	m.genreList = list.New(genreItems(counts, m.batchSize), genreDelegate(), 0, 0)
	m.genreList.Title = "Liked songs by genre"
	m.genreList.Styles.Title = m.genreList.Styles.Title.Background(accent)
	if m.width > 0 && m.height > 0 {
		m.genreList.SetSize(m.width-4, m.height-8)
	}
	m.view = GenreListView
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}

	switch m.view {
	case ScanView:
		return m.renderScan()
	case GenreListView:
		return m.renderGenreList()
	case ConfirmView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) handleScanKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleGenreListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	filtering := m.genreList.FilterState() == list.Filtering

	switch {
	case msg.String() == "ctrl+c", key.Matches(msg, m.keys.quit) && !filtering:
		m.cancelled = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter) && !filtering:
		if item, ok := m.genreList.SelectedItem().(genreItem); ok {
			selected := item.count
			m.selected = &selected
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.genreList, cmd = m.genreList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = DoneView
		return m, tea.Quit
	case key.Matches(msg, m.keys.no):
		m.selected = nil
		m.view = GenreListView
		return m, nil
	case key.Matches(msg, m.keys.quit):
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) startScan() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.outcome = make(chan scanOutcome, 1)

	go func() {
		result, err := m.scan(m.ctx, m.progressChan)
		m.outcome <- scanOutcome{result: result, err: err}
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, outcome := m.progressChan, m.outcome
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			o := <-outcome
			return scanCompleteMsg(o.result, o.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderScan() string {
	title := styles.title.Render("Scanning liked songs")

	var phase string
	switch m.progress.Phase {
	case tasks.LoadSnapshot:
		phase = "Reading snapshot..."
	case tasks.FetchTracks:
		phase = fmt.Sprintf("Fetching saved tracks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.ResolveArtists:
		phase = fmt.Sprintf("Resolving artist genres (%d)", m.progress.Step)
	case tasks.SaveSnapshot, tasks.GroupGenres:
		phase = "Grouping by genre..."
	default:
		phase = "Starting..."
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s", title, phase, styles.help.Render(m.progress.Message), helpView)
}

func (m *Model) renderGenreList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.filter, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.genreList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Create a playlist for '%s'?", m.selected.Genre))
	info := fmt.Sprintf("\nPlaylist: %s\nTracks: %s\nBatches: %s\n",
		styles.value.Render(tasks.PlaylistName(m.selected.Genre)),
		styles.value.Render(fmt.Sprint(m.selected.Tracks)),
		styles.value.Render(fmt.Sprint(batchCount(m.selected.Tracks, m.batchSize))),
	)
	if m.result != nil && len(m.result.Missing) > 0 {
		info += styles.warn.Render(fmt.Sprintf("%d artists were not found upstream and are filed under %q.", len(m.result.Missing), models.UnknownGenre)) + "\n"
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}
