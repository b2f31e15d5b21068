package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/player"
	"github.com/desertthunder/offbeat/internal/tasks"
)

const volumeStep = 0.05

// ViewState represents the current view in the TUI.
type ViewState int

const (
	QueueView ViewState = iota
	PendingView
)

// Player is the part of the playback engine the TUI drives.
type Player interface {
	Subscribe() *player.Subscription
	PlayIndex(ctx context.Context, i int) (player.State, error)
	Toggle(ctx context.Context) player.State
	Next(ctx context.Context) player.State
	Previous(ctx context.Context) player.State
	CycleRepeat() player.State
	ToggleShuffle() player.State
	ToggleMute() player.State
	SetVolume(v float64) player.State
}

// Liker toggles likes on the current track.
type Liker interface {
	ToggleLike(ctx context.Context, itemType, id string) (bool, error)
}

// PendingLister lists actions waiting for the server.
type PendingLister interface {
	List(ctx context.Context) ([]*models.PendingAction, error)
}

// Options wires the TUI. Player is required; the rest disable their feature when nil.
type Options struct {
	Player        Player
	Library       Liker
	Pending       PendingLister
	Syncer        tasks.Syncer
	Notifications *notify.Broadcaster
	Progress      <-chan tasks.ProgressUpdate
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	player  Player
	library Liker
	pending PendingLister
	syncer  tasks.Syncer

	sub           *player.Subscription
	notes         <-chan notify.Message
	cancelNotes   func()
	progressChan  <-chan tasks.ProgressUpdate
	state         player.State
	trackList     list.Model
	pendingList   list.Model
	notification  *notify.Message
	progress      *tasks.ProgressUpdate
	syncing       bool
	width, height int
	err           error
	help          help.Model
	keys          keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	m := &Model{
		ctx:          ctx,
		view:         QueueView,
		player:       opts.Player,
		library:      opts.Library,
		pending:      opts.Pending,
		syncer:       opts.Syncer,
		progressChan: opts.Progress,
		trackList:    list.New(nil, list.NewDefaultDelegate(), 0, 0),
		pendingList:  list.New(nil, list.NewDefaultDelegate(), 0, 0),
		help:         help.New(),
		keys:         newKeyMap(),
	}
	m.trackList.Title = "Queue"
	m.pendingList.Title = "Pending sync"

	m.sub = opts.Player.Subscribe()
	if opts.Notifications != nil {
		m.notes, m.cancelNotes = opts.Notifications.Subscribe(16)
	}
	return m
}

// Close ends the model's subscriptions.
func (m *Model) Close() {
	m.sub.Cancel()
	if m.cancelNotes != nil {
		m.cancelNotes()
	}
}

// Init starts listening to the engine, notifications and sync progress.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForState(), m.waitForNotification(), m.waitForProgress(), m.fetchPending())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.trackList.SetSize(msg.Width-4, msg.Height-10)
		m.pendingList.SetSize(msg.Width-4, msg.Height-10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgState:
		m.setState(msg.data.(player.State))
		return m, m.waitForState()

	case MsgStateClosed:
		return m, tea.Quit

	case MsgError:
		m.err = msg.data.(error)
		return m, nil

	case MsgNotification:
		n := msg.data.(notify.Message)
		m.notification = &n
		return m, tea.Batch(m.waitForNotification(), m.fetchPending())

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.progress = &update
		return m, m.waitForProgress()

	case MsgSyncComplete:
		m.syncing = false
		data := msg.data.(struct {
			result *tasks.CycleResult
			err    error
		})
		m.err = data.err
		if data.result != nil && !data.result.Ran() {
			m.notification = &notify.Message{Text: fmt.Sprintf("Sync skipped: %s", data.result.Skipped), Severity: notify.Info}
		}
		return m, m.fetchPending()

	case MsgPendingFetched:
		data := msg.data.(struct {
			pending []*models.PendingAction
			err     error
		})
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.pending))
		for i, a := range data.pending {
			items[i] = actionItem{action: a}
		}
		return m, m.pendingList.SetItems(items)

	case MsgLiked:
		data := msg.data.(struct {
			track models.Track
			liked bool
			err   error
		})
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		text := "Unliked " + data.track.Label()
		if data.liked {
			text = "Liked " + data.track.Label()
		}
		m.notification = &notify.Message{Text: text, Severity: notify.Success}
		return m, m.fetchPending()
	}
	return m, nil
}

func (m *Model) setState(s player.State) {
	m.state = s
	items := make([]list.Item, len(s.Queue))
	for i, t := range s.Queue {
		items[i] = trackItem{track: t, index: i, current: i == s.CurrentIndex}
	}
	m.trackList.SetItems(items)
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.view):
		if m.view == QueueView {
			m.view = PendingView
			return m, m.fetchPending()
		}
		m.view = QueueView
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		return m, m.command(func(ctx context.Context) error { m.player.Toggle(ctx); return nil })
	case key.Matches(msg, m.keys.next):
		return m, m.command(func(ctx context.Context) error { m.player.Next(ctx); return nil })
	case key.Matches(msg, m.keys.previous):
		return m, m.command(func(ctx context.Context) error { m.player.Previous(ctx); return nil })
	case key.Matches(msg, m.keys.repeat):
		m.player.CycleRepeat()
		return m, nil
	case key.Matches(msg, m.keys.shuffle):
		m.player.ToggleShuffle()
		return m, nil
	case key.Matches(msg, m.keys.mute):
		m.player.ToggleMute()
		return m, nil
	case key.Matches(msg, m.keys.louder):
		m.player.SetVolume(m.state.Volume + volumeStep)
		return m, nil
	case key.Matches(msg, m.keys.quieter):
		m.player.SetVolume(m.state.Volume - volumeStep)
		return m, nil
	case key.Matches(msg, m.keys.like):
		return m, m.likeCurrent()
	case key.Matches(msg, m.keys.sync):
		return m, m.runSync()
	case key.Matches(msg, m.keys.enter) && m.view == QueueView:
		if item, ok := m.trackList.SelectedItem().(trackItem); ok {
			i := item.index
			return m, m.command(func(ctx context.Context) error {
				_, err := m.player.PlayIndex(ctx, i)
				return err
			})
		}
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case QueueView:
		m.trackList, cmd = m.trackList.Update(msg)
	case PendingView:
		m.pendingList, cmd = m.pendingList.Update(msg)
	}
	return m, cmd
}

// command runs a playback call off the update loop; the engine reports the result through the subscription.
func (m *Model) command(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(m.ctx); err != nil {
			return errorMsg(err)
		}
		return nil
	}
}

func (m *Model) waitForState() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.sub.C
		if !ok {
			return stateClosedMsg()
		}
		return stateMsg(s)
	}
}

func (m *Model) waitForNotification() tea.Cmd {
	if m.notes == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-m.notes
		if !ok {
			return nil
		}
		return notificationMsg(n)
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	if m.progressChan == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-m.progressChan
		if !ok {
			return nil
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) fetchPending() tea.Cmd {
	if m.pending == nil {
		return nil
	}
	return func() tea.Msg {
		pending, err := m.pending.List(m.ctx)
		return pendingFetchedMsg(pending, err)
	}
}

func (m *Model) runSync() tea.Cmd {
	if m.syncer == nil || m.syncing {
		return nil
	}
	m.syncing = true
	return func() tea.Msg {
		res, err := m.syncer.RunCycle(m.ctx)
		return syncCompleteMsg(res, err)
	}
}

func (m *Model) likeCurrent() tea.Cmd {
	if m.library == nil || m.state.Current == nil {
		return nil
	}
	track := *m.state.Current
	return func() tea.Msg {
		liked, err := m.library.ToggleLike(m.ctx, "song", track.ID)
		return likedMsg(track, liked, err)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderNowPlaying())
	b.WriteString("\n\n")

	switch m.view {
	case PendingView:
		b.WriteString(m.pendingList.View())
	default:
		b.WriteString(m.trackList.View())
	}

	if status := m.renderStatus(); status != "" {
		b.WriteString("\n")
		b.WriteString(status)
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderNowPlaying() string {
	if m.state.Current == nil {
		return styles.title.Render("Nothing playing")
	}

	var icon string
	switch m.state.Transport {
	case player.Playing:
		icon = "▶"
	case player.Paused:
		icon = "⏸"
	case player.Loading:
		icon = "…"
	default:
		icon = "■"
	}
	title := styles.title.Render(fmt.Sprintf("%s %s", icon, m.state.Current.Label()))

	volume := fmt.Sprintf("vol %d%%", int(m.state.Volume*100+0.5))
	if m.state.Muted {
		volume = "muted"
	}
	shuffle := "off"
	if m.state.Shuffle {
		shuffle = "on"
	}
	info := styles.help.Render(fmt.Sprintf("%d/%d • repeat %s • shuffle %s • %s",
		m.state.CurrentIndex+1, len(m.state.Queue), m.state.Repeat, shuffle, volume))

	return fmt.Sprintf("%s\n%s", title, info)
}

func (m *Model) renderStatus() string {
	var lines []string
	if m.err != nil {
		lines = append(lines, styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	if m.progress != nil && m.progress.Phase != tasks.Complete && m.progress.Phase != tasks.Skipped {
		line := m.progress.Message
		if m.progress.Total > 0 {
			line = fmt.Sprintf("%s (%d/%d)", line, m.progress.Step, m.progress.Total)
		}
		lines = append(lines, styles.warn.Render(line))
	}
	if m.notification != nil {
		lines = append(lines, styles.severity(m.notification.Severity).Render(m.notification.Text))
	}
	return strings.Join(lines, "\n")
}
