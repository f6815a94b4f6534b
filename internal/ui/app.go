package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tracksync/internal/cache"
	"github.com/five82/tracksync/internal/logtail"
	"github.com/five82/tracksync/internal/outbox"
	"github.com/five82/tracksync/internal/prefs"
	"github.com/five82/tracksync/internal/realtime"
	"github.com/five82/tracksync/internal/state"
)

// StreamSource exposes the stream connection state.
type StreamSource interface {
	State() realtime.State
}

// QueueSource is the part of the outbound queue the console drives.
type QueueSource interface {
	Stats(ctx context.Context) outbox.Stats
	Items(ctx context.Context) []outbox.Item
	SyncAll(ctx context.Context) outbox.Result
	RequeueFailed(ctx context.Context) int
}

// CacheSource is the part of the cache coordinator the console drives.
type CacheSource interface {
	Entries() []cache.Entry
	RefreshAll(ctx context.Context, force bool) error
}

// NetworkSource reports connectivity.
type NetworkSource interface {
	Online() bool
}

// Subscriber follows animals on the live stream.
type Subscriber interface {
	SubscribeAnimal(id string) error
	UnsubscribeAnimal(id string) error
}

// Options configure the console.
type Options struct {
	Context context.Context
	Stream  StreamSource
	Queue   QueueSource
	Cache   CacheSource
	Network NetworkSource
	Live    *state.Store
	// Subscriber, when set, receives follow and unfollow requests.
	Subscriber Subscriber

	Prefs     prefs.Prefs
	PrefsPath string
	// LogPath is the JSON log file tailed into the log viewport.
	LogPath  string
	PollTick time.Duration
}

const (
	logTailLines    = 500
	failedItemLimit = 5
	alertLimit      = 6
	actionTimeout   = 30 * time.Second

	promptFollow   = "follow"
	promptUnfollow = "unfollow"
)

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	stream    StreamSource
	queue     QueueSource
	cache     CacheSource
	network   NetworkSource
	live      *state.Store
	sub       Subscriber
	prefs     prefs.Prefs
	prefsPath string
	logPath   string
	pollTick  time.Duration
	keys      keyMap

	theme    Theme
	width    int
	height   int
	ready    bool
	showHelp bool

	data        snapshot
	lastUpdated time.Time

	logViewport viewport.Model
	logLines    []string
	follow      bool

	busy          string
	notice        string
	noticeIsError bool

	prompt     textinput.Model
	promptKind string
}

// snapshot is everything one tick collects.
type snapshot struct {
	conn    realtime.State
	online  bool
	stats   outbox.Stats
	failed  []outbox.Item
	entries []cache.Entry
	live    state.Snapshot
}

// New creates a console model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	p := opts.Prefs
	p.Following = slices.Clone(p.Following)
	return Model{
		ctx:       ctx,
		stream:    opts.Stream,
		queue:     opts.Queue,
		cache:     opts.Cache,
		network:   opts.Network,
		live:      opts.Live,
		sub:       opts.Subscriber,
		prefs:     p,
		prefsPath: prefsPath,
		logPath:   opts.LogPath,
		pollTick:  pollTick,
		keys:      DefaultKeyMap(),
		theme:     GetTheme(opts.Prefs.Theme),
		follow:    true,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(m.pollTick),
		m.collectCmd(),
		m.logTailCmd(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.logViewport = viewport.New(m.width, m.logHeight())
			m.ready = true
		} else {
			m.logViewport.Width = m.width
			m.logViewport.Height = m.logHeight()
		}
		m.refreshLogViewport()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.collectCmd(), m.logTailCmd(), tickCmd(m.pollTick))

	case snapshotMsg:
		m.data = snapshot(msg)
		m.lastUpdated = time.Now()
		if m.ready {
			m.logViewport.Height = m.logHeight()
		}
		return m, nil

	case logTailMsg:
		m.logLines = msg
		m.refreshLogViewport()
		return m, nil

	case actionMsg:
		m.busy = ""
		m.notice = msg.text
		m.noticeIsError = msg.err != nil
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s: %v", msg.text, msg.err)
		}
		return m, m.collectCmd()

	case followMsg:
		m.notice = msg.text
		m.noticeIsError = msg.err != nil
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s: %v", msg.text, msg.err)
		}
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.promptKind != "" {
		return m.handlePromptKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
			m.notice = fmt.Sprintf("theme %s not saved: %v", m.theme.Name, err)
			m.noticeIsError = true
		} else {
			m.notice = "theme " + m.theme.Name
			m.noticeIsError = false
		}
		return m, nil

	case key.Matches(msg, m.keys.SyncAll):
		return m.startAction("flushing queue", m.syncCmd())

	case key.Matches(msg, m.keys.RefreshAll):
		return m.startAction("refreshing cache", m.refreshCmd())

	case key.Matches(msg, m.keys.RequeueFailed):
		return m.startAction("requeueing failed items", m.requeueCmd())

	case key.Matches(msg, m.keys.Follow):
		return m.openPrompt(promptFollow)

	case key.Matches(msg, m.keys.Unfollow):
		return m.openPrompt(promptUnfollow)

	case key.Matches(msg, m.keys.Bottom):
		m.follow = true
		m.logViewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.follow = false
		m.logViewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.PageUp):
		m.follow = false
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	if m.logViewport.AtBottom() {
		m.follow = true
	}
	return m, cmd
}

func (m Model) openPrompt(kind string) (tea.Model, tea.Cmd) {
	m.prompt = textinput.New()
	m.prompt.Prompt = kind + " animal: "
	m.prompt.CharLimit = 64
	m.promptKind = kind
	return m, m.prompt.Focus()
}

// handlePromptKey feeds the animal id prompt. Enter applies, esc cancels.
func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.promptKind = ""
		return m, nil
	case tea.KeyEnter:
		kind, id := m.promptKind, strings.TrimSpace(m.prompt.Value())
		m.promptKind = ""
		if id == "" {
			return m, nil
		}
		return m.applyFollow(kind, id)
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// applyFollow saves the followed set, then updates the live subscription.
func (m Model) applyFollow(kind, id string) (tea.Model, tea.Cmd) {
	var changed bool
	if kind == promptFollow {
		changed = m.prefs.Follow(id)
	} else {
		changed = m.prefs.Unfollow(id)
	}
	if !changed {
		m.notice = fmt.Sprintf("%s %s: no change", kind, id)
		m.noticeIsError = false
		return m, nil
	}
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.notice = fmt.Sprintf("%s %s not saved: %v", kind, id, err)
		m.noticeIsError = true
		return m, nil
	}
	return m, m.subscribeCmd(kind, id)
}

// startAction refuses to stack actions; the previous one reports first.
func (m Model) startAction(label string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	if cmd == nil {
		return m, nil
	}
	if m.busy != "" {
		m.notice = "busy: " + m.busy
		m.noticeIsError = false
		return m, nil
	}
	m.busy = label
	m.notice = label + "..."
	m.noticeIsError = false
	return m, cmd
}

// logHeight is what remains below the header, panels and footer.
func (m Model) logHeight() int {
	used := 2 + lineCount(m.renderPanels()) + 2
	if h := m.height - used; h > 3 {
		return h
	}
	return 3
}

func (m *Model) refreshLogViewport() {
	if !m.ready {
		return
	}
	m.logViewport.SetContent(strings.Join(m.logLines, "\n"))
	if m.follow {
		m.logViewport.GotoBottom()
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg snapshot

type logTailMsg []string

type actionMsg struct {
	text string
	err  error
}

// followMsg reports a subscription change. It does not touch the busy flag.
type followMsg struct {
	text string
	err  error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) collectCmd() tea.Cmd {
	ctx := m.ctx
	stream, queue, cacheSrc, network, live := m.stream, m.queue, m.cache, m.network, m.live
	return func() tea.Msg {
		var s snapshot
		if stream != nil {
			s.conn = stream.State()
		}
		if network != nil {
			s.online = network.Online()
		}
		if queue != nil {
			s.stats = queue.Stats(ctx)
			for _, item := range queue.Items(ctx) {
				if item.Status == outbox.StatusFailed {
					s.failed = append(s.failed, item)
				}
			}
		}
		if cacheSrc != nil {
			s.entries = cacheSrc.Entries()
		}
		if live != nil {
			s.live = live.Snapshot()
		}
		return snapshotMsg(s)
	}
}

func (m Model) logTailCmd() tea.Cmd {
	path := m.logPath
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		records, err := logtail.ReadRecords(path, logTailLines)
		if err != nil {
			return logTailMsg{"log unavailable: " + err.Error()}
		}
		lines := make([]string, 0, len(records))
		for _, r := range records {
			lines = append(lines, r.Format())
		}
		return logTailMsg(lines)
	}
}

func (m Model) syncCmd() tea.Cmd {
	if m.queue == nil {
		return nil
	}
	ctx, queue := m.ctx, m.queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		res := queue.SyncAll(ctx)
		text := fmt.Sprintf("flushed %d of %d", res.Delivered, res.Attempted)
		if res.Exhausted > 0 {
			text += fmt.Sprintf(", %d exhausted", res.Exhausted)
		}
		return actionMsg{text: text}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	if m.cache == nil {
		return nil
	}
	ctx, c := m.ctx, m.cache
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		if err := c.RefreshAll(ctx, true); err != nil {
			return actionMsg{text: "cache refresh failed", err: err}
		}
		return actionMsg{text: "cache refreshed"}
	}
}

func (m Model) requeueCmd() tea.Cmd {
	if m.queue == nil {
		return nil
	}
	ctx, queue := m.ctx, m.queue
	return func() tea.Msg {
		n := queue.RequeueFailed(ctx)
		return actionMsg{text: fmt.Sprintf("requeued %d failed item(s)", n)}
	}
}

func (m Model) subscribeCmd(kind, id string) tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		text := "following " + id
		if kind == promptUnfollow {
			text = "unfollowed " + id
		}
		if sub == nil {
			return followMsg{text: text}
		}
		var err error
		if kind == promptFollow {
			err = sub.SubscribeAnimal(id)
		} else {
			err = sub.UnsubscribeAnimal(id)
		}
		if err != nil {
			return followMsg{text: kind + " " + id, err: err}
		}
		return followMsg{text: text}
	}
}

// Run starts the console and blocks until the operator quits or ctx ends.
func Run(opts Options) error {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
