package ui

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tracksync/internal/cache"
	"github.com/five82/tracksync/internal/outbox"
	"github.com/five82/tracksync/internal/prefs"
	"github.com/five82/tracksync/internal/realtime"
	"github.com/five82/tracksync/internal/state"
	"github.com/five82/tracksync/internal/tracking"
)

type fakeStream struct{ st realtime.State }

func (f fakeStream) State() realtime.State { return f.st }

type fakeQueue struct {
	mu       sync.Mutex
	syncs    int
	requeues int
	items    []outbox.Item
}

func (f *fakeQueue) Stats(context.Context) outbox.Stats {
	return outbox.Stats{
		Pending:    2,
		Failed:     1,
		ByPriority: map[outbox.Priority]int{outbox.PriorityHigh: 2},
	}
}

func (f *fakeQueue) Items(context.Context) []outbox.Item { return f.items }

func (f *fakeQueue) SyncAll(context.Context) outbox.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return outbox.Result{Attempted: 2, Delivered: 1, Exhausted: 1}
}

func (f *fakeQueue) RequeueFailed(context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeues++
	return len(f.items)
}

type fakeCache struct {
	entries []cache.Entry
	err     error
	forced  []bool
}

func (f *fakeCache) Entries() []cache.Entry { return f.entries }

func (f *fakeCache) RefreshAll(_ context.Context, force bool) error {
	f.forced = append(f.forced, force)
	return f.err
}

type fakeSubscriber struct {
	calls []string
	err   error
}

func (f *fakeSubscriber) SubscribeAnimal(id string) error {
	f.calls = append(f.calls, "subscribe "+id)
	return f.err
}

func (f *fakeSubscriber) UnsubscribeAnimal(id string) error {
	f.calls = append(f.calls, "unsubscribe "+id)
	return f.err
}

type fakeNetwork bool

func (f fakeNetwork) Online() bool { return bool(f) }

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(t *testing.T) (Model, *fakeQueue, *fakeCache) {
	t.Helper()
	live := &state.Store{}
	live.ReplaceAnimals([]tracking.Animal{{"id": "e1"}, {"id": "e2"}})
	live.AddAlert(tracking.Alert{ID: "a1", AnimalID: "e2", Kind: "geofence_exit", Severity: "high"})
	live.SetBackendState(tracking.StateChange{Status: "degraded", Message: "uplink lagging"})

	q := &fakeQueue{items: []outbox.Item{
		{ID: "1", Endpoint: "/api/sightings/", Status: outbox.StatusFailed, LastError: "connection refused"},
		{ID: "2", Endpoint: "/api/patrols/", Status: outbox.StatusPending},
	}}
	c := &fakeCache{entries: []cache.Entry{
		{Key: "animals", Items: make([]json.RawMessage, 2), PushedAt: time.Now()},
		{Key: "corridors", FetchedAt: time.Now().Add(-time.Minute), TTL: 10 * time.Minute},
	}}

	m := New(Options{
		Stream:    fakeStream{st: realtime.State{Status: realtime.StatusReconnecting, Attempt: 2}},
		Queue:     q,
		Cache:     c,
		Network:   fakeNetwork(true),
		Live:      live,
		Prefs:     prefs.Prefs{Theme: "Savanna", Following: []string{"e1"}},
		PrefsPath: filepath.Join(t.TempDir(), "prefs.toml"),
	})
	return m, q, c
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

func ready(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 50})
	m, _ = update(t, m, m.collectCmd()())
	return m
}

func TestView_LoadingUntilSized(t *testing.T) {
	m, _, _ := newTestModel(t)
	if got := m.View(); got != "Loading..." {
		t.Fatalf("View before size = %q", got)
	}
}

func TestView_RendersEveryPanel(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = ready(t, m)
	view := m.View()

	for _, want := range []string{
		"RECONNECTING", "attempt 2", "online",
		"/api/sightings/", "connection refused",
		"animals", "pushed", "corridors", "fresh",
		"uplink lagging", "geofence_exit",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "/api/patrols/") {
		t.Errorf("pending items should not be listed as failed")
	}
}

func TestSyncKey_RunsFlushAndReportsResult(t *testing.T) {
	m, q, _ := newTestModel(t)
	m = ready(t, m)

	m, cmd := update(t, m, runeKey("s"))
	if cmd == nil {
		t.Fatal("s produced no command")
	}
	if m.busy == "" {
		t.Fatal("model not marked busy during flush")
	}

	m, again := update(t, m, runeKey("s"))
	if again != nil {
		t.Fatal("second flush started while the first was running")
	}

	m, _ = update(t, m, cmd())
	if q.syncs != 1 {
		t.Fatalf("SyncAll calls = %d, want 1", q.syncs)
	}
	if m.busy != "" {
		t.Fatalf("busy = %q after completion", m.busy)
	}
	if m.notice != "flushed 1 of 2, 1 exhausted" {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestRefreshKey_ForcesAndSurfacesErrors(t *testing.T) {
	m, _, c := newTestModel(t)
	c.err = errors.New("animals: 503")
	m = ready(t, m)

	m, cmd := update(t, m, runeKey("r"))
	m, _ = update(t, m, cmd())

	if len(c.forced) != 1 || !c.forced[0] {
		t.Fatalf("RefreshAll calls = %v, want one forced", c.forced)
	}
	if !m.noticeIsError || !strings.Contains(m.notice, "animals: 503") {
		t.Fatalf("notice = %q (error=%v)", m.notice, m.noticeIsError)
	}
}

func TestRequeueKey(t *testing.T) {
	m, q, _ := newTestModel(t)
	m = ready(t, m)

	m, cmd := update(t, m, runeKey("R"))
	m, _ = update(t, m, cmd())
	if q.requeues != 1 {
		t.Fatalf("RequeueFailed calls = %d, want 1", q.requeues)
	}
	if !strings.Contains(m.notice, "requeued 2") {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestThemeKey_PersistsPrefs(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = ready(t, m)

	m, _ = update(t, m, runeKey("t"))
	if m.theme.Name != "Dusk" {
		t.Fatalf("theme = %q, want Dusk", m.theme.Name)
	}

	saved, err := prefs.Load(m.prefsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Theme != "Dusk" {
		t.Fatalf("saved theme = %q, want Dusk", saved.Theme)
	}
	if len(saved.Following) != 1 || saved.Following[0] != "e1" {
		t.Fatalf("saved following = %v, want [e1]", saved.Following)
	}
}

func TestQuitKey(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = ready(t, m)
	_, cmd := update(t, m, runeKey("q"))
	if cmd == nil {
		t.Fatal("q produced no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
}

func TestHelp_AnyKeyCloses(t *testing.T) {
	m, q, _ := newTestModel(t)
	m = ready(t, m)

	m, _ = update(t, m, runeKey("?"))
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatal("help overlay not shown")
	}
	m, cmd := update(t, m, runeKey("s"))
	if cmd != nil || m.showHelp || q.syncs != 0 {
		t.Fatal("key while help is open should only close it")
	}
}

func TestLogTail_FollowsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracksync.log")
	lines := []string{
		`{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"runtime started","queue_backend":"badger"}`,
		`{"time":"2026-03-01T10:00:05Z","level":"WARN","msg":"tracking stream closed","code":1006}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, _, _ := newTestModel(t)
	m.logPath = path
	m = ready(t, m)
	m, _ = update(t, m, m.logTailCmd()())

	if len(m.logLines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(m.logLines))
	}
	view := m.View()
	if !strings.Contains(view, "tracking stream closed") || !strings.Contains(view, "code=1006") {
		t.Fatalf("log tail not rendered:\n%s", view)
	}
	if !m.follow {
		t.Fatal("log viewport should follow by default")
	}
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, runeKey(string(r)))
	}
	return m
}

func TestFollowKey_SavesPrefsAndSubscribes(t *testing.T) {
	m, q, _ := newTestModel(t)
	sub := &fakeSubscriber{}
	m.sub = sub
	m = ready(t, m)

	m, _ = update(t, m, runeKey("f"))
	if m.promptKind != promptFollow {
		t.Fatalf("promptKind = %q, want follow", m.promptKind)
	}
	m = typeText(t, m, "e7s")
	if !strings.Contains(m.View(), "follow animal:") {
		t.Fatal("prompt not rendered in footer")
	}
	if q.syncs != 0 {
		t.Fatal("typing into the prompt triggered a flush")
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	m, _ = update(t, m, cmd())

	if len(sub.calls) != 1 || sub.calls[0] != "subscribe e7s" {
		t.Fatalf("subscriber calls = %v", sub.calls)
	}
	if m.notice != "following e7s" {
		t.Fatalf("notice = %q", m.notice)
	}
	saved, err := prefs.Load(m.prefsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.Join(saved.Following, ",") != "e1,e7s" {
		t.Fatalf("saved following = %v", saved.Following)
	}
	if !strings.Contains(m.View(), "e1,e7s") {
		t.Fatal("live panel does not list followed animals")
	}
}

func TestUnfollowKey_SurfacesStreamError(t *testing.T) {
	m, _, _ := newTestModel(t)
	sub := &fakeSubscriber{err: errors.New("write frame: broken pipe")}
	m.sub = sub
	m = ready(t, m)

	m, _ = update(t, m, runeKey("u"))
	m = typeText(t, m, "e1")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())

	if len(sub.calls) != 1 || sub.calls[0] != "unsubscribe e1" {
		t.Fatalf("subscriber calls = %v", sub.calls)
	}
	if !m.noticeIsError || !strings.Contains(m.notice, "broken pipe") {
		t.Fatalf("notice = %q (error=%v)", m.notice, m.noticeIsError)
	}
	if len(m.prefs.Following) != 0 {
		t.Fatalf("following = %v, want empty", m.prefs.Following)
	}
}

func TestFollowPrompt_EscCancels(t *testing.T) {
	m, _, _ := newTestModel(t)
	sub := &fakeSubscriber{}
	m.sub = sub
	m = ready(t, m)

	m, _ = update(t, m, runeKey("f"))
	m = typeText(t, m, "e9")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if cmd != nil || m.promptKind != "" {
		t.Fatal("esc did not close the prompt")
	}
	if len(sub.calls) != 0 || len(m.prefs.Following) != 1 {
		t.Fatalf("cancelled prompt changed state: calls=%v following=%v", sub.calls, m.prefs.Following)
	}
}
