package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/five82/tracksync/internal/outbox"
	"github.com/five82/tracksync/internal/prefs"
)

type testEnv struct {
	configPath string
	prefsPath  string

	mu     sync.Mutex
	bodies []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			env.mu.Lock()
			env.bodies = append(env.bodies, r.URL.Path+" "+string(body))
			env.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env.configPath = filepath.Join(dir, "config.toml")
	env.prefsPath = filepath.Join(dir, "prefs.toml")
	cfg := fmt.Sprintf("api_base_url = %q\nqueue_backend = \"file\"\ndata_dir = %q\n", srv.URL, filepath.Join(dir, "data"))
	if err := os.WriteFile(env.configPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) posts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.bodies...)
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", e.configPath, "--prefs", e.prefsPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueueAddListSync(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "queue", "add", "/api/sightings/", "-p", "high", "-d", `{"animal_id":"e1"}`)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatal("queue add printed no id")
	}
	if len(env.posts()) != 0 {
		t.Fatal("queue add should not deliver")
	}

	out, err = env.run(t, "queue", "list", "--json")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var items []outbox.Item
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].ID != id || items[0].Priority != outbox.PriorityHigh {
		t.Fatalf("items = %+v", items)
	}

	out, err = env.run(t, "queue", "sync")
	if err != nil {
		t.Fatalf("queue sync: %v", err)
	}
	if !strings.Contains(out, "delivered 1 of 1") {
		t.Fatalf("sync output = %q", out)
	}
	if posts := env.posts(); len(posts) != 1 || posts[0] != `/api/sightings/ {"animal_id":"e1"}` {
		t.Fatalf("posts = %v", posts)
	}

	out, err = env.run(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "queue is empty") {
		t.Fatalf("list after sync = %q", out)
	}
}

func TestQueueAdd_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, "queue", "add", "/api/sightings/", "-p", "urgent"); err == nil {
		t.Fatal("expected unknown priority error")
	}
	if _, err := env.run(t, "queue", "add", "/api/sightings/", "-d", "{not json"); err == nil {
		t.Fatal("expected invalid payload error")
	}
	if _, err := env.run(t, "queue", "add"); err == nil {
		t.Fatal("expected missing endpoint error")
	}
}

func TestQueueRequeueAndPurge_EmptyQueue(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "queue", "requeue")
	if err != nil || !strings.Contains(out, "requeued 0 item(s)") {
		t.Fatalf("requeue = %q, %v", out, err)
	}
	out, err = env.run(t, "queue", "purge")
	if err != nil || !strings.Contains(out, "purged 0 item(s)") {
		t.Fatalf("purge = %q, %v", out, err)
	}
	if _, err := env.run(t, "queue", "requeue", "missing-id"); err == nil {
		t.Fatal("requeue of unknown id should fail")
	}
}

func TestLoadConfig_ParseErrorSurfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("api_base_url = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := &globalOptions{configPath: path}
	if _, err := opts.loadConfig(); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("loadConfig error = %v, want parse config", err)
	}
}

func TestResolveID(t *testing.T) {
	items := []outbox.Item{
		{ID: "4f1c2a9e-0000"},
		{ID: "4f1d7b10-0000"},
		{ID: "9a00aa00-0000"},
	}
	cases := map[string]string{
		"9a00":          "9a00aa00-0000",
		"4f1c2a9e":      "4f1c2a9e-0000",
		"4f1":           "4f1",
		"4f1c":          "4f1c2a9e-0000",
		"4f1d":          "4f1d7b10-0000",
		"9a00aa00-0000": "9a00aa00-0000",
		"ffff":          "ffff",
	}
	for in, want := range cases {
		if got := resolveID(items, in); got != want {
			t.Fatalf("resolveID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteItems(t *testing.T) {
	var buf bytes.Buffer
	writeItems(&buf, nil, timeZero)
	if strings.TrimSpace(buf.String()) != "queue is empty" {
		t.Fatalf("empty output = %q", buf.String())
	}

	buf.Reset()
	writeItems(&buf, []outbox.Item{{
		ID:         "4f1c2a9e-aaaa",
		Priority:   outbox.PriorityLow,
		Status:     outbox.StatusFailed,
		Endpoint:   "/api/patrols/",
		Retries:    3,
		MaxRetries: 3,
		CreatedAt:  timeZero,
		LastError:  "status 500",
	}}, timeZero)
	out := buf.String()
	for _, want := range []string{"4f1c2a9e", "low", "failed", "/api/patrols/", "3/3", "status 500"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

var timeZero = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestConsole_RefusesWithoutTerminal(t *testing.T) {
	if isTerminal(os.Stdout) {
		t.Skip("stdout is a terminal")
	}
	env := newTestEnv(t)
	_, err := env.run(t, "console")
	if err == nil || !strings.Contains(err.Error(), "needs a terminal") {
		t.Fatalf("console error = %v", err)
	}
}

func TestFollowUnfollow_UpdatesPrefs(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "follow", "e2", "e1")
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if !strings.Contains(out, "followed: e1, e2") {
		t.Fatalf("follow output = %q", out)
	}

	out, err = env.run(t, "follow", "e1")
	if err != nil || !strings.Contains(out, "no change") {
		t.Fatalf("repeat follow = %q (%v)", out, err)
	}

	if _, err := env.run(t, "unfollow", "e2"); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	saved, err := prefs.Load(env.prefsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(saved.Following) != 1 || saved.Following[0] != "e1" {
		t.Fatalf("following = %v, want [e1]", saved.Following)
	}
	if saved.Theme != "Savanna" {
		t.Fatalf("theme = %q, want default kept", saved.Theme)
	}

	if _, err := env.run(t, "follow"); err == nil {
		t.Fatal("follow without ids should fail")
	}
}
