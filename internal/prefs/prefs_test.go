package prefs

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Theme != defaultTheme {
		t.Fatalf("Theme = %q, want %q", p.Theme, defaultTheme)
	}
	if len(p.Following) != 0 {
		t.Fatalf("Following = %v, want empty", p.Following)
	}
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	prefsDir := filepath.Join(home, ".config", "tracksync")
	if err := os.MkdirAll(prefsDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := "theme = \"Dusk\"\nfollowing = [\"e7\", \" e2 \", \"e7\", \"\"]\n"
	if err := os.WriteFile(filepath.Join(prefsDir, "prefs.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Theme != "Dusk" {
		t.Fatalf("Theme = %q, want %q", p.Theme, "Dusk")
	}
	if !slices.Equal(p.Following, []string{"e2", "e7"}) {
		t.Fatalf("Following = %v, want [e2 e7]", p.Following)
	}
}

func TestLoad_InvalidTOMLUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := os.WriteFile(path, []byte("theme = [\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Theme != defaultTheme {
		t.Fatalf("Theme = %q, want %q", p.Theme, defaultTheme)
	}
}

func TestSave_RoundTripsAndCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "prefs.toml")

	p := Prefs{Theme: "Dusk"}
	if !p.Follow("e3") || !p.Follow("e1") {
		t.Fatal("Follow should report a change for new ids")
	}
	if p.Follow("e3") {
		t.Fatal("Follow should ignore duplicates")
	}
	if err := Save(path, p); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.Theme != "Dusk" || !slices.Equal(got.Following, []string{"e1", "e3"}) {
		t.Fatalf("round trip = %#v", got)
	}

	if !got.Unfollow("e1") || got.Unfollow("e1") {
		t.Fatal("Unfollow should report a change exactly once")
	}
}
