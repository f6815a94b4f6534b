package state

import (
	"reflect"
	"testing"
	"time"

	"github.com/five82/tracksync/internal/tracking"
)

func TestStore_PositionUpdateMergesFields(t *testing.T) {
	var s Store

	s.MergeAnimals([]tracking.Animal{{"id": "A1", "speed": 4.0}})
	s.MergeAnimals([]tracking.Animal{{"id": "A1", "battery": 70.0}})

	got, ok := s.Animal("A1")
	if !ok {
		t.Fatal("A1 missing after merge")
	}
	want := tracking.Animal{"id": "A1", "speed": 4.0, "battery": 70.0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("A1 = %#v, want %#v", got, want)
	}
}

func TestStore_ReplaceAnimalsIsWholesale(t *testing.T) {
	var s Store

	s.MergeAnimals([]tracking.Animal{{"id": "A1", "speed": 4.0}, {"id": "A2"}})
	s.ReplaceAnimals([]tracking.Animal{{"id": "A1", "battery": 70.0}})

	snap := s.Snapshot()
	if snap.AnimalCount() != 1 {
		t.Fatalf("AnimalCount = %d, want 1", snap.AnimalCount())
	}
	if _, ok := snap.Animals["A1"]["speed"]; ok {
		t.Fatalf("initial data should replace, got %#v", snap.Animals["A1"])
	}
}

func TestStore_SnapshotIsIndependent(t *testing.T) {
	var s Store
	s.MergeAnimals([]tracking.Animal{{"id": "A1", "speed": 1.0}})
	s.AddAlert(tracking.Alert{ID: "x"})

	before := time.Now().Add(-time.Second)
	snap := s.Snapshot()
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want recent", snap.LastUpdated)
	}
	snap.Animals["A1"]["speed"] = 99.0
	snap.Alerts[0].ID = "mutated"

	again := s.Snapshot()
	if again.Animals["A1"]["speed"] != 1.0 {
		t.Fatalf("Snapshot should clone animals; got %v", again.Animals["A1"]["speed"])
	}
	if again.Alerts[0].ID != "x" {
		t.Fatalf("Snapshot should clone alerts; got %q", again.Alerts[0].ID)
	}
}

func TestStore_AddAlertDeduplicates(t *testing.T) {
	s := Store{AlertLimit: 2}

	if !s.AddAlert(tracking.Alert{ID: "a"}) {
		t.Fatal("first alert should be new")
	}
	if s.AddAlert(tracking.Alert{ID: "a"}) {
		t.Fatal("duplicate alert should be rejected")
	}
	s.AddAlert(tracking.Alert{ID: "b"})
	s.AddAlert(tracking.Alert{ID: "c"})

	snap := s.Snapshot()
	if len(snap.Alerts) != 2 || snap.Alerts[0].ID != "b" || snap.Alerts[1].ID != "c" {
		t.Fatalf("alerts = %#v, want [b c]", snap.Alerts)
	}
	// "a" fell out of the window and is accepted again.
	if !s.AddAlert(tracking.Alert{ID: "a"}) {
		t.Fatal("evicted alert should be accepted again")
	}
}

func TestStore_BackendState(t *testing.T) {
	var s Store
	if s.Snapshot().HasBackendState {
		t.Fatal("HasBackendState = true before any state change")
	}
	s.SetBackendState(tracking.StateChange{Status: "ok"})
	snap := s.Snapshot()
	if !snap.HasBackendState || snap.Backend.Status != "ok" {
		t.Fatalf("backend = %#v", snap.Backend)
	}
}

func TestStore_AddAlertKeepsDistinctAlertsWithoutIdentity(t *testing.T) {
	var s Store

	poacher := tracking.Alert{Message: "poacher sighted near gate 3", Fields: map[string]any{"message": "poacher sighted near gate 3"}}
	fence := tracking.Alert{Message: "fence breach sector 9", Fields: map[string]any{"message": "fence breach sector 9"}}

	if !s.AddAlert(poacher) {
		t.Fatal("first alert rejected")
	}
	if !s.AddAlert(fence) {
		t.Fatal("second distinct alert rejected as duplicate")
	}
	if s.AddAlert(poacher) {
		t.Fatal("repeated alert accepted")
	}
	if got := len(s.Snapshot().Alerts); got != 2 {
		t.Fatalf("retained %d alerts, want 2", got)
	}
}
