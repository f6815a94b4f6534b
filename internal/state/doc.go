// Package state holds the live view of tracked animals fed by the stream.
//
// # Overview
//
// The realtime connection decodes frames on its reader goroutine; consumers
// (the operator console, HTTP handlers, tests) read the view from their own
// goroutines. Store is the coordination point between the two.
//
//	Producer (stream reader):       Consumer (console):
//	┌──────────────────────┐       ┌────────────────────┐
//	│ initial_data         │──────→│ store.Snapshot()   │
//	│   ReplaceAnimals()   │(mutex)│      ↓             │
//	│ position_update      │       │ render             │
//	│   MergeAnimals()     │       │                    │
//	│ alert → AddAlert()   │       │                    │
//	└──────────────────────┘       └────────────────────┘
//
// # Update Semantics
//
// The two animal operations differ on purpose:
//
//	// Full snapshot: everything not in the frame disappears
//	store.ReplaceAnimals(frame.Animals)
//
//	// Incremental: field-level merge keyed by animal id
//	store.MergeAnimals([{id:"A1", speed:4}])
//	store.MergeAnimals([{id:"A1", battery:70}])
//	→ A1 = {id:"A1", speed:4, battery:70}
//
// Alerts are de-duplicated by key while they are retained. The store keeps
// the newest AlertLimit alerts; once an alert falls out of the window its key
// is forgotten.
//
// # Copying
//
// Snapshot and Animal return copies. Records are shallow-copied field maps,
// so nested values from the backend (arrays, objects) are shared and must be
// treated as read-only.
//
// The zero Store is ready to use.
package state
