// Package ui provides the tracksync operator console, a Bubble Tea program
// that polls the runtime once per tick and renders it in four panels:
//
//   - Stream: connection status, reconnect attempt and heartbeat times
//   - Queue: pending items per lane plus failed items with their last error
//   - Cache: every collection with its age, freshness and last error
//   - Live: animal count, backend state and the most recent alerts
//
// Below the panels a viewport follows the tail of the runtime's JSON log
// file. Actions (flush, refresh, requeue) run as commands so a slow backend
// never blocks rendering; their outcome is shown in the footer. The f and u
// keys open a prompt for an animal id, save the followed set to prefs and
// update the stream subscription.
//
// The console reads components through small interfaces so tests can drive
// it without a network.
package ui
