// Package app is the composition root for tracksync.
//
// # Overview
//
// Runtime builds one instance of each component from a config.Config and
// owns their goroutines:
//
//  1. Open the queue store (badger, sqlite, file or memory)
//  2. Register the cache keys against REST collections
//  3. Build the stream manager with the persisted animal subscriptions
//  4. Build the outbound queue on top of the connectivity watcher
//  5. Subscribe the live view and cache warming to stream events
//
// Start launches the loops under one errgroup: queue auto-sync, the health
// probe, the connectivity watcher, the metrics listener, and the cache
// refresh tickers. Shutdown closes the stream with a normal closure, cancels
// the loops, waits for them and closes the store.
//
// # Data Flow
//
//	stream frames ──► events.Dispatcher ──► state.Store (live view)
//	                                    └─► cache.Warm (push track)
//
//	Probe ──► netwatch.Watcher ──► outbox.SyncAll + cache.RefreshAll
//	                           └─► stream reconnect when it had failed
//
// # Probe
//
// Probe polls GET /health and publishes one boolean per check. Failures back
// off exponentially from the probe interval up to 30s, so an unreachable
// backend is not hammered while the watcher already knows it is offline.
package app
