// Package netwatch turns a connectivity feed into sync actions: every change
// is reported, and each offline-to-online edge flushes the outbound queue
// and optionally force-refreshes the cache.
package netwatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/five82/tracksync/internal/outbox"
)

// Syncer flushes the outbound queue.
type Syncer interface {
	SyncAll(ctx context.Context) outbox.Result
}

// Refresher refreshes cached collections.
type Refresher interface {
	RefreshAll(ctx context.Context, force bool) error
}

// Options configure a Watcher.
type Options struct {
	Syncer Syncer
	// Refresher, when set, is force-refreshed on every reconnect.
	Refresher Refresher
	// OnStatus is called on every change, before any sync work.
	OnStatus func(online bool)
	Logger   *slog.Logger
	// Initial is the assumed state before the first observation.
	Initial bool
}

// Watcher debounces the feed by remembering the previous value only.
type Watcher struct {
	syncer    Syncer
	refresher Refresher
	onStatus  func(bool)
	logger    *slog.Logger

	mu     sync.Mutex
	online bool
}

// New builds a Watcher.
func New(opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		syncer:    opts.Syncer,
		refresher: opts.Refresher,
		onStatus:  opts.OnStatus,
		logger:    logger,
		online:    opts.Initial,
	}
}

// SetSyncer replaces the queue flushed on reconnect. It exists because the
// queue itself takes the Watcher as its connectivity source.
func (w *Watcher) SetSyncer(s Syncer) {
	w.mu.Lock()
	w.syncer = s
	w.mu.Unlock()
}

// Online reports the last observed state. It satisfies outbox.Connectivity.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Observe records one reading. Repeated equal readings do nothing.
func (w *Watcher) Observe(ctx context.Context, online bool) {
	w.mu.Lock()
	if online == w.online {
		w.mu.Unlock()
		return
	}
	w.online = online
	syncer := w.syncer
	w.mu.Unlock()

	w.logger.Info("connectivity changed", "online", online)
	if w.onStatus != nil {
		w.onStatus(online)
	}
	if !online {
		return
	}

	if syncer != nil {
		res := syncer.SyncAll(ctx)
		w.logger.Info("queue flushed after reconnect",
			"attempted", res.Attempted,
			"delivered", res.Delivered,
			"exhausted", res.Exhausted,
		)
	}
	if w.refresher != nil {
		if err := w.refresher.RefreshAll(ctx, true); err != nil {
			w.logger.Warn("cache refresh after reconnect failed", "error", err)
		}
	}
}

// Run consumes feed until ctx is done or feed is closed.
func (w *Watcher) Run(ctx context.Context, feed <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case online, ok := <-feed:
			if !ok {
				return nil
			}
			w.Observe(ctx, online)
		}
	}
}
