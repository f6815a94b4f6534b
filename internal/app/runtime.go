package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/five82/tracksync/internal/cache"
	"github.com/five82/tracksync/internal/config"
	"github.com/five82/tracksync/internal/events"
	"github.com/five82/tracksync/internal/kvstore"
	"github.com/five82/tracksync/internal/metrics"
	"github.com/five82/tracksync/internal/netwatch"
	"github.com/five82/tracksync/internal/outbox"
	"github.com/five82/tracksync/internal/prefs"
	"github.com/five82/tracksync/internal/realtime"
	"github.com/five82/tracksync/internal/restapi"
	"github.com/five82/tracksync/internal/state"
	"github.com/five82/tracksync/internal/tracking"
)

// Cache keys the stream warms.
const (
	animalsKey = "animals"
	alertsKey  = "alerts"
)

// Options configure a Runtime.
type Options struct {
	Config config.Config
	Prefs  prefs.Prefs
	Logger *slog.Logger

	// Store overrides the configured queue backend. The Runtime does not
	// close a store it did not open.
	Store kvstore.Store
	// Dialer overrides the websocket dialer.
	Dialer realtime.Dialer
	// Health overrides the connectivity probe target.
	Health HealthChecker
}

// Runtime owns one instance of every component and their goroutines.
type Runtime struct {
	Client  *restapi.Client
	Events  *events.Dispatcher
	Stream  *realtime.Manager
	Queue   *outbox.Queue
	Cache   *cache.Coordinator
	Live    *state.Store
	Watcher *netwatch.Watcher
	Probe   *Probe

	cfg       config.Config
	logger    *slog.Logger
	store     kvstore.Store
	ownsStore bool
	subs      []events.Subscription

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	groupCtx context.Context
}

// New builds every component and wires the stream into the live view and
// the cache. Nothing runs until Start.
func New(opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := restapi.NewClient(cfg.APIBaseURL, restapi.Options{
		Tokens:            restapi.StaticToken(cfg.APIToken),
		RequestsPerSecond: cfg.APIRateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	r := &Runtime{
		Client: client,
		Events: events.New(logger.With("component", "events")),
		Live:   &state.Store{},
		cfg:    cfg,
		logger: logger,
		store:  opts.Store,
	}

	if r.store == nil {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		store, err := kvstore.Open(cfg.QueueBackend, cfg.DataDir, logger.With("component", "kvstore"))
		if err != nil {
			return nil, fmt.Errorf("open queue store: %w", err)
		}
		r.store = store
		r.ownsStore = true
	}

	r.Cache = cache.New(logger.With("component", "cache"))
	for _, key := range cfg.CacheKeys() {
		src := cfg.Cache[key]
		if err := r.Cache.Register(key, cache.Source{
			Fetch:   client.Collection(src.Path),
			TTL:     src.TTL,
			Refresh: src.Refresh,
		}); err != nil {
			r.closeStore()
			return nil, err
		}
	}

	streamURL, err := realtime.StreamURL(cfg.APIBaseURL, cfg.TrackingPath)
	if err != nil {
		r.closeStore()
		return nil, err
	}
	r.Stream, err = realtime.New(realtime.Options{
		URL:               streamURL,
		Dialer:            opts.Dialer,
		Events:            r.Events,
		Logger:            logger.With("component", "realtime"),
		Policy:            cfg.Reconnect,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PongTimeout:       cfg.PongTimeout,
		Subscriptions:     opts.Prefs.Following,
	})
	if err != nil {
		r.closeStore()
		return nil, fmt.Errorf("init stream: %w", err)
	}

	r.Watcher = netwatch.New(netwatch.Options{
		Refresher: r.Cache,
		OnStatus:  r.onConnectivity,
		Logger:    logger.With("component", "netwatch"),
	})

	r.Queue, err = outbox.New(outbox.Options{
		Store:            r.store,
		Transport:        client,
		Connectivity:     r.Watcher,
		Logger:           logger.With("component", "outbox"),
		HighLaneInterval: cfg.HighLaneInterval,
		FullSyncInterval: cfg.FullSyncInterval,
	})
	if err != nil {
		r.closeStore()
		return nil, fmt.Errorf("init queue: %w", err)
	}
	r.Watcher.SetSyncer(r.Queue)

	health := opts.Health
	if health == nil {
		health = client
	}
	r.Probe = NewProbe(health, cfg.ProbeInterval, logger.With("component", "probe"))

	r.bind()
	return r, nil
}

// bind routes stream events into the live view and warms the cache.
func (r *Runtime) bind() {
	r.subs = append(r.subs,
		r.Events.On(events.TopicInitialData, func(e events.Event) {
			msg := e.Payload.(tracking.InitialData)
			r.Live.ReplaceAnimals(msg.Animals)
			r.warmAnimals()
		}),
		r.Events.On(events.TopicPositionUpdate, func(e events.Event) {
			msg := e.Payload.(tracking.PositionUpdate)
			r.Live.MergeAnimals(msg.Animals)
			r.warmAnimals()
		}),
		r.Events.On(events.TopicAlert, func(e events.Event) {
			alert := e.Payload.(tracking.Alert)
			if !r.Live.AddAlert(alert) {
				return
			}
			r.logger.Info("alert received",
				"alert_id", alert.ID,
				"animal_id", alert.AnimalID,
				"type", alert.Kind,
				"severity", alert.Severity,
			)
			r.warmAlerts()
		}),
		r.Events.On(events.TopicStateChange, func(e events.Event) {
			change := e.Payload.(tracking.StateChange)
			r.Live.SetBackendState(change)
			r.logger.Info("backend state changed", "status", change.Status, "message", change.Message)
		}),
		r.Events.On(events.TopicConnection, func(e events.Event) {
			ev := e.Payload.(realtime.ConnectionEvent)
			r.logger.Debug("stream status", "status", string(ev.Status), "attempt", ev.Attempt)
		}),
	)
}

func (r *Runtime) warmAnimals() {
	snap := r.Live.Snapshot()
	ids := make([]string, 0, len(snap.Animals))
	for id := range snap.Animals {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	items := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		raw, err := json.Marshal(snap.Animals[id])
		if err != nil {
			r.logger.Warn("skipping unencodable animal record", "animal_id", id, "error", err)
			continue
		}
		items = append(items, raw)
	}
	r.Cache.Warm(animalsKey, items)
}

func (r *Runtime) warmAlerts() {
	snap := r.Live.Snapshot()
	items := make([]json.RawMessage, 0, len(snap.Alerts))
	for _, a := range snap.Alerts {
		raw, err := json.Marshal(a)
		if err != nil {
			continue
		}
		items = append(items, raw)
	}
	r.Cache.Warm(alertsKey, items)
}

// onConnectivity revives a stream that gave up while the network was down.
func (r *Runtime) onConnectivity(online bool) {
	if !online {
		return
	}
	if r.Stream.State().Status != realtime.StatusFailed {
		return
	}
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return
	}
	r.logger.Info("network back; reconnecting failed stream")
	go func() { _ = r.Stream.Connect(r.streamContext()) }()
}

func (r *Runtime) streamContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupCtx == nil {
		return context.Background()
	}
	return r.groupCtx
}

// Start loads the queue, connects the stream, and launches the background
// loops. A failed first dial is logged; the stream keeps retrying.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("runtime already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	r.started = true
	r.cancel = cancel
	r.group = g
	r.groupCtx = gctx
	r.mu.Unlock()

	r.Queue.EnsureLoaded(gctx)
	r.Cache.StartRefresh(gctx)

	g.Go(func() error { return r.Queue.Run(gctx) })
	g.Go(func() error { return r.Probe.Run(gctx) })
	g.Go(func() error { return r.Watcher.Run(gctx, r.Probe.Feed()) })
	g.Go(func() error { return metrics.Serve(gctx, r.cfg.MetricsAddr, r.logger.With("component", "metrics")) })

	if err := r.Stream.Connect(gctx); err != nil {
		r.logger.Warn("initial stream connect failed; retrying in background", "error", err)
	}
	r.logger.Info("runtime started",
		"api", r.Client.BaseURL(),
		"queue_backend", r.cfg.QueueBackend,
		"cache_keys", len(r.Cache.Keys()),
	)
	return nil
}

// Wait blocks until every background loop has exited.
func (r *Runtime) Wait() error {
	r.mu.Lock()
	g := r.group
	r.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()
	r.Cache.Wait()
	return err
}

// Shutdown closes the stream with a normal closure, stops the background
// loops and closes the queue store. It waits for the loops until ctx is
// done; the store is closed only once they have all exited.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.Stream.Disconnect()

	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan error, 1)
	go func() { done <- r.Wait() }()

	for _, s := range r.subs {
		s.Unsubscribe()
	}
	r.subs = nil

	select {
	case err := <-done:
		return errors.Join(err, r.closeStore())
	case <-ctx.Done():
		// Loops still running may persist the queue; leave the store open.
		r.logger.Warn("shutdown timed out; queue store left open", "error", ctx.Err())
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (r *Runtime) closeStore() error {
	if !r.ownsStore || r.store == nil {
		return nil
	}
	store := r.store
	r.store = nil
	if err := store.Close(); err != nil {
		return fmt.Errorf("close queue store: %w", err)
	}
	return nil
}
