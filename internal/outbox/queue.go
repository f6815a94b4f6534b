// Package outbox is the durable priority queue for locally-originated writes.
//
// Items are delivered through a Transport in strict lane order (high, then
// medium, then low), one at a time, and the full queue is persisted after
// every mutation so a restart resumes with the same pending set. Delivery is
// at-least-once: a crash between a successful submit and the following
// persist re-sends that item on the next flush.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/tracksync/internal/kvstore"
	"github.com/five82/tracksync/internal/metrics"
	"github.com/five82/tracksync/internal/retry"
)

// StorageKey is where the queue is persisted.
const StorageKey = "offline_queue"

const defaultHighLaneInterval = 10 * time.Second

// Options configure a Queue.
type Options struct {
	Store        kvstore.Store
	Transport    Transport
	Connectivity Connectivity // nil means always online
	Logger       *slog.Logger

	// Policies holds per-priority attempt budgets. Missing lanes use
	// DefaultPolicies.
	Policies map[Priority]retry.Policy

	// HighLaneInterval is the auto-sync period for the high lane.
	HighLaneInterval time.Duration
	// FullSyncInterval additionally flushes every lane when online. Zero
	// disables it; the full flush then only runs on reconnect.
	FullSyncInterval time.Duration

	Now   func() time.Time
	NewID func() string
}

// Queue is the durable priority queue. Create it with New.
type Queue struct {
	store        kvstore.Store
	transport    Transport
	connectivity Connectivity
	logger       *slog.Logger
	policies     map[Priority]retry.Policy
	highEvery    time.Duration
	fullEvery    time.Duration
	now          func() time.Time
	newID        func() string

	// flushMu serializes lane flushes so persistence writes never overlap.
	flushMu sync.Mutex

	mu     sync.Mutex
	items  []Item
	loaded bool
}

// New builds a queue. Store and Transport are required.
func New(opts Options) (*Queue, error) {
	if opts.Store == nil {
		return nil, errors.New("queue requires a store")
	}
	if opts.Transport == nil {
		return nil, errors.New("queue requires a transport")
	}
	q := &Queue{
		store:        opts.Store,
		transport:    opts.Transport,
		connectivity: opts.Connectivity,
		logger:       opts.Logger,
		policies:     DefaultPolicies(),
		highEvery:    opts.HighLaneInterval,
		fullEvery:    opts.FullSyncInterval,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	for p, policy := range opts.Policies {
		q.policies[p] = policy
	}
	if q.highEvery <= 0 {
		q.highEvery = defaultHighLaneInterval
	}
	if q.now == nil {
		q.now = time.Now
	}
	if q.newID == nil {
		q.newID = uuid.NewString
	}
	return q, nil
}

// EnsureLoaded reads the persisted queue once. Later calls are no-ops. A
// store that cannot be read leaves the queue empty; the failure is logged.
func (q *Queue) EnsureLoaded(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureLoadedLocked(ctx)
}

func (q *Queue) ensureLoadedLocked(ctx context.Context) {
	if q.loaded {
		return
	}
	q.loaded = true

	raw, err := q.store.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			q.logger.Error("queue load failed; continuing with empty queue", "error", err)
		}
		return
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		q.logger.Error("queue state unreadable; continuing with empty queue", "error", err)
		return
	}
	for _, it := range items {
		if it.Status == StatusCompleted {
			continue
		}
		q.items = append(q.items, it)
	}
	q.logger.Info("queue loaded", "items", len(q.items))
	q.updateGaugesLocked()
}

// Add enqueues an operation and returns its id once the queue has been
// persisted. When online, the item's lane is flushed before Add returns.
func (q *Queue) Add(ctx context.Context, req Request) (string, error) {
	if req.Endpoint == "" {
		return "", errors.New("endpoint is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if _, err := ParsePriority(string(priority)); err != nil {
		return "", err
	}
	payload, err := encodePayload(req.Data)
	if err != nil {
		return "", err
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = q.policy(priority).MaxAttempts
	}
	if maxRetries == 0 {
		maxRetries = 1
	}
	item := Item{
		ID:         q.newID(),
		Endpoint:   req.Endpoint,
		Payload:    payload,
		Priority:   priority,
		CreatedAt:  q.now(),
		Status:     StatusPending,
		MaxRetries: maxRetries,
	}

	q.mu.Lock()
	q.ensureLoadedLocked(ctx)
	q.items = append(q.items, item)
	q.persistLocked(ctx)
	q.mu.Unlock()

	q.logger.Debug("queue item added", "id", item.ID, "endpoint", item.Endpoint, "priority", string(priority))

	if q.online() {
		q.SyncByPriority(ctx, priority)
	}
	return item.ID, nil
}

func encodePayload(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return b, nil
	}
}

// SyncByPriority attempts every pending item of one lane in insertion order,
// waiting for each outcome before the next.
func (q *Queue) SyncByPriority(ctx context.Context, p Priority) Result {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	q.ensureLoadedLocked(ctx)
	var ids []string
	for _, it := range q.items {
		if it.Priority == p && it.Status == StatusPending {
			ids = append(ids, it.ID)
		}
	}
	q.mu.Unlock()

	var res Result
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		item, ok := q.pending(id)
		if !ok {
			continue
		}

		err := q.transport.Submit(ctx, Submission{Endpoint: item.Endpoint, Data: item.Payload})
		res.Attempted++
		switch q.record(ctx, id, err) {
		case StatusCompleted:
			res.Delivered++
		case StatusFailed:
			res.Exhausted++
		}
	}
	if res.Attempted > 0 {
		q.logger.Debug("lane flushed",
			"priority", string(p),
			"attempted", res.Attempted,
			"delivered", res.Delivered,
			"exhausted", res.Exhausted,
		)
	}
	return res
}

// SyncHighPriority flushes the high lane.
func (q *Queue) SyncHighPriority(ctx context.Context) Result {
	return q.SyncByPriority(ctx, PriorityHigh)
}

// SyncMediumPriority flushes the medium lane.
func (q *Queue) SyncMediumPriority(ctx context.Context) Result {
	return q.SyncByPriority(ctx, PriorityMedium)
}

// SyncLowPriority flushes the low lane.
func (q *Queue) SyncLowPriority(ctx context.Context) Result {
	return q.SyncByPriority(ctx, PriorityLow)
}

// SyncAll flushes every lane, high first. A lane is fully attempted before
// the next one starts.
func (q *Queue) SyncAll(ctx context.Context) Result {
	var total Result
	for _, p := range Lanes {
		total = total.add(q.SyncByPriority(ctx, p))
	}
	return total
}

// Run flushes the high lane every HighLaneInterval while online, and every
// lane every FullSyncInterval when that is set. It blocks until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	q.EnsureLoaded(ctx)

	high := time.NewTicker(q.highEvery)
	defer high.Stop()

	var full <-chan time.Time
	if q.fullEvery > 0 {
		t := time.NewTicker(q.fullEvery)
		defer t.Stop()
		full = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-high.C:
			if q.online() {
				q.SyncHighPriority(ctx)
			}
		case <-full:
			if q.online() {
				q.SyncAll(ctx)
			}
		}
	}
}

func (q *Queue) pending(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(id)
	if i < 0 || q.items[i].Status != StatusPending {
		return Item{}, false
	}
	return q.items[i], true
}

// record applies one delivery outcome and persists. It returns the item's
// resulting status.
func (q *Queue) record(ctx context.Context, id string, submitErr error) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return ""
	}
	item := &q.items[i]
	lane := string(item.Priority)
	result := StatusPending

	if submitErr == nil {
		result = StatusCompleted
		q.items = append(q.items[:i], q.items[i+1:]...)
		metrics.QueueSubmissions.WithLabelValues(lane, "delivered").Inc()
	} else {
		item.Retries++
		item.LastRetryAt = q.now()
		item.LastError = submitErr.Error()
		if item.Retries >= item.MaxRetries {
			item.Status = StatusFailed
			result = StatusFailed
			q.logger.Warn("queue item exhausted retries",
				"id", item.ID,
				"endpoint", item.Endpoint,
				"retries", item.Retries,
				"error", submitErr,
			)
		}
		metrics.QueueSubmissions.WithLabelValues(lane, "failed").Inc()
	}
	q.persistLocked(ctx)
	return result
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the whole queue. Failures are logged; the in-memory
// queue stays authoritative.
func (q *Queue) persistLocked(ctx context.Context) {
	q.updateGaugesLocked()
	items := q.items
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		q.logger.Error("queue encode failed", "error", err)
		return
	}
	// Persist even when the caller's context is cancelled mid-flush.
	if err := q.store.Set(context.WithoutCancel(ctx), StorageKey, raw); err != nil {
		q.logger.Error("queue persist failed; state held in memory only", "error", err)
	}
}

func (q *Queue) updateGaugesLocked() {
	var pending, failed int
	for _, it := range q.items {
		switch it.Status {
		case StatusPending:
			pending++
		case StatusFailed:
			failed++
		}
	}
	metrics.QueueItems.WithLabelValues(string(StatusPending)).Set(float64(pending))
	metrics.QueueItems.WithLabelValues(string(StatusFailed)).Set(float64(failed))
}

func (q *Queue) policy(p Priority) retry.Policy {
	if policy, ok := q.policies[p]; ok {
		return policy
	}
	return DefaultPolicies()[PriorityMedium]
}

func (q *Queue) online() bool {
	return q.connectivity == nil || q.connectivity.Online()
}
