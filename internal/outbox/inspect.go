package outbox

import (
	"context"
	"slices"
)

// Items returns a copy of every retained item in insertion order.
func (q *Queue) Items(ctx context.Context) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureLoadedLocked(ctx)
	return slices.Clone(q.items)
}

// Stats counts pending and failed items.
func (q *Queue) Stats(ctx context.Context) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureLoadedLocked(ctx)

	st := Stats{ByPriority: make(map[Priority]int, len(Lanes))}
	for _, it := range q.items {
		switch it.Status {
		case StatusPending:
			st.Pending++
			st.ByPriority[it.Priority]++
		case StatusFailed:
			st.Failed++
		}
	}
	return st
}

// Requeue puts a failed item back into its lane with its retry count reset.
// It is the operator's way to resubmit; failed items are never retried
// automatically.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureLoadedLocked(ctx)

	i := q.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	if q.items[i].Status != StatusFailed {
		return ErrNotFailed
	}
	resetForRetry(&q.items[i])
	q.persistLocked(ctx)
	q.logger.Info("queue item requeued", "id", id)
	return nil
}

// RequeueFailed requeues every failed item and returns how many moved.
func (q *Queue) RequeueFailed(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureLoadedLocked(ctx)

	n := 0
	for i := range q.items {
		if q.items[i].Status == StatusFailed {
			resetForRetry(&q.items[i])
			n++
		}
	}
	if n > 0 {
		q.persistLocked(ctx)
		q.logger.Info("failed queue items requeued", "count", n)
	}
	return n
}

// PurgeFailed drops every failed item and returns how many were removed.
func (q *Queue) PurgeFailed(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureLoadedLocked(ctx)

	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(it Item) bool {
		return it.Status == StatusFailed
	})
	n := before - len(q.items)
	if n > 0 {
		q.persistLocked(ctx)
		q.logger.Info("failed queue items purged", "count", n)
	}
	return n
}

func resetForRetry(it *Item) {
	it.Status = StatusPending
	it.Retries = 0
	it.LastError = ""
}
