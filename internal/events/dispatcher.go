// Package events is a typed publish/subscribe fan-out.
//
// Emission iterates a snapshot of the topic's listeners, so handlers may
// subscribe or unsubscribe while an event is being delivered. Each handler
// runs inside its own recover boundary: a panicking subscriber is logged
// and skipped, and the remaining subscribers still receive the event.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Topic names an event stream.
type Topic string

// Topics emitted by the realtime connection.
const (
	TopicConnection     Topic = "connection"
	TopicInitialData    Topic = "initial_data"
	TopicPositionUpdate Topic = "position_update"
	TopicAlert          Topic = "alert"
	TopicStateChange    Topic = "state_change"
	// TopicMessage carries frames whose type is not recognized.
	TopicMessage Topic = "message"
)

// Event is one delivery.
type Event struct {
	Topic   Topic
	Payload any
	At      time.Time
}

// Handler receives events for a topic.
type Handler func(Event)

type listener struct {
	id      uint64
	handler Handler
}

// Dispatcher fans events out to per-topic listeners. The zero value is not
// usable; call New.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[Topic][]listener
	nextID    atomic.Uint64
	logger    *slog.Logger
	failures  atomic.Uint64
}

// New returns an empty dispatcher. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		listeners: make(map[Topic][]listener),
		logger:    logger,
	}
}

// Subscription identifies one registered handler.
type Subscription struct {
	ID    uint64
	Topic Topic
	d     *Dispatcher
}

// Unsubscribe removes the handler. Calling it more than once is harmless.
func (s Subscription) Unsubscribe() {
	if s.d != nil {
		s.d.Off(s.Topic, s.ID)
	}
}

// On registers h for topic t.
func (d *Dispatcher) On(t Topic, h Handler) Subscription {
	id := d.nextID.Add(1)
	d.mu.Lock()
	d.listeners[t] = append(d.listeners[t], listener{id: id, handler: h})
	d.mu.Unlock()
	return Subscription{ID: id, Topic: t, d: d}
}

// Off removes the handler with the given id from topic t. It reports whether
// a handler was removed.
func (d *Dispatcher) Off(t Topic, id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.listeners[t]
	for i, l := range current {
		if l.id != id {
			continue
		}
		// Copy so snapshots held by in-progress emits stay intact.
		next := make([]listener, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(d.listeners, t)
		} else {
			d.listeners[t] = next
		}
		return true
	}
	return false
}

// Count returns the number of handlers registered for t.
func (d *Dispatcher) Count(t Topic) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[t])
}

// HandlerFailures returns how many handler invocations have panicked.
func (d *Dispatcher) HandlerFailures() uint64 {
	return d.failures.Load()
}

// Emit delivers payload to every handler registered for t at the time of the
// call.
func (d *Dispatcher) Emit(t Topic, payload any) {
	d.mu.RLock()
	snapshot := d.listeners[t]
	d.mu.RUnlock()
	if len(snapshot) == 0 {
		return
	}

	event := Event{Topic: t, Payload: payload, At: time.Now()}
	for _, l := range snapshot {
		d.invoke(l, event)
	}
}

func (d *Dispatcher) invoke(l listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failures.Add(1)
			d.logger.Error("event handler panicked",
				"topic", string(event.Topic),
				"subscription", l.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	l.handler(event)
}
