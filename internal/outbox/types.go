package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/five82/tracksync/internal/retry"
)

// Priority selects a delivery lane.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Lanes lists priorities in flush order.
var Lanes = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority accepts high, medium or low in any case. Empty means medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Status is an item's delivery state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Item is one pending outbound operation.
type Item struct {
	ID          string          `json:"id"`
	Endpoint    string          `json:"endpoint"`
	Payload     json.RawMessage `json:"payload"`
	Priority    Priority        `json:"priority"`
	CreatedAt   time.Time       `json:"createdAt"`
	Status      Status          `json:"status"`
	Retries     uint            `json:"retries"`
	MaxRetries  uint            `json:"maxRetries"`
	LastRetryAt time.Time       `json:"lastRetryAt"`
	LastError   string          `json:"lastError,omitempty"`
}

// Request describes an operation to enqueue.
type Request struct {
	Endpoint string
	// Data is JSON-encoded into the item payload. json.RawMessage is stored
	// as is.
	Data     any
	Priority Priority
	// MaxRetries overrides the priority default when non-zero.
	MaxRetries uint
}

// Submission is what the queue hands to the transport.
type Submission struct {
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
}

// Transport delivers one submission. Any error counts as a failed attempt.
type Transport interface {
	Submit(ctx context.Context, s Submission) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, s Submission) error

func (f TransportFunc) Submit(ctx context.Context, s Submission) error { return f(ctx, s) }

// Connectivity reports whether the device is online.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() bool

func (f ConnectivityFunc) Online() bool { return f() }

// DefaultPolicies returns the per-priority attempt budgets. Safety-critical
// items get the most attempts.
func DefaultPolicies() map[Priority]retry.Policy {
	base := retry.DefaultPolicy()
	return map[Priority]retry.Policy{
		PriorityHigh:   base.WithMaxAttempts(10),
		PriorityMedium: base.WithMaxAttempts(5),
		PriorityLow:    base.WithMaxAttempts(3),
	}
}

// Stats summarizes queue contents.
type Stats struct {
	Pending    int
	Failed     int
	ByPriority map[Priority]int // pending only
}

// Result summarizes one flush.
type Result struct {
	Attempted int
	Delivered int
	Exhausted int
}

func (r Result) add(o Result) Result {
	return Result{
		Attempted: r.Attempted + o.Attempted,
		Delivered: r.Delivered + o.Delivered,
		Exhausted: r.Exhausted + o.Exhausted,
	}
}

var (
	// ErrNotFound is returned for unknown item ids.
	ErrNotFound = errors.New("queue item not found")
	// ErrNotFailed is returned when requeueing an item that has not failed.
	ErrNotFailed = errors.New("queue item has not failed")
)
