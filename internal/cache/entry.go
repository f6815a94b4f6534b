package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FetchFunc loads one collection. The payload must be a JSON array or an
// object with a "results" array.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Source binds a cache key to its fetch function and freshness window.
type Source struct {
	Fetch FetchFunc
	TTL   time.Duration
	// Refresh schedules a background fetch every TTL.
	Refresh bool
}

// Entry is one cached collection.
type Entry struct {
	Key       string
	Items     []json.RawMessage
	FetchedAt time.Time
	TTL       time.Duration
	// PushedAt is stamped by Warm. It is tracked separately from FetchedAt
	// and never makes an entry fresh.
	PushedAt  time.Time
	LastError string
}

// Age returns how long ago the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	if e.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(e.FetchedAt)
}

// Fresh reports whether the entry is inside its freshness window.
func (e Entry) Fresh(now time.Time) bool {
	return !e.FetchedAt.IsZero() && now.Sub(e.FetchedAt) < e.TTL
}

func (e Entry) clone() Entry {
	if e.Items != nil {
		e.Items = append([]json.RawMessage(nil), e.Items...)
	}
	return e
}

var errNotCollection = errors.New("payload is neither an array nor {results: [...]}")

// Normalize extracts the item list from a collection payload.
func Normalize(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []json.RawMessage{}, nil
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode collection: %w", err)
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		return items, nil
	case '{':
		var page struct {
			Results *[]json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("decode collection: %w", err)
		}
		if page.Results == nil {
			return nil, errNotCollection
		}
		if *page.Results == nil {
			return []json.RawMessage{}, nil
		}
		return *page.Results, nil
	default:
		return nil, errNotCollection
	}
}
