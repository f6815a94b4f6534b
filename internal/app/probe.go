package app

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultProbeInterval = 15 * time.Second
	maxBackoff           = 30 * time.Second
)

// HealthChecker reports whether the backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Probe polls a HealthChecker and publishes each result as a connectivity
// reading. Consecutive failures back off exponentially up to maxBackoff.
type Probe struct {
	checker  HealthChecker
	interval time.Duration
	logger   *slog.Logger
	feed     chan bool
}

// NewProbe builds a Probe. A non-positive interval uses the default.
func NewProbe(checker HealthChecker, interval time.Duration, logger *slog.Logger) *Probe {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		checker:  checker,
		interval: interval,
		logger:   logger,
		feed:     make(chan bool, 1),
	}
}

// Feed returns the readings channel. It is closed when Run returns.
func (p *Probe) Feed() <-chan bool {
	return p.feed
}

// Run probes until ctx is done. The first probe runs immediately.
func (p *Probe) Run(ctx context.Context) error {
	defer close(p.feed)

	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := p.checker.Health(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			p.logger.Debug("health probe failed", "failures", failures, "error", err)
		} else {
			failures = 0
		}

		select {
		case p.feed <- err == nil:
		case <-ctx.Done():
			return nil
		}
		timer.Reset(calculateBackoff(failures, p.interval))
	}
}

// calculateBackoff doubles interval per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, interval time.Duration) time.Duration {
	if failures <= 0 {
		return interval
	}
	backoff := interval
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}
