// Package realtime maintains the tracking stream: one websocket per Manager,
// reconnected with bounded exponential backoff after unintended closes.
//
// Status moves only along these edges:
//
//	Disconnected --Connect--> Connecting
//	Failed       --Connect--> Connecting (attempt reset)
//	Connecting   --open-----> Connected
//	Connecting   --dial err-> Reconnecting | Failed
//	Connected    --close----> Reconnecting | Failed  (code != 1000)
//	Connected    --close----> Disconnected           (code == 1000)
//	Reconnecting --timer----> Connecting
//	any          --Disconnect--> Disconnected
//
// Inbound frames are decoded and published on an events.Dispatcher. Every
// status change is published once on events.TopicConnection.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/five82/tracksync/internal/events"
	"github.com/five82/tracksync/internal/metrics"
	"github.com/five82/tracksync/internal/retry"
	"github.com/five82/tracksync/internal/tracking"
)

// Status is the connection status.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

var allStatuses = []string{
	string(StatusDisconnected),
	string(StatusConnecting),
	string(StatusConnected),
	string(StatusReconnecting),
	string(StatusFailed),
}

// ErrNotConnected is returned by Send when no socket is open.
var ErrNotConnected = errors.New("tracking stream not connected")

// DefaultHeartbeatInterval is used when Options leaves it unset.
const DefaultHeartbeatInterval = 30 * time.Second

// State is a snapshot of the connection.
type State struct {
	Status              Status
	Attempt             uint
	LastHeartbeatSentAt time.Time
	LastHeartbeatAckAt  time.Time
}

// ConnectionEvent is the payload published on events.TopicConnection.
type ConnectionEvent struct {
	Status  Status `json:"status"`
	Attempt uint   `json:"attempt,omitempty"`
	// Code is the close code that caused the change, when there was one.
	Code int `json:"code,omitempty"`
}

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

// Options configure a Manager.
type Options struct {
	URL    string
	Dialer Dialer
	Events *events.Dispatcher
	Logger *slog.Logger

	// Policy controls reconnect delays and the attempt budget.
	Policy retry.Policy
	// HeartbeatInterval is the ping period while connected.
	HeartbeatInterval time.Duration
	// PongTimeout forces an abnormal close when a ping goes unanswered for
	// this long. Zero disables the check.
	PongTimeout time.Duration

	// Subscriptions are animal ids re-sent after every successful open.
	Subscriptions []string

	AfterFunc func(d time.Duration, f func()) Timer
	Now       func() time.Time
}

// Manager owns the stream socket. Create it with New.
type Manager struct {
	url         string
	dialer      Dialer
	events      *events.Dispatcher
	logger      *slog.Logger
	policy      retry.Policy
	heartbeat   time.Duration
	pongTimeout time.Duration
	afterFunc   func(time.Duration, func()) Timer
	now         func() time.Time

	writeMu sync.Mutex

	mu     sync.Mutex
	ctx    context.Context
	state  State
	conn   Conn
	gen    uint64
	manual bool
	timer  Timer
	stopHB chan struct{}
	subs   map[string]struct{}
	// awaiting is when the oldest unanswered ping was sent.
	awaiting time.Time
}

// New builds a disconnected Manager.
func New(opts Options) (*Manager, error) {
	if opts.URL == "" {
		return nil, errors.New("stream url is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Events == nil {
		opts.Events = events.New(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		url:         opts.URL,
		dialer:      opts.Dialer,
		events:      opts.Events,
		logger:      opts.Logger,
		policy:      opts.Policy,
		heartbeat:   opts.HeartbeatInterval,
		pongTimeout: opts.PongTimeout,
		afterFunc:   opts.AfterFunc,
		now:         opts.Now,
		ctx:         context.Background(),
		state:       State{Status: StatusDisconnected},
		subs:        make(map[string]struct{}),
	}
	for _, id := range opts.Subscriptions {
		if id != "" {
			m.subs[id] = struct{}{}
		}
	}
	metrics.SetConnectionStatus(string(StatusDisconnected), allStatuses)
	return m, nil
}

// State returns a snapshot of the connection.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events returns the dispatcher frames are published on.
func (m *Manager) Events() *events.Dispatcher { return m.events }

// On subscribes h to topic t.
func (m *Manager) On(t events.Topic, h events.Handler) events.Subscription {
	return m.events.On(t, h)
}

// Off removes a handler registered with On.
func (m *Manager) Off(t events.Topic, id uint64) bool {
	return m.events.Off(t, id)
}

// Connect dials the stream. It is a no-op while connecting or connected.
// Connecting from Failed resets the attempt counter. ctx bounds this dial
// and every reconnect that follows; once it is done no reconnect is armed.
//
// A dial error is returned and also enters the reconnect path.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state.Status {
	case StatusConnecting, StatusConnected:
		m.mu.Unlock()
		return nil
	case StatusFailed:
		m.state.Attempt = 0
	}
	m.ctx = ctx
	m.manual = false
	m.stopTimerLocked()
	gen, ev := m.beginConnectLocked()
	m.mu.Unlock()

	m.publish(ev)
	return m.dial(ctx, gen)
}

func (m *Manager) beginConnectLocked() (uint64, *ConnectionEvent) {
	m.gen++
	return m.gen, m.setStatusLocked(StatusConnecting, 0)
}

func (m *Manager) dial(ctx context.Context, gen uint64) error {
	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		m.logger.Warn("tracking stream dial failed", "url", m.url, "error", err)
		m.handleClose(gen, websocket.CloseAbnormalClosure)
		return fmt.Errorf("connect tracking stream: %w", err)
	}
	m.open(gen, conn)
	return nil
}

func (m *Manager) open(gen uint64, conn Conn) {
	m.mu.Lock()
	if gen != m.gen || m.manual {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.state.Attempt = 0
	m.awaiting = time.Time{}
	ev := m.setStatusLocked(StatusConnected, 0)
	stop := make(chan struct{})
	m.stopHB = stop
	subs := m.subscriptionsLocked()
	m.mu.Unlock()

	m.logger.Info("tracking stream connected", "url", m.url)
	m.publish(ev)

	go m.readLoop(gen, conn)
	go m.heartbeatLoop(gen, stop)

	for _, id := range subs {
		if err := m.write(conn, tracking.SubscribeAnimal(id)); err != nil {
			m.logger.Warn("resubscribe failed", "animal_id", id, "error", err)
			break
		}
	}
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			code := closeCode(err)
			m.logger.Debug("tracking stream read ended", "code", code, "error", err)
			m.handleClose(gen, code)
			return
		}
		m.handleFrame(frame)
	}
}

func (m *Manager) handleFrame(frame []byte) {
	msg, err := tracking.Decode(frame)
	if err != nil {
		metrics.FramesDropped.Inc()
		m.logger.Warn("dropping malformed frame", "error", err, "bytes", len(frame))
		return
	}
	metrics.FramesReceived.WithLabelValues(msg.Type()).Inc()

	switch v := msg.(type) {
	case tracking.Pong:
		m.mu.Lock()
		m.state.LastHeartbeatAckAt = m.now()
		m.awaiting = time.Time{}
		m.mu.Unlock()
	case tracking.InitialData:
		m.events.Emit(events.TopicInitialData, v)
	case tracking.PositionUpdate:
		m.events.Emit(events.TopicPositionUpdate, v)
	case tracking.AlertMessage:
		m.events.Emit(events.TopicAlert, v.Alert)
	case tracking.StateChange:
		m.events.Emit(events.TopicStateChange, v)
	case tracking.Unknown:
		m.logger.Debug("unrecognized frame type", "type", v.Kind)
		m.events.Emit(events.TopicMessage, v)
	}
}

// handleClose applies a close for connection generation gen. Closes from
// superseded connections are ignored.
func (m *Manager) handleClose(gen uint64, code int) {
	m.mu.Lock()
	if gen != m.gen || m.manual {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.conn = nil

	var ev *ConnectionEvent
	switch {
	case code == websocket.CloseNormalClosure:
		ev = m.setStatusLocked(StatusDisconnected, code)
	case m.ctx.Err() != nil:
		ev = m.setStatusLocked(StatusDisconnected, code)
	case m.policy.Exhausted(m.state.Attempt):
		ev = m.setStatusLocked(StatusFailed, code)
		m.logger.Error("tracking stream reconnect budget exhausted", "attempts", m.state.Attempt)
	default:
		m.state.Attempt++
		delay := m.policy.Delay(m.state.Attempt)
		ev = m.setStatusLocked(StatusReconnecting, code)
		m.timer = m.afterFunc(delay, func() { m.reconnect(gen) })
		metrics.ReconnectsScheduled.Inc()
		m.logger.Info("tracking stream reconnect scheduled",
			"attempt", m.state.Attempt,
			"delay", delay.String(),
			"code", code,
		)
	}
	m.mu.Unlock()
	m.publish(ev)
}

func (m *Manager) reconnect(prev uint64) {
	m.mu.Lock()
	if prev != m.gen || m.manual || m.state.Status != StatusReconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	ctx := m.ctx
	gen, ev := m.beginConnectLocked()
	m.mu.Unlock()

	m.publish(ev)
	_ = m.dial(ctx, gen)
}

// Disconnect closes the socket with code 1000 and cancels any pending
// reconnect. The Manager stays idle until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	m.gen++
	m.stopTimerLocked()
	m.stopHeartbeatLocked()
	conn := m.conn
	m.conn = nil
	ev := m.setStatusLocked(StatusDisconnected, websocket.CloseNormalClosure)
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		if err := conn.WriteClose(websocket.CloseNormalClosure, "client disconnect"); err != nil {
			m.logger.Debug("close frame not sent", "error", err)
		}
		m.writeMu.Unlock()
		_ = conn.Close()
	}
	m.publish(ev)
}

// Send writes v as a JSON frame on the open socket.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state.Status == StatusConnected
	m.mu.Unlock()
	if conn == nil || !connected {
		return ErrNotConnected
	}
	return m.write(conn, v)
}

func (m *Manager) write(conn Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// SubscribeAnimal follows one animal. The subscription is remembered and
// re-sent after every reconnect; while disconnected it is only recorded.
func (m *Manager) SubscribeAnimal(id string) error {
	if id == "" {
		return errors.New("animal id is required")
	}
	m.mu.Lock()
	m.subs[id] = struct{}{}
	m.mu.Unlock()
	return m.sendIfConnected(tracking.SubscribeAnimal(id))
}

// UnsubscribeAnimal stops following one animal.
func (m *Manager) UnsubscribeAnimal(id string) error {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
	return m.sendIfConnected(tracking.UnsubscribeAnimal(id))
}

// Subscriptions returns the followed animal ids, sorted.
func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptionsLocked()
}

func (m *Manager) subscriptionsLocked() []string {
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) sendIfConnected(v any) error {
	if err := m.Send(v); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

func (m *Manager) heartbeatLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !m.ping(gen) {
				return
			}
		}
	}
}

// ping sends one heartbeat. It returns false when the heartbeat loop should
// stop.
func (m *Manager) ping(gen uint64) bool {
	m.mu.Lock()
	if gen != m.gen || m.conn == nil {
		m.mu.Unlock()
		return false
	}
	conn := m.conn
	now := m.now()
	if m.pongTimeout > 0 && !m.awaiting.IsZero() && now.Sub(m.awaiting) >= m.pongTimeout {
		since := m.awaiting
		m.mu.Unlock()
		m.logger.Warn("heartbeat unanswered; dropping connection", "since", since)
		// The read loop sees the dropped socket as an abnormal close.
		_ = conn.Close()
		return false
	}
	if m.awaiting.IsZero() {
		m.awaiting = now
	}
	m.state.LastHeartbeatSentAt = now
	m.mu.Unlock()

	if err := m.write(conn, tracking.Ping()); err != nil {
		m.logger.Warn("heartbeat send failed", "error", err)
	}
	return true
}

func (m *Manager) setStatusLocked(s Status, code int) *ConnectionEvent {
	if m.state.Status == s {
		return nil
	}
	m.state.Status = s
	metrics.SetConnectionStatus(string(s), allStatuses)
	return &ConnectionEvent{Status: s, Attempt: m.state.Attempt, Code: code}
}

func (m *Manager) publish(ev *ConnectionEvent) {
	if ev != nil {
		m.events.Emit(events.TopicConnection, *ev)
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.stopHB != nil {
		close(m.stopHB)
		m.stopHB = nil
	}
}

// PendingReconnect reports whether a reconnect timer is armed.
func (m *Manager) PendingReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}
