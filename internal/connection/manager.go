// Package connection maintains the single logical push connection to the
// backend: dial and authenticate, watch liveness, reconnect with backoff,
// hold outgoing messages while offline, and fan decoded messages out to
// subscribers.
package connection

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	apperrors "socsync/internal/errors"
	"socsync/internal/metrics"
	"socsync/internal/transform/push"
	"socsync/pkg/models"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// StateChange describes one transition. DisconnectedFor is set on
// transitions into StateConnected that follow an earlier connection.
type StateChange struct {
	From            State
	To              State
	Attempt         int
	Err             error
	At              time.Time
	DisconnectedFor time.Duration
}

// Config controls connection behavior.
type Config struct {
	Token             string
	ReconnectInterval time.Duration
	MaxReconnectDelay time.Duration
	MaxAttempts       int
	HeartbeatTimeout  time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	QueueSize         int
	// Jitter is the +/- fraction applied to backoff delays. Zero disables it.
	Jitter float64
}

func (c Config) withDefaults() Config {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 60 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// Status is a point-in-time view of the connection.
type Status struct {
	State            State     `json:"state"`
	ReconnectAttempt int       `json:"reconnect_attempt"`
	LastError        string    `json:"last_error,omitempty"`
	QueueLen         int       `json:"queue_len"`
	ConnectedAt      time.Time `json:"connected_at,omitempty"`
	DisconnectedAt   time.Time `json:"disconnected_at,omitempty"`
}

// Manager owns one logical push connection.
type Manager struct {
	cfg       Config
	transport Transport
	log       zerolog.Logger
	now       func() time.Time

	mu             sync.RWMutex
	state          State
	attempt        int
	budgetStart    int // attempt value when the current retry budget began
	lastErr        error
	connectedAt    time.Time
	disconnectedAt time.Time
	held           bool
	resume         bool
	conn           Conn
	connCancel     context.CancelFunc

	// sendMu orders writes: queued messages are flushed before new ones.
	sendMu sync.Mutex
	queue  *Queue

	lastSeen    atomic.Int64
	reconnectCh chan struct{}

	registry    registry
	stateObs    observers[StateChange]
	errorObs    observers[error]
	overflowObs observers[*models.Message]
	frameObs    observers[Frame]
}

// NewManager creates a manager. Nothing is dialed until Run.
func NewManager(cfg Config, transport Transport, logger zerolog.Logger) *Manager {
	m := &Manager{
		cfg:         cfg.withDefaults(),
		transport:   transport,
		log:         logger,
		now:         time.Now,
		state:       StateDisconnected,
		reconnectCh: make(chan struct{}, 1),
	}
	m.queue = NewQueue(m.cfg.QueueSize)
	m.registry.log = logger
	return m
}

// Subscribe registers h for one message type. Handlers run in registration
// order on the connection's read goroutine.
func (m *Manager) Subscribe(msgType models.MessageType, h Handler) func() {
	return m.registry.add(msgType, h)
}

// SubscribeAll registers h for every message.
func (m *Manager) SubscribeAll(h Handler) func() {
	return m.registry.add("", h)
}

// OnConnectionChange registers fn for state transitions. fn runs
// synchronously after the new state is visible through State.
func (m *Manager) OnConnectionChange(fn func(StateChange)) func() {
	return m.stateObs.add(fn)
}

// OnError registers fn for transport and authentication failures.
func (m *Manager) OnError(fn func(error)) func() {
	return m.errorObs.add(fn)
}

// OnQueueOverflow registers fn for messages evicted from a full queue.
func (m *Manager) OnQueueOverflow(fn func(*models.Message)) func() {
	return m.overflowObs.add(fn)
}

// OnFrame registers fn for raw frames read after authentication and for
// frames written by Send. The auth frame is never reported.
func (m *Manager) OnFrame(fn func(Frame)) func() {
	return m.frameObs.add(fn)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ReconnectAttempt returns the reconnect counter.
func (m *Manager) ReconnectAttempt() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempt
}

// Status returns a snapshot of the connection.
func (m *Manager) Status() Status {
	m.sendMu.Lock()
	queued := m.queue.Len()
	m.sendMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{
		State:            m.state,
		ReconnectAttempt: m.attempt,
		QueueLen:         queued,
		ConnectedAt:      m.connectedAt,
		DisconnectedAt:   m.disconnectedAt,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Run connects and keeps the connection alive until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			m.transition(StateDisconnected, nil)
			return err
		}

		if m.waitForManual(ctx) {
			continue
		}

		err := m.connectOnce(ctx)
		if ctx.Err() != nil {
			continue
		}
		if m.isHeld() {
			m.transition(StateDisconnected, nil)
			continue
		}
		if apperrors.IsAuthError(err) {
			m.log.Error().Err(err).Msg("Push channel authentication failed, manual reconnect required")
			m.transition(StateError, err)
			continue
		}
		if err == nil {
			err = apperrors.Wrap(apperrors.KindTransport, "serve", fmt.Errorf("connection closed by peer"))
		}

		m.transition(StateDisconnected, err)
		attempt, used := m.nextAttempt()
		if used > m.cfg.MaxAttempts {
			m.log.Error().Err(err).Int("attempts", used-1).Msg("Reconnect attempts exhausted")
			m.transition(StateError, apperrors.Wrap(apperrors.KindTransport, "reconnect",
				fmt.Errorf("%w after %d attempts: %v", apperrors.ErrTerminalState, used-1, err)))
			continue
		}

		delay := m.backoffDelay(used)
		if used >= 3 {
			m.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Push connection failed repeatedly")
		} else {
			m.log.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Push connection interrupted, reconnecting")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		case <-m.reconnectCh:
		}
		timer.Stop()
	}
}

// Disconnect closes the connection and stops automatic reconnects until
// Reconnect is called.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.held = true
	m.resume = false
	cancel := m.connCancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.signal()
}

// Reconnect requests an immediate connection attempt. It is the only way
// out of StateError and after Disconnect. Leaving StateError grants a fresh
// MaxAttempts budget; the attempt counter itself keeps counting until the
// next successful connect.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	m.held = false
	m.resume = true
	m.mu.Unlock()
	m.signal()
}

// Send writes msg when connected, otherwise queues it. Queue overflow
// evicts the oldest message; Send never blocks on the network beyond the
// write timeout.
func (m *Manager) Send(msg *models.Message) error {
	data, err := push.Encode(msg)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "send", err)
	}

	m.sendMu.Lock()
	m.mu.RLock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.RUnlock()

	if connected && conn != nil {
		err := m.write(conn, data)
		if err == nil {
			m.sendMu.Unlock()
			return nil
		}
		m.log.Debug().Err(err).Str("type", string(msg.Type)).Msg("Write failed, queueing message")
	}

	evicted, dropped := m.queue.Push(outbound{msg: msg, data: data})
	depth := m.queue.Len()
	m.sendMu.Unlock()

	metrics.RecordQueueDepth(depth)
	if dropped {
		m.reportDrops([]outbound{evicted})
	}
	return nil
}

func (m *Manager) connectOnce(ctx context.Context) error {
	m.transition(StateConnecting, nil)

	conn, err := m.transport.Dial(ctx, m.cfg.Token)
	if err != nil {
		return err
	}

	early, err := m.authenticate(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	return m.serve(ctx, conn, early)
}

// authenticate sends the bearer token and waits for the ack. Deltas that
// arrive before the ack are returned for dispatch once connected.
func (m *Manager) authenticate(ctx context.Context, conn Conn) ([]*models.Message, error) {
	msg, err := push.NewMessage(models.TypeAuth, models.AuthPayload{Token: m.cfg.Token})
	if err != nil {
		return nil, err
	}
	data, err := push.Encode(msg)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	if err := conn.Write(hctx, data); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "authenticate", err)
	}

	var early []*models.Message
	for {
		raw, err := conn.Read(hctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindTransport, "authenticate", err)
		}
		reply, err := push.Parse(raw)
		if err != nil {
			m.log.Warn().Err(err).Msg("Failed to decode handshake frame, skipping")
			continue
		}
		switch reply.Type {
		case models.TypeAck:
			return early, nil
		case models.TypeAuthError:
			return nil, authError(reply)
		default:
			early = append(early, reply)
		}
	}
}

func (m *Manager) serve(ctx context.Context, conn Conn, early []*models.Message) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.held {
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn = conn
	m.connCancel = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.connCancel = nil
		m.mu.Unlock()
		_ = conn.Close()
	}()

	m.touch()
	if n, ok := conn.(ActivityNotifier); ok {
		n.SetActivityHandler(m.touch)
	}

	m.markConnected(conn)
	for _, msg := range early {
		m.registry.dispatch(msg)
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			data, err := conn.Read(connCtx)
			if err != nil {
				readErr <- err
				return
			}
			m.touch()
			if err := m.handleFrame(data); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(m.watchInterval())
	defer ticker.Stop()

	for {
		select {
		case <-connCtx.Done():
			return ctx.Err()
		case err := <-readErr:
			if connCtx.Err() != nil {
				return ctx.Err()
			}
			if apperrors.KindOf(err) == "" {
				err = apperrors.Wrap(apperrors.KindTransport, "read", err)
			}
			return err
		case <-ticker.C:
			if idle := m.idle(); idle > m.cfg.HeartbeatTimeout {
				m.log.Warn().Dur("idle", idle).Msg("Push connection stalled, forcing reconnect")
				return apperrors.Wrap(apperrors.KindTransport, "heartbeat",
					fmt.Errorf("no traffic for %s", idle.Round(time.Millisecond)))
			}
		}
	}
}

func (m *Manager) handleFrame(data []byte) error {
	m.frameObs.notify(Frame{Direction: Inbound, Data: data, At: m.now()})
	msg, err := push.Parse(data)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to decode push frame, skipping")
		return nil
	}
	if msg.Type == models.TypeAuthError {
		return authError(msg)
	}
	m.registry.dispatch(msg)
	return nil
}

// markConnected flips the state and flushes the queue before any new Send
// can write, then notifies observers.
func (m *Manager) markConnected(conn Conn) {
	m.sendMu.Lock()
	change, changed := m.apply(StateConnected, nil)
	pending := m.queue.Drain()
	var dropped []outbound
	for i, item := range pending {
		if err := m.write(conn, item.data); err != nil {
			m.log.Debug().Err(err).Int("remaining", len(pending)-i).Msg("Queue flush interrupted")
			dropped = m.queue.Requeue(pending[i:])
			break
		}
	}
	depth := m.queue.Len()
	m.sendMu.Unlock()

	metrics.RecordQueueDepth(depth)
	if len(pending) > 0 {
		m.log.Info().Int("flushed", len(pending)-depth).Msg("Flushed offline queue")
	}
	m.reportDrops(dropped)
	m.log.Info().Dur("disconnected_for", change.DisconnectedFor).Msg("Push channel connected")
	if changed {
		m.stateObs.notify(change)
	}
}

func (m *Manager) write(conn Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		return err
	}
	m.frameObs.notify(Frame{Direction: Outbound, Data: data, At: m.now()})
	return nil
}

func (m *Manager) reportDrops(dropped []outbound) {
	for _, item := range dropped {
		metrics.RecordQueueDrop()
		m.log.Warn().
			Str("type", string(item.msg.Type)).
			Str("message_id", item.msg.ID).
			Int("capacity", m.queue.Cap()).
			Msg("Offline queue full, dropped oldest message")
		m.overflowObs.notify(item.msg)
	}
}

// transition changes state and notifies observers afterwards.
func (m *Manager) transition(to State, err error) {
	change, changed := m.apply(to, err)
	if changed {
		m.stateObs.notify(change)
	}
	if err != nil {
		m.errorObs.notify(err)
	}
}

func (m *Manager) apply(to State, err error) (StateChange, bool) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	m.state = to
	change := StateChange{From: from, To: to, Err: err, At: now}

	switch to {
	case StateConnected:
		if !m.disconnectedAt.IsZero() {
			change.DisconnectedFor = now.Sub(m.disconnectedAt)
		}
		m.attempt = 0
		m.budgetStart = 0
		m.lastErr = nil
		m.connectedAt = now
		m.disconnectedAt = time.Time{}
	default:
		if from == StateConnected {
			m.disconnectedAt = now
		}
	}
	if err != nil {
		m.lastErr = err
	}
	change.Attempt = m.attempt

	metrics.RecordConnectionState(string(to))
	return change, from != to
}

// nextAttempt bumps the counter. used is the position within the current
// retry budget.
func (m *Manager) nextAttempt() (attempt, used int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	metrics.RecordReconnectAttempt()
	return m.attempt, m.attempt - m.budgetStart
}

func (m *Manager) isHeld() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.held
}

// waitForManual blocks while the manager is held or in the error state.
// It returns true when the caller should re-check ctx.
func (m *Manager) waitForManual(ctx context.Context) bool {
	for {
		m.mu.Lock()
		blocked := m.held || (m.state == StateError && !m.resume)
		if !blocked {
			if m.resume && m.state == StateError {
				m.budgetStart = m.attempt
			}
			m.resume = false
			m.mu.Unlock()
			return false
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return true
		case <-m.reconnectCh:
		}
	}
}

func (m *Manager) signal() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

func (m *Manager) touch() {
	m.lastSeen.Store(m.now().UnixNano())
}

func (m *Manager) idle() time.Duration {
	return m.now().Sub(time.Unix(0, m.lastSeen.Load()))
}

func (m *Manager) watchInterval() time.Duration {
	interval := m.cfg.HeartbeatTimeout / 4
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}
	return interval
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := float64(m.cfg.ReconnectInterval) * math.Pow(2, float64(attempt-1))
	if limit := float64(m.cfg.MaxReconnectDelay); delay > limit {
		delay = limit
	}
	if m.cfg.Jitter > 0 {
		delay += delay * m.cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

func authError(msg *models.Message) error {
	env := push.DecodeError(msg)
	code := env.Code
	if code == "" {
		code = "AUTHENTICATION_FAILED"
	}
	message := env.Message
	if message == "" {
		message = "push channel rejected credentials"
	}
	return apperrors.New(apperrors.KindAuthentication, "authenticate", code, message)
}

type observer[T any] struct {
	id int
	fn func(T)
}

type observers[T any] struct {
	mu     sync.RWMutex
	nextID int
	list   []observer[T]
}

func (o *observers[T]) add(fn func(T)) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.list = append(o.list, observer[T]{id: id, fn: fn})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, ob := range o.list {
			if ob.id == id {
				o.list = append(o.list[:i:i], o.list[i+1:]...)
				return
			}
		}
	}
}

func (o *observers[T]) notify(v T) {
	o.mu.RLock()
	list := append([]observer[T](nil), o.list...)
	o.mu.RUnlock()
	for _, ob := range list {
		ob.fn(v)
	}
}
