package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"

	ws "edulink/internal/infrastructure/websocket"
	"edulink/pkg/logger"
)

// ConnState is the lifecycle state of the live channel.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	maxReconnectAttempts = 5
	baseReconnectDelay   = time.Second
	maxReconnectDelay    = 10 * time.Second
)

// ErrAuthRejected marks a handshake refused for credentials. Reconnecting
// with the same token cannot succeed, so the manager stops instead of
// retrying.
var ErrAuthRejected = fmt.Errorf("websocket handshake rejected: invalid credentials")

// Conn is the subset of a WebSocket connection the manager drives. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens the live channel. The default dialer speaks WebSocket with
// the auth token in the query string.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := gorillaws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuthRejected
		}
		return nil, err
	}
	return conn, nil
}

// EventFunc receives every decoded server frame.
type EventFunc func(env *ws.Envelope)

// StateFunc observes state transitions.
type StateFunc func(state ConnState)

// ConnectionManager owns the live channel: it dials, identifies the user,
// pumps inbound frames, and reconnects with linearly growing delays when the
// connection drops. After five failed attempts it parks in StateFailed until
// Connect is called again.
type ConnectionManager struct {
	url    string
	userID string

	dialer        Dialer
	onEvent       EventFunc
	onStateChange StateFunc

	baseDelay time.Duration
	maxDelay  time.Duration

	mu         sync.Mutex
	conn       Conn
	state      ConnState
	generation int
	closed     bool
}

func NewConnectionManager(url, userID string, onEvent EventFunc) *ConnectionManager {
	return &ConnectionManager{
		url:       url,
		userID:    userID,
		dialer:    defaultDialer,
		onEvent:   onEvent,
		baseDelay: baseReconnectDelay,
		maxDelay:  maxReconnectDelay,
		state:     StateIdle,
	}
}

// SetDialer replaces the transport. Must be called before Connect.
func (m *ConnectionManager) SetDialer(d Dialer) {
	m.dialer = d
}

// SetStateListener installs a state transition observer.
func (m *ConnectionManager) SetStateListener(fn StateFunc) {
	m.onStateChange = fn
}

// State returns the current lifecycle state.
func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionManager) setState(state ConnState) {
	m.mu.Lock()
	m.state = state
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

// Connect establishes the channel and starts the read loop. It returns once
// the first dial settles; later drops are handled by the reconnect loop.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.closed = false
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.setState(StateConnecting)

	conn, err := m.dial(ctx)
	if err != nil {
		m.setState(StateFailed)
		return err
	}

	m.attach(gen, conn)
	go m.readLoop(ctx, gen, conn)
	return nil
}

// Close tears the channel down for good. A closed manager can be revived
// with Connect.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.generation++
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.setState(StateIdle)
}

// Send marshals an event envelope onto the channel. When the channel is
// down the frame is dropped with a warning; callers needing delivery
// guarantees use the REST API.
func (m *ConnectionManager) Send(eventType string, data interface{}) {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if conn == nil || state != StateConnected {
		logger.Warn("client: dropping %s frame, channel is %s", eventType, state)
		return
	}

	env, err := ws.NewEnvelope(eventType, data)
	if err != nil {
		logger.Error("client: failed to build %s frame: %v", eventType, err)
		return
	}

	raw, err := json.Marshal(env)
	if err != nil {
		logger.Error("client: failed to marshal %s frame: %v", eventType, err)
		return
	}

	if err := conn.WriteMessage(gorillaws.TextMessage, raw); err != nil {
		logger.Warn("client: write failed for %s frame: %v", eventType, err)
	}
}

func (m *ConnectionManager) dial(ctx context.Context) (Conn, error) {
	conn, err := m.dialer(ctx, m.url)
	if err != nil {
		return nil, err
	}

	// Identify the user to the server. The server keys the registry on the
	// verified uid; the frame exists for protocol parity.
	env, err := ws.NewEnvelope(ws.EventJoinUserRoom, ws.JoinUserRoomData{UserID: m.userID})
	if err == nil {
		if raw, err := json.Marshal(env); err == nil {
			conn.WriteMessage(gorillaws.TextMessage, raw)
		}
	}

	return conn, nil
}

func (m *ConnectionManager) attach(gen int, conn Conn) {
	m.mu.Lock()
	if gen != m.generation || m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	m.setState(StateConnected)
}

func (m *ConnectionManager) readLoop(ctx context.Context, gen int, conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			stale := gen != m.generation || m.closed
			m.mu.Unlock()
			if stale {
				return
			}

			logger.Warn("client: connection dropped: %v", err)
			m.reconnect(ctx, gen)
			return
		}

		env, err := ws.Decode(raw)
		if err != nil {
			logger.Warn("client: dropping malformed frame: %v", err)
			continue
		}

		if env.Type == ws.EventPong {
			continue
		}

		if m.onEvent != nil {
			m.onEvent(env)
		}
	}
}

// reconnect retries the dial with linearly growing delays, giving up after
// maxReconnectAttempts or on an auth rejection.
func (m *ConnectionManager) reconnect(ctx context.Context, gen int) {
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	m.setState(StateReconnecting)

	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		delay := m.baseDelay * time.Duration(attempt+1)
		if delay > m.maxDelay {
			delay = m.maxDelay
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.setState(StateFailed)
			return
		}

		m.mu.Lock()
		stale := gen != m.generation || m.closed
		m.mu.Unlock()
		if stale {
			return
		}

		conn, err := m.dial(ctx)
		if err == ErrAuthRejected {
			logger.Error("client: reconnect rejected for credentials, giving up")
			m.setState(StateFailed)
			return
		}
		if err != nil {
			logger.Warn("client: reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		m.attach(gen, conn)
		go m.readLoop(ctx, gen, conn)
		return
	}

	logger.Error("client: giving up after %d reconnect attempts", maxReconnectAttempts)
	m.setState(StateFailed)
}
