package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"edulink/pkg/logger"
)

// fanoutChannel is the Redis pub/sub channel shared by all instances.
// A message for a user connected elsewhere is published here and delivered
// by whichever instance holds that user's connection.
const fanoutChannel = "edulink:fanout"

type fanoutEnvelope struct {
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// EventHandler receives decoded client frames. Wired in at startup to avoid
// an import cycle between the transport and the use cases.
type EventHandler func(client *Client, env *Envelope)

// Manager owns the registry of live channels, one per authenticated user.
// Only the manager may register or drop connections.
type Manager struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
	redis      *redis.Client
	handler    EventHandler
}

// NewManager creates a connection manager. The Redis client is optional;
// without it fan-out is limited to locally connected users.
func NewManager(redisClient *redis.Client) *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		redis:      redisClient,
	}
}

// SetEventHandler installs the dispatcher for inbound client frames.
func (m *Manager) SetEventHandler(h EventHandler) {
	m.handler = h
}

// Start runs the registry loop in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	if m.redis != nil {
		go m.subscribeFanout(ctx)
	}

	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				// One channel per user: a second connect replaces the first.
				// Closing under the write lock keeps the close ordered with
				// deliveries, which hold the read lock.
				if existing, ok := m.clients[client.UserID]; ok {
					close(existing.Send)
				}
				m.clients[client.UserID] = client
				m.mutex.Unlock()
				logger.Info("websocket: client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if current, ok := m.clients[client.UserID]; ok && current == client {
					delete(m.clients, client.UserID)
					close(client.Send)
				}
				m.mutex.Unlock()
				logger.Info("websocket: client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// IsConnected reports whether a user has a live channel on this instance.
func (m *Manager) IsConnected(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.clients[userID]
	return ok
}

// deliverLocked pushes a payload onto a client channel without blocking.
// Callers must hold at least the read lock: Send is only ever closed under
// the write lock, so a send here cannot hit a closed channel.
func (m *Manager) deliverLocked(client *Client, payload []byte) bool {
	select {
	case client.Send <- payload:
		return true
	default:
		return false
	}
}

// SendToUser delivers a payload to a user's channel. If the user is not
// connected locally the payload is published on Redis so a sibling instance
// can deliver it; a disconnected user simply misses the event (the persisted
// record is picked up on their next bulk load).
func (m *Manager) SendToUser(userID string, payload []byte) {
	m.mutex.RLock()
	client, ok := m.clients[userID]
	delivered := ok && m.deliverLocked(client, payload)
	m.mutex.RUnlock()

	if ok {
		if !delivered {
			logger.Warn("websocket: send buffer full for user %s, dropping connection", userID)
			m.Unregister <- client
		}
		return
	}

	if m.redis == nil {
		return
	}

	env := fanoutEnvelope{UserID: userID, Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		logger.Error("websocket: failed to marshal fanout envelope: %v", err)
		return
	}

	if err := m.redis.Publish(context.Background(), fanoutChannel, raw).Err(); err != nil {
		logger.Warn("websocket: redis publish failed for user %s: %v", userID, err)
	}
}

// SendEvent wraps a payload into an envelope and delivers it to a user.
func (m *Manager) SendEvent(userID, eventType string, data interface{}) {
	env, err := NewEnvelope(eventType, data)
	if err != nil {
		logger.Error("websocket: failed to build %s event for user %s: %v", eventType, userID, err)
		return
	}

	raw, err := json.Marshal(env)
	if err != nil {
		logger.Error("websocket: failed to marshal %s event for user %s: %v", eventType, userID, err)
		return
	}

	m.SendToUser(userID, raw)
}

func (m *Manager) subscribeFanout(ctx context.Context) {
	pubsub := m.redis.Subscribe(ctx, fanoutChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("websocket: dropping malformed fanout message: %v", err)
				continue
			}

			m.mutex.RLock()
			client, connected := m.clients[env.UserID]
			delivered := connected && m.deliverLocked(client, env.Payload)
			m.mutex.RUnlock()

			if connected && !delivered {
				logger.Warn("websocket: send buffer full for user %s, dropping connection", env.UserID)
				m.Unregister <- client
			}

		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) dispatch(client *Client, env *Envelope) {
	switch env.Type {
	case EventPing:
		pong, err := NewEnvelope(EventPong, map[string]string{"status": "alive"})
		if err == nil {
			if raw, err := json.Marshal(pong); err == nil {
				m.SendToUser(client.UserID, raw)
			}
		}

	default:
		if m.handler == nil {
			logger.Warn("websocket: no handler installed, dropping %s frame from %s", env.Type, client.UserID)
			return
		}
		m.handler(client, env)
	}
}

func (m *Manager) sendError(client *Client, message string) {
	env, err := NewEnvelope(EventError, ErrorData{Error: message, UserID: client.UserID})
	if err != nil {
		return
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return
	}

	m.SendToUser(client.UserID, raw)
}
