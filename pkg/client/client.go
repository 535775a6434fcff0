package client

import (
	"context"
	"net/url"

	ws "edulink/internal/infrastructure/websocket"
	"edulink/pkg/errors"
)

// Config carries everything the SDK needs to talk to a messaging server.
type Config struct {
	// BaseURL is the HTTP API root, e.g. https://api.example.edu
	BaseURL string
	// WSURL is the live channel endpoint, e.g. wss://api.example.edu/ws.
	// Derived from BaseURL when empty.
	WSURL string
	// Token is the Firebase ID token of the signed-in user.
	Token string
	// UserID is the uid the token belongs to.
	UserID string
}

// Client bundles the messaging SDK: REST-backed conversation state, the
// live channel, and the notification feed.
type Client struct {
	Store         *ConversationStore
	Notifications *NotificationAggregator
	Conn          *ConnectionManager

	rest *restClient
}

// New assembles a client. Connect must be called before live events flow.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.BadRequest("BaseURL is required", nil)
	}
	if cfg.Token == "" {
		return nil, errors.BadRequest("Token is required", nil)
	}

	wsURL := cfg.WSURL
	if wsURL == "" {
		derived, err := deriveWSURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		wsURL = derived
	}

	rest := newRestClient(cfg.BaseURL, cfg.Token)
	receipts := NewReadReceiptTracker(rest)
	store := NewConversationStore(rest, receipts, cfg.UserID)
	notifications := NewNotificationAggregator()

	c := &Client{
		Store:         store,
		Notifications: notifications,
		rest:          rest,
	}

	c.Conn = NewConnectionManager(wsURL+"?token="+url.QueryEscape(cfg.Token), cfg.UserID, c.dispatch)
	return c, nil
}

// Connect opens the live channel.
func (c *Client) Connect(ctx context.Context) error {
	return c.Conn.Connect(ctx)
}

// Close tears the session down: the live channel drops and the store stops
// accepting completions. In-flight requests finish without touching state.
func (c *Client) Close() {
	c.Conn.Close()
	c.Store.Close()
}

// dispatch routes server frames: chat messages to the store, everything
// notification-shaped to the aggregator.
func (c *Client) dispatch(env *ws.Envelope) {
	switch env.Type {
	case ws.EventNewMessage:
		c.Store.ApplyEvent(env)
	case ws.EventNotification, ws.EventNewAssignment, ws.EventAssignmentGraded, ws.EventForumReply:
		c.Notifications.FromEvent(env)
	}
}

func deriveWSURL(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.BadRequest("Invalid BaseURL", err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	default:
		return "", errors.BadRequest("BaseURL must be http or https", nil)
	}

	parsed.Path = "/ws"
	return parsed.String(), nil
}
