package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types understood on the live channel. Anything else is rejected at
// the decode boundary.
const (
	// Client -> server
	EventPing                  = "ping"
	EventJoinUserRoom          = "join_user_room"
	EventSendMessage           = "send_message"
	EventMarkNotificationRead  = "mark_notification_read"
	EventClearNotification     = "clear_notification"
	EventClearAllNotifications = "clear_all_notifications"

	// Server -> client
	EventPong             = "pong"
	EventError            = "error"
	EventNewMessage       = "newMessage"
	EventNotification     = "notification"
	EventNewAssignment    = "new_assignment"
	EventAssignmentGraded = "assignment_graded"
	EventForumReply       = "forum_reply"
)

// Envelope is the wire format for every live channel frame.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// SendMessageData is the payload of a send_message frame.
type SendMessageData struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	ClientToken    string `json:"client_token,omitempty"`
}

// JoinUserRoomData is the payload of a join_user_room frame. The registry is
// keyed by the verified uid from the upgrade, so the payload is informational.
type JoinUserRoomData struct {
	UserID string `json:"user_id"`
}

// NotificationRefData carries a notification id for mark/clear frames.
type NotificationRefData struct {
	ID string `json:"id"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Error  string `json:"error"`
	UserID string `json:"user_id,omitempty"`
}

var knownEvents = map[string]bool{
	EventPing:                  true,
	EventJoinUserRoom:          true,
	EventSendMessage:           true,
	EventMarkNotificationRead:  true,
	EventClearNotification:     true,
	EventClearAllNotifications: true,
	EventPong:                  true,
	EventError:                 true,
	EventNewMessage:            true,
	EventNotification:          true,
	EventNewAssignment:         true,
	EventAssignmentGraded:      true,
	EventForumReply:            true,
}

// NewEnvelope wraps a payload into a timestamped frame. Marshal failures are
// programmer errors on our own types, so the error is surfaced, not hidden.
func NewEnvelope(eventType string, data interface{}) (Envelope, error) {
	env := Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = raw
	}

	return env, nil
}

// Decode parses a raw frame and rejects frames with missing or unknown tags.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type tag")
	}

	if !knownEvents[env.Type] {
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	return &env, nil
}

// DecodeData unmarshals an envelope payload into the typed struct for its tag.
func (e *Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("frame %q has no payload", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}
