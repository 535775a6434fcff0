package client

import "time"

// Wire models for the messaging API. These mirror the server's JSON shapes
// without importing its internals, so the package stays usable as a
// standalone SDK.

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type MessageSnapshot struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID           string           `json:"id"`
	Participants []string         `json:"participants"`
	Type         string           `json:"type"`
	LastMessage  *MessageSnapshot `json:"last_message,omitempty"`
	Archived     bool             `json:"archived"`
	UnreadCount  map[string]int   `json:"unread_count,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Users        []*User          `json:"users,omitempty"`
}

type ReadReceipt struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	Type           string        `json:"type"`
	ClientToken    string        `json:"client_token,omitempty"`
	ReadBy         []ReadReceipt `json:"read_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Sender         *User         `json:"sender,omitempty"`
}

type UnreadCounts struct {
	Total         int            `json:"total"`
	Conversations map[string]int `json:"conversations"`
}

const (
	NotificationTypeMessage    = "message"
	NotificationTypeAssignment = "assignment"
	NotificationTypeGrade      = "grade"
	NotificationTypeForum      = "forum"
)

type Notification struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Read      bool                   `json:"read"`
}
