package entity

import (
	"sort"
	"strings"
	"time"
)

// MessageSnapshot is the denormalized last-message preview stored on a
// conversation. Last-write-wins under concurrent sends.
type MessageSnapshot struct {
	Content   string    `json:"content" firestore:"content"`
	SenderID  string    `json:"sender_id" firestore:"senderId"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

type Conversation struct {
	ID             string           `json:"id" firestore:"id"`
	Participants   []string         `json:"participants" firestore:"participants"`
	ParticipantKey string           `json:"-" firestore:"participantKey"`
	Type           string           `json:"type" firestore:"type"` // "direct"
	LastMessage    *MessageSnapshot `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	Archived       bool             `json:"archived" firestore:"archived"`
	UnreadCount    map[string]int   `json:"unread_count" firestore:"unreadCount"` // Map of userID to unread count
	CreatedAt      time.Time        `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time        `json:"updated_at" firestore:"updatedAt"`
}

// ParticipantKey builds the canonical lookup key for a participant set.
// Two conversations may never share the same key.
func ParticipantKey(userIDs []string) string {
	ids := make([]string, len(userIDs))
	copy(ids, userIDs)
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
