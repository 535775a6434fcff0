package entity

import "time"

// ReadReceipt marks a message as seen by one user. The ReadBy set on a
// message only ever grows; adding an existing pair is a no-op.
type ReadReceipt struct {
	UserID string    `json:"user_id" firestore:"userId"`
	ReadAt time.Time `json:"read_at" firestore:"readAt"`
}

type Message struct {
	ID             string        `json:"id" firestore:"id"`
	ConversationID string        `json:"conversation_id" firestore:"conversationId"`
	SenderID       string        `json:"sender_id" firestore:"senderId"`
	Content        string        `json:"content" firestore:"content"`
	Type           string        `json:"type" firestore:"type"` // "text"
	ClientToken    string        `json:"client_token,omitempty" firestore:"clientToken,omitempty"`
	ReadBy         []ReadReceipt `json:"read_by" firestore:"readBy"`
	CreatedAt      time.Time     `json:"created_at" firestore:"createdAt"`
}

func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
