package entity

import "time"

// Notification types
const (
	NotificationTypeMessage    = "message"
	NotificationTypeAssignment = "assignment"
	NotificationTypeGrade      = "grade"
	NotificationTypeForum      = "forum"
)

// Notification is a transient record built from live channel events. It is
// never persisted; the aggregator rebuilds its list every session.
type Notification struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Read      bool                   `json:"read"`
}
