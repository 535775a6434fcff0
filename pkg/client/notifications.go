package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	ws "edulink/internal/infrastructure/websocket"
	"edulink/pkg/logger"
)

const (
	maxVisibleNotifications = 3
	autoDismissAfter        = 5 * time.Second
)

// NotificationAggregator collects transient notifications from the live
// channel. Newest entries sit at the front, at most three are surfaced at a
// time, and every surfaced entry auto-dismisses after five seconds. State is
// in-memory only; a reload starts empty.
type NotificationAggregator struct {
	dismissAfter time.Duration

	mu     sync.Mutex
	items  []*Notification
	timers map[string]*time.Timer
}

func NewNotificationAggregator() *NotificationAggregator {
	return &NotificationAggregator{
		dismissAfter: autoDismissAfter,
		timers:       make(map[string]*time.Timer),
	}
}

// Push adds a notification to the front of the feed and schedules its
// auto-dismiss.
func (a *NotificationAggregator) Push(n *Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	a.mu.Lock()
	a.items = append([]*Notification{n}, a.items...)
	a.timers[n.ID] = time.AfterFunc(a.dismissAfter, func() {
		a.MarkRead(n.ID)
	})
	a.mu.Unlock()
}

// FromEvent converts a live frame into a notification and pushes it. Chat
// messages are not aggregated; the conversation store owns those.
func (a *NotificationAggregator) FromEvent(env *ws.Envelope) {
	switch env.Type {
	case ws.EventNotification:
		var n Notification
		if err := env.DecodeData(&n); err != nil {
			logger.Warn("client: dropping malformed notification event: %v", err)
			return
		}
		a.Push(&n)

	case ws.EventNewAssignment:
		var data struct {
			Title      string `json:"title"`
			CourseName string `json:"course_name"`
		}
		if err := env.DecodeData(&data); err != nil {
			logger.Warn("client: dropping malformed new_assignment event: %v", err)
			return
		}
		a.Push(&Notification{
			Type:    NotificationTypeAssignment,
			Title:   "New assignment",
			Message: fmt.Sprintf("%s (%s)", data.Title, data.CourseName),
		})

	case ws.EventAssignmentGraded:
		var data struct {
			Title string `json:"title"`
			Grade string `json:"grade"`
		}
		if err := env.DecodeData(&data); err != nil {
			logger.Warn("client: dropping malformed assignment_graded event: %v", err)
			return
		}
		a.Push(&Notification{
			Type:    NotificationTypeGrade,
			Title:   "Assignment graded",
			Message: fmt.Sprintf("%s: %s", data.Title, data.Grade),
		})

	case ws.EventForumReply:
		var data struct {
			ThreadTitle string `json:"thread_title"`
			AuthorName  string `json:"author_name"`
			Preview     string `json:"preview"`
		}
		if err := env.DecodeData(&data); err != nil {
			logger.Warn("client: dropping malformed forum_reply event: %v", err)
			return
		}
		a.Push(&Notification{
			Type:    NotificationTypeForum,
			Title:   "Reply in " + data.ThreadTitle,
			Message: fmt.Sprintf("%s: %s", data.AuthorName, data.Preview),
		})
	}
}

// Visible returns the unread notifications currently surfaced, newest
// first, capped at three.
func (a *NotificationAggregator) Visible() []*Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	var visible []*Notification
	for _, n := range a.items {
		if n.Read {
			continue
		}
		visible = append(visible, n)
		if len(visible) == maxVisibleNotifications {
			break
		}
	}
	return visible
}

// All returns the full feed, newest first, read entries included.
func (a *NotificationAggregator) All() []*Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Notification(nil), a.items...)
}

// MarkRead marks a notification read and cancels its auto-dismiss. Marking
// twice has no further effect.
func (a *NotificationAggregator) MarkRead(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, n := range a.items {
		if n.ID == id {
			n.Read = true
			break
		}
	}

	if timer, ok := a.timers[id]; ok {
		timer.Stop()
		delete(a.timers, id)
	}
}

// Clear removes a notification from the feed entirely.
func (a *NotificationAggregator) Clear(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.items[:0]
	for _, n := range a.items {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	a.items = kept

	if timer, ok := a.timers[id]; ok {
		timer.Stop()
		delete(a.timers, id)
	}
}

// ClearAll empties the feed. Notifications pushed afterwards are unaffected.
func (a *NotificationAggregator) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.items = nil
	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
}
