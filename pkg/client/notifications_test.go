package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "edulink/internal/infrastructure/websocket"
)

func pushN(a *NotificationAggregator, n int) {
	for i := 0; i < n; i++ {
		a.Push(&Notification{
			Type:    NotificationTypeMessage,
			Title:   fmt.Sprintf("notification %d", i),
			Message: "body",
		})
	}
}

func TestVisibleCapsAtThreeNewestFirst(t *testing.T) {
	a := NewNotificationAggregator()
	pushN(a, 5)

	visible := a.Visible()
	require.Len(t, visible, 3)
	assert.Equal(t, "notification 4", visible[0].Title)
	assert.Equal(t, "notification 2", visible[2].Title)

	// The feed itself keeps everything.
	assert.Len(t, a.All(), 5)
}

func TestMarkReadRemovesFromVisibleButNotFeed(t *testing.T) {
	a := NewNotificationAggregator()
	pushN(a, 2)

	visible := a.Visible()
	require.Len(t, visible, 2)

	a.MarkRead(visible[0].ID)

	visible = a.Visible()
	require.Len(t, visible, 1)
	assert.Len(t, a.All(), 2)
}

func TestClearRemovesFromFeed(t *testing.T) {
	a := NewNotificationAggregator()
	pushN(a, 2)

	target := a.All()[0]
	a.Clear(target.ID)

	assert.Len(t, a.All(), 1)
	for _, n := range a.All() {
		assert.NotEqual(t, target.ID, n.ID)
	}
}

func TestClearAllThenPushStartsFresh(t *testing.T) {
	a := NewNotificationAggregator()
	pushN(a, 4)

	a.ClearAll()
	assert.Empty(t, a.All())

	pushN(a, 1)
	assert.Len(t, a.All(), 1)
	assert.Len(t, a.Visible(), 1)
}

func TestAutoDismissMarksReadOnce(t *testing.T) {
	a := NewNotificationAggregator()
	a.dismissAfter = 10 * time.Millisecond

	a.Push(&Notification{Type: NotificationTypeMessage, Title: "fleeting"})
	require.Len(t, a.Visible(), 1)

	assert.Eventually(t, func() bool {
		return len(a.Visible()) == 0
	}, time.Second, 5*time.Millisecond)

	all := a.All()
	require.Len(t, all, 1)
	assert.True(t, all[0].Read)

	// Marking an already dismissed notification changes nothing.
	a.MarkRead(all[0].ID)
	assert.True(t, a.All()[0].Read)
}

func TestFromEventMapsEventTypes(t *testing.T) {
	a := NewNotificationAggregator()

	cases := []struct {
		eventType string
		payload   interface{}
		wantType  string
	}{
		{ws.EventNewAssignment, map[string]string{"title": "Essay 3", "course_name": "History"}, NotificationTypeAssignment},
		{ws.EventAssignmentGraded, map[string]string{"title": "Essay 2", "grade": "A-"}, NotificationTypeGrade},
		{ws.EventForumReply, map[string]string{"thread_title": "Week 4", "author_name": "Dana", "preview": "I think..."}, NotificationTypeForum},
		{ws.EventNotification, Notification{Type: NotificationTypeMessage, Title: "Direct"}, NotificationTypeMessage},
	}

	for _, tc := range cases {
		env, err := ws.NewEnvelope(tc.eventType, tc.payload)
		require.NoError(t, err)
		a.FromEvent(&env)
	}

	all := a.All()
	require.Len(t, all, len(cases))

	// Newest first, so the order is reversed relative to the pushes.
	assert.Equal(t, NotificationTypeMessage, all[0].Type)
	assert.Equal(t, NotificationTypeForum, all[1].Type)
	assert.Equal(t, NotificationTypeGrade, all[2].Type)
	assert.Equal(t, NotificationTypeAssignment, all[3].Type)
}

func TestFromEventIgnoresChatMessages(t *testing.T) {
	a := NewNotificationAggregator()

	env, err := ws.NewEnvelope(ws.EventNewMessage, map[string]string{"content": "hi"})
	require.NoError(t, err)
	a.FromEvent(&env)

	assert.Empty(t, a.All())
}
