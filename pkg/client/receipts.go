package client

import (
	"context"
	"net/http"
	"sync"
)

// ReadReceiptTracker issues mark-read calls at most once per conversation
// selection. Marking is best-effort: a failed call is not retried, the next
// selection simply tries again.
type ReadReceiptTracker struct {
	rest *restClient

	mu     sync.Mutex
	marked map[string]bool
}

func NewReadReceiptTracker(rest *restClient) *ReadReceiptTracker {
	return &ReadReceiptTracker{
		rest:   rest,
		marked: make(map[string]bool),
	}
}

// MarkConversationRead marks everything unread in a conversation. Repeat
// calls for an already marked conversation are no-ops until new messages
// arrive (Invalidate) or the conversation is forgotten.
func (t *ReadReceiptTracker) MarkConversationRead(ctx context.Context, conversationID string) error {
	t.mu.Lock()
	if t.marked[conversationID] {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	body := map[string]interface{}{"message_ids": []string{}}
	if err := t.rest.do(ctx, http.MethodPatch, "/v1/conversations/"+conversationID+"/read", body, nil); err != nil {
		return err
	}

	t.mu.Lock()
	t.marked[conversationID] = true
	t.mu.Unlock()
	return nil
}

// Invalidate flags a conversation as having unread messages again.
func (t *ReadReceiptTracker) Invalidate(conversationID string) {
	t.mu.Lock()
	delete(t.marked, conversationID)
	t.mu.Unlock()
}

// Forget drops all receipt state for a conversation.
func (t *ReadReceiptTracker) Forget(conversationID string) {
	t.mu.Lock()
	delete(t.marked, conversationID)
	t.mu.Unlock()
}
