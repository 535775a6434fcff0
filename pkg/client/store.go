package client

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	ws "edulink/internal/infrastructure/websocket"
	"edulink/pkg/errors"
	"edulink/pkg/logger"
)

// ConversationStore is the client-side source of truth for conversations,
// their messages and unread counters. REST calls refresh it; live events
// patch it in place.
type ConversationStore struct {
	rest     *restClient
	receipts *ReadReceiptTracker
	selfID   string

	mu            sync.Mutex
	conversations []*Conversation
	messages      map[string][]*Message
	loaded        map[string]bool
	unread        map[string]int
	activeID      string
	closed        bool
}

// errSessionClosed is returned once the owning client has been torn down.
func errSessionClosed() error {
	return errors.Conflict("Session is closed")
}

func NewConversationStore(rest *restClient, receipts *ReadReceiptTracker, selfID string) *ConversationStore {
	return &ConversationStore{
		rest:     rest,
		receipts: receipts,
		selfID:   selfID,
		messages: make(map[string][]*Message),
		loaded:   make(map[string]bool),
		unread:   make(map[string]int),
	}
}

// Close discards the store. Requests already in flight complete without
// touching the cache.
func (s *ConversationStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *ConversationStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LoadConversations refreshes the conversation list. On failure the previous
// list is kept, so a flaky network never blanks the UI state.
func (s *ConversationStore) LoadConversations(ctx context.Context) ([]*Conversation, error) {
	if s.isClosed() {
		return nil, errSessionClosed()
	}

	var convs []*Conversation
	if _, err := s.rest.doPaginated(ctx, "/v1/conversations", &convs); err != nil {
		logger.Warn("client: conversation refresh failed, keeping previous list: %v", err)
		return s.Conversations(), err
	}

	var staleUnread []string
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSessionClosed()
	}
	s.conversations = convs
	for _, conv := range convs {
		if count, ok := conv.UnreadCount[s.selfID]; ok {
			s.unread[conv.ID] = count
			if count > 0 {
				staleUnread = append(staleUnread, conv.ID)
			}
		}
	}
	s.mu.Unlock()

	// A refreshed non-zero counter means reads happened elsewhere or fan-out
	// was missed; the next selection must mark again.
	for _, id := range staleUnread {
		s.receipts.Invalidate(id)
	}

	return convs, nil
}

// LoadUnreadCounts refreshes per-conversation unread counters. A conversation
// absent from the response means zero unread.
func (s *ConversationStore) LoadUnreadCounts(ctx context.Context) (*UnreadCounts, error) {
	if s.isClosed() {
		return nil, errSessionClosed()
	}

	var counts UnreadCounts
	if err := s.rest.do(ctx, http.MethodGet, "/v1/unread-count", nil, &counts); err != nil {
		return nil, err
	}

	var staleUnread []string
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSessionClosed()
	}
	s.unread = make(map[string]int)
	for id, count := range counts.Conversations {
		s.unread[id] = count
		if count > 0 {
			staleUnread = append(staleUnread, id)
		}
	}
	s.mu.Unlock()

	for _, id := range staleUnread {
		s.receipts.Invalidate(id)
	}

	return &counts, nil
}

// SelectConversation makes a conversation active: messages are loaded on
// first selection, everything unread is marked read once, and the local
// counter drops to zero. A failed mark-read only logs; the server counter
// self-corrects on the next successful mark.
func (s *ConversationStore) SelectConversation(ctx context.Context, conversationID string) ([]*Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSessionClosed()
	}
	s.activeID = conversationID
	alreadyLoaded := s.loaded[conversationID]
	hasUnread := s.unread[conversationID] > 0
	s.mu.Unlock()

	if !alreadyLoaded {
		var msgs []*Message
		if _, err := s.rest.doPaginated(ctx, "/v1/conversations/"+conversationID+"/messages", &msgs); err != nil {
			return nil, err
		}

		// Pages arrive newest-first; the view wants chronological order.
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		})

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, errSessionClosed()
		}
		s.messages[conversationID] = msgs
		s.loaded[conversationID] = true
		s.mu.Unlock()
	}

	// Nothing unread means nothing to mark.
	if hasUnread {
		if err := s.receipts.MarkConversationRead(ctx, conversationID); err != nil {
			logger.Warn("client: mark-read failed for conversation %s: %v", conversationID, err)
		}
	}

	s.mu.Lock()
	s.unread[conversationID] = 0
	msgs := append([]*Message(nil), s.messages[conversationID]...)
	s.mu.Unlock()

	return msgs, nil
}

// StartConversation creates (or resurfaces) a conversation with the given
// participants and makes it active.
func (s *ConversationStore) StartConversation(ctx context.Context, participantIDs []string) (*Conversation, error) {
	if s.isClosed() {
		return nil, errSessionClosed()
	}

	body := map[string]interface{}{"participant_ids": participantIDs}

	var conv Conversation
	if err := s.rest.do(ctx, http.MethodPost, "/v1/conversations", body, &conv); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSessionClosed()
	}
	found := false
	for _, existing := range s.conversations {
		if existing.ID == conv.ID {
			found = true
			break
		}
	}
	if !found {
		s.conversations = append([]*Conversation{&conv}, s.conversations...)
	}
	s.activeID = conv.ID
	s.mu.Unlock()

	return &conv, nil
}

// DeleteConversation removes a conversation on the server and purges every
// local trace of it.
func (s *ConversationStore) DeleteConversation(ctx context.Context, conversationID string) error {
	if s.isClosed() {
		return errSessionClosed()
	}

	if err := s.rest.do(ctx, http.MethodDelete, "/v1/conversations/"+conversationID, nil, nil); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed()
	}
	kept := s.conversations[:0]
	for _, conv := range s.conversations {
		if conv.ID != conversationID {
			kept = append(kept, conv)
		}
	}
	s.conversations = kept
	delete(s.messages, conversationID)
	delete(s.loaded, conversationID)
	delete(s.unread, conversationID)
	if s.activeID == conversationID {
		s.activeID = ""
	}
	s.mu.Unlock()

	s.receipts.Forget(conversationID)
	return nil
}

// SendMessage submits a message over REST. Every submit carries a fresh
// client token, so a retried request lands as one message server-side; the
// id check below keeps it single locally too.
func (s *ConversationStore) SendMessage(ctx context.Context, conversationID, content string) (*Message, error) {
	if s.isClosed() {
		return nil, errSessionClosed()
	}

	if strings.TrimSpace(content) == "" {
		return nil, errors.BadRequest("Message content cannot be empty", nil)
	}

	body := map[string]interface{}{
		"content":      content,
		"type":         "text",
		"client_token": uuid.New().String(),
	}

	var message Message
	if err := s.rest.do(ctx, http.MethodPost, "/v1/conversations/"+conversationID+"/messages", body, &message); err != nil {
		return nil, err
	}

	// The server fans the persisted message out to peers only, so the
	// sender's own snapshot is updated here.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSessionClosed()
	}
	s.insertMessageLocked(&message)
	s.updateSnapshotLocked(&message)
	s.mu.Unlock()

	return &message, nil
}

// SearchUsers finds conversation partners by name. The server excludes the
// caller and caps the result.
func (s *ConversationStore) SearchUsers(ctx context.Context, query string) ([]*User, error) {
	if s.isClosed() {
		return nil, errSessionClosed()
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.BadRequest("Search query must not be empty", nil)
	}

	var users []*User
	if err := s.rest.do(ctx, http.MethodGet, "/v1/users/search?q="+url.QueryEscape(query), nil, &users); err != nil {
		return nil, err
	}

	return users, nil
}

// ApplyEvent patches the store from a live frame. Only newMessage events
// mutate it; everything else belongs to the notification aggregator.
func (s *ConversationStore) ApplyEvent(env *ws.Envelope) {
	if env.Type != ws.EventNewMessage {
		return
	}

	var message Message
	if err := env.DecodeData(&message); err != nil {
		logger.Warn("client: dropping malformed newMessage event: %v", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	inserted := s.insertMessageLocked(&message)
	if !inserted {
		s.mu.Unlock()
		return
	}

	s.updateSnapshotLocked(&message)

	// Own echoes and messages in the open conversation never count as
	// unread.
	countsAsUnread := message.SenderID != s.selfID && message.ConversationID != s.activeID
	if countsAsUnread {
		s.unread[message.ConversationID]++
	}
	s.mu.Unlock()

	if countsAsUnread {
		s.receipts.Invalidate(message.ConversationID)
	}
}

// updateSnapshotLocked rolls a conversation's last-message snapshot forward.
func (s *ConversationStore) updateSnapshotLocked(message *Message) {
	for _, conv := range s.conversations {
		if conv.ID == message.ConversationID {
			conv.LastMessage = &MessageSnapshot{
				Content:   message.Content,
				SenderID:  message.SenderID,
				Timestamp: message.CreatedAt,
			}
			conv.UpdatedAt = message.CreatedAt
			break
		}
	}
}

// insertMessageLocked places a message at its chronological position,
// refusing duplicates by id.
func (s *ConversationStore) insertMessageLocked(message *Message) bool {
	msgs := s.messages[message.ConversationID]
	for _, existing := range msgs {
		if existing.ID == message.ID {
			return false
		}
	}

	idx := len(msgs)
	for i, existing := range msgs {
		if message.CreatedAt.Before(existing.CreatedAt) {
			idx = i
			break
		}
	}

	msgs = append(msgs, nil)
	copy(msgs[idx+1:], msgs[idx:])
	msgs[idx] = message
	s.messages[message.ConversationID] = msgs
	return true
}

// Conversations returns a snapshot of the conversation list.
func (s *ConversationStore) Conversations() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Conversation(nil), s.conversations...)
}

// Messages returns a snapshot of a conversation's messages in
// chronological order.
func (s *ConversationStore) Messages(conversationID string) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Message(nil), s.messages[conversationID]...)
}

// UnreadCount returns the local unread counter for a conversation.
func (s *ConversationStore) UnreadCount(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conversationID]
}

// TotalUnread sums unread counters across conversations.
func (s *ConversationStore) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, count := range s.unread {
		total += count
	}
	return total
}

// ActiveConversation returns the id of the open conversation, if any.
func (s *ConversationStore) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}
