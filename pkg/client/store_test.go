package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "edulink/internal/infrastructure/websocket"
	"edulink/pkg/errors"
)

// fakeServer emulates the messaging API with the standard response
// envelope.
type fakeServer struct {
	mu            sync.Mutex
	conversations []*Conversation
	messages      map[string][]*Message
	unread        UnreadCounts
	users         []*User
	markReadCalls map[string]int
	failListing   bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		messages:      make(map[string][]*Message),
		markReadCalls: make(map[string]int),
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func writeItems(w http.ResponseWriter, items interface{}, total int) {
	writeData(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
		"page":  1,
		"limit": 50,
	})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if r.Method == http.MethodPost {
			var req struct {
				ParticipantIDs []string `json:"participant_ids"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			conv := &Conversation{
				ID:           "conv-new",
				Participants: append([]string{"alice"}, req.ParticipantIDs...),
				Type:         "direct",
				CreatedAt:    time.Now(),
			}
			s.conversations = append(s.conversations, conv)
			writeData(w, http.StatusCreated, conv)
			return
		}

		if s.failListing {
			writeFailure(w, http.StatusForbidden, "FORBIDDEN", "Access denied")
			return
		}
		writeItems(w, s.conversations, len(s.conversations))
	})

	mux.HandleFunc("/v1/unread-count", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeData(w, http.StatusOK, s.unread)
	})

	mux.HandleFunc("/v1/users/search", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeData(w, http.StatusOK, s.users)
	})

	mux.HandleFunc("/v1/conversations/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path[len("/v1/conversations/"):]

		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && len(path) > 9 && path[len(path)-9:] == "/messages":
			convID := path[:len(path)-9]
			writeItems(w, s.messages[convID], len(s.messages[convID]))

		case r.Method == http.MethodPost && len(path) > 9 && path[len(path)-9:] == "/messages":
			convID := path[:len(path)-9]
			var req struct {
				Content     string `json:"content"`
				Type        string `json:"type"`
				ClientToken string `json:"client_token"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			message := &Message{
				ID:             "srv-" + req.ClientToken,
				ConversationID: convID,
				SenderID:       "alice",
				Content:        req.Content,
				Type:           req.Type,
				ClientToken:    req.ClientToken,
				CreatedAt:      time.Now(),
			}
			s.messages[convID] = append(s.messages[convID], message)
			writeData(w, http.StatusCreated, message)

		case r.Method == http.MethodPatch && len(path) > 5 && path[len(path)-5:] == "/read":
			convID := path[:len(path)-5]
			s.markReadCalls[convID]++
			writeData(w, http.StatusOK, map[string]string{"status": "read"})

		case r.Method == http.MethodDelete:
			kept := s.conversations[:0]
			for _, conv := range s.conversations {
				if conv.ID != path {
					kept = append(kept, conv)
				}
			}
			s.conversations = kept
			delete(s.messages, path)
			writeData(w, http.StatusOK, map[string]string{"status": "deleted"})

		default:
			writeFailure(w, http.StatusNotFound, "NOT_FOUND", "No such route")
		}
	})

	return mux
}

func newTestStore(t *testing.T, server *fakeServer) (*ConversationStore, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(server.handler())
	t.Cleanup(ts.Close)

	rest := newRestClient(ts.URL, "test-token")
	receipts := NewReadReceiptTracker(rest)
	return NewConversationStore(rest, receipts, "alice"), ts
}

func makeMessage(id, convID, sender, content string, at time.Time) *Message {
	return &Message{ID: id, ConversationID: convID, SenderID: sender, Content: content, Type: "text", CreatedAt: at}
}

func TestSelectConversationLoadsMarksAndZeroes(t *testing.T) {
	server := newFakeServer()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	// The API serves newest-first.
	server.messages["conv-1"] = []*Message{
		makeMessage("m3", "conv-1", "bob", "third", base.Add(2*time.Minute)),
		makeMessage("m2", "conv-1", "bob", "second", base.Add(time.Minute)),
		makeMessage("m1", "conv-1", "alice", "first", base),
	}

	store, _ := newTestStore(t, server)
	store.unread["conv-1"] = 2

	msgs, err := store.SelectConversation(context.Background(), "conv-1")
	require.NoError(t, err)

	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)

	assert.Equal(t, 0, store.UnreadCount("conv-1"))
	assert.Equal(t, 1, server.markReadCalls["conv-1"])

	// Re-selecting does not re-fetch or re-mark.
	_, err = store.SelectConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, server.markReadCalls["conv-1"])
}

func TestSendMessageValidatesBeforeSubmitting(t *testing.T) {
	server := newFakeServer()
	store, _ := newTestStore(t, server)

	_, err := store.SendMessage(context.Background(), "conv-1", "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
	assert.Empty(t, server.messages["conv-1"])
}

func TestSendMessageAppendsServerRecordOnce(t *testing.T) {
	server := newFakeServer()
	store, _ := newTestStore(t, server)

	message, err := store.SendMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)

	msgs := store.Messages("conv-1")
	require.Len(t, msgs, 1)

	// The echo of the same message over the live channel is a duplicate.
	env, err := ws.NewEnvelope(ws.EventNewMessage, message)
	require.NoError(t, err)
	store.ApplyEvent(&env)

	assert.Len(t, store.Messages("conv-1"), 1)
}

func TestApplyEventInsertsInServerOrder(t *testing.T) {
	server := newFakeServer()
	store, _ := newTestStore(t, server)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	later := makeMessage("m2", "conv-1", "bob", "later", base.Add(time.Minute))
	earlier := makeMessage("m1", "conv-1", "bob", "earlier", base)

	for _, message := range []*Message{later, earlier} {
		env, err := ws.NewEnvelope(ws.EventNewMessage, message)
		require.NoError(t, err)
		store.ApplyEvent(&env)
	}

	msgs := store.Messages("conv-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "earlier", msgs[0].Content)
	assert.Equal(t, "later", msgs[1].Content)
}

func TestApplyEventUnreadRules(t *testing.T) {
	server := newFakeServer()
	store, _ := newTestStore(t, server)
	store.activeID = "conv-open"

	base := time.Now()

	// Peer message in a background conversation counts.
	env, err := ws.NewEnvelope(ws.EventNewMessage, makeMessage("m1", "conv-bg", "bob", "hi", base))
	require.NoError(t, err)
	store.ApplyEvent(&env)
	assert.Equal(t, 1, store.UnreadCount("conv-bg"))

	// Peer message in the open conversation does not.
	env, err = ws.NewEnvelope(ws.EventNewMessage, makeMessage("m2", "conv-open", "bob", "hi", base))
	require.NoError(t, err)
	store.ApplyEvent(&env)
	assert.Equal(t, 0, store.UnreadCount("conv-open"))

	// Own echo never counts.
	env, err = ws.NewEnvelope(ws.EventNewMessage, makeMessage("m3", "conv-bg", "alice", "mine", base))
	require.NoError(t, err)
	store.ApplyEvent(&env)
	assert.Equal(t, 1, store.UnreadCount("conv-bg"))
}

func TestLoadConversationsKeepsLastKnownGoodOnFailure(t *testing.T) {
	server := newFakeServer()
	server.conversations = []*Conversation{
		{ID: "conv-1", Participants: []string{"alice", "bob"}},
		{ID: "conv-2", Participants: []string{"alice", "carol"}},
	}

	store, _ := newTestStore(t, server)

	convs, err := store.LoadConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 2)

	server.mu.Lock()
	server.failListing = true
	server.mu.Unlock()

	convs, err = store.LoadConversations(context.Background())
	require.Error(t, err)
	assert.Len(t, convs, 2)
	assert.Len(t, store.Conversations(), 2)
}

func TestStartConversationPrependsAndActivates(t *testing.T) {
	server := newFakeServer()
	server.conversations = []*Conversation{{ID: "conv-old", Participants: []string{"alice", "bob"}}}

	store, _ := newTestStore(t, server)
	_, err := store.LoadConversations(context.Background())
	require.NoError(t, err)

	conv, err := store.StartConversation(context.Background(), []string{"carol"})
	require.NoError(t, err)
	assert.Equal(t, "conv-new", conv.ID)

	convs := store.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "conv-new", convs[0].ID)
	assert.Equal(t, "conv-new", store.ActiveConversation())
}

func TestLoadUnreadCountsTreatsAbsenceAsZero(t *testing.T) {
	server := newFakeServer()
	server.unread = UnreadCounts{Total: 3, Conversations: map[string]int{"conv-1": 3}}

	store, _ := newTestStore(t, server)
	store.unread["conv-stale"] = 7

	counts, err := store.LoadUnreadCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)

	assert.Equal(t, 3, store.UnreadCount("conv-1"))
	assert.Equal(t, 0, store.UnreadCount("conv-stale"))
	assert.Equal(t, 3, store.TotalUnread())
}

func TestSelectConversationSkipsMarkWhenNothingUnread(t *testing.T) {
	server := newFakeServer()
	server.messages["conv-1"] = []*Message{makeMessage("m1", "conv-1", "bob", "hi", time.Now())}

	store, _ := newTestStore(t, server)

	_, err := store.SelectConversation(context.Background(), "conv-1")
	require.NoError(t, err)

	assert.Equal(t, 0, server.markReadCalls["conv-1"])
}

func TestReselectAfterUnreadRefreshMarksAgain(t *testing.T) {
	server := newFakeServer()
	server.conversations = []*Conversation{
		{ID: "conv-1", Participants: []string{"alice", "bob"}, UnreadCount: map[string]int{"alice": 2}},
	}

	store, _ := newTestStore(t, server)
	_, err := store.LoadConversations(context.Background())
	require.NoError(t, err)

	_, err = store.SelectConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, server.markReadCalls["conv-1"])

	// Messages arrived while this client looked away: the bulk refresh
	// reports unread again.
	server.mu.Lock()
	server.unread = UnreadCounts{Total: 3, Conversations: map[string]int{"conv-1": 3}}
	server.mu.Unlock()

	_, err = store.LoadUnreadCounts(context.Background())
	require.NoError(t, err)

	_, err = store.SelectConversation(context.Background(), "conv-1")
	require.NoError(t, err)

	assert.Equal(t, 2, server.markReadCalls["conv-1"])
	assert.Equal(t, 0, store.UnreadCount("conv-1"))
}

func TestSendMessageRollsSnapshotForward(t *testing.T) {
	server := newFakeServer()
	server.conversations = []*Conversation{{ID: "conv-1", Participants: []string{"alice", "bob"}}}

	store, _ := newTestStore(t, server)
	_, err := store.LoadConversations(context.Background())
	require.NoError(t, err)

	message, err := store.SendMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)

	convs := store.Conversations()
	require.Len(t, convs, 1)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hello", convs[0].LastMessage.Content)
	assert.Equal(t, "alice", convs[0].LastMessage.SenderID)
	assert.Equal(t, message.CreatedAt, convs[0].UpdatedAt)
}

func TestSearchUsers(t *testing.T) {
	server := newFakeServer()
	server.users = []*User{
		{ID: "bob", Username: "bob", FullName: "Bob Carter", Role: "student"},
		{ID: "carol", Username: "carol", FullName: "Carol Diaz", Role: "teacher"},
	}

	store, _ := newTestStore(t, server)

	users, err := store.SearchUsers(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].ID)

	_, err = store.SearchUsers(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	server := newFakeServer()
	server.conversations = []*Conversation{{ID: "conv-1", Participants: []string{"alice", "bob"}}}

	store, _ := newTestStore(t, server)
	store.Close()

	_, err := store.LoadConversations(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, "CONFLICT"))

	_, err = store.SelectConversation(context.Background(), "conv-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "CONFLICT"))

	_, err = store.SendMessage(context.Background(), "conv-1", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "CONFLICT"))

	_, err = store.SearchUsers(context.Background(), "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "CONFLICT"))

	// Live frames after teardown never touch the cache.
	env, err := ws.NewEnvelope(ws.EventNewMessage, makeMessage("m1", "conv-1", "bob", "late", time.Now()))
	require.NoError(t, err)
	store.ApplyEvent(&env)

	assert.Empty(t, store.Messages("conv-1"))
	assert.Equal(t, 0, store.UnreadCount("conv-1"))
}

func TestDeleteConversationPurgesLocalState(t *testing.T) {
	server := newFakeServer()
	server.conversations = []*Conversation{{ID: "conv-1", Participants: []string{"alice", "bob"}}}
	server.messages["conv-1"] = []*Message{makeMessage("m1", "conv-1", "bob", "hi", time.Now())}

	store, _ := newTestStore(t, server)
	_, err := store.LoadConversations(context.Background())
	require.NoError(t, err)
	_, err = store.SelectConversation(context.Background(), "conv-1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteConversation(context.Background(), "conv-1"))

	assert.Empty(t, store.Conversations())
	assert.Empty(t, store.Messages("conv-1"))
	assert.Equal(t, 0, store.UnreadCount("conv-1"))
	assert.Equal(t, "", store.ActiveConversation())
}
