package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edulink/internal/domain/entity"
	"edulink/pkg/errors"
)

type memoryConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	messages      map[string][]*entity.Message
}

func newMemoryConversationRepo() *memoryConversationRepo {
	return &memoryConversationRepo{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string][]*entity.Message),
	}
}

func (r *memoryConversationRepo) Create(ctx context.Context, conv *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	r.conversations[conv.ID] = conv
	return nil
}

func (r *memoryConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return conv, nil
}

func (r *memoryConversationRepo) GetByParticipantKey(ctx context.Context, key string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.conversations {
		if conv.ParticipantKey == key {
			return conv, nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (r *memoryConversationRepo) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var convs []*entity.Conversation
	for _, conv := range r.conversations {
		if conv.HasParticipant(userID) {
			convs = append(convs, conv)
		}
	}
	return convs, int64(len(convs)), nil
}

func (r *memoryConversationRepo) Update(ctx context.Context, conv *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv.UpdatedAt = time.Now()
	r.conversations[conv.ID] = conv
	return nil
}

func (r *memoryConversationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, id)
	delete(r.messages, id)
	return nil
}

func (r *memoryConversationRepo) CreateMessage(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()
	r.messages[message.ConversationID] = append(r.messages[message.ConversationID], message)
	return nil
}

func (r *memoryConversationRepo) GetMessageByClientToken(ctx context.Context, conversationID, clientToken string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, message := range r.messages[conversationID] {
		if message.ClientToken == clientToken {
			return message, nil
		}
	}
	return nil, errors.NotFound("Message", nil)
}

func (r *memoryConversationRepo) GetMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := append([]*entity.Message(nil), r.messages[conversationID]...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := int64(len(all))

	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *memoryConversationRepo) ListUnreadMessages(ctx context.Context, conversationID, userID string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var unread []*entity.Message
	for _, message := range r.messages[conversationID] {
		if message.SenderID == userID || message.ReadByUser(userID) {
			continue
		}
		unread = append(unread, message)
	}
	return unread, nil
}

func (r *memoryConversationRepo) AddReadReceipt(ctx context.Context, conversationID, messageID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, message := range r.messages[conversationID] {
		if message.ID != messageID {
			continue
		}
		if message.ReadByUser(userID) {
			return nil
		}
		message.ReadBy = append(message.ReadBy, entity.ReadReceipt{UserID: userID, ReadAt: time.Now()})
		return nil
	}
	return nil
}

type memoryUserRepo struct {
	users map[string]*entity.User
}

func newMemoryUserRepo(ids ...string) *memoryUserRepo {
	users := make(map[string]*entity.User)
	for _, id := range ids {
		users[id] = &entity.User{ID: id, Username: id, Role: "student"}
	}
	return &memoryUserRepo{users: users}
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return user, nil
}

func (r *memoryUserRepo) Search(ctx context.Context, query, excludeUserID string, limit int) ([]*entity.User, error) {
	var results []*entity.User
	for _, user := range r.users {
		if user.ID == excludeUserID {
			continue
		}
		results = append(results, user)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (r *memoryUserRepo) FindByRole(ctx context.Context, role string, limit int) ([]*entity.User, error) {
	var results []*entity.User
	for _, user := range r.users {
		if user.Role == role {
			results = append(results, user)
		}
	}
	return results, nil
}

type sentEvent struct {
	UserID string
	Type   string
}

type fakeGateway struct {
	mu        sync.Mutex
	events    []sentEvent
	connected map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{connected: make(map[string]bool)}
}

func (g *fakeGateway) SendEvent(userID, eventType string, data interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, sentEvent{UserID: userID, Type: eventType})
}

func (g *fakeGateway) IsConnected(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected[userID]
}

func (g *fakeGateway) eventsFor(userID string) []sentEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentEvent
	for _, e := range g.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func newTestMessagingUseCase(t *testing.T, userIDs ...string) (*MessagingUseCase, *memoryConversationRepo, *fakeGateway) {
	t.Helper()
	convRepo := newMemoryConversationRepo()
	userRepo := newMemoryUserRepo(userIDs...)
	gateway := newFakeGateway()
	return NewMessagingUseCase(convRepo, userRepo, gateway), convRepo, gateway
}

func TestStartConversationDeduplicatesParticipantSets(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice", "bob")
	ctx := context.Background()

	first, created, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)
	assert.True(t, created)

	// Same pair in reverse order lands on the same conversation.
	second, created, err := uc.StartConversation(ctx, "bob", StartConversationInput{ParticipantIDs: []string{"alice"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestStartConversationRequiresAnotherParticipant(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice")
	ctx := context.Background()

	_, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"alice"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestStartConversationRejectsUnknownParticipant(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice")
	ctx := context.Background()

	_, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"ghost"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestSendMessageFansOutToPeersOnly(t *testing.T) {
	uc, _, gateway := newTestMessagingUseCase(t, "alice", "bob", "carol")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob", "carol"}})
	require.NoError(t, err)

	message, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)
	assert.Equal(t, "alice", message.SenderID)

	assert.Len(t, gateway.eventsFor("bob"), 1)
	assert.Len(t, gateway.eventsFor("carol"), 1)
	assert.Empty(t, gateway.eventsFor("alice"))
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice", "bob", "mallory")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, "mallory", SendMessageInput{ConversationID: conv.ID, Content: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice", "bob")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestSendMessageClientTokenIsIdempotent(t *testing.T) {
	uc, repo, _ := newTestMessagingUseCase(t, "alice", "bob")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	token := uuid.New().String()
	first, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "hello", ClientToken: token})
	require.NoError(t, err)

	retry, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "hello", ClientToken: token})
	require.NoError(t, err)
	assert.Equal(t, first.ID, retry.ID)

	_, total, err := repo.GetMessagesByConversation(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestSendMessageIncrementsPeerUnreadCounts(t *testing.T) {
	uc, repo, _ := newTestMessagingUseCase(t, "alice", "bob")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "one"})
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "two"})
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.UnreadCount["bob"])
	assert.Equal(t, 0, stored.UnreadCount["alice"])
}

func TestMarkAsReadZeroesCounterAndIsIdempotent(t *testing.T) {
	uc, repo, _ := newTestMessagingUseCase(t, "alice", "bob")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	sent, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, uc.MarkAsRead(ctx, "bob", conv.ID, nil))

	stored, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UnreadCount["bob"])

	msgs, _, err := repo.GetMessagesByConversation(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].ReadByUser("bob"))
	receipts := len(msgs[0].ReadBy)

	// Marking again adds no second receipt.
	require.NoError(t, uc.MarkAsRead(ctx, "bob", conv.ID, []string{sent.ID}))
	msgs, _, err = repo.GetMessagesByConversation(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs[0].ReadBy, receipts)
}

func TestMarkAsReadRejectsNonParticipant(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice", "bob", "mallory")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	err = uc.MarkAsRead(ctx, "mallory", conv.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestUnreadCountsSumAcrossConversations(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice", "bob", "carol")
	ctx := context.Background()

	withBob, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)
	withCarol, _, err := uc.StartConversation(ctx, "bob", StartConversationInput{ParticipantIDs: []string{"carol"}})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: withBob.ID, Content: "one"})
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "carol", SendMessageInput{ConversationID: withCarol.ID, Content: "two"})
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "carol", SendMessageInput{ConversationID: withCarol.ID, Content: "three"})
	require.NoError(t, err)

	counts, err := uc.UnreadCounts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.Conversations[withBob.ID])
	assert.Equal(t, 2, counts.Conversations[withCarol.ID])
}

func TestGetMessagesReturnsChronologicalOrder(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice", "bob")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	for _, content := range []string{"first", "second", "third"} {
		_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: content})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	msgs, total, err := uc.GetMessages(ctx, "bob", conv.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestGetMessagesRejectsNonParticipant(t *testing.T) {
	uc, _, _ := newTestMessagingUseCase(t, "alice", "bob", "mallory")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	_, _, err = uc.GetMessages(ctx, "mallory", conv.ID, 50, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestDeleteConversationRequiresMembership(t *testing.T) {
	uc, repo, _ := newTestMessagingUseCase(t, "alice", "bob", "mallory")
	ctx := context.Background()

	conv, _, err := uc.StartConversation(ctx, "alice", StartConversationInput{ParticipantIDs: []string{"bob"}})
	require.NoError(t, err)

	err = uc.DeleteConversation(ctx, "mallory", conv.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	require.NoError(t, uc.DeleteConversation(ctx, "alice", conv.ID))
	_, err = repo.GetByID(ctx, conv.ID)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}
