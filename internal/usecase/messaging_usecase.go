package usecase

import (
	"context"
	"log"
	"time"

	"edulink/internal/domain/entity"
	"edulink/internal/domain/repository"
	"edulink/internal/infrastructure/ratelimit"
	ws "edulink/internal/infrastructure/websocket"
	"edulink/pkg/errors"
)

// EventGateway pushes live events onto user channels. Satisfied by the
// websocket manager; fan-out failures are never surfaced to callers.
type EventGateway interface {
	SendEvent(userID, eventType string, data interface{})
	IsConnected(userID string) bool
}

type MessagingUseCase struct {
	convRepo    repository.ConversationRepository
	userRepo    repository.UserRepository
	gateway     EventGateway
	rateLimiter *ratelimit.RateLimiter
}

func NewMessagingUseCase(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	gateway EventGateway,
) *MessagingUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &MessagingUseCase{
		convRepo:    convRepo,
		userRepo:    userRepo,
		gateway:     gateway,
		rateLimiter: rateLimiter,
	}
}

type SendMessageInput struct {
	ConversationID string
	Content        string
	Type           string // "text"
	ClientToken    string
}

type StartConversationInput struct {
	ParticipantIDs []string
}

type ConversationResponse struct {
	*entity.Conversation
	Users []*entity.User `json:"users,omitempty"`
}

type MessageResponse struct {
	*entity.Message
	Sender *entity.User `json:"sender,omitempty"`
}

type UnreadCountsResponse struct {
	Total         int            `json:"total"`
	Conversations map[string]int `json:"conversations"`
}

// StartConversation returns the existing conversation for the given
// participant set or creates a new one. Lookup-before-insert keeps
// participant sets unique.
func (uc *MessagingUseCase) StartConversation(ctx context.Context, creatorID string, input StartConversationInput) (*ConversationResponse, bool, error) {
	allowed, waitTime := uc.rateLimiter.Allow(creatorID, "create_conversation")
	if !allowed {
		log.Printf("StartConversation Rate Limited: User %s must wait %v", creatorID, waitTime)
		return nil, false, errors.TooManyRequests("Rate limit exceeded. Please wait before starting another conversation", waitTime)
	}

	participants := dedupeIDs(append([]string{creatorID}, input.ParticipantIDs...))
	if len(participants) < 2 {
		return nil, false, errors.BadRequest("A conversation needs at least one other participant", nil)
	}

	var users []*entity.User
	for _, id := range participants {
		user, err := uc.userRepo.GetByID(ctx, id)
		if err != nil {
			log.Printf("StartConversation Error: Participant %s not found: %v", id, err)
			return nil, false, errors.NotFound("Participant", err)
		}
		users = append(users, user)
	}

	key := entity.ParticipantKey(participants)

	existing, err := uc.convRepo.GetByParticipantKey(ctx, key)
	if err == nil && existing != nil {
		return &ConversationResponse{Conversation: existing, Users: users}, false, nil
	}
	if err != nil && !errors.Is(err, "NOT_FOUND") {
		log.Printf("StartConversation Error: Failed to look up existing conversation: %v", err)
		return nil, false, err
	}

	conv := &entity.Conversation{
		Participants:   participants,
		ParticipantKey: key,
		Type:           "direct",
		UnreadCount:    make(map[string]int),
	}

	if err := uc.convRepo.Create(ctx, conv); err != nil {
		log.Printf("StartConversation Error: Failed to create conversation: %v", err)
		return nil, false, err
	}

	return &ConversationResponse{Conversation: conv, Users: users}, true, nil
}

// ListConversations returns the caller's conversations, most recent first.
func (uc *MessagingUseCase) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*ConversationResponse, int64, error) {
	convs, total, err := uc.convRepo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		log.Printf("ListConversations Error: Failed to list conversations for user %s: %v", userID, err)
		return nil, 0, err
	}

	var responses []*ConversationResponse
	for _, conv := range convs {
		responses = append(responses, uc.withUsers(ctx, conv))
	}

	return responses, total, nil
}

func (uc *MessagingUseCase) GetConversation(ctx context.Context, userID, conversationID string) (*ConversationResponse, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	return uc.withUsers(ctx, conv), nil
}

// SendMessage persists a message, bumps unread counters, and fans the message
// out to every other participant's live channel. The persisted record is the
// source of truth; fan-out failures are logged, never surfaced.
func (uc *MessagingUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*MessageResponse, error) {
	allowed, waitTime := uc.rateLimiter.Allow(senderID, "send_message")
	if !allowed {
		log.Printf("SendMessage Rate Limited: User %s must wait %v", senderID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message", waitTime)
	}

	if input.Content == "" {
		return nil, errors.BadRequest("Message content must not be empty", nil)
	}
	if input.Type == "" {
		input.Type = "text"
	}

	conv, err := uc.convRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		log.Printf("SendMessage Error: Conversation %s not found: %v", input.ConversationID, err)
		return nil, err
	}

	if !conv.HasParticipant(senderID) {
		log.Printf("SendMessage Error: User %s is not a participant in conversation %s", senderID, input.ConversationID)
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		log.Printf("SendMessage Error: Sender %s not found: %v", senderID, err)
		return nil, errors.NotFound("Sender", err)
	}

	// A retried submit with the same client token returns the original
	// message instead of persisting a duplicate.
	if input.ClientToken != "" {
		existing, err := uc.convRepo.GetMessageByClientToken(ctx, input.ConversationID, input.ClientToken)
		if err == nil && existing != nil {
			return &MessageResponse{Message: existing, Sender: sender}, nil
		}
		if err != nil && !errors.Is(err, "NOT_FOUND") {
			return nil, err
		}
	}

	message := &entity.Message{
		ConversationID: input.ConversationID,
		SenderID:       senderID,
		Content:        input.Content,
		Type:           input.Type,
		ClientToken:    input.ClientToken,
		ReadBy:         []entity.ReadReceipt{{UserID: senderID, ReadAt: time.Now()}},
	}

	if err := uc.convRepo.CreateMessage(ctx, message); err != nil {
		log.Printf("SendMessage Error: Failed to create message for conversation %s: %v", input.ConversationID, err)
		return nil, err
	}

	conv.LastMessage = &entity.MessageSnapshot{
		Content:   message.Content,
		SenderID:  senderID,
		Timestamp: message.CreatedAt,
	}
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	for _, participantID := range conv.Participants {
		if participantID != senderID {
			conv.UnreadCount[participantID]++
		}
	}

	if err := uc.convRepo.Update(ctx, conv); err != nil {
		log.Printf("SendMessage Error: Failed to update conversation %s with last message: %v", conv.ID, err)
		return nil, err
	}

	response := &MessageResponse{Message: message, Sender: sender}

	for _, participantID := range conv.Participants {
		if participantID != senderID {
			uc.gateway.SendEvent(participantID, ws.EventNewMessage, response)
		}
	}

	return response, nil
}

// GetMessages pages a conversation's history. Storage order is newest-first;
// each page is reversed so callers always render oldest-first.
func (uc *MessagingUseCase) GetMessages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*MessageResponse, int64, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		log.Printf("GetMessages Error: Conversation %s not found: %v", conversationID, err)
		return nil, 0, err
	}

	if !conv.HasParticipant(userID) {
		log.Printf("GetMessages Error: User %s is not a participant in conversation %s", userID, conversationID)
		return nil, 0, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	messages, total, err := uc.convRepo.GetMessagesByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		log.Printf("GetMessages Error: Failed to get messages for conversation %s: %v", conversationID, err)
		return nil, 0, err
	}

	senders := make(map[string]*entity.User)
	var responses []*MessageResponse

	// Reverse to oldest-first for page assembly
	for i := len(messages) - 1; i >= 0; i-- {
		message := messages[i]
		resp := &MessageResponse{Message: message}

		sender, ok := senders[message.SenderID]
		if !ok {
			sender, err = uc.userRepo.GetByID(ctx, message.SenderID)
			if err != nil {
				log.Printf("GetMessages Warning: Sender %s not found for message %s: %v", message.SenderID, message.ID, err)
				sender = nil
			}
			senders[message.SenderID] = sender
		}
		resp.Sender = sender

		responses = append(responses, resp)
	}

	return responses, total, nil
}

// MarkAsRead records read receipts for the given messages and zeroes the
// caller's unread counter. An empty id list means all currently unread
// messages in the conversation. The operation is idempotent end to end.
func (uc *MessagingUseCase) MarkAsRead(ctx context.Context, userID, conversationID string, messageIDs []string) error {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		log.Printf("MarkAsRead Error: Conversation %s not found: %v", conversationID, err)
		return err
	}

	if !conv.HasParticipant(userID) {
		log.Printf("MarkAsRead Error: User %s is not a participant in conversation %s", userID, conversationID)
		return errors.Forbidden("User is not a participant in this conversation", nil)
	}

	if len(messageIDs) == 0 {
		unread, err := uc.convRepo.ListUnreadMessages(ctx, conversationID, userID)
		if err != nil {
			log.Printf("MarkAsRead Error: Failed to list unread messages for conversation %s: %v", conversationID, err)
			return err
		}
		for _, message := range unread {
			messageIDs = append(messageIDs, message.ID)
		}
	}

	for _, messageID := range messageIDs {
		if err := uc.convRepo.AddReadReceipt(ctx, conversationID, messageID, userID); err != nil {
			log.Printf("MarkAsRead Error: Failed to add receipt for message %s: %v", messageID, err)
			return err
		}
	}

	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	conv.UnreadCount[userID] = 0

	if err := uc.convRepo.Update(ctx, conv); err != nil {
		log.Printf("MarkAsRead Error: Failed to zero unread count for conversation %s: %v", conversationID, err)
		return err
	}

	return nil
}

// UnreadCounts returns the caller's per-conversation unread map. The total is
// a derived sum, never stored.
func (uc *MessagingUseCase) UnreadCounts(ctx context.Context, userID string) (*UnreadCountsResponse, error) {
	convs, _, err := uc.convRepo.ListByUserID(ctx, userID, -1, 0)
	if err != nil {
		log.Printf("UnreadCounts Error: Failed to list conversations for user %s: %v", userID, err)
		return nil, err
	}

	counts := make(map[string]int)
	total := 0
	for _, conv := range convs {
		if n := conv.UnreadCount[userID]; n > 0 {
			counts[conv.ID] = n
			total += n
		}
	}

	return &UnreadCountsResponse{Total: total, Conversations: counts}, nil
}

// DeleteConversation removes a conversation and all its messages.
func (uc *MessagingUseCase) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}

	if !conv.HasParticipant(userID) {
		log.Printf("DeleteConversation Error: User %s is not a participant in conversation %s", userID, conversationID)
		return errors.Forbidden("User is not a participant in this conversation", nil)
	}

	if err := uc.convRepo.Delete(ctx, conversationID); err != nil {
		log.Printf("DeleteConversation Error: Failed to delete conversation %s: %v", conversationID, err)
		return err
	}

	return nil
}

// SetArchived toggles the archived flag for a conversation.
func (uc *MessagingUseCase) SetArchived(ctx context.Context, userID, conversationID string, archived bool) (*ConversationResponse, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	conv.Archived = archived
	if err := uc.convRepo.Update(ctx, conv); err != nil {
		log.Printf("SetArchived Error: Failed to update conversation %s: %v", conversationID, err)
		return nil, err
	}

	return uc.withUsers(ctx, conv), nil
}

// SearchUsers finds conversation partners by name, excluding the caller.
func (uc *MessagingUseCase) SearchUsers(ctx context.Context, callerID, query string) ([]*entity.User, error) {
	allowed, waitTime := uc.rateLimiter.Allow(callerID, "search_users")
	if !allowed {
		log.Printf("SearchUsers Rate Limited: User %s must wait %v", callerID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded", waitTime)
	}

	if query == "" {
		return nil, errors.BadRequest("Search query must not be empty", nil)
	}

	users, err := uc.userRepo.Search(ctx, query, callerID, 10)
	if err != nil {
		log.Printf("SearchUsers Error: query %q failed: %v", query, err)
		return nil, err
	}

	return users, nil
}

func (uc *MessagingUseCase) withUsers(ctx context.Context, conv *entity.Conversation) *ConversationResponse {
	resp := &ConversationResponse{Conversation: conv}

	for _, participantID := range conv.Participants {
		user, err := uc.userRepo.GetByID(ctx, participantID)
		if err != nil {
			log.Printf("Warning: Participant %s not found for conversation %s: %v", participantID, conv.ID, err)
			continue
		}
		resp.Users = append(resp.Users, user)
	}

	return resp
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
