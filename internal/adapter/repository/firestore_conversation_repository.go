package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"edulink/internal/domain/entity"
	"edulink/internal/domain/repository"
	"edulink/pkg/errors"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.ParticipantKey == "" {
		conv.ParticipantKey = entity.ParticipantKey(conv.Participants)
	}

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := r.client.Collection("conversations").Doc(conv.ID).Set(ctx, conv)
	if err != nil {
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection("conversations").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conv, nil
}

// GetByParticipantKey looks a conversation up by its canonical participant
// set. Creation does lookup-before-insert through this method, which is what
// keeps participant sets unique.
func (r *firestoreConversationRepository) GetByParticipantKey(ctx context.Context, key string) (*entity.Conversation, error) {
	iter := r.client.Collection("conversations").Where("participantKey", "==", key).Limit(1).Documents(ctx)

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Conversation", nil)
	}
	if err != nil {
		return nil, errors.Internal("Failed to query conversation by participants", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conv, nil
}

func (r *firestoreConversationRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	query := r.client.Collection("conversations").Where("participants", "array-contains", userID).OrderBy("updatedAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while fetching conversations for user %s: %v", userID, err)
		return nil, 0, errors.Internal("Failed to fetch conversations", err)
	}

	total := int64(len(allDocs))

	// Paginate in-memory; the result set per user is small
	start := offset
	end := len(allDocs)
	if limit > 0 && limit != -1 {
		end = start + limit
		if end > len(allDocs) {
			end = len(allDocs)
		}
	}
	if start > len(allDocs) {
		start = len(allDocs)
	}

	var convs []*entity.Conversation
	for i := start; i < end; i++ {
		var conv entity.Conversation
		if err := allDocs[i].DataTo(&conv); err != nil {
			log.Printf("Error parsing conversation data for user %s: %v", userID, err)
			continue
		}
		convs = append(convs, &conv)
	}

	return convs, total, nil
}

func (r *firestoreConversationRepository) Update(ctx context.Context, conv *entity.Conversation) error {
	conv.UpdatedAt = time.Now()

	_, err := r.client.Collection("conversations").Doc(conv.ID).Set(ctx, conv)
	if err != nil {
		return errors.Internal("Failed to update conversation", err)
	}

	return nil
}

// Delete removes a conversation and cascades over its message subcollection.
func (r *firestoreConversationRepository) Delete(ctx context.Context, id string) error {
	messages := r.client.Collection("conversations").Doc(id).Collection("messages")

	for {
		docs, err := messages.Limit(100).Documents(ctx).GetAll()
		if err != nil {
			return errors.Internal("Failed to list messages for deletion", err)
		}
		if len(docs) == 0 {
			break
		}

		batch := r.client.Batch()
		for _, doc := range docs {
			batch.Delete(doc.Ref)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return errors.Internal("Failed to delete conversation messages", err)
		}
	}

	_, err := r.client.Collection("conversations").Doc(id).Delete(ctx)
	if err != nil {
		return errors.Internal("Failed to delete conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	message.CreatedAt = time.Now()

	_, err := r.client.Collection("conversations").Doc(message.ConversationID).Collection("messages").Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

// GetMessageByClientToken finds a previously persisted message for an
// idempotency token, so a retried submit returns the original record instead
// of creating a duplicate.
func (r *firestoreConversationRepository) GetMessageByClientToken(ctx context.Context, conversationID, clientToken string) (*entity.Message, error) {
	iter := r.client.Collection("conversations").Doc(conversationID).Collection("messages").
		Where("clientToken", "==", clientToken).Limit(1).Documents(ctx)

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Message", nil)
	}
	if err != nil {
		return nil, errors.Internal("Failed to query message by client token", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}

	return &message, nil
}

// GetMessagesByConversation pages newest-first; callers assemble pages back
// into oldest-first order.
func (r *firestoreConversationRepository) GetMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.client.Collection("conversations").Doc(conversationID).Collection("messages").OrderBy("createdAt", firestore.Desc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while counting messages for conversation %s: %v", conversationID, err)
		return nil, 0, errors.Internal("Failed to count messages", err)
	}
	total := int64(len(countDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, 0, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for conversation %s: %v", conversationID, err)
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}

		messages = append(messages, &message)
	}

	return messages, total, nil
}

// ListUnreadMessages returns messages in a conversation not sent by the user
// and not yet carrying the user's read receipt.
func (r *firestoreConversationRepository) ListUnreadMessages(ctx context.Context, conversationID, userID string) ([]*entity.Message, error) {
	iter := r.client.Collection("conversations").Doc(conversationID).Collection("messages").
		OrderBy("createdAt", firestore.Asc).Documents(ctx)

	var unread []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for conversation %s: %v", conversationID, err)
			continue
		}

		if message.SenderID == userID || message.ReadByUser(userID) {
			continue
		}
		unread = append(unread, &message)
	}

	return unread, nil
}

// AddReadReceipt appends a {userID, readAt} pair to a message. Adding a pair
// that is already present is a no-op.
func (r *firestoreConversationRepository) AddReadReceipt(ctx context.Context, conversationID, messageID, userID string) error {
	docRef := r.client.Collection("conversations").Doc(conversationID).Collection("messages").Doc(messageID)
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// Message may be old or deleted; read marking is best-effort
			log.Printf("AddReadReceipt: Message %s not found in conversation %s", messageID, conversationID)
			return nil
		}
		return errors.Internal("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return errors.Internal("Failed to parse message data", err)
	}

	if message.ReadByUser(userID) {
		return nil
	}

	message.ReadBy = append(message.ReadBy, entity.ReadReceipt{UserID: userID, ReadAt: time.Now()})

	if _, err := docRef.Set(ctx, &message); err != nil {
		return errors.Internal("Failed to update message read state", err)
	}

	return nil
}
