package handler

import (
	"strings"

	"github.com/labstack/echo/v4"

	"edulink/internal/usecase"
	"edulink/pkg/response"
	"edulink/pkg/utils"
)

type MessagingHandler struct {
	messagingUseCase *usecase.MessagingUseCase
}

func NewMessagingHandler(messagingUseCase *usecase.MessagingUseCase) *MessagingHandler {
	return &MessagingHandler{
		messagingUseCase: messagingUseCase,
	}
}

type startConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1"`
}

type sendMessageRequest struct {
	Content     string `json:"content" validate:"required"`
	Type        string `json:"type" validate:"omitempty,oneof=text system"`
	ClientToken string `json:"client_token"`
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

type archiveRequest struct {
	Archived bool `json:"archived"`
}

// StartConversation creates a conversation with the given participants, or
// returns the existing one when the participant set already has a thread.
func (h *MessagingHandler) StartConversation(c echo.Context) error {
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conv, created, err := h.messagingUseCase.StartConversation(c.Request().Context(), userID, usecase.StartConversationInput{
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, conv)
	}
	return response.Success(c, conv)
}

func (h *MessagingHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	params := utils.GetPaginationParams(c)

	convs, total, err := h.messagingUseCase.ListConversations(c.Request().Context(), userID, params.Limit, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, convs, total, params.Page, params.Limit)
}

func (h *MessagingHandler) GetConversation(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	conv, err := h.messagingUseCase.GetConversation(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

func (h *MessagingHandler) DeleteConversation(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	if err := h.messagingUseCase.DeleteConversation(c.Request().Context(), userID, conversationID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "deleted"})
}

func (h *MessagingHandler) SetArchived(c echo.Context) error {
	var req archiveRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	conv, err := h.messagingUseCase.SetArchived(c.Request().Context(), userID, conversationID, req.Archived)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

// SendMessage persists a message and fans it out to the other participants'
// live channels. Retries carrying the same client token return the original
// message instead of a duplicate.
func (h *MessagingHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	message, err := h.messagingUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ConversationID: conversationID,
		Content:        req.Content,
		Type:           req.Type,
		ClientToken:    req.ClientToken,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetMessages returns a page of messages in chronological order. Pages are
// addressed newest-first, so page 1 is always the latest messages.
func (h *MessagingHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")
	params := utils.GetPaginationParams(c)

	messages, total, err := h.messagingUseCase.GetMessages(c.Request().Context(), userID, conversationID, params.Limit, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, messages, total, params.Page, params.Limit)
}

// MarkAsRead records read receipts and zeroes the caller's unread counter
// for the conversation. With no explicit message ids, everything unread in
// the conversation is marked.
func (h *MessagingHandler) MarkAsRead(c echo.Context) error {
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	if err := h.messagingUseCase.MarkAsRead(c.Request().Context(), userID, conversationID, req.MessageIDs); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "read"})
}

func (h *MessagingHandler) UnreadCounts(c echo.Context) error {
	userID := c.Get("uid").(string)

	counts, err := h.messagingUseCase.UnreadCounts(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, counts)
}

func (h *MessagingHandler) SearchUsers(c echo.Context) error {
	userID := c.Get("uid").(string)
	query := strings.TrimSpace(c.QueryParam("q"))

	users, err := h.messagingUseCase.SearchUsers(c.Request().Context(), userID, query)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, users)
}
