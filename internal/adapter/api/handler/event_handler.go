package handler

import (
	"github.com/labstack/echo/v4"

	"edulink/internal/domain/entity"
	"edulink/internal/usecase"
	"edulink/pkg/response"
)

// EventHandler exposes the producer endpoints the course, grading and forum
// services call to push notifications into user channels.
type EventHandler struct {
	notificationUseCase *usecase.NotificationUseCase
}

func NewEventHandler(notificationUseCase *usecase.NotificationUseCase) *EventHandler {
	return &EventHandler{
		notificationUseCase: notificationUseCase,
	}
}

type assignmentCreatedRequest struct {
	usecase.AssignmentCreatedInput
	RecipientIDs []string `json:"recipient_ids" validate:"required,min=1"`
}

type assignmentGradedRequest struct {
	usecase.AssignmentGradedInput
	StudentID string `json:"student_id" validate:"required"`
}

type forumReplyRequest struct {
	usecase.ForumReplyInput
	RecipientIDs []string `json:"recipient_ids" validate:"required,min=1"`
}

type notifyRequest struct {
	RecipientIDs []string            `json:"recipient_ids" validate:"required,min=1"`
	Notification entity.Notification `json:"notification"`
}

func (h *EventHandler) AssignmentCreated(c echo.Context) error {
	var req assignmentCreatedRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	input := req.AssignmentCreatedInput
	input.RecipientIDs = req.RecipientIDs

	if err := h.notificationUseCase.NotifyAssignmentCreated(c.Request().Context(), input); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{"status": "sent", "recipients": len(req.RecipientIDs)})
}

func (h *EventHandler) AssignmentGraded(c echo.Context) error {
	var req assignmentGradedRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	input := req.AssignmentGradedInput
	input.StudentID = req.StudentID

	if err := h.notificationUseCase.NotifyAssignmentGraded(c.Request().Context(), input); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "sent"})
}

func (h *EventHandler) ForumReply(c echo.Context) error {
	var req forumReplyRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	input := req.ForumReplyInput
	input.RecipientIDs = req.RecipientIDs

	if err := h.notificationUseCase.NotifyForumReply(c.Request().Context(), input); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{"status": "sent", "recipients": len(req.RecipientIDs)})
}

// Notify pushes a prebuilt notification, for producers without a dedicated
// event shape.
func (h *EventHandler) Notify(c echo.Context) error {
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := h.notificationUseCase.Notify(c.Request().Context(), req.RecipientIDs, req.Notification); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{"status": "sent", "recipients": len(req.RecipientIDs)})
}
