package usecase

import (
	"context"
	"log"
	"time"

	"edulink/internal/domain/entity"
	ws "edulink/internal/infrastructure/websocket"
	"edulink/pkg/errors"
)

// NotificationUseCase fans cross-cutting LMS events (assignments, grades,
// forum replies) out to user channels as transient notifications. Producers
// are the CRUD collaborators; nothing here is persisted.
type NotificationUseCase struct {
	gateway EventGateway
}

func NewNotificationUseCase(gateway EventGateway) *NotificationUseCase {
	return &NotificationUseCase{
		gateway: gateway,
	}
}

type AssignmentCreatedInput struct {
	AssignmentID string    `json:"assignment_id"`
	CourseID     string    `json:"course_id"`
	CourseName   string    `json:"course_name"`
	Title        string    `json:"title"`
	DueDate      time.Time `json:"due_date"`
	RecipientIDs []string  `json:"-"`
}

type AssignmentGradedInput struct {
	AssignmentID string `json:"assignment_id"`
	Title        string `json:"title"`
	StudentID    string `json:"-"`
	Grade        string `json:"grade"`
}

type ForumReplyInput struct {
	ThreadID     string   `json:"thread_id"`
	ThreadTitle  string   `json:"thread_title"`
	AuthorID     string   `json:"author_id"`
	AuthorName   string   `json:"author_name"`
	Preview      string   `json:"preview"`
	RecipientIDs []string `json:"-"`
}

// NotifyAssignmentCreated pushes a new_assignment event to every enrolled
// student's channel.
func (uc *NotificationUseCase) NotifyAssignmentCreated(ctx context.Context, input AssignmentCreatedInput) error {
	if input.AssignmentID == "" || len(input.RecipientIDs) == 0 {
		return errors.BadRequest("Assignment id and recipients are required", nil)
	}

	for _, userID := range input.RecipientIDs {
		uc.gateway.SendEvent(userID, ws.EventNewAssignment, input)
	}

	log.Printf("NotifyAssignmentCreated: assignment %s fanned out to %d recipients", input.AssignmentID, len(input.RecipientIDs))
	return nil
}

// NotifyAssignmentGraded pushes an assignment_graded event to the student.
func (uc *NotificationUseCase) NotifyAssignmentGraded(ctx context.Context, input AssignmentGradedInput) error {
	if input.AssignmentID == "" || input.StudentID == "" {
		return errors.BadRequest("Assignment id and student id are required", nil)
	}

	uc.gateway.SendEvent(input.StudentID, ws.EventAssignmentGraded, input)
	return nil
}

// NotifyForumReply pushes a forum_reply event to thread subscribers, never to
// the reply author.
func (uc *NotificationUseCase) NotifyForumReply(ctx context.Context, input ForumReplyInput) error {
	if input.ThreadID == "" || len(input.RecipientIDs) == 0 {
		return errors.BadRequest("Thread id and recipients are required", nil)
	}

	for _, userID := range input.RecipientIDs {
		if userID == input.AuthorID {
			continue
		}
		uc.gateway.SendEvent(userID, ws.EventForumReply, input)
	}

	return nil
}

// Notify pushes a prebuilt notification to each recipient as a generic
// notification event.
func (uc *NotificationUseCase) Notify(ctx context.Context, recipientIDs []string, notification entity.Notification) error {
	if notification.Type == "" || len(recipientIDs) == 0 {
		return errors.BadRequest("Notification type and recipients are required", nil)
	}

	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	for _, userID := range recipientIDs {
		uc.gateway.SendEvent(userID, ws.EventNotification, notification)
	}

	return nil
}
