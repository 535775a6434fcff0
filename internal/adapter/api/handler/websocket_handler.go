package handler

import (
	"context"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"edulink/internal/adapter/api/middleware"
	ws "edulink/internal/infrastructure/websocket"
	"edulink/internal/usecase"
	"edulink/pkg/errors"
	"edulink/pkg/logger"
)

type WebSocketHandler struct {
	wsManager        *ws.Manager
	authMiddleware   *middleware.AuthMiddleware
	messagingUseCase *usecase.MessagingUseCase
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // You should restrict this in production
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, authMiddleware *middleware.AuthMiddleware, messagingUseCase *usecase.MessagingUseCase, handshakeTimeout time.Duration) *WebSocketHandler {
	h := &WebSocketHandler{
		wsManager:        wsManager,
		authMiddleware:   authMiddleware,
		messagingUseCase: messagingUseCase,
	}

	if handshakeTimeout > 0 {
		upgrader.HandshakeTimeout = handshakeTimeout
	}

	wsManager.SetEventHandler(h.HandleEvent)
	return h
}

// HandleWebSocket authenticates the upgrade request and hands the connection
// to the manager. The token rides in a query parameter because browsers
// cannot set headers on a WebSocket upgrade.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication token is required", nil)
	}

	userID, role, err := h.authMiddleware.VerifyToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		UserID: userID,
		Role:   role,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	h.wsManager.Register <- client

	go client.ReadPump(h.wsManager)
	go client.WritePump()

	return nil
}

// HandleEvent dispatches decoded client frames. Installed on the manager at
// construction time; ping frames never reach here.
func (h *WebSocketHandler) HandleEvent(client *ws.Client, env *ws.Envelope) {
	switch env.Type {
	case ws.EventJoinUserRoom:
		// Registration already bound the channel to the user; the frame is
		// accepted for client compatibility and checked for consistency.
		var data ws.JoinUserRoomData
		if err := env.DecodeData(&data); err != nil {
			h.sendError(client, "Malformed join_user_room payload")
			return
		}
		if data.UserID != "" && data.UserID != client.UserID {
			h.sendError(client, "Cannot join another user's room")
		}

	case ws.EventSendMessage:
		h.handleSendMessage(client, env)

	case ws.EventMarkNotificationRead, ws.EventClearNotification, ws.EventClearAllNotifications:
		// Notification state lives client-side; the server only logs these
		// so misbehaving clients show up in the logs.
		logger.Debug("websocket: %s frame from %s", env.Type, client.UserID)

	default:
		h.sendError(client, "Unsupported event type: "+env.Type)
	}
}

func (h *WebSocketHandler) handleSendMessage(client *ws.Client, env *ws.Envelope) {
	var data ws.SendMessageData
	if err := env.DecodeData(&data); err != nil {
		h.sendError(client, "Malformed send_message payload")
		return
	}

	message, err := h.messagingUseCase.SendMessage(context.Background(), client.UserID, usecase.SendMessageInput{
		ConversationID: data.ConversationID,
		Content:        data.Content,
		Type:           data.Type,
		ClientToken:    data.ClientToken,
	})
	if err != nil {
		logger.Warn("websocket: send_message from %s rejected: %v", client.UserID, err)
		if appErr, ok := err.(*errors.AppError); ok {
			h.sendError(client, appErr.Message)
		} else {
			h.sendError(client, "Internal server error")
		}
		return
	}

	// Echo the persisted message back so the sender's view picks up the
	// server-assigned id and timestamp. Peers got theirs in the use case.
	h.wsManager.SendEvent(client.UserID, ws.EventNewMessage, message)
}

func (h *WebSocketHandler) sendError(client *ws.Client, message string) {
	h.wsManager.SendEvent(client.UserID, ws.EventError, ws.ErrorData{Error: message, UserID: client.UserID})
}
