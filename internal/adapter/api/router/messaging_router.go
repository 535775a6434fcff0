package router

import (
	"github.com/labstack/echo/v4"

	"edulink/internal/adapter/api/handler"
	"edulink/internal/adapter/api/middleware"
)

// SetupMessagingRouter mounts the conversation and message endpoints. All of
// them require an authenticated user.
func SetupMessagingRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	messagingHandler := handler.GetMessagingHandler()

	convGroup := e.Group("/v1/conversations")
	convGroup.Use(authMiddleware.Authenticate)

	convGroup.POST("", messagingHandler.StartConversation)
	convGroup.GET("", messagingHandler.ListConversations)
	convGroup.GET("/:id", messagingHandler.GetConversation)
	convGroup.DELETE("/:id", messagingHandler.DeleteConversation)
	convGroup.PATCH("/:id/archive", messagingHandler.SetArchived)

	convGroup.POST("/:id/messages", messagingHandler.SendMessage)
	convGroup.GET("/:id/messages", messagingHandler.GetMessages)
	convGroup.PATCH("/:id/read", messagingHandler.MarkAsRead)

	authed := e.Group("/v1", authMiddleware.Authenticate)
	authed.GET("/unread-count", messagingHandler.UnreadCounts)
	authed.GET("/users/search", messagingHandler.SearchUsers)
}
