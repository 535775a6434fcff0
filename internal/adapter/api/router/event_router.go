package router

import (
	"github.com/labstack/echo/v4"

	"edulink/internal/adapter/api/handler"
	"edulink/internal/adapter/api/middleware"
)

// SetupEventRouter mounts the internal producer endpoints, guarded by the
// shared service key.
func SetupEventRouter(e *echo.Echo, serviceKeyMiddleware *middleware.ServiceKeyMiddleware) {
	eventHandler := handler.GetEventHandler()

	eventGroup := e.Group("/v1/events")
	eventGroup.Use(serviceKeyMiddleware.Authenticate)

	eventGroup.POST("/assignment-created", eventHandler.AssignmentCreated)
	eventGroup.POST("/assignment-graded", eventHandler.AssignmentGraded)
	eventGroup.POST("/forum-reply", eventHandler.ForumReply)
	eventGroup.POST("/notify", eventHandler.Notify)
}
