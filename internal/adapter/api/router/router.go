package router

import (
	"github.com/labstack/echo/v4"

	"edulink/internal/adapter/api/handler"
	"edulink/internal/adapter/api/middleware"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, serviceKeyMiddleware *middleware.ServiceKeyMiddleware) {
	SetupMessagingRouter(e, authMiddleware)
	SetupEventRouter(e, serviceKeyMiddleware)
	SetupHealthRouter(e)
}

// SetupWebSocketRouter mounts the live channel endpoint. Authentication
// happens inside the handler; the upgrade request carries the token itself.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
