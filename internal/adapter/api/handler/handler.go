package handler

import (
	"edulink/internal/usecase"
)

var (
	messagingHandler *MessagingHandler
	eventHandler     *EventHandler
)

func Setup(
	messagingUseCase *usecase.MessagingUseCase,
	notificationUseCase *usecase.NotificationUseCase,
) {
	messagingHandler = NewMessagingHandler(messagingUseCase)
	eventHandler = NewEventHandler(notificationUseCase)
}

func GetMessagingHandler() *MessagingHandler {
	return messagingHandler
}

func GetEventHandler() *EventHandler {
	return eventHandler
}
