package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"edulink/internal/adapter/api"
	"edulink/internal/adapter/api/handler"
	apimiddleware "edulink/internal/adapter/api/middleware"
	"edulink/internal/adapter/api/router"
	"edulink/internal/adapter/repository"
	"edulink/internal/infrastructure/firebase"
	"edulink/internal/infrastructure/websocket"
	"edulink/internal/usecase"
	"edulink/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opt option.ClientOption

	// Try to get service account from environment variable (for production)
	serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	if serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		// Fallback to file path (for local development)
		serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
		if serviceAccountPath == "" {
			serviceAccountPath = "./service-account.json"
		}

		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}

		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opt = option.WithCredentialsFile(serviceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	// Redis backs cross-instance fan-out. Without it a single instance
	// still works; events just never leave the process.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		defer redisClient.Close()
	} else {
		log.Printf("REDIS_ADDR not set, running without cross-instance fan-out")
	}

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	convRepo := repository.NewFirestoreConversationRepository(firestoreClient)

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient, cfg.FirebaseApiKey)

	wsManager := websocket.NewManager(redisClient)
	wsManager.Start(ctx)

	messagingUseCase := usecase.NewMessagingUseCase(convRepo, userRepo, wsManager)
	notificationUseCase := usecase.NewNotificationUseCase(wsManager)

	handler.Setup(messagingUseCase, notificationUseCase)
	handler.SetupHealthHandler(firebaseAuthClient)
	handler.SetupDevTokenHandler(firebaseAuthClient, userRepo)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)
	serviceKeyMiddleware := apimiddleware.NewServiceKeyMiddleware(cfg.ServiceKey)

	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware, messagingUseCase, cfg.HandshakeTimeout)

	router.Setup(e, authMiddleware, serviceKeyMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)
	router.SetupDevRouter(e, cfg.Environment)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
