package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sandy-backend/internal/config"
	"sandy-backend/internal/database"
	"sandy-backend/internal/exchange"
	"sandy-backend/internal/handlers"
	"sandy-backend/internal/middleware"
	"sandy-backend/internal/notify"
	"sandy-backend/internal/repository"
	"sandy-backend/internal/router"
	"sandy-backend/internal/session"
	"sandy-backend/internal/storage"
	"sandy-backend/internal/upload"
	"sandy-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting Sandy Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	chatRepo := repository.NewChatRepo(pool)
	folderRepo := repository.NewFolderRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	notifier := notify.NewRedisNotifier(redisClients.Notify)
	sessionManager := session.NewManager(chatRepo, folderRepo, profileRepo, notifier)

	exchangeClient := exchange.NewClient(
		cfg.InferenceBaseURL,
		cfg.InferenceAPIKey,
		time.Duration(cfg.InferenceTimeout)*time.Second,
	)
	log.Println("✓ Inference client initialized")

	blobStore, err := storage.NewLocalStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		log.Fatalf("✗ Blob storage initialization failed: %v", err)
	}
	uploadCoordinator := upload.NewCoordinator(blobStore, upload.NewPDFExtractor(), notifier)
	log.Println("✓ Upload coordinator initialized")

	// ──── Initialize Handlers ────
	sessionHandler := handlers.NewSessionHandler(sessionManager)
	chatHandler := handlers.NewChatHandler(sessionManager, exchangeClient, uploadCoordinator, notifier)
	folderHandler := handlers.NewFolderHandler(sessionManager)
	uploadHandler := handlers.NewUploadHandler(uploadCoordinator)
	profileHandler := handlers.NewProfileHandler(sessionManager, exchangeClient)
	catalogHandler := handlers.NewCatalogHandler()

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		sessionHandler,
		chatHandler,
		folderHandler,
		uploadHandler,
		profileHandler,
		catalogHandler,
		wsHub,
		blobStore.Root(),
		cfg.FrontendURL,
	)

	// Write timeout must outlast a full inference turn; submit requests hold
	// the connection while the assistant reply is generated.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.InferenceTimeout+30) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Sandy Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
