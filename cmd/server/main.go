package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/bigkid-dev/Bmovez/internal/config"
	"github.com/bigkid-dev/Bmovez/internal/db"
	"github.com/bigkid-dev/Bmovez/internal/messaging"
	myMiddleware "github.com/bigkid-dev/Bmovez/internal/middleware"
	"github.com/bigkid-dev/Bmovez/internal/storage"
	"github.com/bigkid-dev/Bmovez/internal/user"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", "", "http service address (overrides ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// 5. Initialize Messaging Feature
	channelRepo := messaging.NewChannelRepository(database.Conn)
	messageRepo := messaging.NewMessageRepository(database.Conn)
	fileRepo := messaging.NewFileRepository(database.Conn)

	gate := messaging.NewGate(channelRepo)
	publisher := messaging.NewPublisher(messaging.NewRedisTransport(redisClient), logger, cfg.PublishTimeout)

	msgService := messaging.NewService(channelRepo, messageRepo, fileRepo, gate, publisher, logger, cfg.MessagePageSize)

	// Hub fans Redis events out to connected websocket clients.
	hub := messaging.NewHub(redisClient, logger)
	go hub.Run()
	go hub.SubscribeToRedis(context.Background())

	store := storage.NewDisk(cfg.MediaRoot)
	msgHandler := messaging.NewHandler(msgService, hub, store, logger)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/me", userHandler.Me)
		r.Patch("/api/users/me", userHandler.UpdateMe)
		r.Get("/api/users/search", userHandler.SearchUsers)

		r.Get("/api/channels", msgHandler.ListChannels)
		r.Post("/api/channels", msgHandler.CreateChannel)
		r.Get("/api/channels/{channelID}", msgHandler.GetChannel)
		r.Patch("/api/channels/{channelID}", msgHandler.UpdateChannel)
		r.Delete("/api/channels/{channelID}", msgHandler.DeleteChannel)
		r.Post("/api/channels/{channelID}/add-members", msgHandler.AddMembers)
		r.Post("/api/channels/{channelID}/remove-members", msgHandler.RemoveMembers)

		r.Get("/api/messages/{channelID}", msgHandler.ListMessages)
		r.Post("/api/messages/{channelID}", msgHandler.CreateMessage)
		r.Post("/api/messages/dm/{userID}", msgHandler.SendDirectMessage)
		r.Get("/api/messages/{channelID}/{messageID}", msgHandler.GetMessage)
		r.Patch("/api/messages/{channelID}/{messageID}", msgHandler.UpdateMessage)
		r.Delete("/api/messages/{channelID}/{messageID}", msgHandler.DeleteMessage)

		r.Post("/api/files", msgHandler.UploadFile)
		r.Get("/api/files/{channelID}", msgHandler.ListChannelFiles)

		r.Post("/api/reactions/{channelID}", msgHandler.CreateReaction)
		r.Patch("/api/reactions/{channelID}/{reactionID}", msgHandler.UpdateReaction)
		r.Delete("/api/reactions/{channelID}/{reactionID}", msgHandler.DeleteReaction)

		// WebSocket (Real-time)
		r.Get("/ws", msgHandler.ServeWs)
	})

	log.Printf("🚀 Server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}
