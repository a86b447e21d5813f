package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/squashterm/api/internal/config"
	"github.com/squashterm/api/internal/fetcher"
	"github.com/squashterm/api/internal/handler"
	"github.com/squashterm/api/internal/importer"
	"github.com/squashterm/api/internal/middleware"
	"github.com/squashterm/api/internal/store"
	"github.com/squashterm/api/internal/stream"
	"github.com/squashterm/api/internal/syncer"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	mediaDir := cfg.Data.MediaDir
	if mediaDir == "" {
		mediaDir = filepath.Join(cfg.Data.Dir, "media")
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		log.Fatalf("Failed to create media dir: %v", err)
	}

	// Open the library document
	st, err := store.Open(filepath.Join(cfg.Data.Dir, cfg.Data.LibraryFile))
	if err != nil {
		log.Fatalf("Failed to open library: %v", err)
	}
	defer st.Close()

	// Initialize validator
	validate := validator.New()

	// Event stream hub
	hub := stream.NewHub()

	// Media fetcher
	fetch := fetcher.NewYTDLP(
		cfg.Import.FetcherBinary,
		mediaDir,
		time.Duration(cfg.Import.FetchTimeoutMinutes)*time.Minute,
		float64(cfg.Import.RatePerSec),
	)

	// Queue backend: in-process pool unless Redis is configured
	var queue importer.Queue
	var redisClient *redis.Client
	var asynqClient *asynq.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Warning: Redis not available: %v", err)
		}
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		queue = importer.NewAsynqQueue(asynqClient)
		log.Println("Using Redis-backed import queue")
	}

	// Job coordinator
	coord := importer.NewCoordinator(st, fetch, hub, importer.Config{
		DefaultConcurrency: cfg.Import.DefaultConcurrency,
		MaxConcurrency:     cfg.Import.MaxConcurrency,
	}, queue)
	if redisClient != nil {
		coord.SetCounterMirror(redisClient)
	}

	// Auto-sync scheduler
	sched := syncer.New(st, coord, fetch,
		time.Duration(cfg.AutoSync.PollSeconds)*time.Second,
		time.Duration(cfg.AutoSync.MinIntervalMinutes)*time.Minute,
	)
	syncCtx, stopSync := context.WithCancel(context.Background())
	defer stopSync()
	go sched.Run(syncCtx)

	// Initialize handlers
	libraryHandler := handler.NewLibraryHandler(st, coord, hub, mediaDir, validate)
	playlistHandler := handler.NewPlaylistHandler(st, sched, validate)
	favoritesHandler := handler.NewFavoritesHandler(st, validate)
	jobHandler := handler.NewJobHandler(coord)
	systemHandler := handler.NewSystemHandler(st, cfg)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.Secret)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Static media and assets
	app.Static("/media", mediaDir)
	app.Static("/static", "./static")

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Library routes
	api.Get("/library", libraryHandler.List)
	api.Put("/library/:trackId", libraryHandler.UpdateTrack)
	api.Delete("/library/:trackId", libraryHandler.DeleteTrack)
	api.Post("/library/import", libraryHandler.Import)
	api.Post("/library/import/stream", libraryHandler.ImportStream)
	api.Post("/library/import/playlist-batch", libraryHandler.ImportPlaylistBatch)

	// Playlist routes
	api.Get("/playlists", playlistHandler.List)
	api.Post("/playlists", playlistHandler.Create)
	api.Put("/playlists/:id", playlistHandler.Update)
	api.Delete("/playlists/:id", playlistHandler.Delete)
	api.Post("/playlists/:id/sync", playlistHandler.Sync)

	// Favorites routes
	api.Get("/favorites", favoritesHandler.Get)
	api.Put("/favorites", favoritesHandler.Put)

	// Job polling fallback
	api.Get("/jobs/:jobId", jobHandler.Get)

	// System routes
	api.Get("/status", systemHandler.Status)
	api.Get("/settings", systemHandler.Settings)
	api.Get("/system", systemHandler.System)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start the asynq worker server when the Redis queue is in use
	if cfg.Redis.Addr != "" {
		go startWorkerServer(cfg, coord)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		stopSync()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, coord *importer.Coordinator) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Asynq.Concurrency,
		},
	)

	taskWorker := importer.NewTaskWorker(coord)

	mux := asynq.NewServeMux()
	mux.HandleFunc(importer.TaskTypeImport, taskWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
