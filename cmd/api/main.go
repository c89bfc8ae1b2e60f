package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docshare/backend/internal/analysis"
	"github.com/docshare/backend/internal/api/handlers"
	"github.com/docshare/backend/internal/auth"
	"github.com/docshare/backend/internal/cache/redis"
	graphneo4j "github.com/docshare/backend/internal/graph/neo4j"
	"github.com/docshare/backend/internal/ingestion"
	"github.com/docshare/backend/internal/metrics"
	"github.com/docshare/backend/internal/middleware/ratelimit"
	"github.com/docshare/backend/internal/middleware/security"
	"github.com/docshare/backend/internal/middleware/validation"
	"github.com/docshare/backend/internal/moderation"
	"github.com/docshare/backend/internal/notification"
	"github.com/docshare/backend/internal/realtime"
	"github.com/docshare/backend/internal/similarity"
	"github.com/docshare/backend/internal/storage/sqlite"
	"github.com/docshare/backend/internal/vector/milvus"
	"github.com/docshare/backend/pkg/config"
	appLogger "github.com/docshare/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DocShare moderation API server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// redis, milvus and neo4j are collaborators the pipeline degrades
	// without: no signals cache, no candidate retrieval, no duplicate graph.
	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Warn("Milvus unavailable, running without candidate retrieval", zap.Error(err))
		milvusClient = nil
	} else {
		defer milvusClient.Close()
		if err := milvusClient.CreateCollection(context.Background()); err != nil {
			appLogger.Fatal("Failed to create collection", zap.Error(err))
		}
	}

	neo4jClient, err := graphneo4j.NewClient(
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
	)
	if err != nil {
		appLogger.Warn("Neo4j unavailable, running without duplicate graph", zap.Error(err))
		neo4jClient = nil
	} else {
		defer neo4jClient.Close(context.Background())
	}

	var analyzer analysis.Analyzer = analysis.NewClient(
		cfg.Analysis.APIKey,
		cfg.Analysis.EmbeddingModel,
		cfg.Analysis.TimeoutSec,
	)
	if redisClient != nil {
		analyzer = analysis.NewCachedAnalyzer(
			analyzer,
			redisClient,
			time.Duration(cfg.Analysis.CacheTTLMin)*time.Minute,
		)
	}

	detector, err := similarity.NewDetector(cfg.Similarity)
	if err != nil {
		appLogger.Fatal("Failed to create similarity detector", zap.Error(err))
	}

	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry)

	var unread notification.UnreadCounter
	if redisClient != nil {
		unread = redisClient
	}
	gateway := notification.NewGateway(sqliteClient, broadcaster, unread)

	var index moderation.CandidateIndex
	if milvusClient != nil {
		index = milvusClient
	}
	var graph moderation.DuplicateGraph
	if neo4jClient != nil {
		graph = neo4jClient
	}

	engine, err := moderation.NewEngine(
		cfg.Moderation,
		detector,
		analyzer,
		sqliteClient,
		index,
		graph,
		gateway,
	)
	if err != nil {
		appLogger.Fatal("Failed to create moderation engine", zap.Error(err))
	}

	fingerprinter := ingestion.NewFingerprinter()
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	moderationHandler := handlers.NewModerationHandler(engine, fingerprinter, sqliteClient, neo4jClient)
	notificationHandler := handlers.NewNotificationHandler(sqliteClient, redisClient)
	wsHandler := handlers.NewWebSocketHandler(registry, verifier)

	api := app.Group("/api/v1")

	api.Post("/documents", moderationHandler.SubmitDocument)
	api.Post("/documents/:id/resubmit", moderationHandler.ResubmitDocument)
	api.Get("/documents/:id/duplicates", moderationHandler.GetDuplicates)

	api.Get("/moderation/policy", moderationHandler.GetPolicy)
	api.Put("/moderation/policy", moderationHandler.UpdatePolicy)
	api.Get("/moderation/:documentId", moderationHandler.GetModeration)
	api.Post("/moderation/:documentId/decision", moderationHandler.RecordDecision)

	api.Post("/similarity/:matchId/resolve", moderationHandler.ResolveMatch)

	api.Get("/notifications", notificationHandler.ListNotifications)
	api.Get("/notifications/unread", notificationHandler.GetUnreadCount)
	api.Post("/notifications/:id/read", notificationHandler.MarkRead)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "healthy",
			"connections": registry.Count(),
			"time":        time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", wsHandler.UpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
