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

	"github.com/docsense/backend/internal/api/handlers"
	redisCache "github.com/docsense/backend/internal/cache/redis"
	"github.com/docsense/backend/internal/chunkstore"
	"github.com/docsense/backend/internal/chunkstore/memory"
	"github.com/docsense/backend/internal/chunkstore/milvus"
	"github.com/docsense/backend/internal/ingestion"
	"github.com/docsense/backend/internal/llm"
	"github.com/docsense/backend/internal/metrics"
	"github.com/docsense/backend/internal/middleware/ratelimit"
	"github.com/docsense/backend/internal/middleware/validation"
	"github.com/docsense/backend/internal/orchestrator"
	"github.com/docsense/backend/internal/prompt"
	"github.com/docsense/backend/internal/retrieval"
	"github.com/docsense/backend/internal/storage/sqlite"
	"github.com/docsense/backend/internal/validate"
	"github.com/docsense/backend/pkg/config"
	appLogger "github.com/docsense/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DocSense API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cache *redisCache.Client
	if cfg.Redis.Enabled {
		cache, err = redisCache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}
	cacheTTL := time.Duration(cfg.Redis.TTLMin) * time.Minute

	llmClient := llm.NewClient(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
	)

	var embedder chunkstore.Embedder = llmClient
	if cache != nil {
		embedder = redisCache.NewCachedEmbedder(llmClient, cache, cacheTTL)
	}

	var store chunkstore.Store
	if cfg.Milvus.Enabled {
		milvusStore, err := milvus.New(
			context.Background(),
			cfg.Milvus.Endpoint,
			cfg.Milvus.CollectionName,
			cfg.Milvus.VectorDim,
			embedder,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Milvus store", zap.Error(err))
		}
		defer milvusStore.Close()
		store = milvusStore
	} else {
		appLogger.Info("Milvus disabled, using in-memory chunk store")
		store = memory.New(embedder)
	}

	retriever := retrieval.NewRetriever(store, retrieval.Config{
		FetchK:              cfg.Retrieval.FetchK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		Timeout:             time.Duration(cfg.Retrieval.TimeoutSec) * time.Second,
		MaxChunkWords:       cfg.Retrieval.MaxChunkWords,
	})

	builder := prompt.NewBuilder(prompt.Config{
		MaxChunkChars:   cfg.Prompt.MaxChunkChars,
		MaxContextChars: cfg.Prompt.MaxContextChars,
		HistoryTurns:    cfg.Prompt.HistoryTurns,
	})

	orch := orchestrator.New(store, retriever, builder, validate.New(), llmClient, orchestrator.Config{
		TopK:      cfg.Retrieval.TopK,
		MMRLambda: cfg.Retrieval.MMRLambda,
	})

	processor := ingestion.NewProcessor(sqliteClient, store, cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: 30})
	defer limiter.Stop()
	app.Use("/api/v1/query", limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxQueryLength:  5000,
		MaxDocumentSize: int64(cfg.Server.BodyLimit),
	}))

	queryHandler := handlers.NewQueryHandler(orch, sqliteClient, cache, cacheTTL)
	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient, cache)
	wsHandler := handlers.NewWebSocketHandler(orch)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)

	api.Post("/documents", documentHandler.UploadDocuments)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Delete("/documents", documentHandler.ClearDocuments)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
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
