package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/pagebound/pagebound/internal/ai"
	"github.com/pagebound/pagebound/internal/ai/openai"
	"github.com/pagebound/pagebound/internal/chat"
	"github.com/pagebound/pagebound/internal/config"
	"github.com/pagebound/pagebound/internal/database"
	"github.com/pagebound/pagebound/internal/pipeline"
	"github.com/pagebound/pagebound/internal/repository"
	"github.com/pagebound/pagebound/internal/s3storage"
	"github.com/pagebound/pagebound/internal/search"
	"github.com/pagebound/pagebound/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	jobs := repository.NewJobRepository(pool)
	docs := repository.NewDocumentRepository(pool)
	chunks := repository.NewChunkRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		log.Fatalf("ensure buckets: %v", err)
	}

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()
	dispatcher := pipeline.NewQueueDispatcher(queueClient)

	provider, err := openai.NewProvider(&ai.Config{
		BaseURL:        cfg.AIBaseURL,
		Token:          cfg.AIToken,
		EmbeddingModel: cfg.EmbeddingModel,
		ChatModel:      cfg.ChatModel,
	})
	if err != nil {
		log.Fatalf("init ai provider: %v", err)
	}
	defer provider.Close()

	pipe := pipeline.NewService(jobs, docs, dispatcher, cfg.MaxRetries)
	index := search.NewIndex(chunks)
	composer := chat.NewComposer(docs, index, provider.Embedder(), provider.ChatModel())

	srv := server.New(cfg, pipe, composer, docs, store)
	if err := srv.Run(ctx); err != nil {
		log.Printf("api stopped: %v", err)
		os.Exit(1)
	}
}
