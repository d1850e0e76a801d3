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
	"github.com/pagebound/pagebound/internal/config"
	"github.com/pagebound/pagebound/internal/s3storage"
	"github.com/pagebound/pagebound/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := s3storage.New(cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		log.Fatalf("ensure buckets: %v", err)
	}

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

	callbacks := worker.NewCallbackClient(cfg.APIBaseURL, cfg.CallbackSecret)
	processor := worker.NewProcessor(store, provider, callbacks)

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.Concurrency,
	})

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	if err := srv.Run(processor.Mux()); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
