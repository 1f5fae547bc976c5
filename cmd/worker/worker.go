package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"knowledge-platform/internal/ai"
	"knowledge-platform/internal/config"
	"knowledge-platform/internal/connector"
	"knowledge-platform/internal/database"
	"knowledge-platform/internal/jobs"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/processor"
	"knowledge-platform/internal/store"
	"knowledge-platform/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("knowledge-platform-worker", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to init tracer:", err)
	}
	defer shutdownTracer()

	if _, err := telemetry.InitMetrics(); err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	embedder, err := ai.NewEmbeddingClient(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to init embedding client:", err)
	}
	defer embedder.Close()

	tenants := database.NewTenantDBManager(mongoClient)
	tenantStore := store.New(tenants, cfg)
	control := store.NewControlStore(mongoClient, cfg.DBName)
	jobStore := jobs.NewStore(mongoClient, cfg.DBName)
	jobLog := jobs.NewRedisLog(rdb)

	registry := connector.NewRegistry(cfg, rdb)
	chunker := processor.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.MinChunkSize)
	proc := processor.New(tenantStore, embedder, chunker)
	executor := jobs.NewExecutor(jobStore, control, registry, proc, jobLog)
	handler := jobs.NewTaskHandler(executor)

	// Scheduled re-ingestion runs in the worker so the API stays stateless.
	if cfg.ReingestEnabled {
		enqueuer := jobs.NewEnqueuer(config.AsynqRedisOpt(cfg))
		defer enqueuer.Close()

		reingester := jobs.NewReingester(control, jobStore, enqueuer, cfg.ReingestCron)
		if err := reingester.Start(); err != nil {
			log.Fatal("Failed to start re-ingestion scheduler:", err)
		}
		defer reingester.Stop()
	}

	srv := asynq.NewServer(
		config.AsynqRedisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"ingest": 10,
			},
		},
	)

	go func() {
		logger.Info("Worker starting", "concurrency", cfg.WorkerConcurrency)
		if err := srv.Run(handler.Mux()); err != nil {
			log.Fatalf("Worker failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker")

	srv.Shutdown()
	logger.Info("Worker exited")
}
