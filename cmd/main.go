package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"knowledge-platform/internal/ai"
	"knowledge-platform/internal/config"
	"knowledge-platform/internal/connector"
	"knowledge-platform/internal/database"
	"knowledge-platform/internal/jobs"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/retrieval"
	"knowledge-platform/internal/store"
	"knowledge-platform/internal/telemetry"
	"knowledge-platform/middleware"
	"knowledge-platform/routes"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("knowledge-platform-api", cfg.OTLPEndpoint)
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
	enqueuer := jobs.NewEnqueuer(config.AsynqRedisOpt(cfg))
	defer enqueuer.Close()

	registry := connector.NewRegistry(cfg, rdb)
	engine := retrieval.NewEngine(tenantStore, embedder, cfg)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := mongoClient.Ping(ctx, nil); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mongo unavailable"})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	authMW := middleware.NewAuthMiddleware(cfg, control)
	roleMW := middleware.NewRoleMiddleware()

	routes.SetupJobRoutes(router, jobStore, control, enqueuer, jobLog, authMW, roleMW)
	routes.SetupRetrieveRoutes(router, engine, authMW, roleMW)
	routes.SetupSourceRoutes(router, control, tenantStore, registry, authMW, roleMW)
	routes.SetupAdminRoutes(router, control, authMW, roleMW)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
