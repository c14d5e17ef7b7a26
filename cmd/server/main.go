package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	appcatalog "github.com/storegen/backend/internal/application/catalog"
	appgen "github.com/storegen/backend/internal/application/generation"
	"github.com/storegen/backend/internal/domain/generation"
	"github.com/storegen/backend/internal/infrastructure/assets"
	"github.com/storegen/backend/internal/infrastructure/cache"
	"github.com/storegen/backend/internal/infrastructure/config"
	"github.com/storegen/backend/internal/infrastructure/deploy"
	"github.com/storegen/backend/internal/infrastructure/logger"
	"github.com/storegen/backend/internal/infrastructure/persistence"
	"github.com/storegen/backend/internal/infrastructure/render"
	"github.com/storegen/backend/internal/infrastructure/seo"
	"github.com/storegen/backend/internal/interfaces/http/handler"
	"github.com/storegen/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting store generation backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Catalog store connection (read-only)
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to catalog store", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing catalog store", zap.Error(err))
		}
	}()
	log.Info("Catalog store connected")

	// Shared cache tier (Redis)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		_ = redisClient.Close()
	}()
	redisCache := cache.NewRedisCache(redisClient, "storegen:", cfg.Cache.RedisTTL)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Warn("Redis unreachable at startup, shared tier degraded", zap.Error(err))
	}

	// Persistent cache tier (Badger)
	badgerStore, err := cache.NewBadgerStore(cache.BadgerConfig{
		Path:       cfg.Cache.BadgerPath,
		InMemory:   cfg.Cache.BadgerPath == "",
		DefaultTTL: cfg.Cache.BadgerTTL,
	})
	if err != nil {
		log.Fatal("Failed to open persistent cache", zap.Error(err))
	}
	defer func() {
		_ = badgerStore.Close()
	}()

	tiered := cache.NewTieredCache(
		cache.NewMemoryCache(cfg.Cache.MemoryMaxEntries, cfg.Cache.MemoryTTL),
		redisCache,
		badgerStore,
		cache.WithLogger(log),
	)

	// Pipeline stages
	catalogRepo := persistence.NewGormCatalogRepository(db.DB)
	aggregator := appcatalog.NewAggregator(catalogRepo, appcatalog.WithLogger(log))

	templates := render.NewCachingTemplateStore(render.NewInMemoryTemplateStore(), tiered, cfg.Cache.RedisTTL)
	engine := render.NewEngine(templates, render.WithCache(tiered), render.WithLogger(log))

	publisher, err := assets.NewS3Publisher(&cfg.CDN, assets.WithPublisherLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize CDN publisher", zap.Error(err))
	}
	transcoder := assets.NewHTTPTranscoder(assets.HTTPTranscoderConfig{
		Endpoint: cfg.Media.Endpoint,
		APIKey:   cfg.Media.APIKey,
		Timeout:  cfg.Media.Timeout,
	})
	optimizer := assets.NewOptimizer(transcoder, publisher, tiered,
		assets.WithOptimizerLogger(log),
		assets.WithWorkers(cfg.Optimizer.Workers),
		assets.WithBatchSize(cfg.Optimizer.BatchSize),
	)

	synthesizer := seo.NewSynthesizer(seo.WithLogger(log))

	credentials := deploy.StaticCredentials(cfg.Deploy.Credentials)
	gateway := deploy.NewGateway(
		[]deploy.Deployer{
			deploy.NewStaticHostDeployer(credentials, deploy.WithStaticHostLogger(log)),
			deploy.NewThemePlatformDeployer(credentials, deploy.WithThemePlatformLogger(log)),
			deploy.NewObjectStorageDeployer(publisher, cfg.CDN.PublicBaseURL, deploy.WithObjectStorageLogger(log)),
		},
		deploy.GatewayConfig{
			TargetConcurrency: cfg.Deploy.TargetConcurrency,
			VerifyTimeout:     cfg.Deploy.VerifyTimeout,
			BreakerThreshold:  cfg.Deploy.BreakerThreshold,
			BreakerCooldown:   cfg.Deploy.BreakerCooldown,
		},
		deploy.WithGatewayLogger(log),
	)

	// Orchestrator
	orchestrator := appgen.NewOrchestrator(
		aggregator, engine, optimizer, synthesizer, gateway,
		appgen.NewMemoryJobStore(),
		appgen.Config{
			StoreName:      cfg.Store.Name,
			BaseURL:        cfg.Store.BaseURL,
			Workers:        cfg.Queue.Workers,
			QueueCapacity:  cfg.Queue.Capacity,
			JobTimeout:     cfg.Queue.JobTimeout,
			CallTimeout:    cfg.Queue.CallTimeout,
			RetryAttempts:  cfg.Queue.RetryAttempts,
			RetryBaseDelay: cfg.Queue.RetryBaseDelay,
			JobRetention:   cfg.Queue.JobRetention,
		},
		appgen.WithLogger(log),
		appgen.WithObserver(generation.ObserverFunc(func(ctx context.Context, snap generation.Snapshot) {
			log.Info("Job reached terminal state",
				zap.String("job_id", snap.ID.String()),
				zap.String("status", string(snap.Status)),
				zap.Int("pages", snap.PageCount),
			)
		})),
	)
	orchestrator.Start()
	defer orchestrator.Stop()

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	ginEngine.Use(logger.RequestID())
	ginEngine.Use(logger.GinMiddleware(log))
	ginEngine.Use(logger.Recovery(log))

	r := router.NewRouter(ginEngine)
	r.Register(handler.NewGenerationHandler(orchestrator))
	r.Register(handler.NewSystemHandler(tiered, engine, optimizer, map[string]handler.Pinger{
		"database": db,
		"redis":    redisCache,
	}))
	r.Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      ginEngine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
