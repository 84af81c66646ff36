package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/application"
	dlqapp "github.com/erp/agentsync/internal/application/dlq"
	ingestapp "github.com/erp/agentsync/internal/application/ingest"
	mappingapp "github.com/erp/agentsync/internal/application/mapping"
	reconcileapp "github.com/erp/agentsync/internal/application/reconcile"
	registryapp "github.com/erp/agentsync/internal/application/registry"
	syncjobapp "github.com/erp/agentsync/internal/application/syncjob"
	domainsync "github.com/erp/agentsync/internal/domain/sync"
	"github.com/erp/agentsync/internal/infrastructure/agentclient"
	"github.com/erp/agentsync/internal/infrastructure/alerting"
	"github.com/erp/agentsync/internal/infrastructure/breaker"
	"github.com/erp/agentsync/internal/infrastructure/cache"
	"github.com/erp/agentsync/internal/infrastructure/config"
	"github.com/erp/agentsync/internal/infrastructure/logger"
	"github.com/erp/agentsync/internal/infrastructure/persistence"
	"github.com/erp/agentsync/internal/infrastructure/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting agent sync service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env))

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	// Repositories
	agentRepo := persistence.NewGormAgentRepository(db.DB)
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	deadLetterRepo := persistence.NewGormDeadLetterRepository(db.DB)
	eventRepo := persistence.NewGormReconciliationEventRepository(db.DB)
	itemRepo := persistence.NewGormCatalogItemRepository(db.DB)
	warehouseRepo := persistence.NewGormWarehouseRepository(db.DB)
	stockRepo := persistence.NewGormStockRepository(db.DB)
	mappingRepo := persistence.NewGormMappingRepository(db.DB)

	// Translation cache: in-memory L1, optionally tiered with Redis L2
	l1 := cache.NewInMemoryTranslationCache(cfg.MappingCache.TTL, cfg.MappingCache.MaxEntries, log)
	defer func() {
		_ = l1.Close()
	}()
	var translationCache cache.TranslationCache = l1
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			_ = redisClient.Close()
		}()
		l2 := cache.NewRedisTranslationCache(redisClient, cfg.MappingCache.TTL, log)
		translationCache = cache.NewTieredTranslationCache(l1, l2, log)
		log.Info("Redis translation cache enabled",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port))
	}

	// Alerting
	var alerter domainsync.Alerter
	if cfg.Alerting.WebhookURL != "" {
		alerter = alerting.NewWebhookAlerter(cfg.Alerting.WebhookURL, cfg.Alerting.Timeout, log)
	} else {
		alerter = alerting.NewLogAlerter(log)
	}

	// Outbound agent client behind the circuit breakers
	client := agentclient.NewHTTPClient(cfg.Agent.RequestTimeout, log)
	breakers := breaker.NewManager(breaker.Settings{
		VolumeThreshold:  cfg.Breaker.VolumeThreshold,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		CallTimeout:      cfg.Breaker.CallTimeout,
		RollingWindow:    cfg.Breaker.RollingWindow,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	breakers.OnStateChange(func(change breaker.StateChange) {
		if change.To == breaker.StateOpen {
			alerter.Send(ctx, domainsync.AlertCircuitBreakerOpen, "circuit breaker opened", map[string]any{
				"vendor_id": change.VendorID,
				"operation": change.Operation,
			})
		}
	})

	// Application services
	registryService := registryapp.NewService(agentRepo, registryapp.Thresholds{
		DegradedAfter: cfg.Agent.DegradedAfter,
		OfflineAfter:  cfg.Agent.OfflineAfter,
	}, log)
	mappingService := mappingapp.NewService(mappingRepo, translationCache, log)
	ingestService := ingestapp.NewService(itemRepo, warehouseRepo, stockRepo, mappingService, ingestapp.Limits{
		IncrementalBatchLimit: cfg.Ingest.IncrementalBatchLimit,
		BulkBatchLimit:        cfg.Ingest.BulkBatchLimit,
		FlushChunkSize:        cfg.Ingest.FlushChunkSize,
	}, log)
	reconcileService := reconcileapp.NewService(agentRepo, itemRepo, eventRepo, client, breakers, alerter, cfg.Reconciliation.LeafRangeSize, log)
	jobService := syncjobapp.NewService(jobRepo, agentRepo, cfg.SyncJobs.MaxRetries, log)
	dlqService := dlqapp.NewService(deadLetterRepo, jobRepo, log)

	processor := syncjobapp.NewProcessor(jobRepo, deadLetterRepo, agentRepo, client, breakers, syncjobapp.ProcessorConfig{
		Concurrency:     cfg.SyncJobs.Concurrency,
		PollInterval:    cfg.SyncJobs.PollInterval,
		RetryBaseDelay:  cfg.SyncJobs.RetryBaseDelay,
		CallbackTimeout: cfg.SyncJobs.CallbackTimeout,
	}, log)
	processor.Start(ctx)
	defer processor.Stop()

	// Service surface handed to the API layer in front of this module
	container := &application.Container{
		Registry:  registryService,
		Mapping:   mappingService,
		Ingest:    ingestService,
		Reconcile: reconcileService,
		Jobs:      jobService,
		Processor: processor,
		DLQ:       dlqService,
	}

	// Periodic maintenance
	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(scheduler.BuildTasks(cfg.Scheduler, scheduler.TaskDeps{
			Services: container,
			Events:   eventRepo,
			Alerter:  alerter,
			Logger:   log,
		}), log)
		sched.Start(ctx)
		defer sched.Stop()
	}

	log.Info("Agent sync service started")
	<-ctx.Done()
	log.Info("Shutdown signal received, stopping")
}
