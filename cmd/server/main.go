package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/config"
	"github.com/agrosense/agrosense/internal/lifecycle"
	"github.com/agrosense/agrosense/internal/metrics"
	"github.com/agrosense/agrosense/internal/repository/mongodb"
	"github.com/agrosense/agrosense/internal/repository/sheets"
	"github.com/agrosense/agrosense/internal/scheduler"
	"github.com/agrosense/agrosense/internal/server/handlers"
	"github.com/agrosense/agrosense/internal/server/router"
	batchsvc "github.com/agrosense/agrosense/internal/service/batches"
	commandsvc "github.com/agrosense/agrosense/internal/service/commands"
	reportingsvc "github.com/agrosense/agrosense/internal/service/reporting"
	whatsappsvc "github.com/agrosense/agrosense/internal/service/whatsapp"
	"github.com/agrosense/agrosense/internal/session"
	"github.com/agrosense/agrosense/pkg/clients/agrosense"
	"github.com/agrosense/agrosense/pkg/clients/anthropic"
	whatsappclient "github.com/agrosense/agrosense/pkg/clients/whatsapp"
	"github.com/agrosense/agrosense/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	m := metrics.New()

	var auth session.AuthContext = session.NewMemoryStore()
	if cfg.Session.RedisAddr != "" {
		redisStore, err := session.NewRedisStore(startupCtx, cfg.Session)
		if err != nil {
			baseLogger.Fatal("failed to init redis session store", zap.Error(err))
		}
		defer func() { _ = redisStore.Close() }()
		auth = redisStore
		baseLogger.Info("session stored in redis", zap.String("addr", cfg.Session.RedisAddr))
	}

	apiClient := agrosense.NewClient(cfg.AgroSense, auth)

	policy, err := lifecycle.ParsePolicy(cfg.Lifecycle.StagePolicy)
	if err != nil {
		baseLogger.Fatal("invalid stage policy", zap.Error(err))
	}
	loc := cfg.Lifecycle.Location()
	expiry := lifecycle.NewExpiryCalculator(loc)
	stages := lifecycle.NewStageMachine(policy, apiClient, baseLogger.Named("lifecycle.stages"))
	projector := lifecycle.NewHarvestProjector(apiClient, cfg.Lifecycle.PredictionTimeout, baseLogger.Named("lifecycle.harvest"))
	tracker := lifecycle.NewPredictionTracker(projector, func() { m.Prediction(metrics.PredictionStale) })

	batchService := batchsvc.NewService(apiClient, expiry, stages, tracker, m, baseLogger.Named("svc.batches"))

	var (
		reportStore reportingsvc.ReportStore
		auditStore  scheduler.AuditStore
		reportRead  handlers.ReportReader
	)
	if cfg.MongoDB.URI != "" {
		mongoRepo, err := mongodb.NewMongoDBRepository(startupCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		reportStore, auditStore, reportRead = mongoRepo, mongoRepo, mongoRepo
	} else {
		baseLogger.Warn("mongodb uri missing, reports and expiry audits are not stored")
	}

	var roster reportingsvc.RosterWriter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(startupCtx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		roster = sheetsRepo
	}

	var aiClient anthropic.Client
	if cfg.AI.AnthropicKey != "" {
		aiClient = anthropic.NewClient(cfg.AI.AnthropicKey)
		baseLogger.Info("anthropic ai client enabled")
	} else {
		baseLogger.Warn("anthropic api key missing, natural language processing disabled")
	}

	commandDispatcher := commandsvc.NewService(batchService, baseLogger.Named("svc.commands"))
	whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
	messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, aiClient, baseLogger.Named("svc.whatsapp"))

	var (
		reportNotifier reportingsvc.Notifier
		sweepNotifier  scheduler.Notifier
	)
	if cfg.WhatsApp.Enabled() {
		reportNotifier, sweepNotifier = messagingSvc, messagingSvc
	} else {
		baseLogger.Warn("whatsapp credentials missing, operator alerts disabled")
	}

	reportingSvc := reportingsvc.NewService(batchService, reportStore, roster, reportNotifier, cfg.Reporting.UpcomingHarvestIn, baseLogger.Named("svc.reporting"))
	sweeper := scheduler.NewExpirySweeper(batchService, auditStore, sweepNotifier, m, cfg.Lifecycle.SweepConcurrency, baseLogger.Named("scheduler.sweep"))

	sched := scheduler.NewScheduler(cfg.Reporting, loc, sweeper, reportingSvc, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}

	engine := router.New(router.Handlers{
		Batches: handlers.NewBatchHandler(batchService, baseLogger.Named("handlers.batches")),
		Session: handlers.NewSessionHandler(auth, baseLogger.Named("handlers.session")),
		Reports: handlers.NewReportHandler(reportRead, baseLogger.Named("handlers.reports")),
		Webhook: handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp")),
	}, m, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("stage_policy", policy.String()),
			zap.String("timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	sched.Stop(shutdownCtx)
}
