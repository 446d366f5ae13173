package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stageflow/internal/cache"
	"stageflow/internal/config"
	"stageflow/internal/handler"
	"stageflow/internal/httpserver"
	"stageflow/internal/notify"
	"stageflow/internal/repository"
	"stageflow/internal/service"
	"stageflow/pkg/db"
	"stageflow/pkg/logger"
	"stageflow/pkg/mq"
	"stageflow/pkg/outbox"
	"stageflow/pkg/redis"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting stageflow server...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// 2. Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established")

	// 3. Init Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// 4. Init MQ publisher and outbox dispatcher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	outboxRepo := outbox.NewRepository(dbConn)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	go dispatcher.Start(dispatcherCtx)

	// 5. Init repositories
	projectRepo := repository.NewProjectRepository(dbConn, log)
	logRepo := repository.NewLogRepository(dbConn, log)
	userRepo := repository.NewUserRepository(dbConn, log)
	membershipRepo := repository.NewUserProjectRepository(dbConn, log)
	clientRepo := repository.NewClientRepository(dbConn, log)

	// 6. Init notifier and summary cache
	notifier := notify.NewService(dbConn, log)
	summaryCache := cache.NewSummaryCache(rdb, cfg.App.SummaryCacheTTL(), log)

	// 7. Init services
	logSync := service.NewLogSynchronizer(projectRepo, logRepo, time.Now, log)
	completion := service.NewCompletionService(membershipRepo, notifier, summaryCache, cfg.App.TerminalStage, time.Now, log)
	projectService := service.NewProjectService(projectRepo, membershipRepo, logSync, completion, notifier, summaryCache, time.Now, log)
	lifecycle := service.NewTaskLifecycleService(projectRepo, logRepo, completion, notifier, summaryCache, cfg.App.Approvers, time.Now, log)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret)

	// 8. Init handlers
	authHandler := handler.NewAuthHandler(authService, log)
	projectHandler := handler.NewProjectHandler(projectService, log)
	logHandler := handler.NewLogHandler(logSync, lifecycle, log)
	clientHandler := handler.NewClientHandler(clientRepo, log)

	// 9. Init router
	router := httpserver.NewRouter(authHandler, projectHandler, logHandler, clientHandler, cfg.JWT.Secret, log, dbConn, publisher)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	// 10. Run server
	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("stageflow server is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down stageflow server gracefully...")

	stopDispatcher()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("stageflow server shutdown complete")
}
