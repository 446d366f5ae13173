package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "stageflow/contracts/mq"
	"stageflow/internal/config"
	"stageflow/internal/mqhandler"
	"stageflow/internal/repository"
	"stageflow/pkg/db"
	"stageflow/pkg/logger"
	"stageflow/pkg/mq"
	"stageflow/pkg/redis"
	"stageflow/pkg/util"
)

const emailQueueName = "notification.email.q"

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting stageflow worker...",
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("smtp_host", cfg.Mail.SMTPHost),
	)

	// Init DB (recipient address lookups)
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established")

	// Init Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// Init MQ publisher (dead-lettering) and declare the DLQ topology
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	conn, err := mq.NewConnection(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to connect to MQ", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("Failed to open MQ channel", zap.Error(err))
	}
	if err := mq.DeclareDLQExchange(ch); err != nil {
		log.Fatal("Failed to declare DLQ exchange", zap.Error(err))
	}
	if _, err := mq.DeclareDLQQueue(ch, mqcontracts.RoutingKeyNotificationEmail); err != nil {
		log.Fatal("Failed to declare DLQ queue", zap.Error(err))
	}
	ch.Close()

	// Init handler
	userRepo := repository.NewUserRepository(dbConn, log)
	mailer := mqhandler.NewSMTPMailer(cfg.Mail, log)
	emailHandler := mqhandler.NewEmailHandler(userRepo, mailer, deduper, retryCounter, publisher, log)

	// Consumer for notification.email
	log.Info("Initializing email consumer",
		zap.String("queue", emailQueueName),
		zap.String("routing_key", mqcontracts.RoutingKeyNotificationEmail),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, emailQueueName, mqcontracts.RoutingKeyNotificationEmail, log)
	if err != nil {
		log.Fatal("Failed to init email consumer", zap.Error(err))
	}
	defer consumer.Close()

	consumer.SetHandler(emailHandler.HandleEmail)
	go func() {
		log.Info("Starting email consumer")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Email consumer failed", zap.Error(err))
		}
	}()

	log.Info("stageflow worker is ready to process messages")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down stageflow worker gracefully...")
	consumer.Stop()
	log.Info("stageflow worker shutdown complete")
}
