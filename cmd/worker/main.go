package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"receptionist/internal/classify"
	"receptionist/internal/config"
	"receptionist/internal/dispatch"
	"receptionist/internal/inbox"
	"receptionist/internal/llm"
	"receptionist/internal/mqhandler"
	"receptionist/internal/process"
	"receptionist/internal/repository"
	"receptionist/internal/respond"
	"receptionist/internal/scheduler"
	"receptionist/internal/transport"
	"receptionist/pkg/db"
	"receptionist/pkg/logger"
	"receptionist/pkg/mq"
	"receptionist/pkg/outbox"
	redisclient "receptionist/pkg/redis"
	"receptionist/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting receptionist worker...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis: dedup + retry budget
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduperWithLogger(rdb, time.Hour, log)
	retries := util.NewRetryCounter(rdb, time.Hour)

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Repositories
	emailRepo := repository.NewEmailRepository(dbConn)
	templateRepo := repository.NewTemplateRepository(dbConn)
	intentRepo := repository.NewIntentRepository(dbConn)
	replyRepo := repository.NewReplyRepository(dbConn)
	activityRepo := repository.NewActivityRepository(dbConn)
	serviceConfigRepo := repository.NewServiceConfigRepository(dbConn)
	scheduledRepo := repository.NewScheduledEmailRepository(dbConn)
	outboxRepo := outbox.NewRepository(dbConn)

	// Reply pipeline
	llmClient := llm.NewOpenAIClient(cfg.OpenAI, log)
	classifier := classify.NewClassifier(llmClient, log)
	extractor := respond.NewExtractor(llmClient, log)
	composer := respond.NewComposer(llmClient, extractor, log)

	senders := []transport.Sender{
		transport.NewSendGridSender(log),
		transport.NewSMTPSender(log),
		transport.NewMailgunSender(log),
	}
	dispatcher := dispatch.NewDispatcher(senders, serviceConfigRepo, activityRepo, emailRepo, log)

	orchestrator := process.NewOrchestrator(
		dbConn,
		emailRepo,
		templateRepo,
		intentRepo,
		replyRepo,
		activityRepo,
		outboxRepo,
		classifier,
		composer,
		dispatcher,
		log,
	)

	// MQ publisher, shared by the outbox dispatcher and the DLQ path
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ publisher initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	declareDLQ(cfg.MQ.URL, log)

	// Outbox dispatcher: drains pending events into the exchange
	outboxDispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go outboxDispatcher.Start(ctx)

	// Consumer for email.received
	handler := mqhandler.NewEmailReceivedHandler(emailRepo, orchestrator, deduper, retries, log)

	log.Info("Initializing email.received consumer", zap.String("queue", "email.received.q"))
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "email.received.q", process.EmailReceivedRoutingKey, log)
	if err != nil {
		log.Fatal("failed to init email.received consumer", zap.Error(err))
	}
	consumer.SetHandler(handler.Handle)
	consumer.SetDLQ(publisher)
	go func() {
		log.Info("Starting email.received consumer")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("email.received consumer failed", zap.Error(err))
		}
	}()
	defer consumer.Close()

	// Background loops: inbox sync, unreplied sweep, status report.
	// 邮箱源暂时为空实现，接入 IMAP 后替换这里
	source := inbox.NewStaticSource(nil)
	sched := scheduler.New(
		cfg.Scheduler,
		source,
		orchestrator,
		orchestrator,
		emailRepo,
		replyRepo,
		activityRepo,
		deduper,
		log,
	)
	sched.Start(ctx)

	// Scheduled-send sweep
	scheduledSender := scheduler.NewScheduledSender(
		scheduledRepo,
		dispatcher,
		activityRepo,
		time.Duration(cfg.Scheduler.ScheduledIntervalSec)*time.Second,
		log,
	)
	scheduledSender.Start(ctx)

	log.Info("Worker is ready to process messages")
	<-ctx.Done()
	log.Info("Worker shutting down")
}

// declareDLQ sets up the dead-letter exchange and queue so rejected
// messages land somewhere inspectable.
func declareDLQ(url string, log *zap.Logger) {
	conn, err := mq.NewConnection(url)
	if err != nil {
		log.Fatal("MQ connection for DLQ setup failed", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("failed to open DLQ channel", zap.Error(err))
	}
	defer ch.Close()

	if err := mq.DeclareDLQExchange(ch); err != nil {
		log.Fatal("failed to declare DLQ exchange", zap.Error(err))
	}
	if _, err := mq.DeclareDLQQueue(ch, process.EmailReceivedRoutingKey); err != nil {
		log.Fatal("failed to declare DLQ queue", zap.Error(err))
	}
}
