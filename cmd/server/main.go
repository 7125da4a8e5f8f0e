package main

import (
	"go.uber.org/zap"

	"receptionist/internal/api"
	"receptionist/internal/classify"
	"receptionist/internal/config"
	"receptionist/internal/dispatch"
	"receptionist/internal/llm"
	"receptionist/internal/process"
	"receptionist/internal/repository"
	"receptionist/internal/respond"
	"receptionist/internal/transport"
	"receptionist/pkg/db"
	"receptionist/pkg/logger"
	"receptionist/pkg/outbox"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting receptionist API server...")

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

	// HTTP surface
	router := api.NewRouter(
		dbConn,
		api.NewEmailHandler(orchestrator, dispatcher, emailRepo),
		api.NewTemplateHandler(templateRepo),
		api.NewScheduledHandler(scheduledRepo),
		api.NewActivityHandler(activityRepo),
		api.NewServiceConfigHandler(serviceConfigRepo),
		api.NewAdminHandler(outboxRepo),
	)

	log.Info("API server listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("API server exited", zap.Error(err))
	}
}
