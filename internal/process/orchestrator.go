package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"receptionist/contracts/mq"
	"receptionist/internal/classify"
	"receptionist/internal/dispatch"
	"receptionist/internal/model"
	"receptionist/internal/respond"
	"receptionist/internal/transport"
	"receptionist/pkg/metrics"
	"receptionist/pkg/outbox"
	"receptionist/pkg/trace"
)

const (
	moduleName       = "process"
	recentIntentScan = 20
)

// EmailReceivedRoutingKey is the outbox routing key for inbound mail events.
const EmailReceivedRoutingKey = "email.received"

// IncomingEmail is a raw inbound message before persistence.
type IncomingEmail struct {
	From      string
	To        string
	Subject   string
	Body      string
	MessageID string
	Headers   map[string]string
}

// Consumer-side interfaces: the orchestrator declares the slices of storage
// and machinery it needs so tests can swap in fakes.

type EmailStore interface {
	FindByID(ctx context.Context, id int64) (*model.EmailMessage, error)
	MarkReplied(ctx context.Context, id int64, replyMessageID string) error
	CreateEmailLogTx(ctx context.Context, tx pgx.Tx, e *model.EmailMessage) (int64, error)
}

type TemplateStore interface {
	GetEmailTemplatesByUserId(ctx context.Context, userID int64) ([]model.EmailTemplate, error)
	TouchLastUsed(ctx context.Context, id int64) error
}

type IntentStore interface {
	CreateIntent(ctx context.Context, in *model.Intent) (int64, error)
	GetIntentsByUserId(ctx context.Context, userID int64, limit int) ([]model.Intent, error)
}

type ReplyStore interface {
	Create(ctx context.Context, reply *model.EmailReply) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status string, errorDetail *string) error
}

type ActivityStore interface {
	CreateSystemActivity(ctx context.Context, module, event, status string, details any) error
}

type ReplyDispatcher interface {
	SendEmail(ctx context.Context, userID int64, service transport.Kind, params transport.EmailParams) dispatch.Result
	ResolvePreferred(ctx context.Context, userID int64) (transport.Kind, *model.ServiceConfig)
}

type IntentClassifier interface {
	Classify(ctx context.Context, email classify.EmailContent) classify.Classification
}

type ReplyComposer interface {
	Compose(ctx context.Context, template *model.EmailTemplate, email classify.EmailContent, intents []string) string
}

// Orchestrator drives the inbound pipeline: persist, classify, select a
// template, compose, dispatch, and record the outcome.
type Orchestrator struct {
	pool       *pgxpool.Pool
	emails     EmailStore
	templates  TemplateStore
	intents    IntentStore
	replies    ReplyStore
	activities ActivityStore
	outboxRepo *outbox.Repository
	classifier IntentClassifier
	composer   ReplyComposer
	dispatcher ReplyDispatcher
	logger     *zap.Logger
}

func NewOrchestrator(
	pool *pgxpool.Pool,
	emails EmailStore,
	templates TemplateStore,
	intents IntentStore,
	replies ReplyStore,
	activities ActivityStore,
	outboxRepo *outbox.Repository,
	classifier IntentClassifier,
	composer ReplyComposer,
	dispatcher ReplyDispatcher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		pool:       pool,
		emails:     emails,
		templates:  templates,
		intents:    intents,
		replies:    replies,
		activities: activities,
		outboxRepo: outboxRepo,
		classifier: classifier,
		composer:   composer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ProcessIncoming persists one inbound email and enqueues the
// email.received event, both in a single transaction. Mail carrying the
// automated-reply marker is skipped entirely to break reply loops.
// Returns the stored email id and whether the message was accepted.
func (o *Orchestrator) ProcessIncoming(ctx context.Context, userID int64, in IncomingEmail) (int64, bool, error) {
	if isAutomatedReply(in.Headers) {
		o.logger.Info("Skipping automated reply to avoid a mail loop",
			zap.Int64("user_id", userID),
			zap.String("from", in.From),
		)
		o.logActivity(ctx, model.ActivityEmailLoopSkipped, model.ActivityStatusInfo, model.ProcessingDetails{
			UserID: userID,
		})
		metrics.IncrementEmailProcessed("skipped")
		return 0, false, nil
	}

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	email := &model.EmailMessage{
		UserID:    userID,
		From:      in.From,
		To:        in.To,
		Subject:   in.Subject,
		Body:      in.Body,
		Timestamp: time.Now(),
		Status:    model.EmailStatusReceived,
		MessageID: in.MessageID,
	}
	id, err := o.emails.CreateEmailLogTx(ctx, tx, email)
	if err != nil {
		return 0, false, fmt.Errorf("insert email: %w", err)
	}
	email.ID = id

	payload := EmailReceivedPayloadFrom(email)
	if err := outbox.InsertEventInTx(ctx, tx, o.outboxRepo, "email", &id, EmailReceivedRoutingKey, payload); err != nil {
		return 0, false, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}

	o.logger.Info("Inbound email accepted",
		zap.Int64("email_id", id),
		zap.Int64("user_id", userID),
		zap.String("from", in.From),
	)
	return id, true, nil
}

// isAutomatedReply reports whether the inbound headers carry our outbound
// marker, in any header-name casing.
func isAutomatedReply(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, transport.AutomatedReplyHeader) && v != "" {
			return true
		}
	}
	return false
}

// ReplyToInbound runs the full auto-reply pipeline for one persisted inbound
// message. It returns whether a reply was successfully dispatched; it never
// panics outward.
func (o *Orchestrator) ReplyToInbound(ctx context.Context, email *model.EmailMessage) (ok bool) {
	logger := o.logger.With(
		zap.Int64("email_id", email.ID),
		zap.Int64("user_id", email.UserID),
		zap.String("trace_id", trace.FromContext(ctx)),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic during inbound processing", zap.Any("panic", r))
			o.logActivity(ctx, model.ActivityEmailProcessingFailed, model.ActivityStatusError, model.ProcessingDetails{
				UserID:  email.UserID,
				EmailID: email.ID,
				Error:   fmt.Sprintf("panic: %v", r),
			})
			metrics.IncrementEmailProcessed("failed")
			ok = false
		}
	}()

	content := classify.EmailContent{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		Body:    email.Body,
	}

	cls := o.classifier.Classify(ctx, content)
	logger.Info("Classified inbound email",
		zap.Strings("intents", cls.Intents),
		zap.Bool("meeting_wanted", cls.ShouldScheduleMeeting),
	)

	templates, err := o.templates.GetEmailTemplatesByUserId(ctx, email.UserID)
	if err != nil {
		// 模板加载失败时退化为无模板生成路径
		logger.Warn("Failed to load templates, replying without one", zap.Error(err))
		templates = nil
	}

	recent, err := o.intents.GetIntentsByUserId(ctx, email.UserID, recentIntentScan)
	if err != nil {
		logger.Warn("Failed to load recent intents", zap.Error(err))
		recent = nil
	}

	selected := respond.SelectTemplate(templates, cls.Intents, content, recent)
	if selected != nil {
		logger.Info("Selected reply template",
			zap.Int64("template_id", selected.ID),
			zap.String("template_name", selected.Name),
		)
		if err := o.templates.TouchLastUsed(ctx, selected.ID); err != nil {
			logger.Warn("Failed to stamp template last_used", zap.Error(err))
		}
	}

	replyText := o.composer.Compose(ctx, selected, content, cls.Intents)

	kind, cfg := o.dispatcher.ResolvePreferred(ctx, email.UserID)
	params := transport.EmailParams{
		To:      email.From,
		Subject: replySubject(email.Subject),
		Text:    replyText,
	}
	if cfg != nil {
		params.From = cfg.FromEmail
		params.FromName = cfg.FromName
	}

	reply := &model.EmailReply{
		OriginalEmailID: email.ID,
		ReplyContent:    replyText,
		AutoGenerated:   true,
		ReplyStatus:     model.ReplyStatusPending,
	}
	replyID, err := o.replies.Create(ctx, reply)
	if err != nil {
		logger.Error("Failed to persist pending reply", zap.Error(err))
		o.logActivity(ctx, model.ActivityEmailProcessingFailed, model.ActivityStatusError, model.ProcessingDetails{
			UserID:  email.UserID,
			EmailID: email.ID,
			Error:   err.Error(),
		})
		metrics.IncrementEmailProcessed("failed")
		return false
	}

	result := o.dispatcher.SendEmail(ctx, email.UserID, kind, params)

	// 本轮分类出的意图在发送之后才入库，模板评分只参考历史邮件的意图
	o.recordIntents(ctx, email, cls)

	if !result.Success {
		errDetail := result.Error
		if err := o.replies.UpdateStatus(ctx, replyID, model.ReplyStatusFailed, &errDetail); err != nil {
			logger.Error("Failed to mark reply failed", zap.Error(err))
		}
		o.logActivity(ctx, model.ActivityEmailProcessingFailed, model.ActivityStatusError, model.ProcessingDetails{
			UserID:  email.UserID,
			EmailID: email.ID,
			Intents: cls.Intents,
			Error:   result.Error,
		})
		metrics.IncrementEmailProcessed("failed")
		return false
	}

	if err := o.replies.UpdateStatus(ctx, replyID, model.ReplyStatusSent, nil); err != nil {
		logger.Error("Failed to mark reply sent", zap.Error(err))
	}
	if err := o.emails.MarkReplied(ctx, email.ID, result.MessageID); err != nil {
		logger.Error("Failed to mark inbound email replied", zap.Error(err))
	}

	o.logActivity(ctx, model.ActivityEmailProcessed, model.ActivityStatusSuccess, model.ProcessingDetails{
		UserID:        email.UserID,
		EmailID:       email.ID,
		Intents:       cls.Intents,
		MeetingWanted: cls.ShouldScheduleMeeting,
		Service:       string(result.Service),
	})
	metrics.IncrementEmailProcessed("success")

	logger.Info("Auto-reply dispatched",
		zap.String("service", string(result.Service)),
		zap.String("message_id", result.MessageID),
	)
	return true
}

// recordIntents appends classified intents, including an explicit
// schedule_meeting record when the classifier detected a meeting request.
func (o *Orchestrator) recordIntents(ctx context.Context, email *model.EmailMessage, cls classify.Classification) {
	for _, intent := range cls.Intents {
		_, err := o.intents.CreateIntent(ctx, &model.Intent{
			UserID:   email.UserID,
			Intent:   intent,
			Examples: []string{email.Subject},
		})
		if err != nil {
			o.logger.Warn("Failed to record intent",
				zap.String("intent", intent),
				zap.Error(err),
			)
		}
	}

	if cls.ShouldScheduleMeeting {
		examples := []string{email.Subject}
		if cls.MeetingDetails != nil && cls.MeetingDetails.Topic != "" {
			examples = append(examples, cls.MeetingDetails.Topic)
		}
		_, err := o.intents.CreateIntent(ctx, &model.Intent{
			UserID:   email.UserID,
			Intent:   "schedule_meeting",
			Examples: examples,
		})
		if err != nil {
			o.logger.Warn("Failed to record schedule_meeting intent", zap.Error(err))
		}
	}
}

func (o *Orchestrator) logActivity(ctx context.Context, event, status string, details any) {
	if err := o.activities.CreateSystemActivity(ctx, moduleName, event, status, details); err != nil {
		o.logger.Error("Failed to record system activity",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// replySubject prefixes Re: without stacking it on already-replied threads.
func replySubject(subject string) string {
	s := strings.TrimSpace(subject)
	if s == "" {
		return "Re: your message"
	}
	if strings.HasPrefix(strings.ToLower(s), "re:") {
		return s
	}
	return "Re: " + s
}

// EmailReceivedPayloadFrom builds the MQ contract payload for a persisted
// inbound message.
func EmailReceivedPayloadFrom(e *model.EmailMessage) mq.EmailReceivedPayload {
	return mq.EmailReceivedPayload{
		EmailID:    e.ID,
		UserID:     e.UserID,
		From:       e.From,
		To:         e.To,
		Subject:    e.Subject,
		Body:       e.Body,
		ReceivedAt: e.Timestamp,
	}
}
