package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"receptionist/contracts/mq"
	"receptionist/internal/model"
	pkgmq "receptionist/pkg/mq"
	"receptionist/pkg/trace"
	"receptionist/pkg/util"
)

const (
	handlerName = "email_received"
	maxRetries  = 5
)

// EmailFinder is the storage slice the handler needs for its idempotency
// re-checks.
type EmailFinder interface {
	FindByID(ctx context.Context, id int64) (*model.EmailMessage, error)
}

// Processor runs the auto-reply pipeline for one inbound message.
type Processor interface {
	ReplyToInbound(ctx context.Context, email *model.EmailMessage) bool
}

// EmailReceivedHandler consumes email.received events and drives the reply
// pipeline, with redis-backed dedup and a bounded retry budget.
type EmailReceivedHandler struct {
	emails    EmailFinder
	processor Processor
	deduper   *util.Deduper
	retries   *util.RetryCounter
	logger    *zap.Logger
}

func NewEmailReceivedHandler(
	emails EmailFinder,
	processor Processor,
	deduper *util.Deduper,
	retries *util.RetryCounter,
	logger *zap.Logger,
) *EmailReceivedHandler {
	return &EmailReceivedHandler{
		emails:    emails,
		processor: processor,
		deduper:   deduper,
		retries:   retries,
		logger:    logger,
	}
}

// Handle is the consumer callback. Returned errors wrapping
// mq.ErrNonRetryable go to the DLQ; any other error is nacked and
// redelivered.
func (h *EmailReceivedHandler) Handle(ctx context.Context, data json.RawMessage) error {
	var payload mq.EmailReceivedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// 消息体坏了，重投也没用
		return fmt.Errorf("%w: malformed email.received payload: %v", pkgmq.ErrNonRetryable, err)
	}

	logger := h.logger.With(
		zap.Int64("email_id", payload.EmailID),
		zap.Int64("user_id", payload.UserID),
		zap.String("trace_id", trace.FromContext(ctx)),
	)

	retryKey := util.FormatRetryKey(handlerName, payload.EmailID)
	count, err := h.retries.IncrementAndGet(ctx, retryKey)
	if err != nil {
		// redis 不可用时不阻断消费，按首次处理对待
		logger.Warn("Retry counter unavailable", zap.Error(err))
		count = 1
	}
	if count > maxRetries {
		logger.Error("Retry budget exhausted, dead-lettering",
			zap.Int64("attempts", count),
		)
		return fmt.Errorf("%w: gave up after %d attempts", pkgmq.ErrNonRetryable, maxRetries)
	}

	if !h.deduper.AcquireOnce(ctx, handlerName, payload.EmailID) {
		logger.Info("Duplicate delivery, skipping")
		return nil
	}

	email, err := h.emails.FindByID(ctx, payload.EmailID)
	if err != nil {
		h.deduper.Release(ctx, handlerName, payload.EmailID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: email %d not found", pkgmq.ErrNonRetryable, payload.EmailID)
		}
		if retryable, errType := util.IsRetryableError(err); !retryable {
			logger.Error("Non-retryable load failure",
				zap.String("error_type", errType),
				zap.Error(err),
			)
			return fmt.Errorf("%w: load email %d: %v", pkgmq.ErrNonRetryable, payload.EmailID, err)
		}
		return fmt.Errorf("load email %d: %w", payload.EmailID, err)
	}

	// 幂等兜底：扫描任务可能已经补发过回复
	if email.IsReplied {
		logger.Info("Email already replied, skipping")
		return nil
	}

	if ok := h.processor.ReplyToInbound(ctx, email); !ok {
		h.deduper.Release(ctx, handlerName, payload.EmailID)
		return fmt.Errorf("reply pipeline failed for email %d", payload.EmailID)
	}

	if err := h.retries.Reset(ctx, retryKey); err != nil {
		logger.Warn("Failed to reset retry counter", zap.Error(err))
	}
	return nil
}
