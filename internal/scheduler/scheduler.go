package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"receptionist/internal/config"
	"receptionist/internal/inbox"
	"receptionist/internal/model"
	"receptionist/internal/process"
	"receptionist/pkg/metrics"
)

const (
	moduleName = "scheduler"

	// 单轮同步最多拉取的邮件数
	syncBatchLimit = 100
	// 单轮扫描最多补发的邮件数
	sweepBatchLimit = 50
	// 连续失败达到该值时升级为 critical 活动
	criticalFailureThreshold = 5
	// 启动后的预热等待，避免依赖尚未就绪
	warmupDelay = 5 * time.Second

	syncHandlerName = "inbox_sync"
)

type Ingestor interface {
	ProcessIncoming(ctx context.Context, userID int64, in process.IncomingEmail) (int64, bool, error)
}

type Processor interface {
	ReplyToInbound(ctx context.Context, email *model.EmailMessage) bool
}

type UnrepliedStore interface {
	GetUnrepliedEmails(ctx context.Context, limit int) ([]model.EmailMessage, error)
	MarkReplied(ctx context.Context, id int64, replyMessageID string) error
}

type ReplyLookup interface {
	GetByOriginalEmailID(ctx context.Context, originalEmailID int64) (*model.EmailReply, error)
}

type ActivityStore interface {
	CreateSystemActivity(ctx context.Context, module, event, status string, details any) error
}

// DedupStore claims provider message ids once per TTL. Implemented by
// util.Deduper.
type DedupStore interface {
	AcquireOnceKey(ctx context.Context, handler, id string) bool
	ReleaseKey(ctx context.Context, handler, id string)
}

// Scheduler owns the background loops: inbox sync, the unreplied-email
// sweep, and the periodic status report. All state lives on the struct,
// one Scheduler per worker process.
type Scheduler struct {
	cfg        config.SchedulerConfig
	source     inbox.Source
	ingestor   Ingestor
	processor  Processor
	emails     UnrepliedStore
	replies    ReplyLookup
	activities ActivityStore
	deduper    DedupStore
	logger     *zap.Logger

	syncRunning  atomic.Bool
	sweepRunning atomic.Bool

	mu                  sync.Mutex
	lastSyncAt          time.Time
	lastError           string
	consecutiveFailures int
}

func New(
	cfg config.SchedulerConfig,
	source inbox.Source,
	ingestor Ingestor,
	processor Processor,
	emails UnrepliedStore,
	replies ReplyLookup,
	activities ActivityStore,
	deduper DedupStore,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		source:     source,
		ingestor:   ingestor,
		processor:  processor,
		emails:     emails,
		replies:    replies,
		activities: activities,
		deduper:    deduper,
		logger:     logger,
	}
}

// Start launches all loops. Each runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runSyncLoop(ctx)
	go s.runSweepLoop(ctx)
	go s.runStatusLoop(ctx)
}

func (s *Scheduler) runSyncLoop(ctx context.Context) {
	select {
	case <-time.After(warmupDelay):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(time.Duration(s.cfg.SyncIntervalSec) * time.Second)
	defer ticker.Stop()

	s.SyncOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.SyncOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SyncOnce pulls one batch of unread mail and feeds it into ingestion.
// Overlapping runs are skipped: if the previous sync is still in flight
// the tick is dropped with a log line, never queued behind it.
func (s *Scheduler) SyncOnce(ctx context.Context) {
	if !s.syncRunning.CompareAndSwap(false, true) {
		s.logger.Warn("Previous inbox sync still running, skipping this tick")
		return
	}
	defer s.syncRunning.Store(false)

	emails, err := s.source.FetchUnread(ctx, syncBatchLimit)
	if err != nil {
		s.recordSyncFailure(ctx, err)
		return
	}

	accepted := 0
	for _, m := range emails {
		// 按 provider message id 去重，避免同一封邮件被重复入库
		claimed := false
		if m.MessageID != "" {
			if !s.deduper.AcquireOnceKey(ctx, syncHandlerName, m.MessageID) {
				continue
			}
			claimed = true
		}
		_, ok, err := s.ingestor.ProcessIncoming(ctx, m.UserID, process.IncomingEmail{
			From:      m.From,
			To:        m.To,
			Subject:   m.Subject,
			Body:      m.Body,
			MessageID: m.MessageID,
			Headers:   m.Headers,
		})
		if err != nil {
			// 入库失败要释放去重占位，否则这封邮件会被屏蔽到 TTL 过期
			if claimed {
				s.deduper.ReleaseKey(ctx, syncHandlerName, m.MessageID)
			}
			// 单封失败不影响本轮其余邮件
			s.logger.Error("Failed to ingest synced email",
				zap.Int64("user_id", m.UserID),
				zap.String("message_id", m.MessageID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			accepted++
		}
	}

	s.mu.Lock()
	s.lastSyncAt = time.Now()
	s.lastError = ""
	s.consecutiveFailures = 0
	s.mu.Unlock()
	metrics.SyncConsecutiveFailures.Set(0)

	s.logActivity(ctx, model.ActivityScheduledEmailSync, model.ActivityStatusSuccess, model.SyncDetails{
		Fetched: accepted,
	})
	s.logger.Info("Inbox sync completed",
		zap.Int("fetched", len(emails)),
		zap.Int("accepted", accepted),
	)
}

// recordSyncFailure bumps the consecutive-failure counter and escalates to
// a critical activity at the threshold. The loop itself never stops;
// retries continue on the next tick regardless of the count.
func (s *Scheduler) recordSyncFailure(ctx context.Context, err error) {
	s.mu.Lock()
	s.consecutiveFailures++
	s.lastError = err.Error()
	failures := s.consecutiveFailures
	s.mu.Unlock()

	metrics.SyncConsecutiveFailures.Set(float64(failures))

	s.logger.Error("Inbox sync failed",
		zap.Int("consecutive_failures", failures),
		zap.Error(err),
	)
	s.logActivity(ctx, model.ActivityScheduledEmailSyncErr, model.ActivityStatusError, model.SyncDetails{
		ConsecutiveFailures: failures,
		Error:               err.Error(),
	})

	if failures == criticalFailureThreshold {
		s.logActivity(ctx, model.ActivitySyncCriticalFailure, model.ActivityStatusCritical, model.SyncDetails{
			ConsecutiveFailures: failures,
			Error:               err.Error(),
		})
	}
}

func (s *Scheduler) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.SweepIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce is the safety net behind the MQ fast path: any received message
// still unreplied gets picked up here. A message whose reply already went
// out is only re-linked, never re-sent. Each tick takes at most
// sweepBatchLimit rows; a larger backlog drains over successive ticks.
func (s *Scheduler) SweepOnce(ctx context.Context) {
	if !s.sweepRunning.CompareAndSwap(false, true) {
		s.logger.Warn("Previous unreplied sweep still running, skipping this tick")
		return
	}
	defer s.sweepRunning.Store(false)

	emails, err := s.emails.GetUnrepliedEmails(ctx, sweepBatchLimit)
	if err != nil {
		s.logger.Error("Failed to load unreplied emails", zap.Error(err))
		return
	}
	if len(emails) == 0 {
		return
	}

	replied := 0
	for i := range emails {
		email := &emails[i]

		// 幂等兜底：MQ 路径可能已经发过回复，只是 is_replied 没落上
		existing, err := s.replies.GetByOriginalEmailID(ctx, email.ID)
		if err != nil {
			s.logger.Error("Failed to check existing reply",
				zap.Int64("email_id", email.ID),
				zap.Error(err),
			)
			continue
		}
		if existing != nil && existing.ReplyStatus == model.ReplyStatusSent {
			if err := s.emails.MarkReplied(ctx, email.ID, existing.MessageID); err != nil {
				s.logger.Error("Failed to re-link existing reply",
					zap.Int64("email_id", email.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if s.processor.ReplyToInbound(ctx, email) {
			replied++
		}
	}

	s.logActivity(ctx, model.ActivityUnrepliedSweep, model.ActivityStatusInfo, model.SyncDetails{
		Fetched: replied,
	})
	s.logger.Info("Unreplied sweep completed",
		zap.Int("scanned", len(emails)),
		zap.Int("replied", replied),
	)
}

func (s *Scheduler) runStatusLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.StatusIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportStatus(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) reportStatus(ctx context.Context) {
	s.mu.Lock()
	details := model.SchedulerStatusDetails{
		LastSyncAt:          s.lastSyncAt,
		SyncRunning:         s.syncRunning.Load(),
		ConsecutiveFailures: s.consecutiveFailures,
		LastError:           s.lastError,
	}
	s.mu.Unlock()

	s.logActivity(ctx, model.ActivitySchedulerStatus, model.ActivityStatusInfo, details)
	s.logger.Info("Scheduler status",
		zap.Time("last_sync_at", details.LastSyncAt),
		zap.Bool("sync_running", details.SyncRunning),
		zap.Int("consecutive_failures", details.ConsecutiveFailures),
	)
}

func (s *Scheduler) logActivity(ctx context.Context, event, status string, details any) {
	if err := s.activities.CreateSystemActivity(ctx, moduleName, event, status, details); err != nil {
		s.logger.Error("Failed to record system activity",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
