package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"receptionist/internal/dispatch"
	"receptionist/internal/model"
	"receptionist/internal/transport"
)

const scheduledBatchLimit = 50

type ScheduledStore interface {
	GetDuePending(ctx context.Context, limit int) ([]model.ScheduledEmail, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	Reschedule(ctx context.Context, id int64, next time.Time) error
}

type Dispatcher interface {
	SendEmail(ctx context.Context, userID int64, service transport.Kind, params transport.EmailParams) dispatch.Result
	ResolvePreferred(ctx context.Context, userID int64) (transport.Kind, *model.ServiceConfig)
}

// ScheduledSender sweeps due user-authored sends and pushes them through
// the shared dispatcher, rolling recurring rows forward.
type ScheduledSender struct {
	store      ScheduledStore
	dispatcher Dispatcher
	activities ActivityStore
	interval   time.Duration
	logger     *zap.Logger
}

func NewScheduledSender(
	store ScheduledStore,
	dispatcher Dispatcher,
	activities ActivityStore,
	interval time.Duration,
	logger *zap.Logger,
) *ScheduledSender {
	return &ScheduledSender{
		store:      store,
		dispatcher: dispatcher,
		activities: activities,
		interval:   interval,
		logger:     logger,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *ScheduledSender) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepDue(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SweepDue dispatches every pending row whose scheduled time has passed.
// Failures are per-row: one bad send never blocks the rest of the batch.
func (s *ScheduledSender) SweepDue(ctx context.Context) {
	due, err := s.store.GetDuePending(ctx, scheduledBatchLimit)
	if err != nil {
		s.logger.Error("Failed to load due scheduled emails", zap.Error(err))
		return
	}

	for i := range due {
		s.sendOne(ctx, &due[i])
	}
}

func (s *ScheduledSender) sendOne(ctx context.Context, se *model.ScheduledEmail) {
	kind, cfg := s.dispatcher.ResolvePreferred(ctx, se.UserID)

	params := transport.EmailParams{
		To:      se.To,
		Subject: se.Subject,
		Text:    se.Body,
	}
	if cfg != nil {
		params.From = cfg.FromEmail
		params.FromName = cfg.FromName
	}

	result := s.dispatcher.SendEmail(ctx, se.UserID, kind, params)
	if !result.Success {
		if err := s.store.UpdateStatus(ctx, se.ID, model.ScheduledStatusFailed); err != nil {
			s.logger.Error("Failed to mark scheduled email failed",
				zap.Int64("scheduled_id", se.ID),
				zap.Error(err),
			)
		}
		s.logActivity(ctx, model.ActivityScheduledEmailFailed, model.ActivityStatusError, model.ScheduledSendDetails{
			ScheduledEmailID: se.ID,
			UserID:           se.UserID,
			Service:          string(result.Service),
			Error:            result.Error,
		})
		return
	}

	details := model.ScheduledSendDetails{
		ScheduledEmailID: se.ID,
		UserID:           se.UserID,
		Service:          string(result.Service),
	}

	if se.IsRecurring && se.RecurringRule != "" {
		next := NextRun(se.ScheduledTime, se.RecurringRule, time.Now())
		if err := s.store.Reschedule(ctx, se.ID, next); err != nil {
			s.logger.Error("Failed to reschedule recurring email",
				zap.Int64("scheduled_id", se.ID),
				zap.Error(err),
			)
		}
		details.NextRun = next.Format(time.RFC3339)
	} else {
		if err := s.store.UpdateStatus(ctx, se.ID, model.ScheduledStatusSent); err != nil {
			s.logger.Error("Failed to mark scheduled email sent",
				zap.Int64("scheduled_id", se.ID),
				zap.Error(err),
			)
		}
	}

	s.logActivity(ctx, model.ActivityScheduledEmailSent, model.ActivityStatusSuccess, details)
	s.logger.Info("Scheduled email dispatched",
		zap.Int64("scheduled_id", se.ID),
		zap.String("service", string(result.Service)),
		zap.String("next_run", details.NextRun),
	)
}

// NextRun advances a recurrence anchor past now. Stepping from the original
// anchor rather than from now keeps the schedule aligned (e.g. always 09:00)
// even after downtime. Unknown rules fall back to daily.
func NextRun(anchor time.Time, rule string, now time.Time) time.Time {
	next := anchor
	for !next.After(now) {
		switch rule {
		case model.RecurWeekly:
			next = next.AddDate(0, 0, 7)
		case model.RecurMonthly:
			next = next.AddDate(0, 1, 0)
		default:
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}

func (s *ScheduledSender) logActivity(ctx context.Context, event, status string, details any) {
	if err := s.activities.CreateSystemActivity(ctx, moduleName, event, status, details); err != nil {
		s.logger.Error("Failed to record system activity",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
