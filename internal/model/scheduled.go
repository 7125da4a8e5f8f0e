package model

import "time"

// Scheduled email statuses.
const (
	ScheduledStatusPending   = "pending"
	ScheduledStatusSent      = "sent"
	ScheduledStatusFailed    = "failed"
	ScheduledStatusCancelled = "cancelled"
)

// Recurrence rules.
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
)

// ScheduledEmail is a user-authored future send, independent of the
// auto-reply path. Dispatched by the scheduled-send sweep, which shares
// the dispatcher with the reply pipeline.
type ScheduledEmail struct {
	ID            int64
	UserID        int64
	To            string
	Subject       string
	Body          string
	TemplateID    *int64
	ScheduledTime time.Time
	Status        string
	IsRecurring   bool
	RecurringRule string
	CreatedAt     time.Time
}
