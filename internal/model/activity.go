package model

import (
	"encoding/json"
	"time"
)

// Activity event names written by the pipeline. The activity trail is the
// sole audit mechanism the dashboard reads.
const (
	ActivityEmailSent              = "EmailSent"
	ActivityEmailError             = "EmailError"
	ActivityEmailFallbackSuccess   = "EmailFallbackSuccess"
	ActivityAllServicesFailed      = "AllEmailServicesFailed"
	ActivityEmailValidationError   = "EmailValidationError"
	ActivityEmailProcessed         = "EmailProcessed"
	ActivityEmailProcessingFailed  = "Email Processing Failed"
	ActivityEmailLoopSkipped       = "EmailLoopSkipped"
	ActivityScheduledEmailSync     = "ScheduledEmailSync"
	ActivityScheduledEmailSyncErr  = "ScheduledEmailSyncError"
	ActivitySyncCriticalFailure    = "EmailSyncCriticalFailure"
	ActivityUnrepliedSweep         = "UnrepliedEmailSweep"
	ActivityScheduledEmailSent     = "ScheduledEmailSent"
	ActivityScheduledEmailFailed   = "ScheduledEmailFailed"
	ActivitySchedulerStatus        = "SchedulerStatus"
)

// Activity statuses.
const (
	ActivityStatusSuccess  = "success"
	ActivityStatusError    = "error"
	ActivityStatusCritical = "critical"
	ActivityStatusInfo     = "info"
)

// SystemActivity is an append-only audit trail entry.
type SystemActivity struct {
	ID        int64
	Module    string
	Event     string
	Status    string
	Timestamp time.Time
	Details   json.RawMessage
}

// Typed detail payloads, one per event family (marshaled into the jsonb
// details column).

type SendAttemptDetails struct {
	UserID   int64  `json:"user_id"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Service  string `json:"service"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
	Tried    string `json:"tried,omitempty"`
}

type ValidationDetails struct {
	UserID        int64    `json:"user_id"`
	MissingFields []string `json:"missing_fields"`
}

type ProcessingDetails struct {
	UserID        int64    `json:"user_id"`
	EmailID       int64    `json:"email_id"`
	Intents       []string `json:"intents,omitempty"`
	MeetingWanted bool     `json:"meeting_wanted,omitempty"`
	Service       string   `json:"service,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type SyncDetails struct {
	Fetched             int    `json:"fetched,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
	Error               string `json:"error,omitempty"`
}

type SchedulerStatusDetails struct {
	LastSyncAt          time.Time `json:"last_sync_at"`
	SyncRunning         bool      `json:"sync_running"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

type ScheduledSendDetails struct {
	ScheduledEmailID int64  `json:"scheduled_email_id"`
	UserID           int64  `json:"user_id"`
	Service          string `json:"service,omitempty"`
	Error            string `json:"error,omitempty"`
	NextRun          string `json:"next_run,omitempty"`
}
