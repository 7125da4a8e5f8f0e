package model

import "time"

// Email log statuses.
const (
	EmailStatusReceived  = "received"
	EmailStatusSent      = "sent"
	EmailStatusDelivered = "delivered"
	EmailStatusFailed    = "failed"
)

// EmailMessage is one row per physical message, inbound or outbound.
// Immutable after insert except for Status / IsReplied transitions.
type EmailMessage struct {
	ID             int64
	UserID         int64
	From           string
	To             string
	Subject        string
	Body           string
	Timestamp      time.Time
	Status         string
	Service        string
	IsReplied      bool
	ReplyMessageID *string
	// MessageID 为邮件的 RFC Message-ID，入站去重用
	MessageID string
}

// Reply statuses.
const (
	ReplyStatusPending = "pending"
	ReplyStatusSent    = "sent"
	ReplyStatusFailed  = "failed"
)

// EmailReply records the generated reply for an inbound message.
// At most one non-superseded reply per OriginalEmailID.
type EmailReply struct {
	ID              int64
	OriginalEmailID int64
	ReplyContent    string
	AutoGenerated   bool
	ReplyStatus     string
	MessageID       string
	ErrorDetail     *string
	CreatedAt       time.Time
}
