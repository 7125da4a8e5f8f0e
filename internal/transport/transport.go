package transport

import (
	"context"

	"receptionist/internal/model"
)

// Kind identifies one of the interchangeable outbound email providers.
type Kind string

const (
	KindSendGrid Kind = "sendgrid"
	KindSMTP     Kind = "smtp"
	KindMailgun  Kind = "mailgun"
)

// DefaultPolicy is the failover priority order. The dispatcher walks this
// slice both when resolving an unspecified service and when cascading
// after a failure.
func DefaultPolicy() []Kind {
	return []Kind{KindSendGrid, KindSMTP, KindMailgun}
}

// AutomatedReplyHeader marks outbound mail produced by the pipeline so
// inbound processing can detect and break reply loops.
const AutomatedReplyHeader = "X-AI-Receptionist"

// EmailParams is the fully-resolved outbound message handed to a sender.
type EmailParams struct {
	To       string
	From     string
	FromName string
	Subject  string
	Text     string
	HTML     string
	Headers  map[string]string
	// IsAutomatedReply mirrors the AutomatedReplyHeader stamp for storage.
	IsAutomatedReply bool
}

// Sender is one provider adapter. Credentials are passed per call: per-user
// configuration is read fresh on every dispatch, never cached.
type Sender interface {
	Kind() Kind
	Send(ctx context.Context, cfg *model.ServiceConfig, params EmailParams) error
}
