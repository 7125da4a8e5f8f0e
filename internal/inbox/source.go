package inbox

import "context"

// InboundEmail is one unread message pulled from a mailbox provider.
type InboundEmail struct {
	UserID    int64
	From      string
	To        string
	Subject   string
	Body      string
	MessageID string
	Headers   map[string]string
}

// Source pulls unread mail for ingestion. Implementations wrap a mailbox
// provider (IMAP, Gmail API, webhook buffer); the sync loop only depends on
// this interface.
type Source interface {
	FetchUnread(ctx context.Context, limit int) ([]InboundEmail, error)
}

// StaticSource serves a fixed batch once. Used in tests and local runs
// without a mailbox provider.
type StaticSource struct {
	emails []InboundEmail
	served bool
}

func NewStaticSource(emails []InboundEmail) *StaticSource {
	return &StaticSource{emails: emails}
}

func (s *StaticSource) FetchUnread(ctx context.Context, limit int) ([]InboundEmail, error) {
	if s.served {
		return nil, nil
	}
	s.served = true
	if len(s.emails) > limit {
		return s.emails[:limit], nil
	}
	return s.emails, nil
}
