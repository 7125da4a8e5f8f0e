package model

// ServiceConfig holds per-user credentials for one outbound transport.
// At most one active config per service per user; "active" means eligible
// for selection, not exclusively used.
type ServiceConfig struct {
	ID        int64
	UserID    int64
	Service   string // sendgrid, smtp, mailgun
	FromEmail string
	FromName  string
	IsActive  bool

	// sendgrid / mailgun
	APIKey string
	// mailgun
	Domain string
	// mailgun sandbox domains only deliver to pre-authorized recipients
	AuthorizedRecipients string
	// smtp
	Host     string
	Port     int
	Username string
	Password string
}
