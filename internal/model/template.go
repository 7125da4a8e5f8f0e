package model

import "time"

// EmailTemplate is a user-managed reply template. Variables is the
// comma-separated placeholder spec, e.g. "customer_name,appointment_date".
type EmailTemplate struct {
	ID          int64
	UserID      int64
	Name        string
	Subject     string
	Body        string
	Category    string
	Description *string
	Variables   string
	IsActive    bool
	LastUsed    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Intent is an append-only record of a classified inbound intent,
// used as a weak recency signal in template scoring.
type Intent struct {
	ID        int64
	UserID    int64
	Intent    string
	Examples  []string
	CreatedAt time.Time
}
