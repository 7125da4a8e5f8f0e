package mq

import "time"

// EmailReceivedPayload 邮件收到事件的 payload
type EmailReceivedPayload struct {
	EmailID    int64     `json:"email_id"`
	UserID     int64     `json:"user_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}
