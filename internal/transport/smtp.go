package transport

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"receptionist/internal/model"
	"receptionist/pkg/metrics"
)

// SMTPSender delivers mail through a user-configured SMTP relay.
type SMTPSender struct {
	logger *zap.Logger
}

func NewSMTPSender(logger *zap.Logger) *SMTPSender {
	return &SMTPSender{logger: logger}
}

func (s *SMTPSender) Kind() Kind {
	return KindSMTP
}

func (s *SMTPSender) Send(ctx context.Context, cfg *model.ServiceConfig, params EmailParams) error {
	if cfg == nil || cfg.Host == "" {
		return fmt.Errorf("smtp: missing host")
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(params.From, params.FromName))
	m.SetHeader("To", params.To)
	m.SetHeader("Subject", params.Subject)
	for k, v := range params.Headers {
		m.SetHeader(k, v)
	}

	if params.Text != "" {
		m.SetBody("text/plain", params.Text)
		if params.HTML != "" {
			m.AddAlternative("text/html", params.HTML)
		}
	} else {
		m.SetBody("text/html", params.HTML)
	}

	start := time.Now()
	d := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		metrics.RecordTransportSendLatency(string(KindSMTP), "error", time.Since(start))
		return fmt.Errorf("smtp: %w", err)
	}

	metrics.RecordTransportSendLatency(string(KindSMTP), "success", time.Since(start))
	s.logger.Debug("SMTP send completed",
		zap.String("to", params.To),
		zap.String("host", cfg.Host),
	)
	return nil
}
