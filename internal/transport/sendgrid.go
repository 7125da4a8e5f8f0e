package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"receptionist/internal/model"
	"receptionist/pkg/metrics"
)

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	logger *zap.Logger
}

func NewSendGridSender(logger *zap.Logger) *SendGridSender {
	return &SendGridSender{logger: logger}
}

func (s *SendGridSender) Kind() Kind {
	return KindSendGrid
}

func (s *SendGridSender) Send(ctx context.Context, cfg *model.ServiceConfig, params EmailParams) error {
	if cfg == nil || cfg.APIKey == "" {
		return fmt.Errorf("sendgrid: missing api key")
	}

	from := mail.NewEmail(params.FromName, params.From)
	to := mail.NewEmail("", params.To)

	text := params.Text
	if text == "" {
		text = params.HTML
	}
	html := params.HTML
	if html == "" {
		html = params.Text
	}

	message := mail.NewSingleEmail(from, params.Subject, to, text, html)
	for k, v := range params.Headers {
		message.SetHeader(k, v)
	}

	start := time.Now()
	client := sendgrid.NewSendClient(cfg.APIKey)
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		metrics.RecordTransportSendLatency(string(KindSendGrid), "error", time.Since(start))
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		metrics.RecordTransportSendLatency(string(KindSendGrid), fmt.Sprintf("%d", resp.StatusCode), time.Since(start))
		return fmt.Errorf("sendgrid: unexpected status %d: %s", resp.StatusCode, resp.Body)
	}

	metrics.RecordTransportSendLatency(string(KindSendGrid), "success", time.Since(start))
	s.logger.Debug("SendGrid send accepted",
		zap.String("to", params.To),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}
