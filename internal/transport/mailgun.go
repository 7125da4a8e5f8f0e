package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"

	"receptionist/internal/model"
	"receptionist/pkg/metrics"
)

// MailgunSender delivers mail through the Mailgun API.
type MailgunSender struct {
	logger *zap.Logger
}

func NewMailgunSender(logger *zap.Logger) *MailgunSender {
	return &MailgunSender{logger: logger}
}

func (s *MailgunSender) Kind() Kind {
	return KindMailgun
}

// isSandboxDomain reports whether the configured domain is a Mailgun
// sandbox, which only delivers to pre-authorized recipients.
func isSandboxDomain(domain string) bool {
	return strings.HasPrefix(domain, "sandbox") && strings.HasSuffix(domain, ".mailgun.org")
}

// recipientAuthorized checks the recipient against the comma-separated
// authorized list. This enforcement is deliberately provider-specific and
// stays out of the dispatcher.
func recipientAuthorized(cfg *model.ServiceConfig, to string) bool {
	for _, r := range strings.Split(cfg.AuthorizedRecipients, ",") {
		if strings.EqualFold(strings.TrimSpace(r), strings.TrimSpace(to)) {
			return true
		}
	}
	return false
}

func (s *MailgunSender) Send(ctx context.Context, cfg *model.ServiceConfig, params EmailParams) error {
	if cfg == nil || cfg.APIKey == "" || cfg.Domain == "" {
		return fmt.Errorf("mailgun: missing api key or domain")
	}

	if isSandboxDomain(cfg.Domain) && !recipientAuthorized(cfg, params.To) {
		return fmt.Errorf("mailgun: sandbox domain %s cannot send to unauthorized recipient %s", cfg.Domain, params.To)
	}

	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)

	from := params.From
	if params.FromName != "" {
		from = fmt.Sprintf("%s <%s>", params.FromName, params.From)
	}

	m := mg.NewMessage(from, params.Subject, params.Text, params.To)
	if params.HTML != "" {
		m.SetHtml(params.HTML)
	}
	for k, v := range params.Headers {
		m.AddHeader(k, v)
	}

	start := time.Now()
	_, id, err := mg.Send(ctx, m)
	if err != nil {
		metrics.RecordTransportSendLatency(string(KindMailgun), "error", time.Since(start))
		return fmt.Errorf("mailgun: %w", err)
	}

	metrics.RecordTransportSendLatency(string(KindMailgun), "success", time.Since(start))
	s.logger.Debug("Mailgun send accepted",
		zap.String("to", params.To),
		zap.String("mailgun_id", id),
	)
	return nil
}
