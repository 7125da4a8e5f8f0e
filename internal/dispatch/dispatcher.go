package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"receptionist/internal/model"
	"receptionist/internal/transport"
	"receptionist/pkg/metrics"
)

const moduleName = "email"

// ConfigStore is the slice of storage the dispatcher needs. Implemented by
// repository.ServiceConfigRepository.
type ConfigStore interface {
	GetConfigByUserId(ctx context.Context, userID int64, service string) (*model.ServiceConfig, error)
}

// ActivityStore records audit trail entries.
type ActivityStore interface {
	CreateSystemActivity(ctx context.Context, module, event, status string, details any) error
}

// EmailLogStore persists the outbound message row.
type EmailLogStore interface {
	CreateEmailLog(ctx context.Context, e *model.EmailMessage) (int64, error)
}

// Result is the outcome of one dispatch, including failover.
type Result struct {
	Success   bool
	Service   transport.Kind
	MessageID string
	Error     string
}

// Dispatcher routes outbound email across the configured transports,
// cascading through the priority order on failure.
type Dispatcher struct {
	senders    map[transport.Kind]transport.Sender
	policy     []transport.Kind
	configs    ConfigStore
	activities ActivityStore
	emails     EmailLogStore
	logger     *zap.Logger
}

func NewDispatcher(
	senders []transport.Sender,
	configs ConfigStore,
	activities ActivityStore,
	emails EmailLogStore,
	logger *zap.Logger,
) *Dispatcher {
	byKind := make(map[transport.Kind]transport.Sender, len(senders))
	for _, s := range senders {
		byKind[s.Kind()] = s
	}
	return &Dispatcher{
		senders:    byKind,
		policy:     transport.DefaultPolicy(),
		configs:    configs,
		activities: activities,
		emails:     emails,
		logger:     logger,
	}
}

// WithPolicy overrides the failover priority order.
func (d *Dispatcher) WithPolicy(policy []transport.Kind) *Dispatcher {
	d.policy = policy
	return d
}

// ResolvePreferred returns the first transport in policy order with an
// active config, falling back to the head of the policy when the user has
// nothing active. The fallback will predictably fail at send time; that is
// deliberate fail-loud behavior, not a silent drop.
func (d *Dispatcher) ResolvePreferred(ctx context.Context, userID int64) (transport.Kind, *model.ServiceConfig) {
	for _, kind := range d.policy {
		cfg, err := d.configs.GetConfigByUserId(ctx, userID, string(kind))
		if err != nil {
			d.logger.Warn("Failed to load service config",
				zap.Int64("user_id", userID),
				zap.String("service", string(kind)),
				zap.Error(err),
			)
			continue
		}
		if cfg != nil && cfg.IsActive {
			return kind, cfg
		}
	}
	return d.policy[0], nil
}

// SendEmail validates, resolves a transport, and dispatches with failover.
// service may be empty, in which case the policy decides.
func (d *Dispatcher) SendEmail(ctx context.Context, userID int64, service transport.Kind, params transport.EmailParams) Result {
	if missing := missingFields(params); len(missing) > 0 {
		errMsg := fmt.Sprintf("missing required email fields: %s", strings.Join(missing, ", "))
		d.logger.Warn("Rejected invalid email params",
			zap.Int64("user_id", userID),
			zap.Strings("missing", missing),
		)
		d.logActivity(ctx, model.ActivityEmailValidationError, model.ActivityStatusError, model.ValidationDetails{
			UserID:        userID,
			MissingFields: missing,
		})
		return Result{Success: false, Error: errMsg}
	}

	// 所有出站邮件都打上自动回复标记，用于下游的回环检测
	if params.Headers == nil {
		params.Headers = map[string]string{}
	}
	params.Headers[transport.AutomatedReplyHeader] = "true"
	params.IsAutomatedReply = true

	messageID := fmt.Sprintf("<%s@receptionist>", uuid.NewString())

	chosen := service
	var chosenCfg *model.ServiceConfig
	if chosen == "" {
		chosen, chosenCfg = d.ResolvePreferred(ctx, userID)
	}

	order := d.cascadeOrder(chosen)
	tried := make([]string, 0, len(order))

	for i, kind := range order {
		cfg := chosenCfg
		if cfg == nil || i > 0 {
			var err error
			cfg, err = d.configs.GetConfigByUserId(ctx, userID, string(kind))
			if err != nil {
				d.logger.Warn("Failed to load service config during dispatch",
					zap.Int64("user_id", userID),
					zap.String("service", string(kind)),
					zap.Error(err),
				)
			}
		}

		// 发件地址由调用方解析并在入口校验；display name 可选，缺省取配置
		attempt := params
		if attempt.FromName == "" && cfg != nil {
			attempt.FromName = cfg.FromName
		}

		tried = append(tried, string(kind))
		err := d.attempt(ctx, kind, cfg, attempt)
		if err == nil {
			fallback := i > 0
			event := model.ActivityEmailSent
			status := "sent"
			if fallback {
				event = model.ActivityEmailFallbackSuccess
				status = "fallback"
			}
			d.logActivity(ctx, event, model.ActivityStatusSuccess, model.SendAttemptDetails{
				UserID:   userID,
				To:       attempt.To,
				Subject:  attempt.Subject,
				Service:  string(kind),
				Fallback: fallback,
			})
			metrics.IncrementReplyDispatched(string(kind), status)
			d.logOutbound(ctx, userID, kind, attempt, model.EmailStatusSent, messageID)

			return Result{Success: true, Service: kind, MessageID: messageID}
		}

		d.logger.Warn("Transport send failed",
			zap.Int64("user_id", userID),
			zap.String("service", string(kind)),
			zap.Error(err),
		)
		d.logActivity(ctx, model.ActivityEmailError, model.ActivityStatusError, model.SendAttemptDetails{
			UserID:  userID,
			To:      attempt.To,
			Subject: attempt.Subject,
			Service: string(kind),
			Error:   err.Error(),
		})
	}

	errMsg := fmt.Sprintf("Failed to send email using all available services: %s", strings.Join(tried, ", "))
	d.logActivity(ctx, model.ActivityAllServicesFailed, model.ActivityStatusCritical, model.SendAttemptDetails{
		UserID:  userID,
		To:      params.To,
		Subject: params.Subject,
		Tried:   strings.Join(tried, ", "),
	})
	metrics.IncrementReplyDispatched(string(chosen), "failed")
	d.logOutbound(ctx, userID, chosen, params, model.EmailStatusFailed, messageID)

	return Result{Success: false, Service: chosen, Error: errMsg}
}

// attempt runs one provider send, converting panics into errors so a
// misbehaving SDK cannot take down the cascade.
func (d *Dispatcher) attempt(ctx context.Context, kind transport.Kind, cfg *model.ServiceConfig, params transport.EmailParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic during send: %v", kind, r)
		}
	}()

	sender, ok := d.senders[kind]
	if !ok {
		return fmt.Errorf("no sender registered for service %s", kind)
	}
	return sender.Send(ctx, cfg, params)
}

// cascadeOrder is the chosen transport first, then the remaining policy
// entries in priority order.
func (d *Dispatcher) cascadeOrder(chosen transport.Kind) []transport.Kind {
	order := []transport.Kind{chosen}
	for _, kind := range d.policy {
		if kind != chosen {
			order = append(order, kind)
		}
	}
	return order
}

func (d *Dispatcher) logActivity(ctx context.Context, event, status string, details any) {
	if err := d.activities.CreateSystemActivity(ctx, moduleName, event, status, details); err != nil {
		d.logger.Error("Failed to record system activity",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) logOutbound(ctx context.Context, userID int64, kind transport.Kind, params transport.EmailParams, status, messageID string) {
	_, err := d.emails.CreateEmailLog(ctx, &model.EmailMessage{
		UserID:    userID,
		From:      params.From,
		To:        params.To,
		Subject:   params.Subject,
		Body:      params.Text,
		Status:    status,
		Service:   string(kind),
		MessageID: messageID,
	})
	if err != nil {
		d.logger.Error("Failed to persist outbound email log",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

func missingFields(params transport.EmailParams) []string {
	missing := []string{}
	if strings.TrimSpace(params.To) == "" {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(params.From) == "" {
		missing = append(missing, "from")
	}
	if strings.TrimSpace(params.Subject) == "" {
		missing = append(missing, "subject")
	}
	return missing
}
