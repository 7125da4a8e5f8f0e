package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"receptionist/internal/model"
	"receptionist/internal/transport"
)

// fakeSender fails or succeeds per construction and records every call.
type fakeSender struct {
	kind   transport.Kind
	err    error
	calls  []transport.EmailParams
	shared *[]string
}

func (f *fakeSender) Kind() transport.Kind { return f.kind }

func (f *fakeSender) Send(ctx context.Context, cfg *model.ServiceConfig, params transport.EmailParams) error {
	f.calls = append(f.calls, params)
	if f.shared != nil {
		*f.shared = append(*f.shared, string(f.kind))
	}
	return f.err
}

type fakeConfigs struct {
	configs map[string]*model.ServiceConfig
}

func (f *fakeConfigs) GetConfigByUserId(ctx context.Context, userID int64, service string) (*model.ServiceConfig, error) {
	return f.configs[service], nil
}

type fakeActivities struct {
	events []string
}

func (f *fakeActivities) CreateSystemActivity(ctx context.Context, module, event, status string, details any) error {
	f.events = append(f.events, event)
	return nil
}

type fakeEmailLog struct {
	rows []model.EmailMessage
}

func (f *fakeEmailLog) CreateEmailLog(ctx context.Context, e *model.EmailMessage) (int64, error) {
	f.rows = append(f.rows, *e)
	return int64(len(f.rows)), nil
}

func newTestDispatcher(senders []transport.Sender, configs *fakeConfigs) (*Dispatcher, *fakeActivities, *fakeEmailLog) {
	activities := &fakeActivities{}
	emails := &fakeEmailLog{}
	d := NewDispatcher(senders, configs, activities, emails, zap.NewNop())
	return d, activities, emails
}

func activeConfig(service string) *model.ServiceConfig {
	return &model.ServiceConfig{
		Service:   service,
		FromEmail: "desk@acme.test",
		FromName:  "Acme Front Desk",
		IsActive:  true,
		APIKey:    "key",
	}
}

func validParams() transport.EmailParams {
	return transport.EmailParams{
		To:      "alice@example.com",
		From:    "desk@acme.test",
		Subject: "Re: hello",
		Text:    "body",
	}
}

func TestSendEmailFailoverOrder(t *testing.T) {
	var order []string
	sg := &fakeSender{kind: transport.KindSendGrid, err: errors.New("sendgrid 500"), shared: &order}
	smtp := &fakeSender{kind: transport.KindSMTP, shared: &order}
	mg := &fakeSender{kind: transport.KindMailgun, shared: &order}

	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{
		"sendgrid": activeConfig("sendgrid"),
		"smtp":     activeConfig("smtp"),
	}}
	d, activities, emails := newTestDispatcher([]transport.Sender{sg, smtp, mg}, configs)

	result := d.SendEmail(context.Background(), 1, transport.KindSendGrid, validParams())

	require.True(t, result.Success)
	assert.Equal(t, transport.KindSMTP, result.Service)
	assert.Equal(t, []string{"sendgrid", "smtp"}, order)
	assert.Empty(t, mg.calls)

	assert.Equal(t, []string{model.ActivityEmailError, model.ActivityEmailFallbackSuccess}, activities.events)

	// 只落一条终态记录
	require.Len(t, emails.rows, 1)
	assert.Equal(t, model.EmailStatusSent, emails.rows[0].Status)
	assert.Equal(t, "smtp", emails.rows[0].Service)
}

func TestSendEmailValidationShortCircuits(t *testing.T) {
	sg := &fakeSender{kind: transport.KindSendGrid}
	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{}}
	d, activities, emails := newTestDispatcher([]transport.Sender{sg}, configs)

	params := validParams()
	params.To = ""
	result := d.SendEmail(context.Background(), 1, transport.KindSendGrid, params)

	assert.False(t, result.Success)
	assert.Equal(t, "missing required email fields: to", result.Error)
	// 校验失败必须在任何 transport 调用之前短路，也不触发 failover
	assert.Empty(t, sg.calls)
	assert.Equal(t, []string{model.ActivityEmailValidationError}, activities.events)
	assert.Empty(t, emails.rows)
}

func TestSendEmailAllServicesFail(t *testing.T) {
	sg := &fakeSender{kind: transport.KindSendGrid, err: errors.New("boom")}
	smtp := &fakeSender{kind: transport.KindSMTP, err: errors.New("boom")}
	mg := &fakeSender{kind: transport.KindMailgun, err: errors.New("boom")}

	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{
		"sendgrid": activeConfig("sendgrid"),
	}}
	d, activities, emails := newTestDispatcher([]transport.Sender{sg, smtp, mg}, configs)

	result := d.SendEmail(context.Background(), 1, transport.KindSendGrid, validParams())

	assert.False(t, result.Success)
	assert.Equal(t, "Failed to send email using all available services: sendgrid, smtp, mailgun", result.Error)
	assert.Equal(t, model.ActivityAllServicesFailed, activities.events[len(activities.events)-1])

	require.Len(t, emails.rows, 1)
	assert.Equal(t, model.EmailStatusFailed, emails.rows[0].Status)
}

func TestSendEmailStampsAutomatedReplyHeader(t *testing.T) {
	sg := &fakeSender{kind: transport.KindSendGrid}
	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{
		"sendgrid": activeConfig("sendgrid"),
	}}
	d, _, _ := newTestDispatcher([]transport.Sender{sg}, configs)

	result := d.SendEmail(context.Background(), 1, transport.KindSendGrid, validParams())

	require.True(t, result.Success)
	require.Len(t, sg.calls, 1)
	sent := sg.calls[0]
	assert.Equal(t, "true", sent.Headers[transport.AutomatedReplyHeader])
	assert.True(t, sent.IsAutomatedReply)
	assert.NotEmpty(t, result.MessageID)
}

func TestSendEmailUnspecifiedServiceWalksPolicy(t *testing.T) {
	sg := &fakeSender{kind: transport.KindSendGrid}
	smtp := &fakeSender{kind: transport.KindSMTP}
	mg := &fakeSender{kind: transport.KindMailgun}

	// 只有 smtp 配置激活
	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{
		"smtp": activeConfig("smtp"),
	}}
	d, _, _ := newTestDispatcher([]transport.Sender{sg, smtp, mg}, configs)

	result := d.SendEmail(context.Background(), 1, "", validParams())

	require.True(t, result.Success)
	assert.Equal(t, transport.KindSMTP, result.Service)
	assert.Empty(t, sg.calls)
}

func TestSendEmailFromNameFilledFromConfig(t *testing.T) {
	sg := &fakeSender{kind: transport.KindSendGrid}
	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{
		"sendgrid": activeConfig("sendgrid"),
	}}
	d, _, _ := newTestDispatcher([]transport.Sender{sg}, configs)

	params := validParams()
	params.FromName = ""
	result := d.SendEmail(context.Background(), 1, "", params)

	require.True(t, result.Success)
	require.Len(t, sg.calls, 1)
	assert.Equal(t, "Acme Front Desk", sg.calls[0].FromName)
}

func TestSendEmailMissingFromFailsFastDespiteConfig(t *testing.T) {
	sg := &fakeSender{kind: transport.KindSendGrid}
	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{
		"sendgrid": activeConfig("sendgrid"),
	}}
	d, _, _ := newTestDispatcher([]transport.Sender{sg}, configs)

	// 发件地址由调用方通过 ResolvePreferred 解析后传入，dispatcher 不兜底
	params := validParams()
	params.From = ""
	result := d.SendEmail(context.Background(), 1, "", params)

	assert.False(t, result.Success)
	assert.Equal(t, "missing required email fields: from", result.Error)
	assert.Empty(t, sg.calls)
}

func TestResolvePreferredFallsBackToPolicyHead(t *testing.T) {
	d, _, _ := newTestDispatcher(nil, &fakeConfigs{configs: map[string]*model.ServiceConfig{}})

	kind, cfg := d.ResolvePreferred(context.Background(), 1)
	assert.Equal(t, transport.KindSendGrid, kind)
	assert.Nil(t, cfg)
}

func TestResolvePreferredSkipsInactive(t *testing.T) {
	inactive := activeConfig("sendgrid")
	inactive.IsActive = false
	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{
		"sendgrid": inactive,
		"mailgun":  activeConfig("mailgun"),
	}}
	d, _, _ := newTestDispatcher(nil, configs)

	kind, cfg := d.ResolvePreferred(context.Background(), 1)
	assert.Equal(t, transport.KindMailgun, kind)
	require.NotNil(t, cfg)
	assert.True(t, cfg.IsActive)
}

func TestSendEmailSenderPanicCascades(t *testing.T) {
	panicking := &panickingSender{}
	smtp := &fakeSender{kind: transport.KindSMTP}
	configs := &fakeConfigs{configs: map[string]*model.ServiceConfig{
		"sendgrid": activeConfig("sendgrid"),
		"smtp":     activeConfig("smtp"),
	}}
	d, _, _ := newTestDispatcher([]transport.Sender{panicking, smtp}, configs)

	result := d.SendEmail(context.Background(), 1, transport.KindSendGrid, validParams())
	require.True(t, result.Success)
	assert.Equal(t, transport.KindSMTP, result.Service)
}

type panickingSender struct{}

func (p *panickingSender) Kind() transport.Kind { return transport.KindSendGrid }

func (p *panickingSender) Send(ctx context.Context, cfg *model.ServiceConfig, params transport.EmailParams) error {
	panic("sdk blew up")
}
