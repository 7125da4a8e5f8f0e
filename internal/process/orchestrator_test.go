package process

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"receptionist/internal/classify"
	"receptionist/internal/dispatch"
	"receptionist/internal/model"
	"receptionist/internal/transport"
)

type fakeEmails struct {
	byID        map[int64]*model.EmailMessage
	markedID    int64
	markedMsgID string
}

func (f *fakeEmails) FindByID(ctx context.Context, id int64) (*model.EmailMessage, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func (f *fakeEmails) MarkReplied(ctx context.Context, id int64, replyMessageID string) error {
	f.markedID = id
	f.markedMsgID = replyMessageID
	return nil
}

func (f *fakeEmails) CreateEmailLogTx(ctx context.Context, tx pgx.Tx, e *model.EmailMessage) (int64, error) {
	return 0, errors.New("not used in these tests")
}

type fakeTemplates struct {
	templates []model.EmailTemplate
	touched   []int64
}

func (f *fakeTemplates) GetEmailTemplatesByUserId(ctx context.Context, userID int64) ([]model.EmailTemplate, error) {
	return f.templates, nil
}

func (f *fakeTemplates) TouchLastUsed(ctx context.Context, id int64) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeIntents struct {
	created []model.Intent
	recent  []model.Intent
	ops     []string
}

func (f *fakeIntents) CreateIntent(ctx context.Context, in *model.Intent) (int64, error) {
	f.created = append(f.created, *in)
	f.ops = append(f.ops, "create")
	return int64(len(f.created)), nil
}

func (f *fakeIntents) GetIntentsByUserId(ctx context.Context, userID int64, limit int) ([]model.Intent, error) {
	f.ops = append(f.ops, "recent")
	return f.recent, nil
}

type fakeReplies struct {
	created  []model.EmailReply
	statuses []string
	details  []*string
}

func (f *fakeReplies) Create(ctx context.Context, reply *model.EmailReply) (int64, error) {
	f.created = append(f.created, *reply)
	return int64(len(f.created)), nil
}

func (f *fakeReplies) UpdateStatus(ctx context.Context, id int64, status string, errorDetail *string) error {
	f.statuses = append(f.statuses, status)
	f.details = append(f.details, errorDetail)
	return nil
}

type fakeActivities struct {
	events []string
}

func (f *fakeActivities) CreateSystemActivity(ctx context.Context, module, event, status string, details any) error {
	f.events = append(f.events, event)
	return nil
}

type fakeDispatcher struct {
	result dispatch.Result
	sent   []transport.EmailParams
	kind   transport.Kind
	cfg    *model.ServiceConfig
}

func (f *fakeDispatcher) SendEmail(ctx context.Context, userID int64, service transport.Kind, params transport.EmailParams) dispatch.Result {
	f.sent = append(f.sent, params)
	return f.result
}

func (f *fakeDispatcher) ResolvePreferred(ctx context.Context, userID int64) (transport.Kind, *model.ServiceConfig) {
	return f.kind, f.cfg
}

type fakeClassifier struct {
	result classify.Classification
}

func (f *fakeClassifier) Classify(ctx context.Context, email classify.EmailContent) classify.Classification {
	return f.result
}

type fakeComposer struct {
	reply        string
	lastTemplate *model.EmailTemplate
}

func (f *fakeComposer) Compose(ctx context.Context, template *model.EmailTemplate, email classify.EmailContent, intents []string) string {
	f.lastTemplate = template
	return f.reply
}

type fixture struct {
	orch       *Orchestrator
	emails     *fakeEmails
	templates  *fakeTemplates
	intents    *fakeIntents
	replies    *fakeReplies
	activities *fakeActivities
	dispatcher *fakeDispatcher
	composer   *fakeComposer
}

func newFixture(cls classify.Classification, templates []model.EmailTemplate, sendResult dispatch.Result) *fixture {
	f := &fixture{
		emails:     &fakeEmails{byID: map[int64]*model.EmailMessage{}},
		templates:  &fakeTemplates{templates: templates},
		intents:    &fakeIntents{},
		replies:    &fakeReplies{},
		activities: &fakeActivities{},
		dispatcher: &fakeDispatcher{
			result: sendResult,
			kind:   transport.KindSendGrid,
			cfg: &model.ServiceConfig{
				FromEmail: "desk@acme.test",
				FromName:  "Acme Front Desk",
				IsActive:  true,
			},
		},
		composer: &fakeComposer{reply: "Thanks, we got your message."},
	}
	f.orch = NewOrchestrator(
		nil,
		f.emails,
		f.templates,
		f.intents,
		f.replies,
		f.activities,
		nil,
		&fakeClassifier{result: cls},
		f.composer,
		f.dispatcher,
		zap.NewNop(),
	)
	return f
}

func inboundEmail() *model.EmailMessage {
	return &model.EmailMessage{
		ID:      42,
		UserID:  7,
		From:    "alice@example.com",
		To:      "desk@acme.test",
		Subject: "Question about pricing",
		Body:    "How much does the premium plan cost?",
		Status:  model.EmailStatusReceived,
	}
}

func TestReplyToInboundHappyPath(t *testing.T) {
	templates := []model.EmailTemplate{
		{ID: 7, Name: "pricing quote", Category: "pricing", Subject: "Our pricing", IsActive: true},
		{ID: 8, Name: "generic ack", Category: "general_inquiry", IsActive: true},
	}
	f := newFixture(
		classify.Classification{Intents: []string{"pricing"}},
		templates,
		dispatch.Result{Success: true, Service: transport.KindSendGrid, MessageID: "<abc@receptionist>"},
	)

	ok := f.orch.ReplyToInbound(context.Background(), inboundEmail())
	require.True(t, ok)

	// 报价模板被选中并打了使用时间戳
	assert.Equal(t, []int64{7}, f.templates.touched)
	require.NotNil(t, f.composer.lastTemplate)
	assert.Equal(t, int64(7), f.composer.lastTemplate.ID)

	// 先落 pending，发送成功后置 sent
	require.Len(t, f.replies.created, 1)
	assert.Equal(t, model.ReplyStatusPending, f.replies.created[0].ReplyStatus)
	assert.Equal(t, []string{model.ReplyStatusSent}, f.replies.statuses)

	// 原始邮件标记已回复并关联出站 message id
	assert.Equal(t, int64(42), f.emails.markedID)
	assert.Equal(t, "<abc@receptionist>", f.emails.markedMsgID)

	// 回信寄给原发件人，主题加 Re:
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "alice@example.com", f.dispatcher.sent[0].To)
	assert.Equal(t, "Re: Question about pricing", f.dispatcher.sent[0].Subject)
	assert.Equal(t, "desk@acme.test", f.dispatcher.sent[0].From)

	// 意图入库
	require.Len(t, f.intents.created, 1)
	assert.Equal(t, "pricing", f.intents.created[0].Intent)

	assert.Contains(t, f.activities.events, model.ActivityEmailProcessed)
}

func TestReplyToInboundDispatchFailure(t *testing.T) {
	f := newFixture(
		classify.Classification{Intents: []string{"general_inquiry"}},
		nil,
		dispatch.Result{Success: false, Error: "Failed to send email using all available services: sendgrid, smtp, mailgun"},
	)

	ok := f.orch.ReplyToInbound(context.Background(), inboundEmail())
	assert.False(t, ok)

	// 回复置 failed 并带上错误详情
	require.Equal(t, []string{model.ReplyStatusFailed}, f.replies.statuses)
	require.NotNil(t, f.replies.details[0])
	assert.Contains(t, *f.replies.details[0], "all available services")

	// 发送失败时绝不标记已回复
	assert.Zero(t, f.emails.markedID)
	assert.Contains(t, f.activities.events, model.ActivityEmailProcessingFailed)
}

func TestReplyToInboundRecordsMeetingIntent(t *testing.T) {
	f := newFixture(
		classify.Classification{
			Intents:               []string{"scheduling"},
			ShouldScheduleMeeting: true,
			MeetingDetails:        &classify.MeetingDetails{Topic: "product demo"},
		},
		nil,
		dispatch.Result{Success: true, Service: transport.KindSMTP, MessageID: "<m@receptionist>"},
	)

	ok := f.orch.ReplyToInbound(context.Background(), inboundEmail())
	require.True(t, ok)

	require.Len(t, f.intents.created, 2)
	assert.Equal(t, "scheduling", f.intents.created[0].Intent)
	assert.Equal(t, "schedule_meeting", f.intents.created[1].Intent)
	assert.Contains(t, f.intents.created[1].Examples, "product demo")
}

func TestReplyToInboundScoringSeesOnlyPriorIntents(t *testing.T) {
	templates := []model.EmailTemplate{
		{ID: 7, Name: "pricing quote", Category: "pricing", IsActive: true},
	}
	f := newFixture(
		classify.Classification{Intents: []string{"pricing"}},
		templates,
		dispatch.Result{Success: true, Service: transport.KindSendGrid, MessageID: "<p@receptionist>"},
	)

	ok := f.orch.ReplyToInbound(context.Background(), inboundEmail())
	require.True(t, ok)

	// 本轮分类出的意图在发送之后才入库；评分阶段读到的只有历史意图，
	// 不会被刚分类的结果自我加权
	assert.Equal(t, []string{"recent", "create"}, f.intents.ops)
}

func TestReplyToInboundNoTemplateStillReplies(t *testing.T) {
	f := newFixture(
		classify.Classification{Intents: []string{"general_inquiry"}},
		nil,
		dispatch.Result{Success: true, Service: transport.KindSendGrid, MessageID: "<x@receptionist>"},
	)

	ok := f.orch.ReplyToInbound(context.Background(), inboundEmail())
	require.True(t, ok)
	assert.Nil(t, f.composer.lastTemplate)
	assert.Empty(t, f.templates.touched)
}

func TestProcessIncomingSkipsAutomatedReplies(t *testing.T) {
	f := newFixture(classify.Classification{}, nil, dispatch.Result{})

	// 带回环标记的邮件在进入任何存储之前被拦下（大小写不敏感）
	id, accepted, err := f.orch.ProcessIncoming(context.Background(), 7, IncomingEmail{
		From:    "other-bot@example.com",
		Subject: "Re: Re: your message",
		Headers: map[string]string{"x-ai-receptionist": "true"},
	})
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Zero(t, id)
	assert.Contains(t, f.activities.events, model.ActivityEmailLoopSkipped)
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: hello", replySubject("hello"))
	assert.Equal(t, "Re: hello", replySubject("Re: hello"))
	assert.Equal(t, "RE: hello", replySubject("RE: hello"))
	assert.Equal(t, "Re: your message", replySubject("  "))
}
