package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"receptionist/internal/config"
	"receptionist/internal/inbox"
	"receptionist/internal/model"
	"receptionist/internal/process"
	"receptionist/pkg/util"
)

type fakeSource struct {
	emails []inbox.InboundEmail
	err    error
	calls  int
}

func (f *fakeSource) FetchUnread(ctx context.Context, limit int) ([]inbox.InboundEmail, error) {
	f.calls++
	return f.emails, f.err
}

type fakeIngestor struct {
	ingested []process.IncomingEmail
	err      error
}

func (f *fakeIngestor) ProcessIncoming(ctx context.Context, userID int64, in process.IncomingEmail) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	f.ingested = append(f.ingested, in)
	return int64(len(f.ingested)), true, nil
}

type fakeProcessor struct {
	processed []int64
	ok        bool
}

func (f *fakeProcessor) ReplyToInbound(ctx context.Context, email *model.EmailMessage) bool {
	f.processed = append(f.processed, email.ID)
	return f.ok
}

type fakeUnreplied struct {
	emails []model.EmailMessage
	marked map[int64]string
}

func (f *fakeUnreplied) GetUnrepliedEmails(ctx context.Context, limit int) ([]model.EmailMessage, error) {
	return f.emails, nil
}

func (f *fakeUnreplied) MarkReplied(ctx context.Context, id int64, replyMessageID string) error {
	if f.marked == nil {
		f.marked = map[int64]string{}
	}
	f.marked[id] = replyMessageID
	return nil
}

type fakeReplyLookup struct {
	replies map[int64]*model.EmailReply
}

func (f *fakeReplyLookup) GetByOriginalEmailID(ctx context.Context, originalEmailID int64) (*model.EmailReply, error) {
	return f.replies[originalEmailID], nil
}

type fakeActivities struct {
	events []string
}

func (f *fakeActivities) CreateSystemActivity(ctx context.Context, module, event, status string, details any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeActivities) count(event string) int {
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

// testDeduper points at an unreachable redis; the deduper allows processing
// when redis is down, which is exactly what these tests want.
func testDeduper() *util.Deduper {
	return util.NewDeduper(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond}), time.Minute)
}

type fakeDeduper struct {
	released []string
}

func (f *fakeDeduper) AcquireOnceKey(ctx context.Context, handler, id string) bool { return true }

func (f *fakeDeduper) ReleaseKey(ctx context.Context, handler, id string) {
	f.released = append(f.released, id)
}

func newTestScheduler(source inbox.Source, ingestor Ingestor, processor Processor, emails UnrepliedStore, replies ReplyLookup) (*Scheduler, *fakeActivities) {
	activities := &fakeActivities{}
	s := New(
		config.SchedulerConfig{SyncIntervalSec: 60, SweepIntervalSec: 120, StatusIntervalSec: 600},
		source,
		ingestor,
		processor,
		emails,
		replies,
		activities,
		testDeduper(),
		zap.NewNop(),
	)
	return s, activities
}

func TestSyncOnceIngestsBatch(t *testing.T) {
	source := &fakeSource{emails: []inbox.InboundEmail{
		{UserID: 1, From: "a@x.com", Subject: "one"},
		{UserID: 1, From: "b@x.com", Subject: "two"},
	}}
	ingestor := &fakeIngestor{}
	s, activities := newTestScheduler(source, ingestor, &fakeProcessor{}, &fakeUnreplied{}, &fakeReplyLookup{})

	s.SyncOnce(context.Background())

	assert.Len(t, ingestor.ingested, 2)
	assert.Equal(t, 1, activities.count(model.ActivityScheduledEmailSync))
	assert.Zero(t, s.consecutiveFailures)
}

func TestSyncOnceSkipsWhenPreviousStillRunning(t *testing.T) {
	source := &fakeSource{}
	s, _ := newTestScheduler(source, &fakeIngestor{}, &fakeProcessor{}, &fakeUnreplied{}, &fakeReplyLookup{})

	// 模拟上一轮还没结束
	s.syncRunning.Store(true)
	s.SyncOnce(context.Background())

	// 本轮直接放弃，不触碰邮箱源；标志位保持由上一轮持有
	assert.Zero(t, source.calls)
	assert.True(t, s.syncRunning.Load())

	// 上一轮结束后恢复正常
	s.syncRunning.Store(false)
	s.SyncOnce(context.Background())
	assert.Equal(t, 1, source.calls)
}

func TestSyncFailureEscalatesToCriticalAtThreshold(t *testing.T) {
	source := &fakeSource{err: errors.New("imap unreachable")}
	s, activities := newTestScheduler(source, &fakeIngestor{}, &fakeProcessor{}, &fakeUnreplied{}, &fakeReplyLookup{})

	for i := 0; i < 7; i++ {
		s.SyncOnce(context.Background())
	}

	// 每次失败都记一条错误活动；critical 只在恰好到达阈值时记一次
	assert.Equal(t, 7, activities.count(model.ActivityScheduledEmailSyncErr))
	assert.Equal(t, 1, activities.count(model.ActivitySyncCriticalFailure))
	// 循环不停止，计数继续增长
	assert.Equal(t, 7, s.consecutiveFailures)
	assert.Equal(t, 7, source.calls)
}

func TestSyncRecoveryResetsFailureCount(t *testing.T) {
	source := &fakeSource{err: errors.New("down")}
	s, _ := newTestScheduler(source, &fakeIngestor{}, &fakeProcessor{}, &fakeUnreplied{}, &fakeReplyLookup{})

	s.SyncOnce(context.Background())
	s.SyncOnce(context.Background())
	require.Equal(t, 2, s.consecutiveFailures)

	source.err = nil
	s.SyncOnce(context.Background())
	assert.Zero(t, s.consecutiveFailures)
}

func TestSyncOnceIsolatesPerMessageFailures(t *testing.T) {
	source := &fakeSource{emails: []inbox.InboundEmail{
		{UserID: 1, Subject: "one"},
		{UserID: 1, Subject: "two"},
	}}
	ingestor := &fakeIngestor{err: errors.New("insert failed")}
	s, _ := newTestScheduler(source, ingestor, &fakeProcessor{}, &fakeUnreplied{}, &fakeReplyLookup{})

	s.SyncOnce(context.Background())

	// 单封入库失败不算同步失败，循环状态保持健康
	assert.Zero(t, s.consecutiveFailures)
}

func TestSyncOnceReleasesDedupClaimOnIngestFailure(t *testing.T) {
	source := &fakeSource{emails: []inbox.InboundEmail{
		{UserID: 1, Subject: "one", MessageID: "<m1@provider>"},
	}}
	ingestor := &fakeIngestor{err: errors.New("insert failed")}
	deduper := &fakeDeduper{}
	s := New(
		config.SchedulerConfig{SyncIntervalSec: 60, SweepIntervalSec: 120, StatusIntervalSec: 600},
		source,
		ingestor,
		&fakeProcessor{},
		&fakeUnreplied{},
		&fakeReplyLookup{},
		&fakeActivities{},
		deduper,
		zap.NewNop(),
	)

	s.SyncOnce(context.Background())

	// 入库失败的邮件要释放去重占位，下一轮同步还能重新拉到它
	assert.Equal(t, []string{"<m1@provider>"}, deduper.released)
}

func TestSweepOnceRelinksExistingReplyWithoutResend(t *testing.T) {
	emails := &fakeUnreplied{emails: []model.EmailMessage{
		{ID: 1, UserID: 7, Status: model.EmailStatusReceived},
		{ID: 2, UserID: 7, Status: model.EmailStatusReceived},
	}}
	replies := &fakeReplyLookup{replies: map[int64]*model.EmailReply{
		1: {OriginalEmailID: 1, ReplyStatus: model.ReplyStatusSent, MessageID: "<old@receptionist>"},
	}}
	processor := &fakeProcessor{ok: true}
	s, _ := newTestScheduler(&fakeSource{}, &fakeIngestor{}, processor, emails, replies)

	s.SweepOnce(context.Background())

	// 已有已发送回复的邮件只补标记，绝不重发
	assert.Equal(t, "<old@receptionist>", emails.marked[1])
	assert.Equal(t, []int64{2}, processor.processed)
}

func TestSweepOnceFailedReplyIsRetried(t *testing.T) {
	emails := &fakeUnreplied{emails: []model.EmailMessage{
		{ID: 3, UserID: 7, Status: model.EmailStatusReceived},
	}}
	replies := &fakeReplyLookup{replies: map[int64]*model.EmailReply{
		3: {OriginalEmailID: 3, ReplyStatus: model.ReplyStatusFailed},
	}}
	processor := &fakeProcessor{ok: true}
	s, _ := newTestScheduler(&fakeSource{}, &fakeIngestor{}, processor, emails, replies)

	s.SweepOnce(context.Background())

	// 上次发送失败的邮件要重新走回复管道
	assert.Equal(t, []int64{3}, processor.processed)
	assert.Empty(t, emails.marked)
}

func TestSweepOnceSkipsWhenPreviousStillRunning(t *testing.T) {
	emails := &fakeUnreplied{emails: []model.EmailMessage{{ID: 1}}}
	processor := &fakeProcessor{ok: true}
	s, _ := newTestScheduler(&fakeSource{}, &fakeIngestor{}, processor, emails, &fakeReplyLookup{})

	s.sweepRunning.Store(true)
	s.SweepOnce(context.Background())
	assert.Empty(t, processor.processed)
}
