package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"receptionist/contracts/mq"
	"receptionist/internal/model"
	pkgmq "receptionist/pkg/mq"
	"receptionist/pkg/util"
)

type fakeEmails struct {
	byID map[int64]*model.EmailMessage
}

func (f *fakeEmails) FindByID(ctx context.Context, id int64) (*model.EmailMessage, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

type fakeProcessor struct {
	processed []int64
	ok        bool
}

func (f *fakeProcessor) ReplyToInbound(ctx context.Context, email *model.EmailMessage) bool {
	f.processed = append(f.processed, email.ID)
	return f.ok
}

// offlineRedis 不可达：去重器放行，重试计数按首次处理对待
func offlineRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond})
}

func newTestHandler(emails *fakeEmails, processor *fakeProcessor) *EmailReceivedHandler {
	rdb := offlineRedis()
	return NewEmailReceivedHandler(
		emails,
		processor,
		util.NewDeduperWithLogger(rdb, time.Hour, zap.NewNop()),
		util.NewRetryCounter(rdb, time.Hour),
		zap.NewNop(),
	)
}

func payload(emailID int64) json.RawMessage {
	b, _ := json.Marshal(mq.EmailReceivedPayload{EmailID: emailID, UserID: 7, From: "a@x.com"})
	return b
}

func TestHandleMalformedPayloadIsNonRetryable(t *testing.T) {
	h := newTestHandler(&fakeEmails{}, &fakeProcessor{})

	err := h.Handle(context.Background(), json.RawMessage("{not json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgmq.ErrNonRetryable))
}

func TestHandleMissingEmailIsNonRetryable(t *testing.T) {
	h := newTestHandler(&fakeEmails{byID: map[int64]*model.EmailMessage{}}, &fakeProcessor{})

	err := h.Handle(context.Background(), payload(99))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgmq.ErrNonRetryable))
}

func TestHandleAlreadyRepliedSkips(t *testing.T) {
	processor := &fakeProcessor{ok: true}
	h := newTestHandler(&fakeEmails{byID: map[int64]*model.EmailMessage{
		5: {ID: 5, IsReplied: true},
	}}, processor)

	err := h.Handle(context.Background(), payload(5))
	require.NoError(t, err)
	assert.Empty(t, processor.processed)
}

func TestHandleProcessingFailureIsRetryable(t *testing.T) {
	processor := &fakeProcessor{ok: false}
	h := newTestHandler(&fakeEmails{byID: map[int64]*model.EmailMessage{
		5: {ID: 5},
	}}, processor)

	err := h.Handle(context.Background(), payload(5))
	require.Error(t, err)
	// 业务失败要重投，不能进 DLQ
	assert.False(t, errors.Is(err, pkgmq.ErrNonRetryable))
}

func TestHandleSuccess(t *testing.T) {
	processor := &fakeProcessor{ok: true}
	h := newTestHandler(&fakeEmails{byID: map[int64]*model.EmailMessage{
		5: {ID: 5, UserID: 7},
	}}, processor)

	err := h.Handle(context.Background(), payload(5))
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, processor.processed)
}
