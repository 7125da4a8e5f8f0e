package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"receptionist/internal/llm"
)

type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) CreateChatCompletion(ctx context.Context, messages []llm.Message, wantJSON bool) (string, error) {
	return f.content, f.err
}

func TestClassifyParsesStrictJSON(t *testing.T) {
	c := NewClassifier(&fakeLLM{content: `{"intents": ["Pricing", " SUPPORT_REQUEST "], "should_schedule_meeting": true, "meeting_details": {"topic": "demo"}}`}, zap.NewNop())

	got := c.Classify(context.Background(), EmailContent{})
	assert.Equal(t, []string{"pricing", "support_request"}, got.Intents)
	assert.True(t, got.ShouldScheduleMeeting)
	assert.Equal(t, "demo", got.MeetingDetails.Topic)
}

func TestClassifyStripsCodeFence(t *testing.T) {
	fenced := "```json\n{\"intents\": [\"pricing\"], \"should_schedule_meeting\": false}\n```"
	c := NewClassifier(&fakeLLM{content: fenced}, zap.NewNop())

	got := c.Classify(context.Background(), EmailContent{})
	assert.Equal(t, []string{"pricing"}, got.Intents)
}

func TestClassifyMalformedJSONFallsBack(t *testing.T) {
	c := NewClassifier(&fakeLLM{content: "I think the intents are pricing and support"}, zap.NewNop())

	got := c.Classify(context.Background(), EmailContent{})
	assert.Equal(t, []string{"general_inquiry"}, got.Intents)
	assert.False(t, got.ShouldScheduleMeeting)
	assert.Nil(t, got.MeetingDetails)
}

func TestClassifyTransportErrorFallsBack(t *testing.T) {
	c := NewClassifier(&fakeLLM{err: errors.New("provider down")}, zap.NewNop())

	got := c.Classify(context.Background(), EmailContent{})
	assert.Equal(t, []string{"general_inquiry"}, got.Intents)
	assert.False(t, got.ShouldScheduleMeeting)
}

func TestNormalizeClearsMeetingDetailsWhenFlagFalse(t *testing.T) {
	got := normalize(Classification{
		Intents:        []string{"Pricing"},
		MeetingDetails: &MeetingDetails{Topic: "stale"},
	})
	assert.Nil(t, got.MeetingDetails)
	assert.Equal(t, []string{"pricing"}, got.Intents)
}

func TestNormalizeEmptyIntents(t *testing.T) {
	got := normalize(Classification{})
	assert.Equal(t, []string{"general_inquiry"}, got.Intents)
}
