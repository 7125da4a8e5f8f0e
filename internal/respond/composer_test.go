package respond

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"receptionist/internal/classify"
	"receptionist/internal/llm"
	"receptionist/internal/model"
)

// scriptedLLM returns queued responses in order, then errors.
type scriptedLLM struct {
	responses []string
	errs      []error
	call      int
}

func (s *scriptedLLM) CreateChatCompletion(ctx context.Context, messages []llm.Message, wantJSON bool) (string, error) {
	i := s.call
	s.call++
	if i >= len(s.responses) {
		return "", errors.New("no scripted response")
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.responses[i], err
}

func TestComposeWithoutTemplateUsesGeneration(t *testing.T) {
	fake := &scriptedLLM{responses: []string{"Thanks for reaching out about pricing."}}
	c := NewComposer(fake, NewExtractor(fake, zap.NewNop()), zap.NewNop())

	got := c.Compose(context.Background(), nil, classify.EmailContent{From: "a@b.com"}, []string{"pricing"})
	assert.Equal(t, "Thanks for reaching out about pricing.", got)
}

func TestComposeWithoutTemplateFallsBackToCanned(t *testing.T) {
	fake := &scriptedLLM{responses: []string{""}, errs: []error{errors.New("provider down")}}
	c := NewComposer(fake, NewExtractor(fake, zap.NewNop()), zap.NewNop())

	got := c.Compose(context.Background(), nil, classify.EmailContent{}, nil)
	assert.Equal(t, FallbackReply, got)
}

func TestComposeFromTemplateSubstitutesAndEnhances(t *testing.T) {
	fake := &scriptedLLM{responses: []string{
		`{"customer_name": "Alice"}`,
		"Hi Alice, thanks for writing! We received your message.",
	}}
	c := NewComposer(fake, NewExtractor(fake, zap.NewNop()), zap.NewNop())

	tmpl := template("Dear {{customer_name}}, we received your message.")
	got := c.Compose(context.Background(), tmpl, classify.EmailContent{From: "alice@b.com"}, []string{"general_inquiry"})
	assert.Equal(t, "Hi Alice, thanks for writing! We received your message.", got)
}

func TestComposeFromTemplateEnhancementFailureKeepsDraft(t *testing.T) {
	// 第一次调用是变量抽取，第二次润色失败
	fake := &scriptedLLM{
		responses: []string{`{"customer_name": "Alice"}`, ""},
		errs:      []error{nil, errors.New("provider down")},
	}
	c := NewComposer(fake, NewExtractor(fake, zap.NewNop()), zap.NewNop())

	tmpl := template("Dear {{customer_name}}, we received your message.")
	got := c.Compose(context.Background(), tmpl, classify.EmailContent{}, nil)
	assert.Equal(t, "Dear Alice, we received your message.", got)
}

func TestComposeFromTemplateTotalFailureStillProducesReply(t *testing.T) {
	// 抽取和润色都失败：默认值兜底，草稿原样返回，绝不返回空串
	fake := &scriptedLLM{
		responses: []string{"", ""},
		errs:      []error{errors.New("down"), errors.New("down")},
	}
	c := NewComposer(fake, NewExtractor(fake, zap.NewNop()), zap.NewNop())

	tmpl := template("Dear {{customer_name}}, thanks for contacting us.")
	got := c.Compose(context.Background(), tmpl, classify.EmailContent{}, nil)
	assert.Equal(t, "Dear valued customer, thanks for contacting us.", got)
	assert.NotEqual(t, "", strings.TrimSpace(got))
}

func template(body string) *model.EmailTemplate {
	return &model.EmailTemplate{Body: body}
}
