package respond

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"receptionist/internal/classify"
	"receptionist/internal/llm"
	"receptionist/internal/model"
)

// FallbackReply is the canned reply used when every generation path fails.
const FallbackReply = "Thank you for your email. We have received your message and will review it shortly. A member of our team will get back to you as soon as possible."

const genericSystemPrompt = `You are a professional AI receptionist replying to inbound business email.
Write a brief, courteous reply that acknowledges the sender's request and, when
appropriate, tells them what happens next. Plain text only, no subject line.`

const enhanceSystemPrompt = `You polish draft email replies. Improve the draft below:
personalize it lightly for the sender, keep the same structure, paragraph count
and meaning, and do not add new commitments. Return only the revised reply text.`

// Composer produces the final reply body. It never fails: every internal
// failure degrades to the canned fallback or the unenhanced draft.
type Composer struct {
	llm       llm.ChatClient
	extractor *Extractor
	logger    *zap.Logger
}

func NewComposer(client llm.ChatClient, extractor *Extractor, logger *zap.Logger) *Composer {
	return &Composer{
		llm:       client,
		extractor: extractor,
		logger:    logger,
	}
}

// Compose returns the reply text for an inbound email. template may be nil,
// in which case the reply is generated from scratch.
func (c *Composer) Compose(ctx context.Context, template *model.EmailTemplate, email classify.EmailContent, intents []string) string {
	if template == nil {
		return c.composeGenerated(ctx, email, intents)
	}
	return c.composeFromTemplate(ctx, template, email)
}

// composeGenerated is the no-template path: one LLM call, canned fallback.
func (c *Composer) composeGenerated(ctx context.Context, email classify.EmailContent, intents []string) string {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: genericSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Detected intents: %s\nFrom: %s\nSubject: %s\n\n%s",
			strings.Join(intents, ", "), email.From, email.Subject, email.Body,
		)},
	}

	content, err := c.llm.CreateChatCompletion(ctx, messages, false)
	if err != nil || strings.TrimSpace(content) == "" {
		c.logger.Warn("Generated reply failed, using canned fallback",
			zap.String("from", email.From),
			zap.Error(err),
		)
		return FallbackReply
	}
	return content
}

// composeFromTemplate substitutes variables into the template, then runs a
// best-effort enhancement pass over the draft.
func (c *Composer) composeFromTemplate(ctx context.Context, template *model.EmailTemplate, email classify.EmailContent) string {
	names := ParsePlaceholders(template.Body)
	values := c.extractor.Extract(ctx, names, email)
	// 兜底默认值：即使抽取全部成功也要跑一遍，防止 LLM 漏字段
	values = ApplyDefaults(values, names, time.Now())
	draft := Substitute(template.Body, values)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: enhanceSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Sender: %s\nSubject: %s\n\nDraft:\n%s", email.From, email.Subject, draft,
		)},
	}

	enhanced, err := c.llm.CreateChatCompletion(ctx, messages, false)
	if err != nil || strings.TrimSpace(enhanced) == "" {
		// 润色失败不致命，直接用替换后的草稿
		c.logger.Debug("Enhancement pass failed, using substituted draft",
			zap.Int64("template_id", template.ID),
			zap.Error(err),
		)
		return draft
	}
	return enhanced
}
