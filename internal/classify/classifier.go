package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"receptionist/internal/llm"
)

// Classification is the typed result of intent classification.
type Classification struct {
	Intents               []string        `json:"intents"`
	ShouldScheduleMeeting bool            `json:"should_schedule_meeting"`
	MeetingDetails        *MeetingDetails `json:"meeting_details,omitempty"`
}

type MeetingDetails struct {
	Topic        string `json:"topic,omitempty"`
	ProposedTime string `json:"proposed_time,omitempty"`
	Attendee     string `json:"attendee,omitempty"`
}

// EmailContent is the inbound email view the classifier and composer consume.
type EmailContent struct {
	From    string
	To      string
	Subject string
	Body    string
}

const classifySystemPrompt = `You are an email intent classifier for a business receptionist.
Given an inbound email, respond with strict JSON only:
{"intents": ["..."], "should_schedule_meeting": true|false, "meeting_details": {"topic": "...", "proposed_time": "...", "attendee": "..."}}
Use short snake_case intent labels such as "pricing", "support_request", "general_inquiry".
Set should_schedule_meeting only when the sender asks to meet, call, or book time.
Omit meeting_details unless should_schedule_meeting is true.`

// Classifier turns an inbound email into a list of intents plus a
// meeting-detection flag. Parse failures never propagate: the caller
// always gets a usable Classification.
type Classifier struct {
	llm    llm.ChatClient
	logger *zap.Logger
}

func NewClassifier(client llm.ChatClient, logger *zap.Logger) *Classifier {
	return &Classifier{llm: client, logger: logger}
}

// fallback 是解析失败时的保守分类：只标记为一般咨询，不触发会议
func fallback() Classification {
	return Classification{
		Intents:               []string{"general_inquiry"},
		ShouldScheduleMeeting: false,
	}
}

// Classify runs one JSON-mode completion and decodes it strictly.
// Any transport or decode failure degrades to the generic-intent fallback.
func (c *Classifier) Classify(ctx context.Context, email EmailContent) Classification {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: classifySystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"From: %s\nSubject: %s\n\n%s", email.From, email.Subject, email.Body,
		)},
	}

	content, err := c.llm.CreateChatCompletion(ctx, messages, true)
	if err != nil {
		c.logger.Warn("Intent classification call failed, using fallback",
			zap.String("from", email.From),
			zap.Error(err),
		)
		return fallback()
	}

	result, err := decode(content)
	if err != nil {
		c.logger.Warn("Intent classification returned malformed JSON, using fallback",
			zap.String("from", email.From),
			zap.Error(err),
		)
		return fallback()
	}

	return result
}

// decode parses the model output into a Classification. It tries the raw
// text first, then once more with markdown code fences stripped; anything
// else is a parse error (no further string surgery).
func decode(content string) (Classification, error) {
	var result Classification

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return normalize(result), nil
	}

	cleaned := stripCodeFence(content)
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return Classification{}, err
	}
	return normalize(result), nil
}

func normalize(c Classification) Classification {
	if len(c.Intents) == 0 {
		c.Intents = []string{"general_inquiry"}
	}
	for i, intent := range c.Intents {
		c.Intents[i] = strings.ToLower(strings.TrimSpace(intent))
	}
	if !c.ShouldScheduleMeeting {
		c.MeetingDetails = nil
	}
	return c
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
