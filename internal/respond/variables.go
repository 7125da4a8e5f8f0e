package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"receptionist/internal/classify"
	"receptionist/internal/llm"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// ParsePlaceholders returns the placeholder names found in a template body,
// deduplicated, in order of first appearance.
func ParsePlaceholders(body string) []string {
	seen := map[string]bool{}
	names := []string{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

const extractSystemPrompt = `You extract values for email template placeholders.
Given placeholder names and an inbound email, respond with strict JSON mapping
each name to a string value, or null when the email does not contain it.
Respond with the JSON object only.`

// Extractor asks the LLM to resolve placeholder values from an inbound
// email. It never fails: on any transport or parse error it returns an
// empty map and lets the default pass take over.
type Extractor struct {
	llm    llm.ChatClient
	logger *zap.Logger
}

func NewExtractor(client llm.ChatClient, logger *zap.Logger) *Extractor {
	return &Extractor{llm: client, logger: logger}
}

// Extract returns a partial name→value map. Names whose extracted value is
// null or absent stay unresolved.
func (e *Extractor) Extract(ctx context.Context, names []string, email classify.EmailContent) map[string]string {
	if len(names) == 0 {
		return map[string]string{}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: extractSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Placeholders: %s\n\nFrom: %s\nSubject: %s\n\n%s",
			strings.Join(names, ", "), email.From, email.Subject, email.Body,
		)},
	}

	content, err := e.llm.CreateChatCompletion(ctx, messages, true)
	if err != nil {
		e.logger.Warn("Variable extraction call failed", zap.Error(err))
		return map[string]string{}
	}

	var raw map[string]*string
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		e.logger.Warn("Variable extraction returned malformed JSON", zap.Error(err))
		return map[string]string{}
	}

	values := map[string]string{}
	for _, name := range names {
		if v, ok := raw[name]; ok && v != nil && *v != "" {
			values[name] = *v
		}
	}
	return values
}

// ApplyDefaults fills every still-unresolved placeholder with a keyword
// default. This pass runs unconditionally after extraction as a safety net
// against partial LLM output.
func ApplyDefaults(values map[string]string, names []string, now time.Time) map[string]string {
	for _, name := range names {
		if _, ok := values[name]; ok {
			continue
		}
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "name"):
			values[name] = "valued customer"
		case strings.Contains(lower, "date"):
			values[name] = now.Format("January 2, 2006")
		case strings.Contains(lower, "time"):
			values[name] = now.Format("3:04 PM")
		default:
			values[name] = ""
		}
	}
	return values
}

// Substitute replaces {{name}} tokens with their resolved values.
// Unknown tokens are left in place rather than erroring.
func Substitute(body string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return token
	})
}
