package respond

import (
	"sort"
	"strings"

	"receptionist/internal/classify"
	"receptionist/internal/model"
)

// Scoring weights. These are a fixed heuristic, not a learned ranker;
// the exact values and the strictly-positive cutoff are load-bearing.
const (
	weightCategoryMatch    = 10.0
	weightNameMatch        = 5.0
	weightDescriptionMatch = 4.0
	weightSubjectWord      = 2.0
	weightActive           = 3.0
	weightRecentIntent     = 2.0
	penaltyPerVariable     = 0.5
	minSubjectWordLen      = 4
)

// ScoreTemplate computes the relevance score of one template against the
// classified intents, the inbound email, and the user's recent intents.
func ScoreTemplate(t model.EmailTemplate, intents []string, email classify.EmailContent, recent []model.Intent) float64 {
	score := 0.0

	category := strings.ToLower(t.Category)
	name := strings.ToLower(t.Name)

	// 类别精确命中只计一次
	for _, intent := range intents {
		if category == strings.ToLower(intent) {
			score += weightCategoryMatch
			break
		}
	}

	// 名称/描述的子串命中可以叠加
	for _, intent := range intents {
		li := strings.ToLower(intent)
		if li == "" {
			continue
		}
		if strings.Contains(name, li) {
			score += weightNameMatch
		}
		if t.Description != nil && strings.Contains(strings.ToLower(*t.Description), li) {
			score += weightDescriptionMatch
		}
	}

	// 主题词命中：只统计长度超过3的词
	templSubject := strings.ToLower(t.Subject)
	for _, word := range strings.Fields(strings.ToLower(email.Subject)) {
		word = strings.Trim(word, ".,!?:;\"'()")
		if len(word) < minSubjectWordLen {
			continue
		}
		if strings.Contains(templSubject, word) {
			score += weightSubjectWord
		}
	}

	if t.IsActive {
		score += weightActive
	}

	for _, in := range recent {
		if strings.EqualFold(in.Intent, t.Category) {
			score += weightRecentIntent
			break
		}
	}

	// 复杂度惩罚：每个占位符扣 0.5 分，可能导致总分为负
	score -= penaltyPerVariable * float64(countVariables(t.Variables))

	return score
}

// SelectTemplate returns the best-scoring template, or nil when no template
// scores strictly above zero. Ties break by input order (stable sort), so
// callers must preserve enumeration order for determinism.
func SelectTemplate(templates []model.EmailTemplate, intents []string, email classify.EmailContent, recent []model.Intent) *model.EmailTemplate {
	if len(templates) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}

	ranked := make([]scored, 0, len(templates))
	for i, t := range templates {
		ranked = append(ranked, scored{idx: i, score: ScoreTemplate(t, intents, email, recent)})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	if ranked[0].score <= 0 {
		return nil
	}

	best := templates[ranked[0].idx]
	return &best
}

// countVariables counts the comma-separated placeholder names declared in
// the template's variables spec.
func countVariables(spec string) int {
	if strings.TrimSpace(spec) == "" {
		return 0
	}
	n := 0
	for _, part := range strings.Split(spec, ",") {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}
