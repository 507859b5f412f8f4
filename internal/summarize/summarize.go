// Package summarize turns filtered items into Chinese brief records, using
// a Gemini provider with a deterministic fallback and a fingerprint-keyed
// cache so re-runs of the same day do not re-pay model calls.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/digest"
)

// AllowedTags is the closed tag vocabulary briefs may carry.
var AllowedTags = []string{"监管", "融资", "扩张", "合作", "安全", "产品", "运营"}

const (
	summaryMinRunes = 40
	summaryMaxRunes = 120

	fallbackConfidence = 0.55
	defaultConfidence  = 0.72
)

// Summary is one provider result.
type Summary struct {
	TitleZH    string   `json:"title_zh"`
	SummaryZH  string   `json:"summary_zh"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// Provider produces a Chinese summary for one item.
type Provider interface {
	Summarize(ctx context.Context, title, content string) (Summary, error)
}

type Service struct {
	provider Provider
	cache    *Cache
	maxCalls int
	logger   zerolog.Logger
}

// NewService wires a provider and cache. provider may be nil, in which case
// every item takes the fallback path. maxCalls <= 0 means unlimited.
func NewService(provider Provider, cache *Cache, maxCalls int, logger zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		cache:    cache,
		maxCalls: maxCalls,
		logger:   logger.With().Str("component", "summarize").Logger(),
	}
}

// Run summarizes the filtered survivors in order. It returns the briefs and
// the number of provider failures that fell back to the local summary.
func (s *Service) Run(ctx context.Context, items []digest.Item) ([]digest.Brief, int) {
	failCount := 0
	calls := 0

	briefs := make([]digest.Brief, 0, len(items))
	for _, item := range items {
		var summary Summary
		cached, hit := s.cache.Get(item.Fingerprint)
		switch {
		case hit:
			summary = cached
		case s.provider != nil && (s.maxCalls <= 0 || calls < s.maxCalls):
			calls++
			var err error
			summary, err = s.provider.Summarize(ctx, item.Title, item.Snippet)
			if err != nil {
				failCount++
				s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("summary provider failed, using fallback")
				summary = Fallback(item.Title, item.Snippet)
			}
			s.cache.Put(item.Fingerprint, summary)
		default:
			summary = Fallback(item.Title, item.Snippet)
			s.cache.Put(item.Fingerprint, summary)
		}

		companyID := item.CompanyHint
		if companyID == "" {
			companyID = "other"
		}
		briefs = append(briefs, digest.Brief{
			ID:          item.ID,
			SourceID:    item.SourceID,
			SourceName:  item.SourceName,
			Region:      item.Region,
			CompanyID:   companyID,
			TitleZH:     summary.TitleZH,
			SummaryZH:   summary.SummaryZH,
			URL:         item.URL,
			PublishedAt: item.PublishedAt,
			Tags:        summary.Tags,
			Confidence:  summary.Confidence,
		})
	}

	s.logger.Info().
		Int("items", len(items)).
		Int("provider_calls", calls).
		Int("fallbacks", failCount).
		Msg("summarize complete")

	return briefs, failCount
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// ClampSummary enforces the 40-120 rune summary contract.
func ClampSummary(summary string) string {
	s := whitespacePattern.ReplaceAllString(strings.TrimSpace(summary), " ")
	runes := []rune(s)
	if len(runes) > summaryMaxRunes {
		s = strings.TrimRight(string(runes[:summaryMaxRunes]), "，。,. ") + "。"
	}
	if len([]rune(s)) < summaryMinRunes {
		if s == "" {
			s = "该条资讯与自动驾驶业务推进相关，建议查看原文链接获取完整信息。"
		}
		for len([]rune(s)) < summaryMinRunes {
			s += "详见原文。"
		}
	}
	return s
}

// InferTags derives up to three tags from the item text when the provider
// gives none.
func InferTags(text string) []string {
	low := strings.ToLower(text)
	mapping := []struct {
		tag      string
		patterns []string
	}{
		{"监管", []string{"cpuc", "监管", "工信部", "permit", "regulation", "政策"}},
		{"融资", []string{"融资", "funding", "ipo", "投资", "raise"}},
		{"扩张", []string{"扩张", "launch", "new city", "新增", "部署", "扩大"}},
		{"合作", []string{"合作", "partnership", "joint", "alliance", "签约"}},
		{"安全", []string{"事故", "safety", "collision", "召回", "安全"}},
		{"产品", []string{"产品", "发布", "platform", "feature", "版本"}},
		{"运营", []string{"运营", "ride", "订单", "fleet", "商业化"}},
	}

	var tags []string
	for _, entry := range mapping {
		for _, pattern := range entry.patterns {
			if strings.Contains(low, pattern) {
				tags = append(tags, entry.tag)
				break
			}
		}
		if len(tags) == 3 {
			break
		}
	}
	if len(tags) == 0 {
		tags = []string{"运营"}
	}
	return tags
}

// Fallback builds a deterministic summary without a model call.
func Fallback(title, content string) Summary {
	body := whitespacePattern.ReplaceAllString(strings.TrimSpace(content), " ")

	var summary string
	if containsHan(title + " " + body) {
		snippet := strings.TrimRight(clipRunes(body, 110), "，。,. ")
		if snippet != "" {
			summary = snippet + "。"
		} else {
			summary = fmt.Sprintf("该资讯聚焦于%s，包含自动驾驶行业的重要进展。", title)
		}
	} else {
		summary = fmt.Sprintf("该资讯聚焦于%s，涉及自动驾驶业务进展、运营策略或监管动向，建议结合原文判断其行业影响。", title)
	}

	return Summary{
		TitleZH:    title,
		SummaryZH:  ClampSummary(summary),
		Tags:       InferTags(title + " " + content),
		Confidence: fallbackConfidence,
	}
}

// FilterTags keeps only allowed tags, capped at three.
func FilterTags(raw []string) []string {
	var out []string
	for _, tag := range raw {
		t := strings.TrimSpace(tag)
		for _, allowed := range AllowedTags {
			if t == allowed {
				out = append(out, t)
				break
			}
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

// ParseJSONObject extracts and decodes the first JSON object embedded in
// model output, tolerating surrounding prose or code fences.
func ParseJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no json object found")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func containsHan(text string) bool {
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			return true
		}
	}
	return false
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
