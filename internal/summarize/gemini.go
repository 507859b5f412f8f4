package summarize

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiContentMaxRunes = 1200

// GeminiProvider summarizes via the Gemini API with a strict-JSON prompt.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func (p *GeminiProvider) Summarize(ctx context.Context, title, content string) (Summary, error) {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) > geminiContentMaxRunes {
		content = clipRunes(content, geminiContentMaxRunes)
	}

	prompt := fmt.Sprintf(
		"请将以下自动驾驶新闻整理成中文简报。"+
			"严格返回JSON对象，格式为"+
			`{"title_zh":"...","summary_zh":"...","tags":["监管"],"confidence":0.0}。`+
			"summary_zh限制为2句、40到120字，tags仅可从[监管,融资,扩张,合作,安全,产品,运营]中选择1-3个。"+
			"\n\n标题: %s\n内容: %s",
		title, content,
	)

	model := p.client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Summary{}, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Summary{}, fmt.Errorf("empty gemini response")
	}

	text := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	var parsed struct {
		TitleZH    string   `json:"title_zh"`
		SummaryZH  string   `json:"summary_zh"`
		Tags       []string `json:"tags"`
		Confidence float64  `json:"confidence"`
	}
	if err := ParseJSONObject(text, &parsed); err != nil {
		return Summary{}, fmt.Errorf("parse gemini response: %w", err)
	}

	out := Summary{
		TitleZH:    strings.TrimSpace(parsed.TitleZH),
		SummaryZH:  ClampSummary(parsed.SummaryZH),
		Tags:       FilterTags(parsed.Tags),
		Confidence: parsed.Confidence,
	}
	if out.TitleZH == "" {
		out.TitleZH = title
	}
	if len(out.Tags) == 0 {
		out.Tags = InferTags(title + " " + content)
	}
	if out.Confidence <= 0 || out.Confidence > 1 {
		out.Confidence = defaultConfidence
	}
	return out, nil
}
