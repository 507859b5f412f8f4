package summarize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/digest"
)

func TestClampSummary(t *testing.T) {
	t.Parallel()

	short := ClampSummary("太短。")
	if n := len([]rune(short)); n < 40 {
		t.Fatalf("short summary padded to %d runes, want >= 40", n)
	}

	long := ClampSummary(strings.Repeat("这是一个很长的句子", 30))
	if n := len([]rune(long)); n > 121 {
		t.Fatalf("long summary clamped to %d runes", n)
	}
	if !strings.HasSuffix(long, "。") {
		t.Fatalf("clamped summary should end with a full stop: %q", long)
	}

	empty := ClampSummary("")
	if n := len([]rune(empty)); n < 40 {
		t.Fatalf("empty summary replaced with %d runes", n)
	}
}

func TestInferTags(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want string
	}{
		{"CPUC approves new robotaxi permit", "监管"},
		{"公司完成新一轮融资", "融资"},
		{"Waymo launches in a new city", "扩张"},
		{"双方签署合作协议", "合作"},
		{"调查自动驾驶事故原因", "安全"},
		{"nothing matches here", "运营"},
	}
	for _, tc := range cases {
		tags := InferTags(tc.text)
		if len(tags) == 0 || tags[0] != tc.want {
			t.Fatalf("InferTags(%q) = %v, want first %q", tc.text, tags, tc.want)
		}
	}

	many := InferTags("监管部门批准融资用于扩张和合作")
	if len(many) > 3 {
		t.Fatalf("tags capped at 3, got %v", many)
	}
}

func TestFilterTags(t *testing.T) {
	t.Parallel()

	got := FilterTags([]string{"监管", "自创标签", "融资", "扩张", "合作"})
	if len(got) != 3 {
		t.Fatalf("FilterTags = %v, want 3 entries", got)
	}
	for _, tag := range got {
		if tag == "自创标签" {
			t.Fatalf("unknown tag survived: %v", got)
		}
	}
}

func TestFallback(t *testing.T) {
	t.Parallel()

	zh := Fallback("百度萝卜快跑落地武汉", "萝卜快跑宣布在武汉扩大全无人驾驶运营范围，新增多个城区与机场线路，同时下调起步价格以吸引更多乘客。")
	if zh.Confidence != 0.55 {
		t.Fatalf("Confidence = %v", zh.Confidence)
	}
	if n := len([]rune(zh.SummaryZH)); n < 40 || n > 121 {
		t.Fatalf("summary length = %d", n)
	}
	if len(zh.Tags) == 0 {
		t.Fatalf("fallback must carry tags")
	}

	en := Fallback("Waymo expands robotaxi service", "Waymo said it will expand.")
	if !strings.Contains(en.SummaryZH, "Waymo expands robotaxi service") {
		t.Fatalf("english fallback should cite the title: %q", en.SummaryZH)
	}
}

func TestParseJSONObject(t *testing.T) {
	t.Parallel()

	var s Summary
	text := "```json\n{\"title_zh\":\"标题\",\"summary_zh\":\"摘要\",\"tags\":[\"监管\"],\"confidence\":0.8}\n```"
	if err := ParseJSONObject(text, &s); err != nil {
		t.Fatalf("ParseJSONObject: %v", err)
	}
	if s.TitleZH != "标题" || s.Confidence != 0.8 {
		t.Fatalf("parsed = %+v", s)
	}

	if err := ParseJSONObject("no object here", &s); err == nil {
		t.Fatalf("missing object must fail")
	}
}

type stubProvider struct {
	calls int
	fail  bool
}

func (p *stubProvider) Summarize(_ context.Context, title, _ string) (Summary, error) {
	p.calls++
	if p.fail {
		return Summary{}, errors.New("model unavailable")
	}
	return Summary{
		TitleZH:    "译名：" + title,
		SummaryZH:  ClampSummary("模型生成的摘要内容，覆盖关键进展。"),
		Tags:       []string{"运营"},
		Confidence: 0.8,
	}, nil
}

func testItems(n int) []digest.Item {
	items := make([]digest.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, digest.Item{
			ID:          fmt.Sprintf("item-%d", i),
			SourceID:    "waymo_blog",
			Region:      digest.RegionForeign,
			Title:       fmt.Sprintf("Waymo update %d", i),
			Snippet:     "Waymo expands robotaxi operations.",
			URL:         fmt.Sprintf("https://example.com/%d", i),
			Fingerprint: fmt.Sprintf("fp-%d", i),
		})
	}
	return items
}

func TestRunWithProvider(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{}
	cache := LoadCache(filepath.Join(t.TempDir(), "cache.json"))
	service := NewService(provider, cache, 0, zerolog.Nop())

	briefs, fails := service.Run(context.Background(), testItems(3))
	if fails != 0 || len(briefs) != 3 {
		t.Fatalf("briefs = %d, fails = %d", len(briefs), fails)
	}
	if provider.calls != 3 {
		t.Fatalf("provider calls = %d", provider.calls)
	}
	if briefs[0].CompanyID != "other" {
		t.Fatalf("CompanyID = %q, want other fallback", briefs[0].CompanyID)
	}

	// Second run hits the cache, no new provider calls.
	briefs2, _ := service.Run(context.Background(), testItems(3))
	if provider.calls != 3 {
		t.Fatalf("cache miss on second run, calls = %d", provider.calls)
	}
	if briefs2[0].TitleZH != briefs[0].TitleZH {
		t.Fatalf("cached brief differs")
	}
}

func TestRunProviderFailureFallsBack(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{fail: true}
	cache := LoadCache(filepath.Join(t.TempDir(), "cache.json"))
	service := NewService(provider, cache, 0, zerolog.Nop())

	briefs, fails := service.Run(context.Background(), testItems(2))
	if fails != 2 {
		t.Fatalf("fails = %d, want 2", fails)
	}
	if len(briefs) != 2 {
		t.Fatalf("failures must still yield briefs, got %d", len(briefs))
	}
	for _, brief := range briefs {
		if brief.Confidence != 0.55 {
			t.Fatalf("fallback confidence = %v", brief.Confidence)
		}
	}
}

func TestRunMaxCalls(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{}
	cache := LoadCache(filepath.Join(t.TempDir(), "cache.json"))
	service := NewService(provider, cache, 2, zerolog.Nop())

	briefs, _ := service.Run(context.Background(), testItems(5))
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.calls)
	}
	if len(briefs) != 5 {
		t.Fatalf("briefs = %d, want 5", len(briefs))
	}
}

func TestRunNilProvider(t *testing.T) {
	t.Parallel()

	cache := LoadCache(filepath.Join(t.TempDir(), "cache.json"))
	service := NewService(nil, cache, 0, zerolog.Nop())

	briefs, fails := service.Run(context.Background(), testItems(2))
	if fails != 0 || len(briefs) != 2 {
		t.Fatalf("briefs = %d, fails = %d", len(briefs), fails)
	}
}
