package relevance

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/globaltime"
	"horse.fit/avdigest/internal/sources"
)

var testNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

func testSourcesConfig(mode string) *sources.Config {
	capOn := true
	return &sources.Config{
		Defaults: sources.Defaults{
			RelevanceMode:           mode,
			CoreKeywordsDomestic:    []string{"自动驾驶", "无人驾驶"},
			CoreKeywordsForeign:     []string{"robotaxi", "autonomous vehicle"},
			ContextKeywordsDomestic: []string{"示范运营", "许可"},
			ContextKeywordsForeign:  []string{"permit", "expansion"},
			BrandKeywordsForeign:    []string{"waymo"},
			ExcludeKeywordsForeign:  []string{"hiring"},
			EnableSourceCap:         capOn,
			MaxItemsPerSource:       2,
		},
		Companies: []sources.Company{
			{ID: "waymo", Name: "Waymo"},
		},
		Sources: []sources.Source{
			{ID: "waymo_blog", Name: "Waymo Blog", Region: "foreign", Category: digest.CategoryCompanyNewsroom},
			{ID: "techcrunch", Name: "TechCrunch", Region: "foreign", Category: digest.CategoryGeneralMedia},
			{ID: "miit", Name: "MIIT", Region: "domestic", Category: digest.CategoryRegulator},
		},
	}
}

func testClassifier(t *testing.T, mode string) (*Classifier, *Config) {
	t.Helper()
	srcCfg := testSourcesConfig(mode)
	cfg, err := NewConfig(srcCfg)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return NewClassifier(cfg, srcCfg.ByID(), "2026-08-27", zerolog.Nop()), cfg
}

func publishedAgo(d time.Duration) *time.Time {
	ts := testNow.Add(-d)
	return &ts
}

func scoredItem(id, sourceID, title string, age time.Duration) digest.Item {
	return digest.Item{
		ID:          id,
		SourceID:    sourceID,
		Region:      digest.RegionForeign,
		Title:       title,
		URL:         "https://example.com/news/" + id,
		PublishedAt: publishedAgo(age),
	}
}

func TestRunAccounting(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	items := []digest.Item{
		scoredItem("keep", "waymo_blog", "Waymo robotaxi permit expansion", 72*time.Hour),
		scoredItem("gate", "techcrunch", "Quarterly earnings beat estimates", 72*time.Hour),
		{ID: "nourl", SourceID: "techcrunch", Region: digest.RegionForeign, Title: "No link"},
		scoredItem("old", "techcrunch", "Waymo robotaxi permit", 20*24*time.Hour),
	}

	kept, decisions, _ := classifier.Run(items)
	if len(decisions) != len(items) {
		t.Fatalf("decisions = %d, want %d", len(decisions), len(items))
	}

	byReason := map[string]int{}
	keptCount := 0
	for _, d := range decisions {
		if d.Kept {
			keptCount++
			continue
		}
		byReason[d.Reason]++
	}
	total := keptCount
	for _, n := range byReason {
		total += n
	}
	if total != len(items) {
		t.Fatalf("kept %d + drops %v != input %d", keptCount, byReason, len(items))
	}
	if keptCount != len(kept) {
		t.Fatalf("kept slice disagrees with decisions")
	}
}

func TestHardGateURLExcluded(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	items := []digest.Item{
		{ID: "empty", SourceID: "techcrunch", Region: digest.RegionForeign, Title: "t"},
		{ID: "home", SourceID: "techcrunch", Region: digest.RegionForeign, Title: "t", URL: "https://example.com/"},
	}

	_, decisions, _ := classifier.Run(items)
	for _, d := range decisions {
		if d.Kept || d.Reason != ReasonURLExcluded || d.Stage != StageHard {
			t.Fatalf("decision = %+v", d)
		}
		if d.Score != nil {
			t.Fatalf("hard drops must not carry a score")
		}
	}
}

func TestHardGateURLPatterns(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	srcCfg := testSourcesConfig("balanced")
	srcCfg.Sources = append(srcCfg.Sources, sources.Source{
		ID: "gov", Name: "Gov", Region: "foreign", Category: digest.CategoryRegulator,
		URLAllowPatterns: []string{"/notices/"},
		URLBlockPatterns: []string{"/archive/"},
	})
	cfg, err := NewConfig(srcCfg)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	classifier := NewClassifier(cfg, srcCfg.ByID(), "2026-08-27", zerolog.Nop())

	items := []digest.Item{
		scoredItem("blocked", "gov", "Robotaxi permit notice", 2*time.Hour),
		scoredItem("offlist", "gov", "Robotaxi permit notice", 2*time.Hour),
	}
	items[0].URL = "https://example.gov/archive/2026/notice"
	items[1].URL = "https://example.gov/press/2026/notice"

	_, decisions, _ := classifier.Run(items)
	for _, d := range decisions {
		if d.Kept || d.Reason != ReasonURLExcluded {
			t.Fatalf("decision = %+v", d)
		}
	}
}

func TestHardGatePublishedMissing(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	media := digest.Item{
		ID: "media", SourceID: "techcrunch", Region: digest.RegionForeign,
		Title: "Waymo robotaxi permit expansion",
		URL:   "https://example.com/news/media", PublishedMissing: true,
	}
	regulator := digest.Item{
		ID: "reg", SourceID: "miit", Region: digest.RegionDomestic,
		Title: "自动驾驶示范运营许可公告",
		URL:   "https://example.gov.cn/notice/1", PublishedMissing: true,
	}

	_, decisions, _ := classifier.Run([]digest.Item{media, regulator})
	if decisions[0].Kept || decisions[0].Reason != ReasonPublishedMissing {
		t.Fatalf("media decision = %+v", decisions[0])
	}
	// Regulator items may omit the timestamp and still proceed.
	if !decisions[1].Kept {
		t.Fatalf("regulator decision = %+v", decisions[1])
	}
}

func TestHardGateWindow(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	item := scoredItem("old", "techcrunch", "Waymo robotaxi permit expansion", 11*24*time.Hour)

	_, decisions, _ := classifier.Run([]digest.Item{item})
	if decisions[0].Kept || decisions[0].Reason != ReasonNotToday {
		t.Fatalf("decision = %+v", decisions[0])
	}
}

func TestHardGateSourceMaxAge(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	srcCfg := testSourcesConfig("balanced")
	srcCfg.Sources[1].MaxAgeHours = 24
	cfg, err := NewConfig(srcCfg)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	classifier := NewClassifier(cfg, srcCfg.ByID(), "2026-08-27", zerolog.Nop())

	item := scoredItem("stale", "techcrunch", "Waymo robotaxi permit expansion", 72*time.Hour)
	_, decisions, _ := classifier.Run([]digest.Item{item})
	if decisions[0].Kept || decisions[0].Reason != ReasonSourceMaxAge {
		t.Fatalf("decision = %+v", decisions[0])
	}
}

func TestStrictTodayMode(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	srcCfg := testSourcesConfig("balanced")
	srcCfg.Defaults.StrictTodayMode = true
	cfg, err := NewConfig(srcCfg)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	classifier := NewClassifier(cfg, srcCfg.ByID(), "2026-08-27", zerolog.Nop())

	today := scoredItem("today", "waymo_blog", "Waymo autonomous vehicle update", 60*time.Hour)
	ts := time.Date(2026, 8, 27, 2, 0, 0, 0, time.UTC)
	today.PublishedAt = &ts
	yesterday := scoredItem("yday", "waymo_blog", "Waymo autonomous vehicle update", 60*time.Hour)
	ys := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	yesterday.PublishedAt = &ys

	_, decisions, _ := classifier.Run([]digest.Item{today, yesterday})
	if !decisions[0].Kept {
		t.Fatalf("same Beijing day should pass: %+v", decisions[0])
	}
	if decisions[1].Kept || decisions[1].Reason != ReasonNotToday {
		t.Fatalf("prior day should drop: %+v", decisions[1])
	}
}

func TestFastPass(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "high_precision")
	fresh := scoredItem("fresh", "waymo_blog", "Waymo robotaxi rides open to public", 6*time.Hour)
	stale := scoredItem("stale", "waymo_blog", "Waymo robotaxi rides open to public", 72*time.Hour)

	_, decisions, stats := classifier.Run([]digest.Item{fresh, stale})
	if !decisions[0].Kept || decisions[0].Reason != ReasonFastPass || decisions[0].Stage != StageFastPass {
		t.Fatalf("fresh decision = %+v", decisions[0])
	}
	if decisions[0].Score == nil || *decisions[0].Score != 100 {
		t.Fatalf("fast pass score = %v, want 100", decisions[0].Score)
	}
	if decisions[1].Reason == ReasonFastPass {
		t.Fatalf("item outside fast-pass window took fast pass")
	}
	if stats.FastPassKept != 1 || stats.FastPassDrop != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestFastPassRequiresCompanyOrContext(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "high_precision")
	// Title keyword alone, no brand, company, or context anywhere.
	item := scoredItem("bare", "techcrunch", "Robotaxi stocks rally", 6*time.Hour)

	_, decisions, _ := classifier.Run([]digest.Item{item})
	if decisions[0].Reason == ReasonFastPass {
		t.Fatalf("fast pass without company or context signal: %+v", decisions[0])
	}
}

func TestCandidateGate(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	item := scoredItem("noise", "techcrunch", "Streaming service raises prices", 12*time.Hour)

	_, decisions, stats := classifier.Run([]digest.Item{item})
	d := decisions[0]
	if d.Kept || d.Reason != ReasonCandidateGateMiss || d.Stage != StageCandidate {
		t.Fatalf("decision = %+v", d)
	}
	if d.Score != nil {
		t.Fatalf("candidate gate misses carry no score")
	}
	if stats.Stage2Scored != 0 {
		t.Fatalf("item must not reach scoring")
	}
}

func TestThresholdInclusive(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	// This title scores exactly 68 for general media in balanced mode:
	// core 28, title 16, context 3, brand 4, company 13, semantic 4.
	title := "Waymo robotaxi permit"

	balanced, _ := testClassifier(t, "balanced")
	_, decisions, _ := balanced.Run([]digest.Item{scoredItem("edge", "techcrunch", title, 72*time.Hour)})
	d := decisions[0]
	if d.Score == nil || *d.Score != 68 {
		t.Fatalf("score = %v, want 68", d.Score)
	}
	if !d.Kept || d.Reason != ReasonKept {
		t.Fatalf("score equal to threshold must keep: %+v", d)
	}

	strict, _ := testClassifier(t, "high_precision")
	_, decisions, _ = strict.Run([]digest.Item{scoredItem("edge", "techcrunch", title, 72*time.Hour)})
	d = decisions[0]
	if d.Kept || d.Reason != ReasonBelowThreshold {
		t.Fatalf("score below threshold must drop: %+v", d)
	}
	if d.Threshold != 75 {
		t.Fatalf("threshold = %d, want 75", d.Threshold)
	}
}

func TestCategoryBonus(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	title := "Waymo robotaxi permit"
	media := scoredItem("media", "techcrunch", title, 72*time.Hour)
	newsroom := scoredItem("newsroom", "waymo_blog", title, 72*time.Hour)

	_, decisions, _ := classifier.Run([]digest.Item{media, newsroom})
	if *decisions[1].Score-*decisions[0].Score != 10 {
		t.Fatalf("newsroom bonus: media=%v newsroom=%v", *decisions[0].Score, *decisions[1].Score)
	}
	if decisions[1].Breakdown["category"] != 10 {
		t.Fatalf("breakdown = %+v", decisions[1].Breakdown)
	}
}

func TestPairRuleZeroesLevelWithoutContext(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	bare := scoredItem("bare", "techcrunch", "New L4 chip ships for data centers", 12*time.Hour)
	paired := scoredItem("paired", "techcrunch", "New L4 autonomous driving system ships", 12*time.Hour)

	_, decisions, _ := classifier.Run([]digest.Item{bare, paired})
	if decisions[0].Breakdown["semantic"] != 0 {
		t.Fatalf("level term without autonomy context must contribute zero: %+v", decisions[0].Breakdown)
	}
	if decisions[1].Breakdown["semantic"] == 0 {
		t.Fatalf("level term with autonomy context must score: %+v", decisions[1].Breakdown)
	}
}

func TestPairRuleZeroesFreightWithoutContext(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	item := scoredItem("freight", "techcrunch", "Freight rates climb on new permit rules", 12*time.Hour)

	_, decisions, _ := classifier.Run([]digest.Item{item})
	if decisions[0].Breakdown["semantic"] != 0 {
		t.Fatalf("freight term without autonomy context must contribute zero: %+v", decisions[0].Breakdown)
	}
}

func TestNegativeSignals(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	clean := scoredItem("clean", "techcrunch", "Waymo robotaxi permit", 72*time.Hour)
	tainted := scoredItem("tainted", "techcrunch", "Waymo robotaxi permit team hiring", 72*time.Hour)

	_, decisions, _ := classifier.Run([]digest.Item{clean, tainted})
	if *decisions[1].Score >= *decisions[0].Score {
		t.Fatalf("exclude keyword must reduce the score: %v vs %v",
			*decisions[1].Score, *decisions[0].Score)
	}
	if decisions[1].Breakdown["negative"] != -12 {
		t.Fatalf("breakdown = %+v", decisions[1].Breakdown)
	}
}

func TestScoreClamp(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	item := scoredItem("max", "waymo_blog",
		"Waymo robotaxi autonomous vehicle permit expansion driverless car", 72*time.Hour)
	item.Snippet = "waymo robotaxi autonomous vehicle self-driving car driverless taxi permit expansion"

	_, decisions, _ := classifier.Run([]digest.Item{item})
	if s := *decisions[0].Score; s < 0 || s > 100 {
		t.Fatalf("score %v outside [0,100]", s)
	}
}

func TestSourceCapDefault(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	items := []digest.Item{
		scoredItem("a", "waymo_blog", "Waymo robotaxi permit expansion", 72*time.Hour),
		scoredItem("b", "waymo_blog", "Waymo robotaxi permit", 72*time.Hour),
		scoredItem("c", "waymo_blog", "Waymo autonomous vehicle update", 72*time.Hour),
	}

	kept, decisions, stats := classifier.Run(items)
	if len(kept) != 2 {
		t.Fatalf("kept %d, want 2 (cap)", len(kept))
	}
	if stats.SourceCapDrops != 1 {
		t.Fatalf("SourceCapDrops = %d, want 1", stats.SourceCapDrops)
	}
	capped := 0
	for _, d := range decisions {
		if d.Reason == ReasonSourceCap {
			capped++
			if d.Stage != StageCapped {
				t.Fatalf("capped decision = %+v", d)
			}
		}
	}
	if capped != 1 {
		t.Fatalf("capped = %d, want 1", capped)
	}
	// The lowest-scoring keep is the one converted.
	var lowest *Decision
	for i := range decisions {
		if decisions[i].Reason == ReasonSourceCap {
			lowest = &decisions[i]
		}
	}
	for _, d := range decisions {
		if d.Kept && d.Stage == StageScored && *d.Score < *lowest.Score {
			t.Fatalf("kept item scored below capped item")
		}
	}
}

func TestSourceCapPerSourceOverride(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	srcCfg := testSourcesConfig("balanced")
	srcCfg.Sources[0].MaxItemsPerDay = 1
	cfg, err := NewConfig(srcCfg)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	classifier := NewClassifier(cfg, srcCfg.ByID(), "2026-08-27", zerolog.Nop())

	items := []digest.Item{
		scoredItem("a", "waymo_blog", "Waymo robotaxi permit expansion", 72*time.Hour),
		scoredItem("b", "waymo_blog", "Waymo autonomous vehicle update", 72*time.Hour),
	}
	kept, _, stats := classifier.Run(items)
	if len(kept) != 1 || kept[0].ID != "a" {
		t.Fatalf("kept = %+v", kept)
	}
	if stats.SourceCapDrops != 1 {
		t.Fatalf("SourceCapDrops = %d, want 1", stats.SourceCapDrops)
	}
}

func TestSourceCapExemptsFastPass(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	srcCfg := testSourcesConfig("balanced")
	srcCfg.Sources[0].MaxItemsPerDay = 1
	cfg, err := NewConfig(srcCfg)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	classifier := NewClassifier(cfg, srcCfg.ByID(), "2026-08-27", zerolog.Nop())

	items := []digest.Item{
		scoredItem("fast", "waymo_blog", "Waymo robotaxi rides open to public", 6*time.Hour),
		scoredItem("scored", "waymo_blog", "Waymo autonomous vehicle permit expansion", 72*time.Hour),
	}
	kept, decisions, _ := classifier.Run(items)
	if decisions[0].Reason != ReasonFastPass {
		t.Fatalf("first item should fast pass: %+v", decisions[0])
	}
	if len(kept) != 2 {
		t.Fatalf("fast pass keep must not count against the cap, kept %d", len(kept))
	}
}

func TestKeptOrderPreserved(t *testing.T) {
	globaltime.SetMockTime(testNow)
	defer globaltime.ResetTime()

	classifier, _ := testClassifier(t, "balanced")
	items := []digest.Item{
		scoredItem("b-lower", "techcrunch", "Waymo robotaxi permit", 72*time.Hour),
		scoredItem("a-higher", "waymo_blog", "Waymo robotaxi permit expansion", 72*time.Hour),
	}
	kept, _, _ := classifier.Run(items)
	if len(kept) != 2 || kept[0].ID != "b-lower" || kept[1].ID != "a-higher" {
		t.Fatalf("kept order changed: %+v", kept)
	}
}
