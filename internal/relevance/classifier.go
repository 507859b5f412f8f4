package relevance

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/globaltime"
	"horse.fit/avdigest/internal/sources"
)

// Decision is the classifier output for one item. Score is nil when the
// item never reached scoring (hard drop, fast-pass, candidate gate miss
// with no signal score).
type Decision struct {
	ItemID         string         `json:"item_id"`
	Kept           bool           `json:"kept"`
	Reason         string         `json:"reason"`
	Stage          string         `json:"stage"`
	Score          *float64       `json:"score"`
	Threshold      int            `json:"threshold,omitempty"`
	MatchedSignals []string       `json:"matched_signals,omitempty"`
	Signals        Signals        `json:"signals"`
	Breakdown      map[string]int `json:"score_breakdown,omitempty"`
}

// Stats carries the stage counters the run report records.
type Stats struct {
	FastPassKept   int
	FastPassDrop   int
	Stage2Scored   int
	Stage2Kept     int
	SourceCapDrops int
}

type Classifier struct {
	cfg       *Config
	sourceMap map[string]sources.Source
	runDate   string
	logger    zerolog.Logger
}

func NewClassifier(cfg *Config, sourceMap map[string]sources.Source, runDate string, logger zerolog.Logger) *Classifier {
	return &Classifier{
		cfg:       cfg,
		sourceMap: sourceMap,
		runDate:   runDate,
		logger:    logger.With().Str("component", "relevance").Logger(),
	}
}

// Run classifies every item and applies the per-source cap over the scored
// survivors. Decisions come back in input order; the kept slice preserves
// original discovery order.
func (c *Classifier) Run(items []digest.Item) ([]digest.Item, []Decision, Stats) {
	var stats Stats
	decisions := make([]Decision, len(items))
	for i, item := range items {
		decisions[i] = c.classify(item, &stats)
	}

	if c.cfg.EnableSourceCap {
		c.applySourceCap(items, decisions, &stats)
	}

	kept := make([]digest.Item, 0, len(items))
	for i, item := range items {
		if decisions[i].Kept {
			kept = append(kept, item)
		}
	}

	c.logger.Info().
		Int("input", len(items)).
		Int("kept", len(kept)).
		Int("fast_pass_kept", stats.FastPassKept).
		Int("stage2_scored", stats.Stage2Scored).
		Int("stage2_kept", stats.Stage2Kept).
		Int("source_cap_drops", stats.SourceCapDrops).
		Str("mode", c.cfg.Mode).
		Msg("relevance classification complete")

	return kept, decisions, stats
}

func (c *Classifier) classify(item digest.Item, stats *Stats) Decision {
	source := c.sourceMap[item.SourceID]
	category := c.category(item, source)

	if reason, ok := c.hardDrop(item, source, category); ok {
		return Decision{ItemID: item.ID, Kept: false, Reason: reason, Stage: StageHard}
	}

	signals := CollectSignals(item, source, c.cfg)

	if c.cfg.FastPassEnabled && len(signals.FastPassTitle) > 0 {
		if c.fastPass(item, signals) {
			stats.FastPassKept++
			score := 100.0
			return Decision{
				ItemID:         item.ID,
				Kept:           true,
				Reason:         ReasonFastPass,
				Stage:          StageFastPass,
				Score:          &score,
				MatchedSignals: signals.Tags(),
				Signals:        signals,
			}
		}
		stats.FastPassDrop++
	}

	if !signals.HasCandidateSignal() {
		return Decision{
			ItemID:         item.ID,
			Kept:           false,
			Reason:         ReasonCandidateGateMiss,
			Stage:          StageCandidate,
			MatchedSignals: signals.Tags(),
			Signals:        signals,
		}
	}

	stats.Stage2Scored++
	score, breakdown := c.score(item, source, category, signals)
	threshold := c.cfg.threshold(category)

	kept := score >= float64(threshold)
	reason := ReasonBelowThreshold
	if kept {
		reason = ReasonKept
		stats.Stage2Kept++
	}

	return Decision{
		ItemID:         item.ID,
		Kept:           kept,
		Reason:         reason,
		Stage:          StageScored,
		Score:          &score,
		Threshold:      threshold,
		MatchedSignals: signals.Tags(),
		Signals:        signals,
		Breakdown:      breakdown,
	}
}

func (c *Classifier) category(item digest.Item, source sources.Source) string {
	category := strings.ToLower(strings.TrimSpace(source.Category))
	if category == "" {
		category = strings.ToLower(strings.TrimSpace(item.SourceCategory))
	}
	if _, ok := categoryBonus[category]; !ok {
		return digest.CategoryGeneralMedia
	}
	return category
}

func (c *Classifier) hardDrop(item digest.Item, source sources.Source, category string) (string, bool) {
	if item.URL == "" {
		return ReasonURLExcluded, true
	}
	parsed, err := url.Parse(item.URL)
	if err != nil {
		return ReasonURLExcluded, true
	}
	path := strings.ToLower(parsed.Path)
	if path == "" || path == "/" {
		return ReasonURLExcluded, true
	}
	for _, pattern := range source.URLBlockPatterns {
		if p := strings.ToLower(strings.TrimSpace(pattern)); p != "" && strings.Contains(path, p) {
			return ReasonURLExcluded, true
		}
	}
	if len(source.URLAllowPatterns) > 0 {
		allowed := false
		for _, pattern := range source.URLAllowPatterns {
			if p := strings.ToLower(strings.TrimSpace(pattern)); p != "" && strings.Contains(path, p) {
				allowed = true
				break
			}
		}
		if !allowed {
			return ReasonURLExcluded, true
		}
	}

	if item.PublishedMissing || item.PublishedAt == nil {
		if c.cfg.StrictTodayMode || !c.cfg.AllowMissingPublished[category] {
			return ReasonPublishedMissing, true
		}
		return "", false
	}

	published := *item.PublishedAt
	if c.cfg.StrictTodayMode {
		if !c.sameRunDay(published) {
			return ReasonNotToday, true
		}
	} else if !withinDays(published, c.cfg.WindowDays) {
		return ReasonNotToday, true
	}

	if source.MaxAgeHours > 0 && !withinHours(published, source.MaxAgeHours) {
		return ReasonSourceMaxAge, true
	}

	return "", false
}

func (c *Classifier) fastPass(item digest.Item, signals Signals) bool {
	if item.PublishedAt == nil || !withinHours(*item.PublishedAt, c.cfg.FastPassWindowHours) {
		return false
	}
	if c.cfg.FastPassRequireSignal {
		hasCompany := len(signals.Company) > 0 || len(signals.Brand) > 0
		hasContext := len(signals.Context) > 0
		if !hasCompany && !hasContext {
			return false
		}
	}
	return true
}

// score sums the weighted signal buckets. Pair-constrained terms (level,
// freight) without an autonomy-domain co-occurrence are removed from the
// semantic bucket before crediting, so their contribution is zeroed.
func (c *Classifier) score(item digest.Item, source sources.Source, category string, signals Signals) (float64, map[string]int) {
	semantic := signals.Semantic
	if len(signals.AutonomyTerms) == 0 {
		if c.cfg.RequireLevelWithContext && len(signals.Level) > 0 {
			semantic = subtract(semantic, signals.Level)
		}
		if c.cfg.RequireFreightWithContext && len(signals.Freight) > 0 {
			semantic = subtract(semantic, signals.Freight)
		}
	}

	breakdown := map[string]int{
		"core": 0, "title": 0, "context": 0, "brand": 0,
		"company": 0, "semantic": 0, "category": 0, "negative": 0,
	}

	if n := len(signals.Core); n > 0 {
		breakdown["core"] = 20 + min(25, n*8)
	}
	if n := len(signals.CoreTitle); n > 0 {
		breakdown["title"] = 10 + min(15, n*6)
	}
	if n := len(signals.Context); n > 0 {
		breakdown["context"] = min(12, n*3)
	}
	if n := len(signals.Brand); n > 0 {
		breakdown["brand"] = min(16, n*4)
	}
	if n := len(signals.Company); n > 0 {
		breakdown["company"] = 8 + min(18, n*5)
	}
	if n := len(semantic); n > 0 {
		breakdown["semantic"] = min(12, n*4)
	}
	breakdown["category"] = categoryBonus[category]
	if n := len(signals.Negative); n > 0 {
		breakdown["negative"] = -min(36, n*12)
	}

	total := 0
	for _, v := range breakdown {
		total += v
	}
	total = max(0, min(100, total))
	return float64(total), breakdown
}

// applySourceCap converts keeps beyond the per-source cap to drops. It
// groups scored keeps by source and caps them by score descending with
// stable ordering; fast-pass keeps are terminal before scoring and exempt.
func (c *Classifier) applySourceCap(items []digest.Item, decisions []Decision, stats *Stats) {
	bySource := make(map[string][]int)
	for i := range decisions {
		if decisions[i].Kept && decisions[i].Stage == StageScored {
			sid := items[i].SourceID
			bySource[sid] = append(bySource[sid], i)
		}
	}

	for sid, idx := range bySource {
		limit := c.capFor(sid)
		if limit <= 0 || len(idx) <= limit {
			continue
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return scoreOf(decisions[idx[a]]) > scoreOf(decisions[idx[b]])
		})
		for _, i := range idx[limit:] {
			decisions[i].Kept = false
			decisions[i].Reason = ReasonSourceCap
			decisions[i].Stage = StageCapped
			stats.SourceCapDrops++
		}
	}
}

func (c *Classifier) capFor(sourceID string) int {
	if source, ok := c.sourceMap[sourceID]; ok && source.MaxItemsPerDay > 0 {
		return source.MaxItemsPerDay
	}
	return c.cfg.MaxItemsPerSource
}

func (c *Classifier) sameRunDay(published time.Time) bool {
	loc, err := time.LoadLocation(c.cfg.StrictTodayTimezone)
	if err != nil {
		loc = time.UTC
	}
	return published.In(loc).Format("2006-01-02") == c.runDate
}

func withinDays(published time.Time, days int) bool {
	return !published.Before(globaltime.UTC().AddDate(0, 0, -days))
}

func withinHours(published time.Time, hours int) bool {
	return !published.Before(globaltime.UTC().Add(-time.Duration(hours) * time.Hour))
}

func scoreOf(d Decision) float64 {
	if d.Score == nil {
		return 0
	}
	return *d.Score
}

func subtract(set, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, w := range remove {
		drop[w] = struct{}{}
	}
	var out []string
	for _, w := range set {
		if _, ok := drop[w]; !ok {
			out = append(out, w)
		}
	}
	return out
}
