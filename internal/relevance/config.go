// Package relevance decides, per surviving item, whether it is on-topic.
// Stages apply in order: hard constraints, fast-pass, candidate gate,
// weighted scoring, then a per-source cap pass over the whole survivor set.
package relevance

import (
	"fmt"
	"sort"
	"strings"

	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/sources"
)

// Terminal reason codes. Every decision carries exactly one.
const (
	ReasonKept              = "kept"
	ReasonFastPass          = "fast_pass_kept"
	ReasonPublishedMissing  = "published_missing_drop"
	ReasonNotToday          = "not_today_drop"
	ReasonSourceMaxAge      = "source_max_age_drop"
	ReasonURLExcluded       = "url_excluded"
	ReasonCandidateGateMiss = "candidate_gate_miss"
	ReasonBelowThreshold    = "below_threshold"
	ReasonSourceCap         = "source_cap_exceeded"
)

// Stage labels recorded on each decision for audit.
const (
	StageHard      = "hard_gate"
	StageFastPass  = "fast_pass"
	StageCandidate = "candidate_gate"
	StageScored    = "scored"
	StageCapped    = "capped"
)

var semanticSignalTerms = []string{
	"robotaxi", "driverless taxi", "self-driving taxi", "autonomous taxi",
	"autonomous vehicle", "autonomous truck", "driverless truck",
	"driverless car", "self-driving car", "autonomous car",
	"无人驾驶", "自动驾驶", "无人驾驶货车", "自动驾驶货车",
	"智能网联汽车", "无人驾驶汽车", "示范运营", "许可", "监管",
	"l3", "l4", "level 3", "level 4", "icv",
}

var autonomyContextTerms = []string{
	"无人驾驶", "自动驾驶", "robotaxi", "autonomous", "self-driving",
	"driverless", "智能网联汽车", "无人驾驶汽车", "icv",
	"intelligent connected vehicle", "apollo go",
}

var levelTerms = []string{"l3", "l4", "level 3", "level 4"}

var freightTerms = []string{
	"无人驾驶货车", "自动驾驶货车", "无人货运",
	"autonomous truck", "driverless truck", "freight",
}

var defaultFastPassTitleKeywords = []string{
	"robotaxi", "无人驾驶出租车", "自动驾驶出租车", "l4", "l3",
	"智能网联汽车", "无人驾驶汽车",
	"driverless taxi", "autonomous taxi", "self-driving taxi",
	"level 4", "level 3", "intelligent connected vehicle", "icv",
	"driverless car", "autonomous car", "self-driving car",
}

var thresholdDefaults = map[string]map[string]int{
	"high_precision": {
		digest.CategoryGeneralMedia:    75,
		digest.CategoryDiscovery:       65,
		digest.CategoryCompanyNewsroom: 55,
		digest.CategoryRegulator:       55,
	},
	"balanced": {
		digest.CategoryGeneralMedia:    68,
		digest.CategoryDiscovery:       58,
		digest.CategoryCompanyNewsroom: 50,
		digest.CategoryRegulator:       50,
	},
	"high_recall": {
		digest.CategoryGeneralMedia:    60,
		digest.CategoryDiscovery:       52,
		digest.CategoryCompanyNewsroom: 45,
		digest.CategoryRegulator:       45,
	},
}

var categoryBonus = map[string]int{
	digest.CategoryGeneralMedia:    0,
	digest.CategoryDiscovery:       4,
	digest.CategoryCompanyNewsroom: 10,
	digest.CategoryRegulator:       10,
}

// localeKeywords holds the keyword buckets for one locale.
type localeKeywords struct {
	Core    []string
	Context []string
	Brand   []string
	Exclude []string
}

// Config is the immutable per-run classifier configuration. Construction
// validates eagerly so a bad keyword config aborts the run before any item
// is classified.
type Config struct {
	Mode       string
	Thresholds map[string]int

	Domestic localeKeywords
	Foreign  localeKeywords

	CompanyAliases []string

	WindowDays          int
	StrictTodayMode     bool
	StrictTodayTimezone string

	FastPassEnabled       bool
	FastPassWindowHours   int
	FastPassTitleKeywords []string
	FastPassRequireSignal bool

	RequireLevelWithContext   bool
	RequireFreightWithContext bool

	AllowMissingPublished map[string]bool

	EnableSourceCap   bool
	MaxItemsPerSource int
}

// NewConfig builds the classifier configuration from the loaded sources
// file. Empty core keyword lists or missing thresholds are fatal.
func NewConfig(cfg *sources.Config) (*Config, error) {
	d := cfg.Defaults

	mode := strings.ToLower(strings.TrimSpace(d.RelevanceMode))
	if mode == "" {
		mode = "high_precision"
	}
	baseThresholds, ok := thresholdDefaults[mode]
	if !ok {
		return nil, fmt.Errorf("unknown relevance_mode %q", mode)
	}

	thresholds := make(map[string]int, len(baseThresholds))
	for category, base := range baseThresholds {
		thresholds[category] = base
		if override, ok := d.RelevanceThresholds[category]; ok {
			thresholds[category] = override
		}
	}
	for category := range d.RelevanceThresholds {
		if _, ok := baseThresholds[category]; !ok {
			return nil, fmt.Errorf("relevance_thresholds: unknown source category %q", category)
		}
	}

	out := &Config{
		Mode:       mode,
		Thresholds: thresholds,
		Domestic: localeKeywords{
			Core:    normalizeKeywords(d.CoreKeywordsDomestic),
			Context: normalizeKeywords(d.ContextKeywordsDomestic),
			Brand:   normalizeKeywords(d.BrandKeywordsDomestic),
			Exclude: normalizeKeywords(d.ExcludeKeywordsDomestic),
		},
		Foreign: localeKeywords{
			Core:    normalizeKeywords(d.CoreKeywordsForeign),
			Context: normalizeKeywords(d.ContextKeywordsForeign),
			Brand:   normalizeKeywords(d.BrandKeywordsForeign),
			Exclude: normalizeKeywords(d.ExcludeKeywordsForeign),
		},
		CompanyAliases:            buildCompanyAliases(cfg.Companies),
		WindowDays:                d.WindowDays,
		StrictTodayMode:           d.StrictTodayMode,
		StrictTodayTimezone:       strings.TrimSpace(d.StrictTodayTimezone),
		FastPassEnabled:           boolOr(d.FastPassEnabled, true),
		FastPassWindowHours:       d.FastPassWindowHours,
		FastPassRequireSignal:     boolOr(d.FastPassRequireCompanyOrContext, true),
		RequireLevelWithContext:   boolOr(d.KeywordPairRules.RequireLevelWithAutonomousContext, true),
		RequireFreightWithContext: boolOr(d.KeywordPairRules.RequireFreightWithAutonomousContext, true),
		AllowMissingPublished:     map[string]bool{},
		EnableSourceCap:           d.EnableSourceCap,
		MaxItemsPerSource:         d.MaxItemsPerSource,
	}

	if out.WindowDays <= 0 {
		out.WindowDays = 10
	}
	if out.StrictTodayTimezone == "" {
		out.StrictTodayTimezone = "Asia/Shanghai"
	}
	if out.FastPassWindowHours <= 0 {
		out.FastPassWindowHours = 48
	}
	if out.MaxItemsPerSource <= 0 {
		out.MaxItemsPerSource = 2
	}

	fastPass := append([]string(nil), d.FastPassTitleKeywordsZH...)
	fastPass = append(fastPass, d.FastPassTitleKeywordsEN...)
	out.FastPassTitleKeywords = normalizeKeywords(fastPass)
	if len(out.FastPassTitleKeywords) == 0 {
		out.FastPassTitleKeywords = normalizeKeywords(defaultFastPassTitleKeywords)
	}

	if len(d.AllowMissingPublishedCategories) == 0 {
		out.AllowMissingPublished[digest.CategoryRegulator] = true
	}
	for _, category := range d.AllowMissingPublishedCategories {
		c := strings.ToLower(strings.TrimSpace(category))
		if _, ok := categoryBonus[c]; !ok {
			return nil, fmt.Errorf("allow_missing_published_categories: unknown category %q", category)
		}
		out.AllowMissingPublished[c] = true
	}

	if len(out.Domestic.Core) == 0 {
		return nil, fmt.Errorf("core_keywords_domestic must not be empty")
	}
	if len(out.Foreign.Core) == 0 {
		return nil, fmt.Errorf("core_keywords_foreign must not be empty")
	}

	return out, nil
}

func (c *Config) locale(region string) localeKeywords {
	if region == digest.RegionDomestic {
		return c.Domestic
	}
	return c.Foreign
}

// threshold falls back to the general_media bound for unrecognized
// categories so unknown sources get the strictest treatment.
func (c *Config) threshold(category string) int {
	if t, ok := c.Thresholds[category]; ok {
		return t
	}
	return c.Thresholds[digest.CategoryGeneralMedia]
}

func normalizeKeywords(words []string) []string {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		text := strings.ToLower(strings.TrimSpace(word))
		if text != "" {
			set[text] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for word := range set {
		out = append(out, word)
	}
	sort.Strings(out)
	return out
}

func buildCompanyAliases(companies []sources.Company) []string {
	var all []string
	for _, company := range companies {
		if name := strings.TrimSpace(company.Name); len([]rune(name)) >= 2 {
			all = append(all, name)
		}
		for _, alias := range company.Aliases {
			if a := strings.TrimSpace(alias); len([]rune(a)) >= 2 {
				all = append(all, a)
			}
		}
	}
	return normalizeKeywords(all)
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
