package relevance

import (
	"sort"
	"strings"

	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/sources"
)

// Signal tags reported on decisions.
const (
	SignalCore     = "core_keyword"
	SignalBrand    = "brand"
	SignalContext  = "context"
	SignalCompany  = "company"
	SignalSemantic = "semantic"
	SignalNegative = "negative"
	SignalFastPass = "fast_pass_title"
)

// Signals holds the keyword hits collected for one item. A missing item
// field just yields empty hit lists, never an error.
type Signals struct {
	Core          []string `json:"core_hits,omitempty"`
	CoreTitle     []string `json:"core_title_hits,omitempty"`
	Context       []string `json:"context_hits,omitempty"`
	Brand         []string `json:"brand_hits,omitempty"`
	Company       []string `json:"company_hits,omitempty"`
	Semantic      []string `json:"semantic_hits,omitempty"`
	Negative      []string `json:"negative_hits,omitempty"`
	AutonomyTerms []string `json:"autonomy_context_hits,omitempty"`
	Level         []string `json:"level_hits,omitempty"`
	Freight       []string `json:"freight_hits,omitempty"`
	FastPassTitle []string `json:"fast_pass_title_hits,omitempty"`
}

// HasCandidateSignal reports whether the item carries any topical signal at
// all: the candidate gate drops items where this is false without scoring.
func (s Signals) HasCandidateSignal() bool {
	return len(s.Company) > 0 || len(s.Brand) > 0 || len(s.Context) > 0 || len(s.Semantic) > 0
}

// Tags returns the set of matched signal categories.
func (s Signals) Tags() []string {
	var tags []string
	if len(s.Core) > 0 {
		tags = append(tags, SignalCore)
	}
	if len(s.Brand) > 0 {
		tags = append(tags, SignalBrand)
	}
	if len(s.Context) > 0 {
		tags = append(tags, SignalContext)
	}
	if len(s.Company) > 0 {
		tags = append(tags, SignalCompany)
	}
	if len(s.Semantic) > 0 {
		tags = append(tags, SignalSemantic)
	}
	if len(s.Negative) > 0 {
		tags = append(tags, SignalNegative)
	}
	if len(s.FastPassTitle) > 0 {
		tags = append(tags, SignalFastPass)
	}
	return tags
}

// CollectSignals matches the configured keyword buckets against the item
// text. Title-only matching applies to core and fast-pass buckets; all
// other buckets match against title, snippet, and source name combined.
func CollectSignals(item digest.Item, source sources.Source, cfg *Config) Signals {
	textTitle := strings.ToLower(item.Title)
	textAll := strings.ToLower(item.Title + " " + item.Snippet + " " + item.SourceName)

	locale := cfg.locale(item.Region)

	coreBucket := locale.Core
	if len(source.IncludeKeywords) > 0 {
		coreBucket = normalizeKeywords(append(append([]string(nil), coreBucket...), source.IncludeKeywords...))
	}
	excludeBucket := locale.Exclude
	if len(source.ExcludeKeywords) > 0 {
		excludeBucket = normalizeKeywords(append(append([]string(nil), excludeBucket...), source.ExcludeKeywords...))
	}

	return Signals{
		Core:          keywordHits(textAll, coreBucket),
		CoreTitle:     keywordHits(textTitle, coreBucket),
		Context:       keywordHits(textAll, locale.Context),
		Brand:         keywordHits(textAll, locale.Brand),
		Company:       keywordHits(textAll, cfg.CompanyAliases),
		Semantic:      keywordHits(textAll, semanticSignalTerms),
		Negative:      keywordHits(textAll, excludeBucket),
		AutonomyTerms: keywordHits(textAll, autonomyContextTerms),
		Level:         keywordHits(textAll, levelTerms),
		Freight:       keywordHits(textAll, freightTerms),
		FastPassTitle: keywordHits(textTitle, cfg.FastPassTitleKeywords),
	}
}

func keywordHits(text string, words []string) []string {
	seen := make(map[string]struct{})
	for _, word := range words {
		if word == "" {
			continue
		}
		if strings.Contains(text, word) {
			seen[word] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	hits := make([]string, 0, len(seen))
	for word := range seen {
		hits = append(hits, word)
	}
	sort.Strings(hits)
	return hits
}
