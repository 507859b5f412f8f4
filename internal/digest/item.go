// Package digest holds the item records passed between pipeline stages.
// Items are immutable once produced; stages annotate them with separate
// decision values instead of mutating them.
package digest

import "time"

// Source categories drive differential relevance thresholds.
const (
	CategoryRegulator       = "regulator"
	CategoryCompanyNewsroom = "company_newsroom"
	CategoryGeneralMedia    = "general_media"
	CategoryDiscovery       = "discovery"
)

// Locales partition the keyword configuration.
const (
	RegionDomestic = "domestic"
	RegionForeign  = "foreign"
)

// RawPayload carries the fields a fetcher extracted from one feed entry,
// search result, or scraped page, before canonicalization.
type RawPayload struct {
	Title      string `json:"title"`
	Summary    string `json:"summary,omitempty"`
	Content    string `json:"content,omitempty"`
	Link       string `json:"link"`
	Published  string `json:"published,omitempty"`
	SourceName string `json:"source_name,omitempty"`
}

// RawItem is one discovered entry as fetched, prior to canonicalization.
type RawItem struct {
	SourceID       string     `json:"source_id"`
	SourceName     string     `json:"source_name"`
	SourceType     string     `json:"source_type"`
	SourceCategory string     `json:"source_category"`
	Region         string     `json:"region"`
	CompanyHint    string     `json:"company_hint,omitempty"`
	FetchedAt      time.Time  `json:"fetched_at"`
	URL            string     `json:"url"`
	Payload        RawPayload `json:"payload"`
}

// Item is a canonical item: one normalized article instance.
//
// ID is deterministic given the normalized URL, so two raw items resolving
// to the same normalized URL always share an ID.
type Item struct {
	ID               string     `json:"id"`
	SourceID         string     `json:"source_id"`
	SourceName       string     `json:"source_name"`
	SourceCategory   string     `json:"source_category"`
	Region           string     `json:"region"`
	CompanyHint      string     `json:"company_hint,omitempty"`
	Title            string     `json:"title"`
	Snippet          string     `json:"body_snippet"`
	URL              string     `json:"url"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	PublishedMissing bool       `json:"published_missing"`
	Language         string     `json:"language"`
	Fingerprint      string     `json:"fingerprint"`
	FetchTime        time.Time  `json:"fetch_time"`
}

// Brief is one summarized item ready for rendering and notification.
type Brief struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	SourceName  string     `json:"source_name"`
	Region      string     `json:"region"`
	CompanyID   string     `json:"company_id"`
	TitleZH     string     `json:"title_zh"`
	SummaryZH   string     `json:"summary_zh"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Tags        []string   `json:"tags"`
	Confidence  float64    `json:"confidence"`
}
