// Package sources loads and validates the sources.json run configuration.
// Validation happens once at load time: a malformed configuration aborts the
// run before any item is processed.
package sources

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed sources.schema.json
var sourcesSchemaJSON string

const (
	TypeRSS           = "rss"
	TypeSearchAPI     = "search_api"
	TypeStructuredWeb = "structured_web"
)

type Config struct {
	Defaults        Defaults            `json:"defaults"`
	Companies       []Company           `json:"companies"`
	Sources         []Source            `json:"sources"`
	SearchProviders map[string]Provider `json:"search_providers,omitempty"`
	QuerySets       map[string][]Query  `json:"query_sets,omitempty"`
}

type Defaults struct {
	RelevanceMode       string         `json:"relevance_mode,omitempty"`
	WindowDays          int            `json:"window_days,omitempty"`
	TopN                int            `json:"top_n,omitempty"`
	StrictTodayMode     bool           `json:"strict_today_mode,omitempty"`
	StrictTodayTimezone string         `json:"strict_today_timezone,omitempty"`
	RelevanceThresholds map[string]int `json:"relevance_thresholds,omitempty"`

	CoreKeywordsDomestic    []string `json:"core_keywords_domestic,omitempty"`
	CoreKeywordsForeign     []string `json:"core_keywords_foreign,omitempty"`
	ContextKeywordsDomestic []string `json:"context_keywords_domestic,omitempty"`
	ContextKeywordsForeign  []string `json:"context_keywords_foreign,omitempty"`
	BrandKeywordsDomestic   []string `json:"brand_keywords_domestic,omitempty"`
	BrandKeywordsForeign    []string `json:"brand_keywords_foreign,omitempty"`
	ExcludeKeywordsDomestic []string `json:"exclude_keywords_domestic,omitempty"`
	ExcludeKeywordsForeign  []string `json:"exclude_keywords_foreign,omitempty"`

	FastPassEnabled                 *bool    `json:"fast_pass_enabled,omitempty"`
	FastPassWindowHours             int      `json:"fast_pass_window_hours,omitempty"`
	FastPassTitleKeywordsZH         []string `json:"fast_pass_title_keywords_zh,omitempty"`
	FastPassTitleKeywordsEN         []string `json:"fast_pass_title_keywords_en,omitempty"`
	FastPassRequireCompanyOrContext *bool    `json:"fast_pass_require_company_or_context,omitempty"`

	KeywordPairRules                PairRules `json:"keyword_pair_rules,omitempty"`
	AllowMissingPublishedCategories []string  `json:"allow_missing_published_categories,omitempty"`

	EnableSourceCap   bool `json:"enable_source_cap,omitempty"`
	MaxItemsPerSource int  `json:"max_items_per_source,omitempty"`
}

type PairRules struct {
	RequireLevelWithAutonomousContext   *bool `json:"require_level_with_autonomous_context,omitempty"`
	RequireFreightWithAutonomousContext *bool `json:"require_freight_with_autonomous_context,omitempty"`
}

type Company struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

type Source struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Region             string            `json:"region"`
	Category           string            `json:"category"`
	SourceType         string            `json:"source_type,omitempty"`
	SourceCompanyID    string            `json:"source_company_id,omitempty"`
	RSSURLs            []string          `json:"rss_urls,omitempty"`
	Provider           string            `json:"provider,omitempty"`
	QuerySet           string            `json:"query_set,omitempty"`
	MaxResultsPerQuery int               `json:"max_results_per_query,omitempty"`
	EntryURLs          []string          `json:"entry_urls,omitempty"`
	Extractor          string            `json:"extractor,omitempty"`
	Selectors          map[string]string `json:"selectors,omitempty"`
	IncludeKeywords    []string          `json:"include_keywords,omitempty"`
	ExcludeKeywords    []string          `json:"exclude_keywords,omitempty"`
	URLAllowPatterns   []string          `json:"url_allow_patterns,omitempty"`
	URLBlockPatterns   []string          `json:"url_block_patterns,omitempty"`
	MaxAgeHours        int               `json:"max_age_hours,omitempty"`
	MaxItemsPerDay     int               `json:"max_items_per_day,omitempty"`
}

type Provider struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Engine    string `json:"engine,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
	Num       int    `json:"num,omitempty"`
}

func (p Provider) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type Query struct {
	Q        string `json:"q"`
	HL       string `json:"hl,omitempty"`
	GL       string `json:"gl,omitempty"`
	CEID     string `json:"ceid,omitempty"`
	Location string `json:"location,omitempty"`
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// Load reads, schema-validates, and semantically validates a sources file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources config: %w", err)
	}
	return Parse(raw)
}

// Parse validates raw JSON against the embedded schema plus referential
// checks that a schema cannot express (duplicate ids, provider references).
func Parse(raw []byte) (*Config, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode sources JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load sources schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("sources schema validation failed: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal sources config: %w", err)
	}
	if err := validateSemantics(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ByID returns the source map keyed by source id.
func (c *Config) ByID() map[string]Source {
	out := make(map[string]Source, len(c.Sources))
	for _, src := range c.Sources {
		out[src.ID] = src
	}
	return out
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("sources.schema.json", strings.NewReader(sourcesSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("sources.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})

	if compileErr != nil {
		return nil, compileErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("config is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config contains trailing content")
	}
	return value, nil
}

func validateSemantics(cfg *Config) error {
	companyIDs := make(map[string]struct{}, len(cfg.Companies))
	for i, company := range cfg.Companies {
		id := strings.TrimSpace(company.ID)
		if id == "" {
			return fmt.Errorf("companies[%d]: id must not be empty", i)
		}
		if _, dup := companyIDs[id]; dup {
			return fmt.Errorf("duplicate company id: %s", id)
		}
		companyIDs[id] = struct{}{}
	}

	sourceIDs := make(map[string]struct{}, len(cfg.Sources))
	for i, src := range cfg.Sources {
		id := strings.TrimSpace(src.ID)
		if id == "" {
			return fmt.Errorf("sources[%d]: id must not be empty", i)
		}
		if _, dup := sourceIDs[id]; dup {
			return fmt.Errorf("duplicate source id: %s", id)
		}
		sourceIDs[id] = struct{}{}

		if src.SourceCompanyID != "" {
			if _, ok := companyIDs[src.SourceCompanyID]; !ok {
				return fmt.Errorf("sources[%d] (%s): unknown source_company_id %q", i, id, src.SourceCompanyID)
			}
		}

		switch sourceType(src) {
		case TypeRSS:
			if len(src.RSSURLs) == 0 {
				return fmt.Errorf("sources[%d] (%s): rss source requires rss_urls", i, id)
			}
			for _, u := range src.RSSURLs {
				if !isHTTPURL(u) {
					return fmt.Errorf("sources[%d] (%s): invalid rss url %q", i, id, u)
				}
			}
		case TypeSearchAPI:
			if _, ok := cfg.SearchProviders[src.Provider]; !ok {
				return fmt.Errorf("sources[%d] (%s): unknown search provider %q", i, id, src.Provider)
			}
			if _, ok := cfg.QuerySets[src.QuerySet]; !ok {
				return fmt.Errorf("sources[%d] (%s): unknown query_set %q", i, id, src.QuerySet)
			}
		case TypeStructuredWeb:
			if len(src.EntryURLs) == 0 {
				return fmt.Errorf("sources[%d] (%s): structured_web source requires entry_urls", i, id)
			}
			for _, u := range src.EntryURLs {
				if !isHTTPURL(u) {
					return fmt.Errorf("sources[%d] (%s): invalid entry url %q", i, id, u)
				}
			}
		default:
			return fmt.Errorf("sources[%d] (%s): unsupported source_type %q", i, id, src.SourceType)
		}
	}

	return nil
}

func sourceType(src Source) string {
	t := strings.ToLower(strings.TrimSpace(src.SourceType))
	if t == "" {
		return TypeRSS
	}
	return t
}

// Type returns the effective source type, defaulting to rss.
func (s Source) Type() string {
	return sourceType(s)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
