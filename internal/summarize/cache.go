package summarize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"horse.fit/avdigest/internal/globaltime"
)

const cacheValidity = 7 * 24 * time.Hour

type cacheEntry struct {
	TitleZH    string   `json:"title_zh"`
	SummaryZH  string   `json:"summary_zh"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
	UpdatedAt  string   `json:"updated_at"`
}

// Cache is a JSON file keyed by item fingerprint. Entries older than seven
// days are treated as absent so drifted summaries refresh eventually.
type Cache struct {
	path    string
	entries map[string]cacheEntry
}

func LoadCache(path string) *Cache {
	c := &Cache{path: path, entries: map[string]cacheEntry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		c.entries = map[string]cacheEntry{}
	}
	return c
}

func (c *Cache) Get(fingerprint string) (Summary, bool) {
	if fingerprint == "" {
		return Summary{}, false
	}
	entry, ok := c.entries[fingerprint]
	if !ok {
		return Summary{}, false
	}
	updated, err := time.Parse(time.RFC3339, entry.UpdatedAt)
	if err != nil || updated.Before(globaltime.UTC().Add(-cacheValidity)) {
		return Summary{}, false
	}
	return Summary{
		TitleZH:    entry.TitleZH,
		SummaryZH:  ClampSummary(entry.SummaryZH),
		Tags:       FilterTags(entry.Tags),
		Confidence: entry.Confidence,
	}, true
}

func (c *Cache) Put(fingerprint string, s Summary) {
	if fingerprint == "" {
		return
	}
	c.entries[fingerprint] = cacheEntry{
		TitleZH:    s.TitleZH,
		SummaryZH:  s.SummaryZH,
		Tags:       s.Tags,
		Confidence: s.Confidence,
		UpdatedAt:  globaltime.UTC().Format(time.RFC3339),
	}
}

func (c *Cache) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}
