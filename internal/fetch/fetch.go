// Package fetch pulls raw items from the configured sources: RSS feeds,
// search API providers, and structured web pages.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/canonical"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/globaltime"
	"horse.fit/avdigest/internal/report"
	"horse.fit/avdigest/internal/sources"
)

const (
	defaultUserAgent   = "Mozilla/5.0 (avdigest/1.0)"
	maxBodyBytes       = 4 * 1024 * 1024
	structuredMaxLinks = 8
)

type Service struct {
	cfg     *sources.Config
	client  *http.Client
	retries int
	logger  zerolog.Logger
}

func NewService(cfg *sources.Config, timeout time.Duration, retries int, logger zerolog.Logger) *Service {
	if retries < 1 {
		retries = 1
	}
	return &Service{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		logger:  logger.With().Str("component", "fetch").Logger(),
	}
}

// Run fetches every configured source sequentially and returns the raw
// items plus one stat per source. A failing source never aborts the run.
func (s *Service) Run(ctx context.Context) ([]digest.RawItem, []report.SourceStat) {
	fetchTime := globaltime.UTC()

	var allItems []digest.RawItem
	stats := make([]report.SourceStat, 0, len(s.cfg.Sources))

	for _, source := range s.cfg.Sources {
		items, fetchErr := s.fetchSource(ctx, source, fetchTime)
		allItems = append(allItems, items...)

		stat := report.SourceStat{
			SourceID:     source.ID,
			SourceName:   source.Name,
			SourceType:   source.Type(),
			Status:       "ok",
			FetchedItems: len(items),
		}
		if fetchErr != "" {
			stat.Error = truncate(fetchErr, 500)
			stat.ErrorReason = ClassifyError(fetchErr)
			if len(items) == 0 {
				stat.Status = "fail"
			}
			s.logger.Warn().
				Str("source_id", source.ID).
				Str("reason", stat.ErrorReason).
				Str("error", truncate(fetchErr, 200)).
				Msg("source fetch degraded")
		}
		stats = append(stats, stat)
	}

	s.logger.Info().
		Int("sources", len(s.cfg.Sources)).
		Int("raw_items", len(allItems)).
		Msg("fetch complete")

	return allItems, stats
}

func (s *Service) fetchSource(ctx context.Context, source sources.Source, fetchTime time.Time) ([]digest.RawItem, string) {
	var payloads []digest.RawPayload
	var fetchErr string

	switch source.Type() {
	case sources.TypeRSS:
		payloads, fetchErr = s.fetchRSS(ctx, source)
	case sources.TypeSearchAPI:
		payloads, fetchErr = s.fetchSearchAPI(ctx, source)
	case sources.TypeStructuredWeb:
		payloads, fetchErr = s.fetchStructured(ctx, source)
	default:
		return nil, fmt.Sprintf("unsupported source_type=%s", source.SourceType)
	}

	items := make([]digest.RawItem, 0, len(payloads))
	for _, payload := range payloads {
		if payload.Title == "" || payload.Link == "" {
			continue
		}
		items = append(items, digest.RawItem{
			SourceID:       source.ID,
			SourceName:     source.Name,
			SourceType:     source.Type(),
			SourceCategory: source.Category,
			Region:         source.Region,
			CompanyHint:    source.SourceCompanyID,
			FetchedAt:      fetchTime,
			URL:            payload.Link,
			Payload:        payload,
		})
	}
	return items, fetchErr
}

func (s *Service) fetchRSS(ctx context.Context, source sources.Source) ([]digest.RawPayload, string) {
	parser := gofeed.NewParser()
	parser.UserAgent = defaultUserAgent
	parser.Client = s.client

	var out []digest.RawPayload
	var lastErr string
	for _, feedURL := range source.RSSURLs {
		feed, err := s.parseFeedWithRetry(ctx, parser, feedURL)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		for _, entry := range feed.Items {
			if entry == nil {
				continue
			}
			summary := entry.Description
			if summary == "" {
				summary = entry.Content
			}
			published := entry.Published
			if published == "" {
				published = entry.Updated
			}
			sourceName := source.Name
			if feed.Title != "" {
				sourceName = feed.Title
			}
			out = append(out, digest.RawPayload{
				Title:      canonical.CleanText(entry.Title),
				Summary:    canonical.CleanText(summary),
				Content:    canonical.CleanText(summary),
				Link:       strings.TrimSpace(entry.Link),
				Published:  published,
				SourceName: canonical.CleanText(sourceName),
			})
		}
	}
	return out, lastErr
}

func (s *Service) parseFeedWithRetry(ctx context.Context, parser *gofeed.Parser, feedURL string) (*gofeed.Feed, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 1500 * time.Millisecond):
			}
		}
		feed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err == nil {
			return feed, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// getBody fetches a URL with retry and a response size cap.
func (s *Service) getBody(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 1500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", defaultUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("fetch status %d for %s", resp.StatusCode, rawURL)
			continue
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

func apiKeyFor(provider sources.Provider) string {
	env := strings.TrimSpace(provider.APIKeyEnv)
	if env == "" {
		env = "SERPAPI_API_KEY"
	}
	key := strings.TrimSpace(os.Getenv(env))
	if key == "" || strings.HasPrefix(strings.ToLower(key), "serpapi key") {
		return ""
	}
	return key
}

func buildSearchURL(endpoint, engine, apiKey string, query sources.Query, num int) string {
	params := url.Values{}
	params.Set("engine", engine)
	params.Set("q", query.Q)
	params.Set("api_key", apiKey)
	params.Set("num", fmt.Sprintf("%d", num))
	if query.HL != "" {
		params.Set("hl", query.HL)
	}
	if query.GL != "" {
		params.Set("gl", query.GL)
	}
	if query.CEID != "" {
		params.Set("ceid", query.CEID)
	}
	if query.Location != "" {
		params.Set("location", query.Location)
	}
	return endpoint + "?" + params.Encode()
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
