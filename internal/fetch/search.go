package fetch

import (
	"context"
	"encoding/json"
	"strings"

	"horse.fit/avdigest/internal/canonical"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/sources"
)

// searchResponse is the news-results shape returned by SerpAPI-compatible
// providers.
type searchResponse struct {
	NewsResults []searchResult `json:"news_results"`
}

type searchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
	Source  string `json:"source"`
}

func (s *Service) fetchSearchAPI(ctx context.Context, source sources.Source) ([]digest.RawPayload, string) {
	provider, ok := s.cfg.SearchProviders[source.Provider]
	if !ok {
		return nil, "invalid search provider"
	}
	if !provider.IsEnabled() {
		return nil, ""
	}

	apiKey := apiKeyFor(provider)
	if apiKey == "" {
		return nil, ReasonSearchAPIMissingKey
	}

	queries, ok := s.cfg.QuerySets[source.QuerySet]
	if !ok {
		return nil, "invalid query set"
	}

	endpoint := strings.TrimSpace(provider.Endpoint)
	if endpoint == "" {
		endpoint = "https://serpapi.com/search.json"
	}
	engine := strings.TrimSpace(provider.Engine)
	if engine == "" {
		engine = "google_news"
	}
	num := source.MaxResultsPerQuery
	if num <= 0 {
		num = provider.Num
	}
	if num <= 0 {
		num = 10
	}

	var out []digest.RawPayload
	var lastErr string
	for _, query := range queries {
		if strings.TrimSpace(query.Q) == "" {
			continue
		}
		body, err := s.getBody(ctx, buildSearchURL(endpoint, engine, apiKey, query, num))
		if err != nil {
			lastErr = err.Error()
			continue
		}
		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			lastErr = err.Error()
			continue
		}
		out = append(out, parseSearchResults(resp, source.Name)...)
	}
	return out, lastErr
}

func parseSearchResults(resp searchResponse, sourceName string) []digest.RawPayload {
	out := make([]digest.RawPayload, 0, len(resp.NewsResults))
	for _, result := range resp.NewsResults {
		title := canonical.CleanText(result.Title)
		link := strings.TrimSpace(result.Link)
		if title == "" || link == "" {
			continue
		}
		name := canonical.CleanText(result.Source)
		if name == "" {
			name = sourceName
		}
		snippet := canonical.CleanText(result.Snippet)
		out = append(out, digest.RawPayload{
			Title:      title,
			Summary:    snippet,
			Content:    snippet,
			Link:       link,
			Published:  result.Date,
			SourceName: name,
		})
	}
	return out
}
