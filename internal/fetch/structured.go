package fetch

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"

	"horse.fit/avdigest/internal/canonical"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/sources"
)

const (
	structuredSummaryRunes = 320
	structuredContentRunes = 4000
)

// fetchStructured scrapes article links from the source entry pages and
// extracts each article with the configured extractor.
func (s *Service) fetchStructured(ctx context.Context, source sources.Source) ([]digest.RawPayload, string) {
	if len(source.EntryURLs) == 0 {
		return nil, "structured_web source missing entry_urls"
	}

	var links []string
	seen := make(map[string]struct{})
	var lastErr string
	for _, entryURL := range source.EntryURLs {
		body, err := s.getBody(ctx, entryURL)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		for _, link := range extractLinks(entryURL, body, source.Selectors) {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
	}
	if len(links) > structuredMaxLinks {
		links = links[:structuredMaxLinks]
	}

	var out []digest.RawPayload
	for _, articleURL := range links {
		body, err := s.getBody(ctx, articleURL)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		var payload digest.RawPayload
		var ok bool
		if source.Extractor == "readability" {
			payload, ok = extractReadability(articleURL, body, source.Name)
		} else {
			payload, ok = extractCSS(articleURL, body, source.Selectors, source.Name)
		}
		if ok {
			out = append(out, payload)
		}
	}
	return out, lastErr
}

func extractLinks(listURL string, body []byte, selectors map[string]string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(listURL)
	if err != nil {
		return nil
	}

	selector := selectors["article_link"]
	if selector == "" {
		selector = "a"
	}

	var links []string
	doc.Find(selector).Each(func(_ int, node *goquery.Selection) {
		href := strings.TrimSpace(node.AttrOr("href", ""))
		if href == "" {
			return
		}
		low := strings.ToLower(href)
		if strings.HasPrefix(low, "javascript:") || strings.HasPrefix(low, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links
}

func extractCSS(articleURL string, body []byte, selectors map[string]string, sourceName string) (digest.RawPayload, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return digest.RawPayload{}, false
	}

	titleSelector := selectors["title"]
	if titleSelector == "" {
		titleSelector = "h1"
	}
	contentSelector := selectors["content"]
	if contentSelector == "" {
		contentSelector = "article p"
	}
	dateSelector := selectors["published"]
	if dateSelector == "" {
		dateSelector = "time"
	}

	title := canonical.CleanText(doc.Find(titleSelector).First().Text())
	if title == "" {
		title = canonical.CleanText(doc.Find("title").First().Text())
	}

	var parts []string
	doc.Find(contentSelector).Each(func(_ int, node *goquery.Selection) {
		parts = append(parts, node.Text())
	})
	content := canonical.CleanText(strings.Join(parts, " "))
	if content == "" {
		content = canonical.CleanText(doc.Find("body").Text())
	}

	published := ""
	if node := doc.Find(dateSelector).First(); node.Length() > 0 {
		published = strings.TrimSpace(node.AttrOr("datetime", ""))
		if published == "" {
			published = canonical.CleanText(node.Text())
		}
	}

	if title == "" {
		return digest.RawPayload{}, false
	}
	return digest.RawPayload{
		Title:      title,
		Summary:    clipRunes(content, structuredSummaryRunes),
		Content:    clipRunes(content, structuredContentRunes),
		Link:       articleURL,
		Published:  published,
		SourceName: sourceName,
	}, true
}

func extractReadability(articleURL string, body []byte, sourceName string) (digest.RawPayload, bool) {
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return digest.RawPayload{}, false
	}
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return digest.RawPayload{}, false
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return digest.RawPayload{}, false
	}
	content := canonical.CleanText(rendered.String())
	if content == "" {
		content = canonical.CleanText(article.Excerpt())
	}

	title := canonical.CleanText(article.Title())
	if title == "" {
		return digest.RawPayload{}, false
	}
	return digest.RawPayload{
		Title:      title,
		Summary:    clipRunes(content, structuredSummaryRunes),
		Content:    clipRunes(content, structuredContentRunes),
		Link:       articleURL,
		Published:  "",
		SourceName: sourceName,
	}, true
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
