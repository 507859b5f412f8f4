// Package canonical normalizes raw fetched entries into canonical items.
package canonical

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/langdetect"
)

const snippetMaxRunes = 8000

var (
	tagPattern       = regexp.MustCompile(`<[^>]+>`)
	spacePattern     = regexp.MustCompile(`\s+`)
	parenPattern     = regexp.MustCompile(`\([^)]*\)`)
	titleJunkPattern = regexp.MustCompile(`[^a-z0-9\x{4e00}-\x{9fff}]+`)
	latinRunPattern  = regexp.MustCompile(`[a-z0-9]+`)
)

// isTrackingParam reports whether a query key carries campaign tracking
// state rather than content. Both the bare "utm" key and the utm_* family
// show up in republished links.
func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	return k == "utm" || strings.HasPrefix(k, "utm_")
}

// CleanText strips markup tags and collapses whitespace.
func CleanText(text string) string {
	s := tagPattern.ReplaceAllString(text, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeTitle lowercases, drops parenthesized runs, and reduces the title
// to alphanumerics and Han characters separated by single spaces. Titles that
// normalize to the same key are near-certain duplicates.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = parenPattern.ReplaceAllString(s, "")
	s = titleJunkPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeURL produces the canonical URL form: lowercase scheme and host,
// tracking params removed, remaining query sorted, fragment dropped. Returns
// "" for anything that is not an absolute http(s) URL.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err != nil {
			u.RawQuery = ""
		} else {
			type pair struct{ k, v string }
			var pairs []pair
			for k, vs := range values {
				if isTrackingParam(k) {
					continue
				}
				for _, v := range vs {
					pairs = append(pairs, pair{k, v})
				}
			}
			sort.Slice(pairs, func(i, j int) bool {
				if pairs[i].k != pairs[j].k {
					return pairs[i].k < pairs[j].k
				}
				return pairs[i].v < pairs[j].v
			})
			q := url.Values{}
			for _, p := range pairs {
				q.Add(p.k, p.v)
			}
			u.RawQuery = q.Encode()
		}
	}

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// Tokenize splits text into lowercase latin/digit runs and individual Han
// characters. Han text has no word boundaries, so each character is a token.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	low := strings.ToLower(text)

	var tokens []string
	for _, run := range latinRunPattern.FindAllString(low, -1) {
		tokens = append(tokens, run)
	}
	for _, r := range low {
		if unicode.Is(unicode.Han, r) {
			tokens = append(tokens, string(r))
		}
	}
	return tokens
}

// SHA1Hex returns the lowercase hex SHA-1 of text.
func SHA1Hex(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

var datetimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDatetime parses the published formats seen in the wild and converts
// to UTC. Returns ok=false when nothing matches; callers keep the item and
// flag the timestamp missing rather than guessing.
func ParseDatetime(value string) (time.Time, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range datetimeLayouts {
		if dt, err := time.Parse(layout, text); err == nil {
			return dt.UTC(), true
		}
	}
	return time.Time{}, false
}

// Canonicalize converts one raw item into a canonical item. It returns false
// when the row is malformed: no usable title or no normalizable URL.
func Canonicalize(raw digest.RawItem) (digest.Item, bool) {
	title := CleanText(raw.Payload.Title)
	snippet := CleanText(raw.Payload.Content)
	if snippet == "" {
		snippet = CleanText(raw.Payload.Summary)
	}
	link := raw.Payload.Link
	if link == "" {
		link = raw.URL
	}
	normURL := NormalizeURL(link)
	if title == "" || normURL == "" {
		return digest.Item{}, false
	}

	if runes := []rune(snippet); len(runes) > snippetMaxRunes {
		snippet = string(runes[:snippetMaxRunes])
	}

	var publishedAt *time.Time
	publishedMissing := true
	if dt, ok := ParseDatetime(raw.Payload.Published); ok {
		publishedAt = &dt
		publishedMissing = false
	}

	sourceName := strings.TrimSpace(raw.Payload.SourceName)
	if sourceName == "" {
		sourceName = strings.TrimSpace(raw.SourceName)
	}

	titleKey := NormalizeTitle(title)
	if titleKey == "" {
		titleKey = strings.ToLower(title)
	}

	lang := langdetect.DetectISO6391(title + " " + snippet)
	if lang == "" {
		lang = "en"
	}

	return digest.Item{
		ID:               SHA1Hex(normURL),
		SourceID:         strings.TrimSpace(raw.SourceID),
		SourceName:       sourceName,
		SourceCategory:   strings.TrimSpace(raw.SourceCategory),
		Region:           normalizeRegion(raw.Region),
		CompanyHint:      strings.TrimSpace(raw.CompanyHint),
		Title:            title,
		Snippet:          snippet,
		URL:              normURL,
		PublishedAt:      publishedAt,
		PublishedMissing: publishedMissing,
		Language:         lang,
		Fingerprint:      SHA1Hex(titleKey),
		FetchTime:        raw.FetchedAt.UTC(),
	}, true
}

func normalizeRegion(region string) string {
	r := strings.ToLower(strings.TrimSpace(region))
	if r != digest.RegionDomestic {
		return digest.RegionForeign
	}
	return r
}
