// Package render produces the static HTML digest page from brief records.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/globaltime"
	"horse.fit/avdigest/internal/report"
)

//go:embed digest.html.tmpl
var digestTemplate string

type pageItem struct {
	TitleZH    string
	SummaryZH  string
	URL        string
	SourceName string
	Published  string
	Tags       []string
}

type failedSource struct {
	SourceID   string
	SourceName string
	Error      string
}

type pageData struct {
	Date          string
	GeneratedAt   string
	Domestic      []pageItem
	Foreign       []pageItem
	OKSources     int
	TotalSources  int
	DedupeDrops   int
	SummarizeFail int
	StageStatus   map[string]string
	FailedSources []failedSource
}

var tmpl = template.Must(template.New("digest").Parse(digestTemplate))

// Render writes the digest page for a date. Briefs are split by region,
// newest first, capped at topN per section.
func Render(outPath, date string, briefs []digest.Brief, r *report.Report, topN int) error {
	if topN <= 0 {
		topN = 12
	}

	sorted := append([]digest.Brief(nil), briefs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return publishedOf(sorted[i]).After(publishedOf(sorted[j]))
	})

	var domestic, foreign []pageItem
	for _, brief := range sorted {
		item := toPageItem(brief)
		if brief.Region == digest.RegionDomestic {
			if len(domestic) < topN {
				domestic = append(domestic, item)
			}
		} else if len(foreign) < topN {
			foreign = append(foreign, item)
		}
	}

	okSources := 0
	var failed []failedSource
	for _, stat := range r.SourceStats {
		if stat.Status == "ok" && stat.FetchedItems > 0 {
			okSources++
		}
		if stat.Status != "ok" {
			failed = append(failed, failedSource{
				SourceID:   stat.SourceID,
				SourceName: stat.SourceName,
				Error:      stat.Error,
			})
		}
	}

	data := pageData{
		Date:          date,
		GeneratedAt:   globaltime.Beijing().Format("2006-01-02 15:04:05"),
		Domestic:      domestic,
		Foreign:       foreign,
		OKSources:     okSources,
		TotalSources:  len(r.SourceStats),
		DedupeDrops:   r.DedupeDropCount,
		SummarizeFail: r.SummarizeFailCount,
		StageStatus:   r.StageStatus,
		FailedSources: failed,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("execute digest template: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return os.WriteFile(outPath, buf.Bytes(), 0o644)
}

func toPageItem(brief digest.Brief) pageItem {
	published := ""
	if brief.PublishedAt != nil {
		published = brief.PublishedAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	return pageItem{
		TitleZH:    brief.TitleZH,
		SummaryZH:  brief.SummaryZH,
		URL:        brief.URL,
		SourceName: brief.SourceName,
		Published:  published,
		Tags:       brief.Tags,
	}
}

func publishedOf(brief digest.Brief) time.Time {
	if brief.PublishedAt == nil {
		return time.Time{}
	}
	return *brief.PublishedAt
}
