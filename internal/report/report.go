// Package report maintains the per-date run report each pipeline stage
// patches as it completes. The report is the only user-visible record of
// why every item was kept or dropped.
package report

import (
	"path/filepath"

	"github.com/google/uuid"

	"horse.fit/avdigest/internal/artifact"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/globaltime"
)

const FileName = "run_report.json"

// Stage status values.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// SourceStat records one source's fetch outcome.
type SourceStat struct {
	SourceID     string `json:"source_id"`
	SourceName   string `json:"source_name"`
	SourceType   string `json:"source_type"`
	Status       string `json:"status"`
	FetchedItems int    `json:"fetched_items"`
	KeptItems    int    `json:"kept_items"`
	Error        string `json:"error,omitempty"`
	ErrorReason  string `json:"error_reason_code,omitempty"`
}

// PushStatus records the outcome of the notification delivery.
type PushStatus struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Report is the full run record. Downstream tooling depends on these field
// names staying stable.
type Report struct {
	RunID          string            `json:"run_id"`
	GeneratedAtUTC string            `json:"generated_at_utc"`
	StageStatus    map[string]string `json:"stage_status"`

	SourceStats []SourceStat `json:"source_stats"`

	TotalItemsRaw       int            `json:"total_items_raw"`
	TotalItemsCanonical int            `json:"total_items_canonical"`
	MalformedItemCount  int            `json:"malformed_item_count"`
	DedupeDropCount     int            `json:"dedupe_drop_count"`
	ParseDedupeL1       int            `json:"parse_dedupe_l1"`
	ParseDedupeL2       int            `json:"parse_dedupe_l2"`
	ParseDedupeL3       int            `json:"parse_dedupe_l3"`
	CanonicalBySource   map[string]int `json:"canonical_by_source,omitempty"`

	DiscoveryItemsRawCount       int `json:"discovery_items_raw_count"`
	DiscoveryItemsCanonicalCount int `json:"discovery_items_canonical_count"`

	RelevanceTotalIn          int            `json:"relevance_total_in"`
	RelevanceKept             int            `json:"relevance_kept"`
	RelevanceDropped          int            `json:"relevance_dropped"`
	RelevanceDropByReason     map[string]int `json:"relevance_drop_by_reason,omitempty"`
	RelevanceKeptBySource     map[string]int `json:"relevance_kept_by_source,omitempty"`
	RelevancePrecisionMode    string         `json:"relevance_precision_mode,omitempty"`
	RelevancePassRate         float64        `json:"relevance_pass_rate"`
	PublishedMissingDropCount int            `json:"published_missing_drop_count"`
	NotTodayDropCount         int            `json:"not_today_drop_count"`
	SourceMaxAgeDropCount     int            `json:"source_max_age_drop_count"`
	CandidateGateDropCount    int            `json:"candidate_gate_drop_count"`
	FastPassKeptCount         int            `json:"fast_pass_kept_count"`
	FastPassDropCount         int            `json:"fast_pass_drop_count"`
	Stage2ScoredCount         int            `json:"stage2_scored_count"`
	Stage2KeptCount           int            `json:"stage2_kept_count"`
	SourceCapDropCount        int            `json:"source_cap_drop_count"`

	SummarizeFailCount int `json:"summarize_fail_count"`
	BriefCount         int `json:"brief_count"`

	FeishuPushStatus PushStatus `json:"feishu_push_status"`
}

func New() *Report {
	return &Report{
		RunID:          uuid.NewString(),
		GeneratedAtUTC: globaltime.UTC().Format("2006-01-02T15:04:05Z07:00"),
		StageStatus: map[string]string{
			"fetch":     StatusPending,
			"parse":     StatusPending,
			"filter":    StatusPending,
			"summarize": StatusPending,
			"render":    StatusPending,
			"notify":    StatusPending,
		},
		SourceStats:      []SourceStat{},
		FeishuPushStatus: PushStatus{Status: StatusPending},
	}
}

// Path builds <root>/<date>/run_report.json.
func Path(root, date string) string {
	return filepath.Join(root, date, FileName)
}

// LoadOrInit reads the report for a date, creating a fresh one on first
// touch so any stage can run first.
func LoadOrInit(path string) (*Report, error) {
	var r Report
	err := artifact.ReadJSON(path, &r)
	if err == nil {
		if r.StageStatus == nil {
			r.StageStatus = map[string]string{}
		}
		return &r, nil
	}
	fresh := New()
	if saveErr := artifact.WriteJSON(path, fresh); saveErr != nil {
		return nil, saveErr
	}
	return fresh, nil
}

func Save(path string, r *Report) error {
	return artifact.WriteJSON(path, r)
}

// MarkStage sets one stage's status and persists.
func MarkStage(path, stage, status string) error {
	r, err := LoadOrInit(path)
	if err != nil {
		return err
	}
	r.StageStatus[stage] = status
	return Save(path, r)
}

// Patch loads the report, applies fn, and persists the result.
func Patch(path string, fn func(*Report)) error {
	r, err := LoadOrInit(path)
	if err != nil {
		return err
	}
	fn(r)
	return Save(path, r)
}

// Accumulator collects decision counters during the filter stage and checks
// the accounting invariant before the counts reach the report.
type Accumulator struct {
	totalIn    int
	kept       int
	dropReason map[string]int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{dropReason: map[string]int{}}
}

func (a *Accumulator) Observe(kept bool, reason string) {
	a.totalIn++
	if kept {
		a.kept++
		return
	}
	a.dropReason[reason]++
}

func (a *Accumulator) Kept() int { return a.kept }

func (a *Accumulator) TotalIn() int { return a.totalIn }

func (a *Accumulator) DropByReason() map[string]int { return a.dropReason }

// Balanced reports whether kept plus all drop reasons equals total input.
// A false return is a programming defect, not a runtime condition.
func (a *Accumulator) Balanced() bool {
	total := a.kept
	for _, n := range a.dropReason {
		total += n
	}
	return total == a.totalIn
}

// PassRate returns the kept percentage rounded to two decimals.
func (a *Accumulator) PassRate() float64 {
	if a.totalIn == 0 {
		return 0
	}
	rate := float64(a.kept) / float64(a.totalIn) * 100
	return float64(int(rate*100+0.5)) / 100
}

// CountKeptBySource tallies surviving items per source id.
func CountKeptBySource(items []digest.Item) map[string]int {
	out := make(map[string]int)
	for _, item := range items {
		out[item.SourceID]++
	}
	return out
}
