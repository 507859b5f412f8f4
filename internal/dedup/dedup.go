// Package dedup collapses duplicate coverage of one event into a single
// canonical instance via three cascading layers: exact URL, normalized
// title, and TF-IDF cosine similarity.
package dedup

import (
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/canonical"
	"horse.fit/avdigest/internal/digest"
)

// Layer identifies which layer marked an item duplicate.
const (
	LayerNone     = "none"
	LayerURL      = "l1_url"
	LayerTitle    = "l2_title"
	LayerSemantic = "l3_semantic"
)

// SimilarityThreshold is the calibrated cosine bound; equality counts as
// duplicate.
const SimilarityThreshold = 0.85

// Decision records the dedup outcome for one input item.
type Decision struct {
	ItemID      string `json:"item_id"`
	Kept        bool   `json:"kept"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
	Layer       string `json:"layer"`
}

// Result carries per-layer drop counts for the run report.
type Result struct {
	L1Dropped int
	L2Dropped int
	L3Dropped int
	Malformed int
}

type Engine struct {
	logger zerolog.Logger
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "dedup").Logger()}
}

// Run deduplicates items in discovery order. Survivors keep their original
// relative order, and each input item gets exactly one decision. Malformed
// items (no url and no title) bypass comparison and survive with layer none.
func (e *Engine) Run(items []digest.Item) ([]digest.Item, []Decision, Result) {
	var result Result
	decisions := make([]Decision, len(items))
	for i, item := range items {
		decisions[i] = Decision{ItemID: item.ID, Kept: true, Layer: LayerNone}
		if isMalformed(item) {
			result.Malformed++
			e.logger.Warn().
				Str("item_id", item.ID).
				Str("source_id", item.SourceID).
				Msg("malformed item passed through dedup")
		}
	}

	// L1: exact normalized URL, earliest seen survives.
	seenURL := make(map[string]string)
	for i, item := range items {
		if isMalformed(item) || item.URL == "" {
			continue
		}
		if firstID, ok := seenURL[item.URL]; ok {
			decisions[i].Kept = false
			decisions[i].DuplicateOf = firstID
			decisions[i].Layer = LayerURL
			result.L1Dropped++
			continue
		}
		seenURL[item.URL] = item.ID
	}

	// L2: exact normalized title among L1 survivors. An empty title key is
	// never treated as a duplicate basis.
	seenTitle := make(map[string]string)
	for i, item := range items {
		if !decisions[i].Kept || isMalformed(item) {
			continue
		}
		key := canonical.NormalizeTitle(item.Title)
		if key == "" {
			continue
		}
		if firstID, ok := seenTitle[key]; ok {
			decisions[i].Kept = false
			decisions[i].DuplicateOf = firstID
			decisions[i].Layer = LayerTitle
			result.L2Dropped++
			continue
		}
		seenTitle[key] = item.ID
	}

	// L3: TF-IDF cosine within the same locale. IDF comes from the post-L2
	// survivor corpus, so layer outcomes do not shift as L3 eliminates items.
	for _, region := range []string{digest.RegionDomestic, digest.RegionForeign} {
		e.semanticPass(items, decisions, region, &result)
	}

	survivors := make([]digest.Item, 0, len(items))
	for i, item := range items {
		if decisions[i].Kept {
			survivors = append(survivors, item)
		}
	}

	e.logger.Info().
		Int("input", len(items)).
		Int("survivors", len(survivors)).
		Int("l1_dropped", result.L1Dropped).
		Int("l2_dropped", result.L2Dropped).
		Int("l3_dropped", result.L3Dropped).
		Int("malformed", result.Malformed).
		Msg("dedup complete")

	return survivors, decisions, result
}

// semanticPass runs the O(n^2) pairwise comparison over one locale's
// survivors. Bounded per-run volumes make the quadratic cost acceptable.
func (e *Engine) semanticPass(items []digest.Item, decisions []Decision, region string, result *Result) {
	var idx []int
	var docs [][]string
	for i, item := range items {
		if !decisions[i].Kept || isMalformed(item) || item.Region != region {
			continue
		}
		idx = append(idx, i)
		docs = append(docs, canonical.Tokenize(canonical.NormalizeTitle(item.Title)+" "+item.Snippet))
	}
	if len(idx) < 2 {
		return
	}

	vectors := buildVectors(docs)
	for a := 0; a < len(idx); a++ {
		i := idx[a]
		if !decisions[i].Kept || len(vectors[a]) == 0 {
			continue
		}
		for b := 0; b < a; b++ {
			j := idx[b]
			if !decisions[j].Kept || len(vectors[b]) == 0 {
				continue
			}
			if cosine(vectors[a], vectors[b]) >= SimilarityThreshold {
				decisions[i].Kept = false
				decisions[i].DuplicateOf = items[j].ID
				decisions[i].Layer = LayerSemantic
				result.L3Dropped++
				break
			}
		}
	}
}

func isMalformed(item digest.Item) bool {
	return strings.TrimSpace(item.URL) == "" && strings.TrimSpace(item.Title) == ""
}
