package app

import (
	"flag"
	"fmt"
	"os"

	"horse.fit/avdigest/internal/artifact"
	"horse.fit/avdigest/internal/canonical"
	"horse.fit/avdigest/internal/dedup"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/report"
)

func runParse(args []string) int {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}

	code, err := parseStage(env)
	if err != nil {
		return fail(err)
	}
	return code
}

// parseStage canonicalizes the raw items and removes duplicates across the
// three layers. Canonical output preserves first-seen order.
func parseStage(env *stageEnv) (int, error) {
	rawItems, err := artifact.ReadJSONL[digest.RawItem](env.rawPath(artifact.RawFile))
	if err != nil {
		_ = report.MarkStage(env.reportPath(), "parse", report.StatusFailed)
		return 1, err
	}

	items := make([]digest.Item, 0, len(rawItems))
	skipped := 0
	for _, raw := range rawItems {
		item, ok := canonical.Canonicalize(raw)
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}

	engine := dedup.NewEngine(env.logger)
	kept, _, result := engine.Run(items)

	if err := artifact.WriteJSONL(env.canonicalPath(artifact.CanonicalFile), kept); err != nil {
		_ = report.MarkStage(env.reportPath(), "parse", report.StatusFailed)
		return 1, err
	}

	bySource := make(map[string]int, 16)
	discoveryCanonical := 0
	for _, item := range kept {
		bySource[item.SourceID]++
		if item.SourceCategory == digest.CategoryDiscovery {
			discoveryCanonical++
		}
	}

	drops := result.L1Dropped + result.L2Dropped + result.L3Dropped
	if err := report.Patch(env.reportPath(), func(r *report.Report) {
		r.StageStatus["parse"] = report.StatusSuccess
		r.TotalItemsCanonical = len(kept)
		r.MalformedItemCount = skipped + result.Malformed
		r.DedupeDropCount = drops
		r.ParseDedupeL1 = result.L1Dropped
		r.ParseDedupeL2 = result.L2Dropped
		r.ParseDedupeL3 = result.L3Dropped
		r.CanonicalBySource = bySource
		r.DiscoveryItemsCanonicalCount = discoveryCanonical
	}); err != nil {
		return 1, err
	}

	env.logger.Info().
		Str("date", env.runDate).
		Int("raw_in", len(rawItems)).
		Int("canonical_out", len(kept)).
		Int("skipped", skipped).
		Int("dedupe_l1", result.L1Dropped).
		Int("dedupe_l2", result.L2Dropped).
		Int("dedupe_l3", result.L3Dropped).
		Int("malformed", result.Malformed).
		Msg("parse stage finished")
	fmt.Printf("Canonicalized %d of %d items (%d duplicates dropped) for %s\n",
		len(kept), len(rawItems), drops, env.runDate)
	return 0, nil
}
