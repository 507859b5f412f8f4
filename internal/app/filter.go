package app

import (
	"flag"
	"fmt"
	"os"

	"horse.fit/avdigest/internal/artifact"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/relevance"
	"horse.fit/avdigest/internal/report"
)

func runFilter(args []string) int {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}

	code, err := filterStage(env)
	if err != nil {
		return fail(err)
	}
	return code
}

func filterStage(env *stageEnv) (int, error) {
	srcCfg, err := env.loadSources()
	if err != nil {
		_ = report.MarkStage(env.reportPath(), "filter", report.StatusFailed)
		return 1, fmt.Errorf("load sources: %w", err)
	}
	relCfg, err := relevance.NewConfig(srcCfg)
	if err != nil {
		_ = report.MarkStage(env.reportPath(), "filter", report.StatusFailed)
		return 1, fmt.Errorf("relevance config: %w", err)
	}

	items, err := artifact.ReadJSONL[digest.Item](env.canonicalPath(artifact.CanonicalFile))
	if err != nil {
		_ = report.MarkStage(env.reportPath(), "filter", report.StatusFailed)
		return 1, err
	}

	classifier := relevance.NewClassifier(relCfg, srcCfg.ByID(), env.runDate, env.logger)
	kept, decisions, stats := classifier.Run(items)

	acc := report.NewAccumulator()
	dropped := make([]relevance.Decision, 0, len(decisions))
	for _, decision := range decisions {
		acc.Observe(decision.Kept, decision.Reason)
		if !decision.Kept {
			dropped = append(dropped, decision)
		}
	}
	if err := artifact.WriteJSONL(env.filteredPath(artifact.FilteredFile), kept); err != nil {
		_ = report.MarkStage(env.reportPath(), "filter", report.StatusFailed)
		return 1, err
	}
	if err := artifact.WriteJSONL(env.filteredPath(artifact.DroppedFile), dropped); err != nil {
		_ = report.MarkStage(env.reportPath(), "filter", report.StatusFailed)
		return 1, err
	}

	dropByReason := acc.DropByReason()
	if err := report.Patch(env.reportPath(), func(r *report.Report) {
		r.StageStatus["filter"] = report.StatusSuccess
		r.RelevanceTotalIn = acc.TotalIn()
		r.RelevanceKept = acc.Kept()
		r.RelevanceDropped = acc.TotalIn() - acc.Kept()
		r.RelevanceDropByReason = dropByReason
		r.RelevanceKeptBySource = report.CountKeptBySource(kept)
		r.RelevancePrecisionMode = relCfg.Mode
		r.RelevancePassRate = acc.PassRate()
		r.PublishedMissingDropCount = dropByReason[relevance.ReasonPublishedMissing]
		r.NotTodayDropCount = dropByReason[relevance.ReasonNotToday]
		r.SourceMaxAgeDropCount = dropByReason[relevance.ReasonSourceMaxAge]
		r.CandidateGateDropCount = dropByReason[relevance.ReasonCandidateGateMiss]
		r.FastPassKeptCount = stats.FastPassKept
		r.FastPassDropCount = stats.FastPassDrop
		r.Stage2ScoredCount = stats.Stage2Scored
		r.Stage2KeptCount = stats.Stage2Kept
		r.SourceCapDropCount = stats.SourceCapDrops
	}); err != nil {
		return 1, err
	}

	env.logger.Info().
		Str("date", env.runDate).
		Str("mode", relCfg.Mode).
		Int("in", acc.TotalIn()).
		Int("kept", acc.Kept()).
		Float64("pass_rate", acc.PassRate()).
		Msg("filter stage finished")
	fmt.Printf("Kept %d of %d items (%.2f%% pass rate, mode %s) for %s\n",
		acc.Kept(), acc.TotalIn(), acc.PassRate(), relCfg.Mode, env.runDate)
	return 0, nil
}
