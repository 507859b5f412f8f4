package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/avdigest/internal/artifact"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/report"
	"horse.fit/avdigest/internal/summarize"
)

func runSummarize(args []string) int {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	timeout := fs.Duration("timeout", 10*time.Minute, "Maximum duration for the summarize stage")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	code, err := summarizeStage(ctx, env)
	if err != nil {
		return fail(err)
	}
	return code
}

// summarizeStage produces Chinese briefs for the filtered items. Without a
// Gemini key every brief comes from the deterministic fallback.
func summarizeStage(ctx context.Context, env *stageEnv) (int, error) {
	items, err := artifact.ReadJSONL[digest.Item](env.filteredPath(artifact.FilteredFile))
	if err != nil {
		_ = report.MarkStage(env.reportPath(), "summarize", report.StatusFailed)
		return 1, err
	}

	var provider summarize.Provider
	if env.cfg.GeminiAPIKey != "" {
		gemini, err := summarize.NewGeminiProvider(ctx, env.cfg.GeminiAPIKey, env.cfg.GeminiModel)
		if err != nil {
			_ = report.MarkStage(env.reportPath(), "summarize", report.StatusFailed)
			return 1, fmt.Errorf("gemini provider: %w", err)
		}
		defer gemini.Close()
		provider = gemini
	}

	cache := summarize.LoadCache(env.cfg.SummaryCachePath)
	service := summarize.NewService(provider, cache, env.cfg.MaxSummaryCalls, env.logger)
	briefs, failCount := service.Run(ctx, items)

	if err := cache.Save(); err != nil {
		env.logger.Warn().Err(err).Msg("summary cache save failed")
	}

	if err := artifact.WriteJSONL(env.briefPath(artifact.BriefFile), briefs); err != nil {
		_ = report.MarkStage(env.reportPath(), "summarize", report.StatusFailed)
		return 1, err
	}

	status := report.StatusSuccess
	if failCount > 0 {
		status = report.StatusPartial
	}
	if err := report.Patch(env.reportPath(), func(r *report.Report) {
		r.StageStatus["summarize"] = status
		r.SummarizeFailCount = failCount
		r.BriefCount = len(briefs)
	}); err != nil {
		return 1, err
	}

	env.logger.Info().
		Str("date", env.runDate).
		Int("briefs", len(briefs)).
		Int("provider_failures", failCount).
		Msg("summarize stage finished")
	fmt.Printf("Summarized %d briefs (%d provider failures) for %s\n",
		len(briefs), failCount, env.runDate)
	return 0, nil
}
