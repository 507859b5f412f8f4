package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/avdigest/internal/artifact"
	"horse.fit/avdigest/internal/fetch"
	"horse.fit/avdigest/internal/report"
)

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	timeout := fs.Duration("timeout", 15*time.Minute, "Maximum duration for the whole fetch stage")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	code, err := fetchStage(ctx, env)
	if err != nil {
		return fail(err)
	}
	return code
}

// fetchStage pulls every configured source, writes the raw artifact, and
// records per-source stats. Individual source failures degrade the stage to
// partial rather than failing the run.
func fetchStage(ctx context.Context, env *stageEnv) (int, error) {
	srcCfg, err := env.loadSources()
	if err != nil {
		_ = report.MarkStage(env.reportPath(), "fetch", report.StatusFailed)
		return 1, fmt.Errorf("load sources: %w", err)
	}

	service := fetch.NewService(srcCfg, env.cfg.RequestTimeout, env.cfg.RetryAttempts, env.logger)
	rawItems, stats := service.Run(ctx)

	if err := artifact.WriteJSONL(env.rawPath(artifact.RawFile), rawItems); err != nil {
		_ = report.MarkStage(env.reportPath(), "fetch", report.StatusFailed)
		return 1, err
	}

	failed := 0
	discoveryRaw := 0
	for _, stat := range stats {
		if stat.Status == "fail" {
			failed++
		}
	}
	for _, raw := range rawItems {
		if raw.SourceCategory == "discovery" {
			discoveryRaw++
		}
	}

	status := report.StatusSuccess
	if failed > 0 {
		status = report.StatusPartial
	}
	if failed == len(stats) && len(stats) > 0 {
		status = report.StatusFailed
	}

	if err := report.Patch(env.reportPath(), func(r *report.Report) {
		r.StageStatus["fetch"] = status
		r.SourceStats = stats
		r.TotalItemsRaw = len(rawItems)
		r.DiscoveryItemsRawCount = discoveryRaw
	}); err != nil {
		return 1, err
	}

	env.logger.Info().
		Str("date", env.runDate).
		Int("raw_items", len(rawItems)).
		Int("sources", len(stats)).
		Int("failed_sources", failed).
		Msg("fetch stage finished")
	fmt.Printf("Fetched %d items from %d sources (%d failed) for %s\n",
		len(rawItems), len(stats), failed, env.runDate)

	if status == report.StatusFailed {
		return 1, nil
	}
	return 0, nil
}
