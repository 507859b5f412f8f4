package app

import (
	"flag"
	"fmt"
	"os"

	"horse.fit/avdigest/internal/artifact"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/render"
	"horse.fit/avdigest/internal/report"
)

func runRender(args []string) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	topN := fs.Int("top", 12, "Maximum briefs per region section")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}

	code, err := renderStage(env, *topN)
	if err != nil {
		return fail(err)
	}
	return code
}

func renderStage(env *stageEnv, topN int) (int, error) {
	briefs, err := artifact.ReadJSONL[digest.Brief](env.briefPath(artifact.BriefFile))
	if err != nil {
		_ = report.MarkStage(env.reportPath(), "render", report.StatusFailed)
		return 1, err
	}

	r, err := report.LoadOrInit(env.reportPath())
	if err != nil {
		return 1, err
	}

	if err := render.Render(env.cfg.SiteOutput, env.runDate, briefs, r, topN); err != nil {
		_ = report.MarkStage(env.reportPath(), "render", report.StatusFailed)
		return 1, err
	}

	if err := report.MarkStage(env.reportPath(), "render", report.StatusSuccess); err != nil {
		return 1, err
	}

	env.logger.Info().
		Str("date", env.runDate).
		Str("output", env.cfg.SiteOutput).
		Int("briefs", len(briefs)).
		Msg("render stage finished")
	fmt.Printf("Rendered %d briefs to %s for %s\n", len(briefs), env.cfg.SiteOutput, env.runDate)
	return 0, nil
}
