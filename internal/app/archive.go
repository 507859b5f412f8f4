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
	"horse.fit/avdigest/internal/store"
)

func runArchive(args []string) int {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	timeout := fs.Duration("timeout", 2*time.Minute, "Maximum duration for the archive command")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}
	if err := env.cfg.RequireDatabase(); err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	r, err := report.LoadOrInit(env.reportPath())
	if err != nil {
		return fail(err)
	}
	briefs, err := artifact.ReadJSONL[digest.Brief](env.briefPath(artifact.BriefFile))
	if err != nil {
		return fail(err)
	}

	pool, err := store.NewPool(ctx, env.cfg)
	if err != nil {
		return fail(fmt.Errorf("open archive database: %w", err))
	}
	defer pool.Close()

	if err := pool.SaveRun(ctx, env.runDate, r, briefs); err != nil {
		return fail(fmt.Errorf("archive run: %w", err))
	}

	env.logger.Info().
		Str("date", env.runDate).
		Str("run_id", r.RunID).
		Int("briefs", len(briefs)).
		Msg("run archived")
	fmt.Printf("Archived run %s (%d briefs) for %s\n", r.RunID, len(briefs), env.runDate)
	return 0
}
