package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
)

// runProcess executes fetch through render in sequence with one shared
// deadline. Notify stays a separate command so a rerun never double-posts.
func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	timeout := fs.Duration("timeout", 30*time.Minute, "Maximum duration for the whole pipeline")
	topN := fs.Int("top", 12, "Maximum briefs per region section")
	withNotify := fs.Bool("notify", false, "Also deliver the digest to Feishu")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stages := []struct {
		name string
		run  func() (int, error)
	}{
		{"fetch", func() (int, error) { return fetchStage(ctx, env) }},
		{"parse", func() (int, error) { return parseStage(env) }},
		{"filter", func() (int, error) { return filterStage(env) }},
		{"summarize", func() (int, error) { return summarizeStage(ctx, env) }},
		{"render", func() (int, error) { return renderStage(env, *topN) }},
	}
	if *withNotify {
		stages = append(stages, struct {
			name string
			run  func() (int, error)
		}{"notify", func() (int, error) { return notifyStage(ctx, env) }})
	}

	for _, stage := range stages {
		code, err := stage.run()
		if err != nil {
			return fail(fmt.Errorf("%s stage: %w", stage.name, err))
		}
		if code != 0 {
			fmt.Fprintf(os.Stderr, "Error: %s stage failed\n", stage.name)
			return code
		}
	}

	env.logger.Info().Str("date", env.runDate).Msg("pipeline finished")
	return 0
}
