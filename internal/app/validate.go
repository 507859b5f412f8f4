package app

import (
	"flag"
	"fmt"
	"os"

	"horse.fit/avdigest/internal/cli"
	"horse.fit/avdigest/internal/config"
	"horse.fit/avdigest/internal/sources"
)

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	path := fs.String("sources", "", "Sources config path; default SOURCES_PATH")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if _, err := envLoader.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	target := *path
	if target == "" {
		cfg, err := config.Load()
		if err != nil {
			return fail(err)
		}
		target = cfg.SourcesPath
	}

	srcCfg, err := sources.Load(target)
	if err != nil {
		return fail(fmt.Errorf("validate %s: %w", target, err))
	}

	fmt.Printf("%s is valid: %d sources, %d companies, %d query sets\n",
		target, len(srcCfg.Sources), len(srcCfg.Companies), len(srcCfg.QuerySets))
	return 0
}
