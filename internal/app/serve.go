package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"horse.fit/avdigest/internal/cli"
	"horse.fit/avdigest/internal/httpapi"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, "")
	if err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := httpapi.NewServer(env.logger, httpapi.Options{
		Host:        env.cfg.HTTPHost,
		Port:        env.cfg.HTTPPort,
		ReportsRoot: env.reportsRoot(),
		SitePath:    env.cfg.SiteOutput,
	})
	if err := server.Start(ctx); err != nil {
		return fail(err)
	}
	return 0
}
