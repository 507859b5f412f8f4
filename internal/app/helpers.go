package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/cli"
	"horse.fit/avdigest/internal/config"
	"horse.fit/avdigest/internal/globaltime"
	"horse.fit/avdigest/internal/logging"
	"horse.fit/avdigest/internal/report"
	"horse.fit/avdigest/internal/sources"
)

var runDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// stageEnv is the shared bootstrap every stage command performs: env file,
// config, logger, run date.
type stageEnv struct {
	cfg     *config.Config
	logger  zerolog.Logger
	runDate string
}

// addCommonFlags registers the flags every stage shares and returns the
// env loader plus the run date flag value.
func addCommonFlags(fs *flag.FlagSet) (*cli.EnvLoader, *string) {
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	date := fs.String("date", "", "Run date YYYY-MM-DD; default today in Beijing")
	return envLoader, date
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

// bootstrap loads env + config + logger and resolves the run date.
// A missing .env file is a warning, not an error.
func bootstrap(envLoader *cli.EnvLoader, date string) (*stageEnv, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	runDate := strings.TrimSpace(date)
	if runDate == "" {
		runDate = globaltime.RunDate()
	}
	if !runDatePattern.MatchString(runDate) {
		return nil, fmt.Errorf("invalid --date %q, want YYYY-MM-DD", runDate)
	}

	return &stageEnv{cfg: cfg, logger: logger, runDate: runDate}, nil
}

func (e *stageEnv) loadSources() (*sources.Config, error) {
	return sources.Load(e.cfg.SourcesPath)
}

// Per-kind artifact roots under the configured artifacts directory.
func (e *stageEnv) rawPath(name string) string {
	return filepath.Join(e.cfg.ArtifactsRoot, "raw", e.runDate, name)
}

func (e *stageEnv) canonicalPath(name string) string {
	return filepath.Join(e.cfg.ArtifactsRoot, "canonical", e.runDate, name)
}

func (e *stageEnv) filteredPath(name string) string {
	return filepath.Join(e.cfg.ArtifactsRoot, "filtered", e.runDate, name)
}

func (e *stageEnv) briefPath(name string) string {
	return filepath.Join(e.cfg.ArtifactsRoot, "brief", e.runDate, name)
}

func (e *stageEnv) reportsRoot() string {
	return filepath.Join(e.cfg.ArtifactsRoot, "reports")
}

func (e *stageEnv) reportPath() string {
	return report.Path(e.reportsRoot(), e.runDate)
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
