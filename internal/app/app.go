// Package app implements the avdigest CLI commands. Each pipeline stage is
// its own subcommand so the scheduler can run and retry stages separately.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "validate":
		return runValidate(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "parse":
		return runParse(args[1:])
	case "filter":
		return runFilter(args[1:])
	case "summarize":
		return runSummarize(args[1:])
	case "render":
		return runRender(args[1:])
	case "notify":
		return runNotify(args[1:])
	case "report":
		return runReport(args[1:])
	case "archive":
		return runArchive(args[1:])
	case "serve":
		return runServe(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "avdigest CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  avdigest <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  validate   Validate the sources configuration file")
	fmt.Fprintln(os.Stderr, "  fetch      Fetch raw items from all configured sources")
	fmt.Fprintln(os.Stderr, "  parse      Canonicalize and deduplicate raw items")
	fmt.Fprintln(os.Stderr, "  filter     Classify canonical items for relevance")
	fmt.Fprintln(os.Stderr, "  summarize  Produce Chinese briefs for filtered items")
	fmt.Fprintln(os.Stderr, "  render     Render the HTML digest page")
	fmt.Fprintln(os.Stderr, "  notify     Deliver the digest to Feishu")
	fmt.Fprintln(os.Stderr, "  report     Print a run report")
	fmt.Fprintln(os.Stderr, "  archive    Persist a finished run into Postgres")
	fmt.Fprintln(os.Stderr, "  serve      Start the digest web server")
	fmt.Fprintln(os.Stderr, "  process    Run fetch through render in sequence")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for process")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"avdigest <command> -h\" for command-specific flags.")
}
