package app

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"horse.fit/avdigest/internal/report"
)

func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}

	r, err := report.LoadOrInit(env.reportPath())
	if err != nil {
		return fail(err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fail(err)
	}
	fmt.Println(string(data))
	return 0
}
