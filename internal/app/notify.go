package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/avdigest/internal/artifact"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/notify"
	"horse.fit/avdigest/internal/report"
)

func runNotify(args []string) int {
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader, date := addCommonFlags(fs)
	timeout := fs.Duration("timeout", 2*time.Minute, "Maximum duration for the notify stage")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	env, err := bootstrap(envLoader, *date)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	code, err := notifyStage(ctx, env)
	if err != nil {
		return fail(err)
	}
	return code
}

func notifyStage(ctx context.Context, env *stageEnv) (int, error) {
	briefs, err := artifact.ReadJSONL[digest.Brief](env.briefPath(artifact.BriefFile))
	if err != nil {
		_ = report.MarkStage(env.reportPath(), "notify", report.StatusFailed)
		return 1, err
	}

	client := notify.NewClient(notify.Config{
		WebhookURL:    env.cfg.FeishuWebhookURL,
		WebhookSecret: env.cfg.FeishuWebhookSecret,
		AppID:         env.cfg.FeishuAppID,
		AppSecret:     env.cfg.FeishuAppSecret,
		ReceiveOpenID: env.cfg.FeishuReceiveOpenID,
	}, env.cfg.RequestTimeout, env.logger)

	text := notify.BuildMessage(env.runDate, env.cfg.SiteURL, briefs)
	messageUUID := notify.MessageUUID(env.runDate, env.cfg.SiteURL, text)

	status, sendErr := client.Send(ctx, text, messageUUID)

	stageStatus := report.StatusSuccess
	errText := ""
	if sendErr != nil {
		stageStatus = report.StatusFailed
		errText = sendErr.Error()
	}
	if err := report.Patch(env.reportPath(), func(r *report.Report) {
		r.StageStatus["notify"] = stageStatus
		r.FeishuPushStatus = report.PushStatus{Status: status, Error: errText}
	}); err != nil {
		return 1, err
	}

	if sendErr != nil {
		return 1, fmt.Errorf("notify delivery: %w", sendErr)
	}

	env.logger.Info().
		Str("date", env.runDate).
		Str("status", status).
		Msg("notify stage finished")
	fmt.Printf("Notify status for %s: %s\n", env.runDate, status)
	return 0, nil
}
