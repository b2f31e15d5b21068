package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/desertthunder/offbeat/internal/tasks"
	"github.com/urfave/cli/v3"
)

type cycleSummary struct {
	Skipped   string   `json:"skipped,omitempty"`
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Dropped   []string `json:"dropped"`
	Aborted   bool     `json:"aborted"`
	Duration  string   `json:"duration"`
}

func summarize(res *tasks.CycleResult) cycleSummary {
	orEmpty := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}
	return cycleSummary{
		Skipped:   string(res.Skipped),
		Succeeded: orEmpty(res.Succeeded),
		Failed:    orEmpty(res.Failed),
		Dropped:   orEmpty(res.Dropped),
		Aborted:   res.Aborted,
		Duration:  res.Duration.Round(time.Millisecond).String(),
	}
}

// SyncRun probes the server and runs one cycle.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.probe.Check(ctx)
	res, err := a.sync.RunCycle(ctx)

	if cmd.Bool("json") {
		if werr := r.writeJSON(summarize(res), true); werr != nil {
			return werr
		}
		return err
	}

	if !res.Ran() {
		r.writePlain("Sync skipped: %s\n", res.Skipped)
		return err
	}

	r.writePlain("✓ Synced %d change(s) in %s\n", len(res.Succeeded), res.Duration.Round(time.Millisecond))
	if len(res.Dropped) > 0 {
		r.writePlain("Dropped %d change(s) the server rejected\n", len(res.Dropped))
	}
	if len(res.Failed) > 0 {
		r.writePlain("%d change(s) will be retried\n", len(res.Failed))
	}
	if res.Aborted && err == nil {
		err = fmt.Errorf("%w: session rejected, sign in again", shared.ErrUnauthorized)
	}
	return err
}

// SyncDaemon runs the scheduled sync loop until the command is interrupted.
func (r *Runner) SyncDaemon(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.probe.Start()
	a.sync.Start(ctx)
	r.logger.Info("sync daemon running", "interval", r.config.Sync.Interval.Duration)

	<-ctx.Done()
	return nil
}
