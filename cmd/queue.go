package main

import (
	"context"

	"github.com/desertthunder/offbeat/internal/formatter"
	"github.com/urfave/cli/v3"
)

// emit writes formatted output to --output when set, otherwise to stdout.
func (r *Runner) emit(cmd *cli.Command, data []byte) error {
	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteFile(path, data); err != nil {
			return err
		}
		r.logger.Info("output written", "path", path)
		return nil
	}
	_, err := r.output.Write(data)
	return err
}

// QueueList prints the pending actions.
func (r *Runner) QueueList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	pending, err := a.queue.List(ctx)
	if err != nil {
		return err
	}

	data, err := formatter.FormatActions(format, pending)
	if err != nil {
		return err
	}
	return r.emit(cmd, data)
}

// QueueClear discards every pending action.
func (r *Runner) QueueClear(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.queue.Clear(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Discarded %d pending action(s)\n", n)
}

// QueueDrain replays the queue one action at a time in insertion order.
func (r *Runner) QueueDrain(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.sync.Drain(ctx)
	if err != nil {
		return err
	}

	r.writePlain("✓ Replayed %d, dropped %d, %d left for retry\n", len(res.Succeeded), len(res.Dropped), len(res.Failed))
	if res.Aborted {
		r.writePlain("Stopped early: the session was rejected\n")
	}
	return nil
}
