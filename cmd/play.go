package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/desertthunder/offbeat/internal/library"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/player"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/urfave/cli/v3"
)

// resolveTracks turns arguments into tracks: mp3 paths are imported, urls stream and anything else is an imported track id.
func (r *Runner) resolveTracks(ctx context.Context, a *app, args []string) ([]models.Track, error) {
	tracks := make([]models.Track, 0, len(args))
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
			title := strings.TrimSuffix(path.Base(arg), path.Ext(arg))
			tracks = append(tracks, models.Track{ID: arg, Title: title, AudioURL: arg})

		case library.IsAudioFile(arg) && fileExists(arg):
			t, err := a.library.ImportFile(ctx, arg)
			if err != nil {
				return nil, err
			}
			tracks = append(tracks, *t)

		default:
			f, err := a.uploads.Get(ctx, arg)
			if err != nil {
				return nil, fmt.Errorf("%w: %s is not a file, url or imported track", shared.ErrInvalidArgument, arg)
			}
			tracks = append(tracks, f.Track())
		}
	}
	return tracks, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Play plays the arguments in order and returns when the queue stops or the command is interrupted.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("%w: at least one path, url or id is required", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	tracks, err := r.resolveTracks(ctx, a, args)
	if err != nil {
		return err
	}

	engine := r.engine(a)
	defer engine.Close()

	if mode := cmd.String("repeat"); mode != "" {
		repeat, err := player.ParseRepeatMode(mode)
		if err != nil {
			return err
		}
		engine.SetRepeat(repeat)
	}
	if cmd.Bool("shuffle") {
		engine.SetShuffle(true)
	}

	sub := engine.Subscribe()
	defer sub.Cancel()

	state := engine.Play(ctx, tracks...)
	if state.Transport == player.Stopped {
		return fmt.Errorf("%w: nothing could be played", shared.ErrPlaybackUnavailable)
	}

	current := ""
	for {
		select {
		case <-ctx.Done():
			engine.Stop()
			return nil
		case s, ok := <-sub.C:
			if !ok {
				return nil
			}
			if s.Transport == player.Playing && s.CurrentID() != current {
				current = s.CurrentID()
				r.writePlain("▶ %s\n", s.Current.Label())
			}
			if s.Transport == player.Stopped && current != "" {
				return nil
			}
		}
	}
}
