package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/offbeat/internal/formatter"
	"github.com/desertthunder/offbeat/internal/library"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/urfave/cli/v3"
)

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// Like toggles a like on an item.
func (r *Runner) Like(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	itemType := cmd.String("type")
	liked, err := a.library.ToggleLike(ctx, itemType, id)
	if err != nil {
		return err
	}
	if liked {
		return r.writePlain("♥ Liked %s %s\n", itemType, id)
	}
	return r.writePlain("♡ Unliked %s %s\n", itemType, id)
}

// Follow toggles following an artist.
func (r *Runner) Follow(ctx context.Context, cmd *cli.Command) error {
	artist, err := requireArg(cmd, "artist")
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	following, err := a.library.ToggleFollow(ctx, artist)
	if err != nil {
		return err
	}
	if following {
		return r.writePlain("✓ Following %s\n", artist)
	}
	return r.writePlain("✓ Unfollowed %s\n", artist)
}

// PlaylistCreate creates a playlist.
func (r *Runner) PlaylistCreate(ctx context.Context, cmd *cli.Command) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.library.CreatePlaylist(ctx, name, cmd.String("description"), cmd.Bool("public"), cmd.StringSlice("track"))
	if err != nil {
		return err
	}
	return r.writePlain("✓ Created playlist %s [%s]\n", p.Name, p.ID)
}

// PlaylistRename renames a cached playlist.
func (r *Runner) PlaylistRename(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	current, err := a.playlists.Get(ctx, id)
	if err != nil {
		return err
	}
	current.Name = name

	p, err := a.library.UpdatePlaylist(ctx, *current)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Renamed playlist to %s\n", p.Name)
}

// PlaylistDelete deletes a playlist.
func (r *Runner) PlaylistDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.library.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted playlist %s\n", id)
}

// PlaylistVisibility sets a playlist public or private.
func (r *Runner) PlaylistVisibility(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	public := cmd.Bool("public")
	if err := a.library.SetVisibility(ctx, id, public); err != nil {
		return err
	}
	if public {
		return r.writePlain("✓ Playlist %s is public\n", id)
	}
	return r.writePlain("✓ Playlist %s is private\n", id)
}

// PlaylistList prints playlists, refreshed from the server when reachable.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.probe.Check(ctx)
	playlists, err := a.library.Playlists(ctx)
	if err != nil {
		return err
	}

	data, err := formatter.FormatPlaylists(format, playlists)
	if err != nil {
		return err
	}
	return r.emit(cmd, data)
}

// LyricsUpload stores lyrics for a song and sends them when possible.
func (r *Runner) LyricsUpload(ctx context.Context, cmd *cli.Command) error {
	song, err := requireArg(cmd, "song")
	if err != nil {
		return err
	}

	text := cmd.String("text")
	if file := cmd.String("file"); file != "" {
		if text != "" {
			return fmt.Errorf("%w: cannot specify both --text and --file", shared.ErrInvalidArgument)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read lyrics file: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: either --text or --file must be provided", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := a.library.UploadLyrics(ctx, song, cmd.String("language"), text)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Lyrics saved for %s [%s]\n", l.SongID, l.ID)
}

// LyricsShow prints a song's lyrics from the server or the cache.
func (r *Runner) LyricsShow(ctx context.Context, cmd *cli.Command) error {
	song, err := requireArg(cmd, "song")
	if err != nil {
		return err
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.probe.Check(ctx)
	l, err := a.library.Lyrics(ctx, song)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", strings.TrimRight(l.Text, "\n"))
}

// Import stores mp3 files in the local library for playback and later upload.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one file is required", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, p := range paths {
		t, err := a.library.ImportFile(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", p, err)
		}
		r.writePlain("✓ %s [%s]\n", t.Label(), t.ID)
	}
	return nil
}

// Watch imports mp3 files dropped into a directory until the command is interrupted.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		dir = r.config.Library.WatchDir
	}
	if dir == "" {
		return fmt.Errorf("%w: pass a directory or set library.watch_dir", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := library.NewWatcher(a.library, dir, a.notifications, func(t models.Track) {
		r.writePlain("✓ %s [%s]\n", t.Label(), t.ID)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	r.logger.Info("watching for new files", "dir", dir)
	<-ctx.Done()
	return nil
}
