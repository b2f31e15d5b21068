package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/shared"
)

// UploadLyrics stores lyrics for a song and pushes them. A song keeps one lyrics row; uploading again replaces it.
func (l *Library) UploadLyrics(ctx context.Context, songID, language, text string) (*models.Lyrics, error) {
	if songID == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: song id and text are required", shared.ErrMissingArgument)
	}

	id := shared.GenerateID()
	if existing, err := l.lyrics.ForSong(ctx, songID); err == nil {
		id = existing.ID
	} else if !repositories.IsNotFound(err) {
		return nil, err
	}

	ly := &models.Lyrics{ID: id, SongID: songID, Language: language, Text: text}
	if err := l.lyrics.Save(ctx, ly, false); err != nil {
		return nil, err
	}

	err := l.write(ctx, models.UploadLyrics, ly.ID, models.LyricsPayload{Lyrics: *ly}, func(ctx context.Context) error {
		return l.remote.UploadLyrics(ctx, []models.Lyrics{*ly})
	})
	if err != nil {
		return nil, err
	}
	return ly, nil
}

// Lyrics returns the lyrics of a song, from the server when reachable and from the cache otherwise.
func (l *Library) Lyrics(ctx context.Context, songID string) (*models.Lyrics, error) {
	if cached, err := l.lyrics.ForSong(ctx, songID); err == nil {
		if unsynced, _ := l.isUnsynced(ctx, cached.ID); unsynced {
			return cached, nil
		}
	}

	if l.online() {
		ly, err := l.remote.GetLyrics(ctx, songID)
		switch {
		case err == nil:
			if err := l.lyrics.Save(ctx, ly, true); err != nil {
				l.logger.Warn("failed to cache lyrics", "song", songID, "error", err)
			}
			return ly, nil
		case errors.Is(err, shared.ErrNotFound):
			return nil, err
		default:
			l.logger.Warn("lyrics fetch failed, using cache", "song", songID, "error", err)
		}
	}

	return l.lyrics.ForSong(ctx, songID)
}

// isUnsynced reports whether a lyrics row holds a local edit not yet pushed.
func (l *Library) isUnsynced(ctx context.Context, id string) (bool, error) {
	rows, err := l.lyrics.ListUnsynced(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.ID == id {
			return true, nil
		}
	}
	return false, nil
}
