package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/shared"
)

// CreatePlaylist creates a playlist locally with a client-generated id and pushes it.
func (l *Library) CreatePlaylist(ctx context.Context, name, description string, public bool, trackIDs []string) (*models.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrMissingArgument)
	}

	p := &models.Playlist{
		ID:          shared.GenerateID(),
		Name:        name,
		Description: description,
		Public:      public,
		TrackIDs:    append([]string(nil), trackIDs...),
	}
	if err := l.playlists.Save(ctx, p, false); err != nil {
		return nil, err
	}

	err := l.write(ctx, models.CreatePlaylist, p.ID, models.PlaylistPayload{Playlist: *p}, func(ctx context.Context) error {
		_, err := l.remote.CreatePlaylist(ctx, *p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePlaylist replaces a playlist's name, description and tracks.
func (l *Library) UpdatePlaylist(ctx context.Context, p models.Playlist) (*models.Playlist, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	stored := p
	stored.UpdatedAt = time.Now().UTC()
	if err := l.playlists.Save(ctx, &stored, false); err != nil {
		return nil, err
	}

	err := l.write(ctx, models.UpdatePlaylist, p.ID, models.PlaylistPayload{Playlist: stored}, func(ctx context.Context) error {
		_, err := l.remote.UpdatePlaylist(ctx, stored)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// DeletePlaylist removes a playlist locally and remotely. The pending record keeps the playlist for rollback.
func (l *Library) DeletePlaylist(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrMissingArgument)
	}

	payload := models.PlaylistPayload{Playlist: models.Playlist{ID: id}}
	if existing, err := l.playlists.Get(ctx, id); err == nil {
		payload.Playlist = *existing
	} else if !repositories.IsNotFound(err) {
		return err
	}

	if err := l.playlists.Delete(ctx, id); err != nil {
		return err
	}

	return l.write(ctx, models.DeletePlaylist, id, payload, func(ctx context.Context) error {
		return l.remote.DeletePlaylist(ctx, id)
	})
}

// SetVisibility makes a playlist public or private.
func (l *Library) SetVisibility(ctx context.Context, playlistID string, public bool) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrMissingArgument)
	}

	pl, err := l.playlists.Get(ctx, playlistID)
	switch {
	case err == nil:
		pl.Public = public
		if err := l.playlists.Save(ctx, pl, false); err != nil {
			return err
		}
	case !repositories.IsNotFound(err):
		return err
	}

	p := models.VisibilityPayload{PlaylistID: playlistID, Public: public}
	return l.write(ctx, models.ToggleVisibility, playlistID, p, func(ctx context.Context) error {
		return l.remote.SetVisibility(ctx, playlistID, public)
	})
}

// Playlists returns the user's playlists. Online it refreshes the cache from the server first;
// offline, or when the refresh fails, it returns the cached rows. Local edits not yet synced always win.
func (l *Library) Playlists(ctx context.Context) ([]*models.Playlist, error) {
	if l.online() {
		if err := l.refreshPlaylists(ctx); err != nil {
			l.logger.Warn("playlist refresh failed, using cache", "error", err)
			if errors.Is(err, shared.ErrUnauthorized) {
				l.session.Clear()
				l.notifier.Notify("Your session has expired. Sign in again to sync your changes.", notify.Error)
			}
		}
	}
	return l.playlists.List(ctx)
}

func (l *Library) refreshPlaylists(ctx context.Context) error {
	remote, err := l.remote.ListPlaylists(ctx)
	if err != nil {
		return err
	}

	rows := make([]*models.Playlist, 0, len(remote))
	for i := range remote {
		rows = append(rows, &remote[i])
	}
	return l.playlists.ReplaceAll(ctx, rows)
}
