package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/offbeat/internal/actions"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/services"
	"github.com/desertthunder/offbeat/internal/shared"
)

// errObsolete marks an action whose local inputs are gone. It is deleted like a rejection but never rolled back.
var errObsolete = fmt.Errorf("%w: action no longer applies", shared.ErrRemoteRejected)

func obsolete(a *models.PendingAction, err error) error {
	return fmt.Errorf("%w: %s: %v", errObsolete, a.ID, err)
}

// Drain replays the whole queue once, outside the cycle's grouping and batching.
func (s *SyncService) Drain(ctx context.Context) (actions.DrainResult, error) {
	return s.queue.DrainWith(ctx, s.Replay, s.settled)
}

// settled marks the cached rows covered by a synced once its record is gone. A newer revision left in the queue
// still covers them.
func (s *SyncService) settled(ctx context.Context, a *models.PendingAction, outcome actions.Outcome, current bool) {
	if outcome == actions.Succeeded && current {
		s.markActionSynced(ctx, a)
	}
}

// Replay sends one pending action to the remote API. It satisfies [actions.Handler].
func (s *SyncService) Replay(ctx context.Context, a *models.PendingAction) error {
	switch a.Kind {
	case models.ToggleLike:
		var p models.LikePayload
		if err := a.Decode(&p); err != nil {
			return obsolete(a, err)
		}
		return s.remote.SetLike(ctx, p.ItemType, p.ID, p.Liked)

	case models.ToggleFollow:
		var p models.FollowPayload
		if err := a.Decode(&p); err != nil {
			return obsolete(a, err)
		}
		return s.remote.SetFollow(ctx, p.ArtistID, p.Following)

	case models.CreatePlaylist:
		var p models.PlaylistPayload
		if err := a.Decode(&p); err != nil {
			return obsolete(a, err)
		}
		_, err := s.remote.CreatePlaylist(ctx, p.Playlist)
		return err

	case models.UpdatePlaylist:
		var p models.PlaylistPayload
		if err := a.Decode(&p); err != nil {
			return obsolete(a, err)
		}
		_, err := s.remote.UpdatePlaylist(ctx, p.Playlist)
		return err

	case models.DeletePlaylist:
		return s.remote.DeletePlaylist(ctx, a.TargetID)

	case models.ToggleVisibility:
		var p models.VisibilityPayload
		if err := a.Decode(&p); err != nil {
			return obsolete(a, err)
		}
		return s.remote.SetVisibility(ctx, p.PlaylistID, p.Public)

	case models.UploadLyrics:
		var p models.LyricsPayload
		if err := a.Decode(&p); err != nil {
			return obsolete(a, err)
		}
		return s.remote.UploadLyrics(ctx, []models.Lyrics{p.Lyrics})

	case models.UploadFile:
		var p models.UploadPayload
		if err := a.Decode(&p); err != nil {
			return obsolete(a, err)
		}
		if err := s.pushUpload(ctx, p.FileID); err != nil {
			if repositories.IsNotFound(err) {
				return obsolete(a, err)
			}
			return err
		}
		return nil

	default:
		return obsolete(a, fmt.Errorf("unknown kind %q", a.Kind))
	}
}

func (s *SyncService) pushUpload(ctx context.Context, id string) error {
	if s.uploads == nil {
		return fmt.Errorf("%w: no upload store", shared.ErrNotFound)
	}
	file, payload, err := s.uploads.Payload(ctx, id)
	if err != nil {
		return err
	}
	return s.remote.UploadFile(ctx, *file, payload)
}

func (s *SyncService) markActionSynced(ctx context.Context, a *models.PendingAction) {
	var err error
	switch a.Kind {
	case models.CreatePlaylist, models.UpdatePlaylist, models.ToggleVisibility:
		if s.playlists != nil {
			err = s.playlists.MarkSynced(ctx, a.TargetID)
		}
	case models.UploadLyrics:
		if s.lyrics != nil {
			err = s.lyrics.MarkSynced(ctx, a.TargetID)
		}
	case models.UploadFile:
		if s.uploads != nil {
			err = s.uploads.MarkSynced(ctx, a.TargetID)
		}
	}
	if err != nil && !repositories.IsNotFound(err) {
		s.logger.Warn("failed to mark cached row synced", "action", a.ID, "error", err)
	}
}

// pushPlaylist sends an unsynced playlist row that no action covers. The server may not know it yet, so a 404 on
// update falls back to create.
func (s *SyncService) pushPlaylist(ctx context.Context, p *models.Playlist) error {
	_, err := s.remote.UpdatePlaylist(ctx, *p)

	var se *services.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		_, err = s.remote.CreatePlaylist(ctx, *p)
	}
	return err
}
