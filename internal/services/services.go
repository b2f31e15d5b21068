package services

import (
	"context"

	"github.com/desertthunder/offbeat/internal/models"
)

// Service defines the remote operations the offline core replays against the music API.
type Service interface {
	// Ping is the lightweight liveness probe.
	Ping(ctx context.Context) error

	// SetLike likes or unlikes an item of the given type.
	SetLike(ctx context.Context, itemType, id string, liked bool) error

	// SetFollow follows or unfollows an artist.
	SetFollow(ctx context.Context, artistID string, following bool) error

	CreatePlaylist(ctx context.Context, p models.Playlist) (*models.Playlist, error)
	UpdatePlaylist(ctx context.Context, p models.Playlist) (*models.Playlist, error)
	DeletePlaylist(ctx context.Context, id string) error
	SetVisibility(ctx context.Context, playlistID string, public bool) error
	ListPlaylists(ctx context.Context) ([]models.Playlist, error)

	// UploadLyrics pushes a batch of lyrics to the admin endpoint.
	UploadLyrics(ctx context.Context, lyrics []models.Lyrics) error

	// GetLyrics fetches the lyrics of a song.
	GetLyrics(ctx context.Context, songID string) (*models.Lyrics, error)

	// UploadFile sends audio as multipart with a JSON metadata part.
	UploadFile(ctx context.Context, file models.UploadedFile, payload []byte) error

	// RecordHistory posts a playback history entry.
	RecordHistory(ctx context.Context, h models.PlaybackHistory) error
}
