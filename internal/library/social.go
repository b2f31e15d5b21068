package library

import (
	"context"
	"fmt"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
)

// IsLiked reports the local like state of an item.
func (l *Library) IsLiked(itemType, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liked[models.LikePayload{ItemType: itemType, ID: id}.Target()]
}

// IsFollowing reports the local follow state of an artist.
func (l *Library) IsFollowing(artistID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.following[artistID]
}

func (l *Library) setLiked(target string, liked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.liked[target] = liked
}

func (l *Library) setFollowing(artistID string, following bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.following[artistID] = following
}

// ToggleLike flips the like state of an item and returns the new state.
func (l *Library) ToggleLike(ctx context.Context, itemType, id string) (bool, error) {
	if itemType == "" || id == "" {
		return false, fmt.Errorf("%w: item type and id are required", shared.ErrMissingArgument)
	}

	p := models.LikePayload{ItemType: itemType, ID: id, Liked: !l.IsLiked(itemType, id)}
	l.setLiked(p.Target(), p.Liked)

	err := l.write(ctx, models.ToggleLike, p.Target(), p, func(ctx context.Context) error {
		return l.remote.SetLike(ctx, p.ItemType, p.ID, p.Liked)
	})
	return l.IsLiked(itemType, id), err
}

// ToggleFollow flips the follow state of an artist and returns the new state.
func (l *Library) ToggleFollow(ctx context.Context, artistID string) (bool, error) {
	if artistID == "" {
		return false, fmt.Errorf("%w: artist id is required", shared.ErrMissingArgument)
	}

	p := models.FollowPayload{ArtistID: artistID, Following: !l.IsFollowing(artistID)}
	l.setFollowing(artistID, p.Following)

	err := l.write(ctx, models.ToggleFollow, artistID, p, func(ctx context.Context) error {
		return l.remote.SetFollow(ctx, p.ArtistID, p.Following)
	})
	return l.IsFollowing(artistID), err
}
