package player

import (
	"context"
	"fmt"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/shared"
)

// Source is a playable location. Handle is set when the location must be released after use.
type Source struct {
	URI    string
	Handle Handle
}

// Resolver turns a track into a playable source.
type Resolver interface {
	Resolve(ctx context.Context, t models.Track) (Source, error)
}

// StoreResolver plays remote tracks from their URL and local tracks from the uploadedFiles payload.
type StoreResolver struct {
	uploads *repositories.UploadRepository
	handles HandleFactory
}

// NewStoreResolver creates a StoreResolver.
func NewStoreResolver(uploads *repositories.UploadRepository, handles HandleFactory) *StoreResolver {
	return &StoreResolver{uploads: uploads, handles: handles}
}

func (r *StoreResolver) Resolve(ctx context.Context, t models.Track) (Source, error) {
	if !t.IsLocal {
		if t.AudioURL == "" {
			return Source{}, fmt.Errorf("%w: %s has no audio url", shared.ErrPlaybackUnavailable, t.Label())
		}
		return Source{URI: t.AudioURL}, nil
	}

	meta, payload, err := r.uploads.Payload(ctx, t.ID)
	if err != nil {
		return Source{}, fmt.Errorf("%w: local track %s: %v", shared.ErrPlaybackUnavailable, t.Label(), err)
	}

	h, err := r.handles.Create(meta.Filename, payload)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", shared.ErrPlaybackUnavailable, err)
	}
	return Source{URI: h.URI(), Handle: h}, nil
}
