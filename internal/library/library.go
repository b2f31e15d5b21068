package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/actions"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/services"
	"github.com/desertthunder/offbeat/internal/shared"
)

// Session is the part of the session holder the library reads.
type Session interface {
	Authenticated() bool
	Clear()
}

// Connectivity reports whether the server is believed reachable.
type Connectivity interface {
	Online() bool
}

// Options configures a [Library]. Queue, Remote, Session and the repositories are required.
type Options struct {
	Queue        *actions.Queue
	Remote       services.Service
	Session      Session
	Connectivity Connectivity
	Playlists    *repositories.PlaylistRepository
	Lyrics       *repositories.LyricsRepository
	Uploads      *repositories.UploadRepository
	Notifier     notify.Notifier
	Logger       *log.Logger
}

// Library applies user mutations optimistically and routes them to the remote API or the action queue.
type Library struct {
	queue     *actions.Queue
	remote    services.Service
	session   Session
	conn      Connectivity
	playlists *repositories.PlaylistRepository
	lyrics    *repositories.LyricsRepository
	uploads   *repositories.UploadRepository
	notifier  notify.Notifier
	logger    *log.Logger

	mu        sync.Mutex
	liked     map[string]bool // keyed by LikePayload.Target
	following map[string]bool
}

// New creates a Library.
func New(opts Options) *Library {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Library{
		queue:     opts.Queue,
		remote:    opts.Remote,
		session:   opts.Session,
		conn:      opts.Connectivity,
		playlists: opts.Playlists,
		lyrics:    opts.Lyrics,
		uploads:   opts.Uploads,
		notifier:  notify.OrDiscard(opts.Notifier),
		logger:    shared.WithLogger(logger, "component", "library"),
		liked:     make(map[string]bool),
		following: make(map[string]bool),
	}
}

// Warm seeds the like and follow state from pending actions, so changes made in an earlier session read back.
func (l *Library) Warm(ctx context.Context) error {
	pending, err := l.queue.ListKinds(ctx, models.ToggleLike, models.ToggleFollow)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range pending {
		switch a.Kind {
		case models.ToggleLike:
			var p models.LikePayload
			if a.Decode(&p) == nil {
				l.liked[p.Target()] = p.Liked
			}
		case models.ToggleFollow:
			var p models.FollowPayload
			if a.Decode(&p) == nil {
				l.following[p.ArtistID] = p.Following
			}
		}
	}
	return nil
}

func (l *Library) online() bool {
	if l.conn != nil && !l.conn.Online() {
		return false
	}
	return l.session.Authenticated()
}

// related lists the kinds whose pending records must replay before a new mutation of kind on the same target.
func related(kind models.ActionKind) []models.ActionKind {
	switch kind {
	case models.CreatePlaylist, models.UpdatePlaylist, models.DeletePlaylist, models.ToggleVisibility:
		return []models.ActionKind{models.CreatePlaylist, models.UpdatePlaylist, models.DeletePlaylist, models.ToggleVisibility}
	default:
		return []models.ActionKind{kind}
	}
}

func (l *Library) hasPending(ctx context.Context, kind models.ActionKind, target string) bool {
	for _, k := range related(kind) {
		if _, err := l.queue.Get(ctx, models.ActionKey(k, target)); err == nil {
			return true
		}
	}
	return false
}

// write routes one mutation whose local change was already applied.
func (l *Library) write(ctx context.Context, kind models.ActionKind, target string, payload any, call func(ctx context.Context) error) error {
	if !l.online() || l.hasPending(ctx, kind, target) {
		if _, err := l.queue.Enqueue(ctx, kind, target, payload); err != nil {
			return fmt.Errorf("failed to queue %s: %w", kind, err)
		}
		l.logger.Debug("queued for sync", "kind", kind, "target", target)
		return nil
	}

	err := call(ctx)
	switch actions.OutcomeOf(err) {
	case actions.Succeeded:
		l.markSynced(ctx, kind, target)
		return nil

	case actions.Failed:
		if _, qErr := l.queue.EnqueueFailure(ctx, kind, target, payload, err); qErr != nil {
			return fmt.Errorf("failed to queue %s after %v: %w", kind, err, qErr)
		}
		l.logger.Warn("remote write failed, queued", "kind", kind, "target", target, "error", err)
		l.notifier.Notify("Couldn't reach the server. Your change will sync when the connection is back.", notify.Warning)
		return nil

	case actions.Dropped:
		raw, mErr := json.Marshal(payload)
		if mErr == nil {
			if rbErr := l.rollback(ctx, kind, target, raw); rbErr != nil {
				l.logger.Warn("rollback failed", "kind", kind, "target", target, "error", rbErr)
			}
		}
		return err

	default:
		l.session.Clear()
		if _, qErr := l.queue.EnqueueFailure(ctx, kind, target, payload, err); qErr != nil {
			l.logger.Warn("failed to queue after unauthorized", "kind", kind, "error", qErr)
		}
		l.notifier.Notify("Your session has expired. Sign in again to sync your changes.", notify.Error)
		return err
	}
}

func (l *Library) markSynced(ctx context.Context, kind models.ActionKind, target string) {
	var err error
	switch kind {
	case models.CreatePlaylist, models.UpdatePlaylist, models.ToggleVisibility:
		err = l.playlists.MarkSynced(ctx, target)
	case models.UploadLyrics:
		err = l.lyrics.MarkSynced(ctx, target)
	case models.UploadFile:
		err = l.uploads.MarkSynced(ctx, target)
	}
	if err != nil && !repositories.IsNotFound(err) {
		l.logger.Warn("failed to mark synced", "kind", kind, "target", target, "error", err)
	}
}

// Rollback reverts the optimistic local change behind a pending action the server rejected.
func (l *Library) Rollback(ctx context.Context, a *models.PendingAction) error {
	return l.rollback(ctx, a.Kind, a.TargetID, a.Payload)
}

func (l *Library) rollback(ctx context.Context, kind models.ActionKind, target string, payload json.RawMessage) error {
	l.logger.Info("rolling back", "kind", kind, "target", target)

	switch kind {
	case models.ToggleLike:
		var p models.LikePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		l.setLiked(p.Target(), !p.Liked)

	case models.ToggleFollow:
		var p models.FollowPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		l.setFollowing(p.ArtistID, !p.Following)

	case models.CreatePlaylist:
		return l.playlists.Delete(ctx, target)

	case models.UpdatePlaylist:
		// The server copy wins: a synced row is replaced by the next playlist refresh.
		if err := l.playlists.MarkSynced(ctx, target); err != nil && !repositories.IsNotFound(err) {
			return err
		}

	case models.DeletePlaylist:
		var p models.PlaylistPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if p.Playlist.Name == "" {
			return nil
		}
		return l.playlists.Save(ctx, &p.Playlist, true)

	case models.ToggleVisibility:
		var p models.VisibilityPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		pl, err := l.playlists.Get(ctx, target)
		if repositories.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		pl.Public = !p.Public
		return l.playlists.Save(ctx, pl, true)

	case models.UploadLyrics:
		return l.lyrics.Delete(ctx, target)

	case models.UploadFile:
		// The audio stays playable locally.
		if err := l.uploads.MarkSynced(ctx, target); err != nil && !repositories.IsNotFound(err) {
			return err
		}
	}
	return nil
}
