package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
)

// entityRepo stores one entity type as JSON documents in a collection.
type entityRepo[T any, P interface {
	*T
	models.Entity
}] struct {
	store      Store
	collection Collection
}

func (r entityRepo[T, P]) save(ctx context.Context, e P, blob []byte, synced bool) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	rec, err := NewRecord(e.EntityID(), e)
	if err != nil {
		return err
	}
	rec.Blob = blob
	rec.Synced = synced

	return r.store.Put(ctx, r.collection, rec)
}

func (r entityRepo[T, P]) record(ctx context.Context, id string) (*Record, P, error) {
	rec, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return nil, nil, err
	}

	var v T
	if err := rec.Decode(&v); err != nil {
		return nil, nil, err
	}
	return rec, P(&v), nil
}

func (r entityRepo[T, P]) get(ctx context.Context, id string) (P, error) {
	_, e, err := r.record(ctx, id)
	return e, err
}

func (r entityRepo[T, P]) list(ctx context.Context, include func(*Record) bool) ([]P, error) {
	records, err := r.store.GetAll(ctx, r.collection)
	if err != nil {
		return nil, err
	}

	out := make([]P, 0, len(records))
	for _, rec := range records {
		if include != nil && !include(rec) {
			continue
		}
		var v T
		if err := rec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, P(&v))
	}
	return out, nil
}

func (r entityRepo[T, P]) listUnsynced(ctx context.Context) ([]P, error) {
	return r.list(ctx, func(rec *Record) bool { return !rec.Synced })
}

// markSynced flags a write-back row as pushed, keeping its document and payload.
func (r entityRepo[T, P]) markSynced(ctx context.Context, id string) error {
	rec, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return err
	}
	return r.flag(ctx, rec)
}

// markPushed is markSynced for a row pushed as pushed. A row edited since then no longer matches and stays unsynced.
func (r entityRepo[T, P]) markPushed(ctx context.Context, pushed P) error {
	rec, stored, err := r.record(ctx, pushed.EntityID())
	if err != nil {
		return err
	}

	same, err := sameDocument(stored, pushed)
	if err != nil {
		return err
	}
	if !same {
		return nil
	}
	return r.flag(ctx, rec)
}

func (r entityRepo[T, P]) flag(ctx context.Context, rec *Record) error {
	if rec.Synced {
		return nil
	}
	rec.Synced = true
	rec.UpdatedAt = time.Now().UTC()
	return r.store.Put(ctx, r.collection, rec)
}

// sameDocument compares two entities by their stored JSON form.
func sameDocument(a, b any) (bool, error) {
	x, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	y, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(x, y), nil
}

func (r entityRepo[T, P]) delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.collection, id)
}

// PlaylistRepository caches playlists.
type PlaylistRepository struct {
	repo entityRepo[models.Playlist, *models.Playlist]
}

// NewPlaylistRepository creates a PlaylistRepository over store.
func NewPlaylistRepository(store Store) *PlaylistRepository {
	return &PlaylistRepository{repo: entityRepo[models.Playlist, *models.Playlist]{store: store, collection: Playlists}}
}

// Save writes a playlist. synced=false marks a local edit that still has to be pushed.
func (r *PlaylistRepository) Save(ctx context.Context, p *models.Playlist, synced bool) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	return r.repo.save(ctx, p, nil, synced)
}

func (r *PlaylistRepository) Get(ctx context.Context, id string) (*models.Playlist, error) {
	return r.repo.get(ctx, id)
}

func (r *PlaylistRepository) List(ctx context.Context) ([]*models.Playlist, error) {
	return r.repo.list(ctx, nil)
}

func (r *PlaylistRepository) ListUnsynced(ctx context.Context) ([]*models.Playlist, error) {
	return r.repo.listUnsynced(ctx)
}

func (r *PlaylistRepository) MarkSynced(ctx context.Context, id string) error {
	return r.repo.markSynced(ctx, id)
}

// MarkPushed flags the row synced if it still holds p as pushed.
func (r *PlaylistRepository) MarkPushed(ctx context.Context, p *models.Playlist) error {
	return r.repo.markPushed(ctx, p)
}

func (r *PlaylistRepository) Delete(ctx context.Context, id string) error {
	return r.repo.delete(ctx, id)
}

// ReplaceAll mirrors a fresh remote listing: rows absent remotely are dropped unless they hold unpushed local edits.
func (r *PlaylistRepository) ReplaceAll(ctx context.Context, playlists []*models.Playlist) error {
	records, err := r.repo.store.GetAll(ctx, Playlists)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(playlists))
	for _, p := range playlists {
		keep[p.ID] = true
	}

	unsynced := make(map[string]bool)
	for _, rec := range records {
		if !rec.Synced {
			unsynced[rec.ID] = true
			continue
		}
		if !keep[rec.ID] {
			if err := r.repo.delete(ctx, rec.ID); err != nil {
				return err
			}
		}
	}

	for _, p := range playlists {
		if unsynced[p.ID] {
			continue
		}
		if err := r.Save(ctx, p, true); err != nil {
			return err
		}
	}
	return nil
}

// LyricsRepository caches lyrics.
type LyricsRepository struct {
	repo entityRepo[models.Lyrics, *models.Lyrics]
}

// NewLyricsRepository creates a LyricsRepository over store.
func NewLyricsRepository(store Store) *LyricsRepository {
	return &LyricsRepository{repo: entityRepo[models.Lyrics, *models.Lyrics]{store: store, collection: Lyrics}}
}

func (r *LyricsRepository) Save(ctx context.Context, l *models.Lyrics, synced bool) error {
	return r.repo.save(ctx, l, nil, synced)
}

func (r *LyricsRepository) Get(ctx context.Context, id string) (*models.Lyrics, error) {
	return r.repo.get(ctx, id)
}

// ForSong returns the cached lyrics for a song.
func (r *LyricsRepository) ForSong(ctx context.Context, songID string) (*models.Lyrics, error) {
	all, err := r.repo.list(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, l := range all {
		if l.SongID == songID {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: lyrics for song %s", shared.ErrNotFound, songID)
}

func (r *LyricsRepository) List(ctx context.Context) ([]*models.Lyrics, error) {
	return r.repo.list(ctx, nil)
}

func (r *LyricsRepository) ListUnsynced(ctx context.Context) ([]*models.Lyrics, error) {
	return r.repo.listUnsynced(ctx)
}

func (r *LyricsRepository) MarkSynced(ctx context.Context, id string) error {
	return r.repo.markSynced(ctx, id)
}

// MarkPushed flags the row synced if it still holds l as pushed.
func (r *LyricsRepository) MarkPushed(ctx context.Context, l *models.Lyrics) error {
	return r.repo.markPushed(ctx, l)
}

func (r *LyricsRepository) Delete(ctx context.Context, id string) error {
	return r.repo.delete(ctx, id)
}

// UploadRepository stores uploaded audio and its metadata.
type UploadRepository struct {
	repo entityRepo[models.UploadedFile, *models.UploadedFile]
}

// NewUploadRepository creates an UploadRepository over store.
func NewUploadRepository(store Store) *UploadRepository {
	return &UploadRepository{repo: entityRepo[models.UploadedFile, *models.UploadedFile]{store: store, collection: UploadedFiles}}
}

// Save writes the file metadata and its binary payload.
func (r *UploadRepository) Save(ctx context.Context, f *models.UploadedFile, payload []byte, synced bool) error {
	if f.Size == 0 {
		f.Size = int64(len(payload))
	}
	return r.repo.save(ctx, f, payload, synced)
}

func (r *UploadRepository) Get(ctx context.Context, id string) (*models.UploadedFile, error) {
	return r.repo.get(ctx, id)
}

// Payload returns the binary audio for a file.
func (r *UploadRepository) Payload(ctx context.Context, id string) (*models.UploadedFile, []byte, error) {
	rec, f, err := r.repo.record(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if len(rec.Blob) == 0 {
		return nil, nil, fmt.Errorf("%w: no audio payload for %s", shared.ErrNotFound, id)
	}
	return f, rec.Blob, nil
}

func (r *UploadRepository) List(ctx context.Context) ([]*models.UploadedFile, error) {
	return r.repo.list(ctx, nil)
}

func (r *UploadRepository) ListUnsynced(ctx context.Context) ([]*models.UploadedFile, error) {
	return r.repo.listUnsynced(ctx)
}

func (r *UploadRepository) MarkSynced(ctx context.Context, id string) error {
	return r.repo.markSynced(ctx, id)
}

// MarkPushed flags the row synced if it still holds f as pushed.
func (r *UploadRepository) MarkPushed(ctx context.Context, f *models.UploadedFile) error {
	return r.repo.markPushed(ctx, f)
}

func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	return r.repo.delete(ctx, id)
}

// HistoryRepository records playback history.
type HistoryRepository struct {
	repo entityRepo[models.PlaybackHistory, *models.PlaybackHistory]
}

// NewHistoryRepository creates a HistoryRepository over store.
func NewHistoryRepository(store Store) *HistoryRepository {
	return &HistoryRepository{repo: entityRepo[models.PlaybackHistory, *models.PlaybackHistory]{store: store, collection: PlaybackHistory}}
}

// Record writes a history row for trackID.
func (r *HistoryRepository) Record(ctx context.Context, trackID string, at time.Time) (*models.PlaybackHistory, error) {
	h := &models.PlaybackHistory{ID: shared.GenerateID(), TrackID: trackID, PlayedAt: at.UTC()}
	if err := r.repo.save(ctx, h, nil, true); err != nil {
		return nil, err
	}
	return h, nil
}

// Recent returns up to limit history rows, newest first. A non-positive limit returns all rows.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]*models.PlaybackHistory, error) {
	all, err := r.repo.list(ctx, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].PlayedAt.After(all[j].PlayedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
