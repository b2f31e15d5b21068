// package repositories provides the local store and typed repositories for cached entities.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/offbeat/internal/shared"
)

// Collection names a keyed collection in the local store.
type Collection string

const (
	UploadedFiles   Collection = "uploadedFiles"
	Lyrics          Collection = "lyrics"
	Playlists       Collection = "playlists"
	PlaybackHistory Collection = "playbackHistory"
	PendingActions  Collection = "pendingActions"
)

// Collections lists every collection the schema defines.
var Collections = []Collection{UploadedFiles, Lyrics, Playlists, PlaybackHistory, PendingActions}

var tables = map[Collection]string{
	UploadedFiles:   "uploaded_files",
	Lyrics:          "lyrics",
	Playlists:       "playlists",
	PlaybackHistory: "playback_history",
	PendingActions:  "pending_actions",
}

// Table returns the sqlite table backing c.
func (c Collection) Table() (string, error) {
	t, ok := tables[c]
	if !ok {
		return "", fmt.Errorf("%w: unknown collection %q", shared.ErrInvalidArgument, c)
	}
	return t, nil
}

// Record is a single keyed entry of a collection.
type Record struct {
	ID        string
	Data      json.RawMessage
	Blob      []byte
	Synced    bool
	UpdatedAt time.Time
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	dup := *r
	if r.Data != nil {
		dup.Data = append(json.RawMessage(nil), r.Data...)
	}
	if r.Blob != nil {
		dup.Blob = append([]byte(nil), r.Blob...)
	}
	return &dup
}

// NewRecord marshals v into a record keyed by id.
func NewRecord(id string, v any) (*Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", id, err)
	}
	return &Record{ID: id, Data: data, Synced: true}, nil
}

// Decode unmarshals the record's document into v.
func (r *Record) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", r.ID, err)
	}
	return nil
}

// Store is the local persistence contract.
//
// Every operation may fail with an error wrapping [shared.ErrStoreUnavailable]; callers treat it as non-fatal.
// Get returns an error wrapping [shared.ErrNotFound] for a missing key. Delete of a missing key is not an error.
// GetAll returns records in first-insertion order; replacing a record keeps its position.
type Store interface {
	Get(ctx context.Context, c Collection, key string) (*Record, error)
	GetAll(ctx context.Context, c Collection) ([]*Record, error)
	Put(ctx context.Context, c Collection, r *Record) error
	Delete(ctx context.Context, c Collection, key string) error
}

func validateRecord(c Collection, r *Record) error {
	if _, err := c.Table(); err != nil {
		return err
	}
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: record id is required", shared.ErrInvalidInput)
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("%w: record %s has no data", shared.ErrInvalidInput, r.ID)
	}
	return nil
}
