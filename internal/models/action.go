package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind enumerates the mutations the action queue can replay.
type ActionKind string

const (
	ToggleLike       ActionKind = "toggle_like"
	ToggleFollow     ActionKind = "toggle_follow"
	CreatePlaylist   ActionKind = "create_playlist"
	UpdatePlaylist   ActionKind = "update_playlist"
	DeletePlaylist   ActionKind = "delete_playlist"
	ToggleVisibility ActionKind = "toggle_visibility"
	UploadLyrics     ActionKind = "upload_lyrics"
	UploadFile       ActionKind = "upload_file"
)

// ActionKinds lists every kind in a stable order.
var ActionKinds = []ActionKind{
	ToggleLike, ToggleFollow, CreatePlaylist, UpdatePlaylist, DeletePlaylist, ToggleVisibility, UploadLyrics, UploadFile,
}

// Valid reports whether k is a known kind.
func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsToggle reports whether k flips a boolean on the server, so opposite enqueues cancel out.
func (k ActionKind) IsToggle() bool {
	return k == ToggleLike || k == ToggleFollow || k == ToggleVisibility
}

// ParseActionKind validates s as an [ActionKind].
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return k, nil
}

// PendingAction is a mutation awaiting remote confirmation.
//
// Exactly one record exists per (Kind, TargetID); the queue keys records by [ActionKey].
type PendingAction struct {
	ID        string          `json:"id"`
	Kind      ActionKind      `json:"kind"`
	TargetID  string          `json:"target_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Revision  int             `json:"revision"`             // bumped every time the record is rewritten
	Attempts  int             `json:"attempts"`             // failed online attempts recorded at enqueue time
	LastError string          `json:"last_error,omitempty"` // error of the most recent recorded attempt
}

// ActionKey returns the idempotency key for a mutation.
func ActionKey(kind ActionKind, targetID string) string {
	return string(kind) + ":" + targetID
}

func (a *PendingAction) EntityID() string { return a.ID }

func (a *PendingAction) Validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if a.TargetID == "" {
		return fmt.Errorf("action target id is required")
	}
	if a.ID != ActionKey(a.Kind, a.TargetID) {
		return fmt.Errorf("action id %q does not match key %q", a.ID, ActionKey(a.Kind, a.TargetID))
	}
	return nil
}

// Decode unmarshals the payload into v.
func (a *PendingAction) Decode(v any) error {
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", a.Kind, err)
	}
	return nil
}

// LikePayload is the payload of [ToggleLike]. Liked is the desired end state.
type LikePayload struct {
	ItemType string `json:"item_type"`
	ID       string `json:"id"`
	Liked    bool   `json:"liked"`
}

// Target returns the like's target id: "itemType/id".
func (p LikePayload) Target() string { return p.ItemType + "/" + p.ID }

// FollowPayload is the payload of [ToggleFollow].
type FollowPayload struct {
	ArtistID  string `json:"artist_id"`
	Following bool   `json:"following"`
}

// PlaylistPayload is the payload of [CreatePlaylist], [UpdatePlaylist] and [DeletePlaylist].
type PlaylistPayload struct {
	Playlist Playlist `json:"playlist"`
}

// VisibilityPayload is the payload of [ToggleVisibility].
type VisibilityPayload struct {
	PlaylistID string `json:"playlist_id"`
	Public     bool   `json:"public"`
}

// LyricsPayload is the payload of [UploadLyrics].
type LyricsPayload struct {
	Lyrics Lyrics `json:"lyrics"`
}

// UploadPayload is the payload of [UploadFile]. The binary stays in the uploadedFiles collection.
type UploadPayload struct {
	FileID string `json:"file_id"`
}

// DesiredState extracts the boolean end state from a toggle payload.
func DesiredState(kind ActionKind, payload json.RawMessage) (bool, error) {
	switch kind {
	case ToggleLike:
		var p LikePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return false, err
		}
		return p.Liked, nil
	case ToggleFollow:
		var p FollowPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return false, err
		}
		return p.Following, nil
	case ToggleVisibility:
		var p VisibilityPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return false, err
		}
		return p.Public, nil
	default:
		return false, fmt.Errorf("%s is not a toggle", kind)
	}
}
