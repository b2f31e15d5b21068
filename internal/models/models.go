// package models defines the data model for the offline music client core
package models

import (
	"fmt"
	"strings"
	"time"
)

// Entity defines the base interface for all cached entities.
type Entity interface {
	EntityID() string // EntityID returns the collection key for this entity
	Validate() error  // Validate checks the entity before it is written
}

// Track represents a playable item. Identity is ID.
//
// Local tracks carry no AudioURL; their audio lives in the uploadedFiles collection and is resolved before playback.
type Track struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	CoverURL        string `json:"cover_url,omitempty"`
	AudioURL        string `json:"audio_url,omitempty"`
	IsLocal         bool   `json:"is_local"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Label returns "Artist - Title", falling back to the id.
func (t Track) Label() string {
	switch {
	case t.Artist != "" && t.Title != "":
		return fmt.Sprintf("%s - %s", t.Artist, t.Title)
	case t.Title != "":
		return t.Title
	default:
		return t.ID
	}
}

// Playlist is the cached mirror of a server playlist.
type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Public      bool      `json:"public"`
	TrackIDs    []string  `json:"track_ids,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Playlist) EntityID() string { return p.ID }

func (p *Playlist) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("playlist id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("playlist name is required")
	}
	return nil
}

// Lyrics is the cached mirror of a song's lyrics.
type Lyrics struct {
	ID       string `json:"id"`
	SongID   string `json:"song_id"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

func (l *Lyrics) EntityID() string { return l.ID }

func (l *Lyrics) Validate() error {
	if l.ID == "" || l.SongID == "" {
		return fmt.Errorf("lyrics id and song id are required")
	}
	if strings.TrimSpace(l.Text) == "" {
		return fmt.Errorf("lyrics text is required")
	}
	return nil
}

// UploadedFile describes locally stored audio. The binary payload is stored beside the row, not in this struct.
type UploadedFile struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	MIMEType        string    `json:"mime_type"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist,omitempty"`
	Album           string    `json:"album,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	Size            int64     `json:"size"`
	ImportedAt      time.Time `json:"imported_at"`
}

func (f *UploadedFile) EntityID() string { return f.ID }

func (f *UploadedFile) Validate() error {
	if f.ID == "" || f.Filename == "" {
		return fmt.Errorf("uploaded file id and filename are required")
	}
	return nil
}

// Track converts the file into a local playable [Track].
func (f *UploadedFile) Track() Track {
	title := f.Title
	if title == "" {
		title = f.Filename
	}
	return Track{
		ID:              f.ID,
		Title:           title,
		Artist:          f.Artist,
		IsLocal:         true,
		DurationSeconds: f.DurationSeconds,
	}
}

// PlaybackHistory records a single track start.
type PlaybackHistory struct {
	ID       string    `json:"id"`
	TrackID  string    `json:"track_id"`
	PlayedAt time.Time `json:"played_at"`
}

func (h *PlaybackHistory) EntityID() string { return h.ID }

func (h *PlaybackHistory) Validate() error {
	if h.ID == "" || h.TrackID == "" {
		return fmt.Errorf("history id and track id are required")
	}
	return nil
}
