package library

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

const mp3MIME = "audio/mpeg"

// IsAudioFile reports whether path has an importable extension.
func IsAudioFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}

// ImportFile stores a local mp3 in the uploadedFiles collection and returns it as a playable local track.
//
// Tags fill title, artist and album; a file without tags is titled after its name. The row is unsynced so
// the sync service uploads it for admin sessions.
func (l *Library) ImportFile(ctx context.Context, path string) (*models.Track, error) {
	if !IsAudioFile(path) {
		return nil, fmt.Errorf("%w: %s is not an mp3 file", shared.ErrInvalidInput, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", shared.ErrInvalidInput, path)
	}

	file := &models.UploadedFile{
		ID:         shared.GenerateID(),
		Filename:   filepath.Base(path),
		MIMEType:   mp3MIME,
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Size:       int64(len(data)),
		ImportedAt: time.Now().UTC(),
	}

	if m, err := tag.ReadFrom(bytes.NewReader(data)); err == nil {
		if m.Title() != "" {
			file.Title = m.Title()
		}
		file.Artist = m.Artist()
		file.Album = m.Album()
	} else {
		l.logger.Debug("no tags", "file", path, "error", err)
	}

	file.DurationSeconds = int(mp3Duration(bytes.NewReader(data)).Seconds())

	if err := l.uploads.Save(ctx, file, data, false); err != nil {
		return nil, err
	}

	l.logger.Info("imported", "file", file.Filename, "id", file.ID, "duration", file.DurationSeconds)
	track := file.Track()
	return &track, nil
}

// mp3Duration sums frame durations until the stream ends or stops decoding.
func mp3Duration(r io.Reader) time.Duration {
	d := mp3.NewDecoder(r)
	var (
		frame    mp3.Frame
		skipped  int
		duration time.Duration
	)
	for {
		if err := d.Decode(&frame, &skipped); err != nil {
			return duration
		}
		duration += frame.Duration()
	}
}
