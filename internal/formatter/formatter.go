// package formatter renders pending actions and playlists as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
)

// Format names an output format.
type Format string

const (
	Text     Format = "text"
	CSV      Format = "csv"
	Markdown Format = "markdown"
	JSON     Format = "json"
)

// ParseFormat validates s. An empty string is [Text]; "md" is accepted for [Markdown].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "json":
		return JSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want text, csv, markdown or json)", shared.ErrInvalidArgument, s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case Markdown:
		return "text/markdown; charset=utf-8"
	case JSON:
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

const timeLayout = time.RFC3339

// ActionsToCSV converts pending actions to CSV with columns: ID, Kind, Target, Attempts, Created, Updated, Last Error
func ActionsToCSV(actions []*models.PendingAction) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Kind", "Target", "Attempts", "Created", "Updated", "Last Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, a := range actions {
		record := []string{
			a.ID,
			string(a.Kind),
			a.TargetID,
			strconv.Itoa(a.Attempts),
			a.CreatedAt.Format(timeLayout),
			a.UpdatedAt.Format(timeLayout),
			a.LastError,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ActionsToMarkdown converts pending actions to a Markdown table
func ActionsToMarkdown(actions []*models.PendingAction) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Pending actions\n\n")
	buf.WriteString(fmt.Sprintf("**Pending**: %d\n\n", len(actions)))
	if len(actions) == 0 {
		buf.WriteString("Everything is synced.\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| Kind | Target | Attempts | Updated | Last Error |\n")
	buf.WriteString("|------|--------|----------|---------|------------|\n")
	for _, a := range actions {
		buf.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s |\n",
			a.Kind, escapeCell(a.TargetID), a.Attempts, a.UpdatedAt.Format(timeLayout), escapeCell(a.LastError)))
	}

	return buf.Bytes(), nil
}

// ActionsToText converts pending actions to plain text, one per line
func ActionsToText(actions []*models.PendingAction) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Pending actions: %d\n", len(actions)))
	if len(actions) > 0 {
		buf.WriteString("\n")
	}

	for i, a := range actions {
		buf.WriteString(fmt.Sprintf("%d. %s %s", i+1, a.Kind, a.TargetID))
		if a.Attempts > 0 {
			buf.WriteString(fmt.Sprintf(" (%d failed: %s)", a.Attempts, a.LastError))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// FormatActions renders pending actions in the given format.
func FormatActions(f Format, actions []*models.PendingAction) ([]byte, error) {
	if actions == nil {
		actions = []*models.PendingAction{}
	}
	switch f {
	case CSV:
		return ActionsToCSV(actions)
	case Markdown:
		return ActionsToMarkdown(actions)
	case JSON:
		return shared.MarshalJSON(actions, true)
	default:
		return ActionsToText(actions)
	}
}

// PlaylistsToCSV converts playlists to CSV with columns: ID, Name, Visibility, Tracks, Updated
func PlaylistsToCSV(playlists []*models.Playlist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Name", "Visibility", "Tracks", "Updated"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, p := range playlists {
		record := []string{p.ID, p.Name, visibility(p.Public), strconv.Itoa(len(p.TrackIDs)), p.UpdatedAt.Format(timeLayout)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// PlaylistsToMarkdown converts playlists to a Markdown list
func PlaylistsToMarkdown(playlists []*models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Playlists\n\n")
	for _, p := range playlists {
		buf.WriteString(fmt.Sprintf("- **%s** (%s, %d tracks)", p.Name, visibility(p.Public), len(p.TrackIDs)))
		if p.Description != "" {
			buf.WriteString(": " + p.Description)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// PlaylistsToText converts playlists to plain text
func PlaylistsToText(playlists []*models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlists: %d\n\n", len(playlists)))
	for i, p := range playlists {
		buf.WriteString(fmt.Sprintf("%d. %s [%s] %s, %d tracks\n", i+1, p.Name, p.ID, visibility(p.Public), len(p.TrackIDs)))
	}

	return buf.Bytes(), nil
}

// FormatPlaylists renders playlists in the given format.
func FormatPlaylists(f Format, playlists []*models.Playlist) ([]byte, error) {
	if playlists == nil {
		playlists = []*models.Playlist{}
	}
	switch f {
	case CSV:
		return PlaylistsToCSV(playlists)
	case Markdown:
		return PlaylistsToMarkdown(playlists)
	case JSON:
		return shared.MarshalJSON(playlists, true)
	default:
		return PlaylistsToText(playlists)
	}
}

// WriteFile writes rendered output to path.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func visibility(public bool) string {
	if public {
		return "public"
	}
	return "private"
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
