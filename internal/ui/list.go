package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/offbeat/internal/models"
)

var (
	_ list.Item = trackItem{}
	_ list.Item = actionItem{}
)

// trackItem wraps a queued [models.Track] to implement [list.Item].
type trackItem struct {
	track   models.Track
	index   int
	current bool
}

func (i trackItem) FilterValue() string { return i.track.Label() }
func (i trackItem) Title() string {
	if i.current {
		return "▶ " + i.track.Label()
	}
	return "  " + i.track.Label()
}
func (i trackItem) Description() string {
	desc := formatDuration(i.track.DurationSeconds)
	if i.track.IsLocal {
		desc = fmt.Sprintf("%s • local", desc)
	}
	return desc
}

// actionItem wraps [models.PendingAction] to implement [list.Item].
type actionItem struct {
	action *models.PendingAction
}

func (i actionItem) FilterValue() string { return i.action.TargetID }
func (i actionItem) Title() string       { return fmt.Sprintf("%s %s", i.action.Kind, i.action.TargetID) }
func (i actionItem) Description() string {
	desc := "queued " + i.action.CreatedAt.Local().Format(time.Kitchen)
	if i.action.Attempts > 0 {
		desc = fmt.Sprintf("%s • %d failed: %s", desc, i.action.Attempts, i.action.LastError)
	}
	return desc
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "--:--"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
