package tasks

import (
	"fmt"
	"time"
)

// ProgressUpdate represents a progress event during a sync cycle.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase enumerates the stages of a cycle.
type Phase int

const (
	Probe Phase = iota
	SyncLyrics
	SyncUploads
	SyncPlaylists
	SyncSocial
	Complete
	Skipped
)

func (p Phase) String() string {
	switch p {
	case Probe:
		return "probe"
	case SyncLyrics:
		return "sync_lyrics"
	case SyncUploads:
		return "sync_uploads"
	case SyncPlaylists:
		return "sync_playlists"
	case SyncSocial:
		return "sync_social"
	case Complete:
		return "complete"
	case Skipped:
		return "skipped"
	default:
		return ""
	}
}

func probeUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Probe,
		Step:    1,
		Total:   1,
		Message: "Checking the server...",
	}
}

func skippedUpdate(reason SkipReason) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Skipped,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Sync skipped: %s", reason),
		Data:    reason,
	}
}

func batchUpdate(phase Phase, step, total, items int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Syncing %d %s...", step, total, items, phase.noun()),
	}
}

func completeUpdate(r *CycleResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Sync finished in %s: %d synced, %d failed, %d dropped", r.Duration.Round(time.Millisecond), len(r.Succeeded), len(r.Failed), len(r.Dropped)),
		Data:    r,
	}
}

func (p Phase) noun() string {
	switch p {
	case SyncLyrics:
		return "lyrics"
	case SyncUploads:
		return "uploads"
	case SyncPlaylists:
		return "playlist changes"
	case SyncSocial:
		return "likes and follows"
	default:
		return "items"
	}
}
