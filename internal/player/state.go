package player

import (
	"fmt"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
)

// TransportState is the media session state.
type TransportState int

const (
	Stopped TransportState = iota
	Loading
	Playing
	Paused
)

func (s TransportState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("TransportState(%d)", int(s))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s TransportState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *TransportState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "stopped":
		*s = Stopped
	case "loading":
		*s = Loading
	case "playing":
		*s = Playing
	case "paused":
		*s = Paused
	default:
		return fmt.Errorf("unknown transport state %q", text)
	}
	return nil
}

// RepeatMode selects what happens at the end of a track and of the queue.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatAll  RepeatMode = "all"
	RepeatOne  RepeatMode = "one"
)

// ParseRepeatMode validates s. An empty string is [RepeatNone].
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch RepeatMode(s) {
	case "", RepeatNone:
		return RepeatNone, nil
	case RepeatAll:
		return RepeatAll, nil
	case RepeatOne:
		return RepeatOne, nil
	default:
		return "", fmt.Errorf("%w: repeat mode %q (want none, all or one)", shared.ErrInvalidArgument, s)
	}
}

// Next returns the mode after m in the cycle none → all → one → none.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

// State is a snapshot of the engine. Observers receive copies.
type State struct {
	Queue        []models.Track `json:"queue"`
	CurrentIndex int            `json:"current_index"`
	Current      *models.Track  `json:"current,omitempty"`
	Transport    TransportState `json:"transport"`
	Repeat       RepeatMode     `json:"repeat"`
	Shuffle      bool           `json:"shuffle"`
	Volume       float64        `json:"volume"`
	Muted        bool           `json:"muted"`
	ActiveHandle string         `json:"active_handle,omitempty"`
	Source       string         `json:"source,omitempty"`
}

// CurrentID returns the id of the current track, or "" for an empty queue.
func (s State) CurrentID() string {
	if s.Current == nil {
		return ""
	}
	return s.Current.ID
}
