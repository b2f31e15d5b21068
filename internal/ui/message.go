package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/player"
	"github.com/desertthunder/offbeat/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgState MsgKind = iota
	MsgStateClosed
	MsgNotification
	MsgProgressUpdate
	MsgSyncComplete
	MsgPendingFetched
	MsgLiked
	MsgError
)

// stateMsg is the constructor for [MsgState]
func stateMsg(s player.State) Msg {
	return Msg{kind: MsgState, data: s}
}

// stateClosedMsg is the constructor for [MsgStateClosed]
func stateClosedMsg() Msg {
	return Msg{kind: MsgStateClosed}
}

// notificationMsg is the constructor for [MsgNotification]
func notificationMsg(m notify.Message) Msg {
	return Msg{kind: MsgNotification, data: m}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(result *tasks.CycleResult, err error) Msg {
	return Msg{
		kind: MsgSyncComplete,
		data: struct {
			result *tasks.CycleResult
			err    error
		}{result, err},
	}
}

// pendingFetchedMsg is the constructor for [MsgPendingFetched]
func pendingFetchedMsg(pending []*models.PendingAction, err error) Msg {
	return Msg{
		kind: MsgPendingFetched,
		data: struct {
			pending []*models.PendingAction
			err     error
		}{pending, err},
	}
}

// likedMsg is the constructor for [MsgLiked]
func likedMsg(track models.Track, liked bool, err error) Msg {
	return Msg{
		kind: MsgLiked,
		data: struct {
			track models.Track
			liked bool
			err   error
		}{track, liked, err},
	}
}

// errorMsg is the constructor for [MsgError]
func errorMsg(err error) Msg {
	return Msg{kind: MsgError, data: err}
}
