// Package ui implements the terminal now-playing interface using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [QueueView] : the playback queue with the current track, repeat, shuffle and volume
//  2. [PendingView] : actions waiting for the server
//
// The [Model] implements bubbletea's Init/Update/View pattern, receiving messages via the [Msg] union type.
// Engine snapshots, notifications and sync progress each arrive through a channel and are turned into messages
// by a command that re-arms itself, so the engine never waits on the terminal.
//
// Keyboard bindings follow vim style (j/k, enter, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
