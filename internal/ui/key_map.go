package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	enter    key.Binding
	toggle   key.Binding
	next     key.Binding
	previous key.Binding
	repeat   key.Binding
	shuffle  key.Binding
	mute     key.Binding
	louder   key.Binding
	quieter  key.Binding
	like     key.Binding
	sync     key.Binding
	view     key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play")),
		toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		next:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		previous: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		repeat:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat")),
		shuffle:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "shuffle")),
		mute:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		louder:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "louder")),
		quieter:  key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "quieter")),
		like:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "like")),
		sync:     key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "sync now")),
		view:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch view")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggle, k.next, k.view, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.toggle, k.next, k.previous},
		{k.repeat, k.shuffle, k.mute, k.louder, k.quieter},
		{k.like, k.sync, k.view, k.quit},
	}
}
