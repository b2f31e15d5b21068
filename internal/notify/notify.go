// Package notify defines the notification port the core uses to surface status to whatever renders it.
//
// Components receive a [Notifier] at construction; none of them reach for a global.
// [LogNotifier] writes through charmbracelet/log, [Broadcaster] fans messages out to subscribers
// (the control server's websocket and the TUI), and [Func] adapts a plain function.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Severity classifies a notification.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps a name back to its [Severity].
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "info":
		return Info, nil
	case "success":
		return Success, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	default:
		return Info, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements [encoding.TextMarshaler] so severities serialize by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Notifier is the single-method port every component reports through.
type Notifier interface {
	Notify(message string, severity Severity)
}

// Func adapts a function to [Notifier].
type Func func(message string, severity Severity)

func (f Func) Notify(message string, severity Severity) { f(message, severity) }

// Discard drops every notification.
var Discard Notifier = Func(func(string, Severity) {})

// OrDiscard returns n, or [Discard] when n is nil.
func OrDiscard(n Notifier) Notifier {
	if n == nil {
		return Discard
	}
	return n
}

// LogNotifier writes notifications to a [log.Logger] at a level matching their severity.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a [LogNotifier].
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(message string, severity Severity) {
	switch severity {
	case Error:
		n.logger.Error(message)
	case Warning:
		n.logger.Warn(message)
	default:
		n.logger.Info(message, "severity", severity)
	}
}

// Message is a delivered notification.
type Message struct {
	Text     string    `json:"text"`
	Severity Severity  `json:"severity"`
	At       time.Time `json:"at"`
}

// Broadcaster fans notifications out to every subscriber without blocking the sender.
//
// A slow subscriber misses messages rather than stalling the component that notified.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	nextID int
	also   []Notifier
}

// NewBroadcaster creates a [Broadcaster]. Every notification is also forwarded to the given notifiers.
func NewBroadcaster(also ...Notifier) *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Message), also: also}
}

// Subscribe returns a channel of notifications and a function that cancels the subscription.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Message, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Notify(message string, severity Severity) {
	for _, n := range b.also {
		n.Notify(message, severity)
	}

	msg := Message{Text: message, Severity: severity, At: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
