// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/shared"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// Notification is one recorded notification.
type Notification struct {
	Message  string
	Severity notify.Severity
}

// RecordingNotifier records every notification it receives.
type RecordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (r *RecordingNotifier) Notify(message string, severity notify.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Message: message, Severity: severity})
}

// All returns a copy of the recorded notifications.
func (r *RecordingNotifier) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Count returns how many notifications had the given severity.
func (r *RecordingNotifier) Count(severity notify.Severity) int {
	n := 0
	for _, item := range r.All() {
		if item.Severity == severity {
			n++
		}
	}
	return n
}

// FakeClock is a virtual [shared.Clock]. Callbacks fire synchronously inside [FakeClock.Advance].
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	seq    int
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) shared.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns how many timers are scheduled and not yet fired or stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in deadline order.
// Timers scheduled by a firing callback run too if they fall within the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}

		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.fn()
	}
}

// MockService is a test double for [services.Service]. It records calls as "Method:args" strings.
type MockService struct {
	mu          sync.Mutex
	calls       []string
	inflight    int
	maxInflight int

	// Fail returns the error for a call, or nil for success.
	Fail func(call string) error
	// Delay holds every call open for the duration, to observe concurrency.
	Delay time.Duration

	Playlists []models.Playlist
	Lyrics    map[string]models.Lyrics
}

func (m *MockService) record(call string) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	fail := m.Fail
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()

	if fail != nil {
		return fail(call)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (m *MockService) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many calls start with prefix.
func (m *MockService) CallCount(prefix string) int {
	n := 0
	for _, c := range m.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// MaxInflight returns the peak number of concurrent calls.
func (m *MockService) MaxInflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInflight
}

func (m *MockService) Ping(ctx context.Context) error {
	return m.record("Ping")
}

func (m *MockService) SetLike(ctx context.Context, itemType, id string, liked bool) error {
	return m.record(fmt.Sprintf("SetLike:%s/%s:%t", itemType, id, liked))
}

func (m *MockService) SetFollow(ctx context.Context, artistID string, following bool) error {
	return m.record(fmt.Sprintf("SetFollow:%s:%t", artistID, following))
}

func (m *MockService) CreatePlaylist(ctx context.Context, p models.Playlist) (*models.Playlist, error) {
	if err := m.record("CreatePlaylist:" + p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MockService) UpdatePlaylist(ctx context.Context, p models.Playlist) (*models.Playlist, error) {
	if err := m.record("UpdatePlaylist:" + p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MockService) DeletePlaylist(ctx context.Context, id string) error {
	return m.record("DeletePlaylist:" + id)
}

func (m *MockService) SetVisibility(ctx context.Context, playlistID string, public bool) error {
	return m.record(fmt.Sprintf("SetVisibility:%s:%t", playlistID, public))
}

func (m *MockService) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	if err := m.record("ListPlaylists"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Playlist(nil), m.Playlists...), nil
}

func (m *MockService) UploadLyrics(ctx context.Context, lyrics []models.Lyrics) error {
	ids := make([]string, len(lyrics))
	for i, l := range lyrics {
		ids[i] = l.ID
	}
	return m.record("UploadLyrics:" + strings.Join(ids, ","))
}

func (m *MockService) GetLyrics(ctx context.Context, songID string) (*models.Lyrics, error) {
	if err := m.record("GetLyrics:" + songID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.Lyrics[songID]
	if !ok {
		return nil, fmt.Errorf("%w: lyrics for %s", shared.ErrNotFound, songID)
	}
	return &l, nil
}

func (m *MockService) UploadFile(ctx context.Context, file models.UploadedFile, payload []byte) error {
	return m.record("UploadFile:" + file.ID)
}

func (m *MockService) RecordHistory(ctx context.Context, h models.PlaybackHistory) error {
	return m.record("RecordHistory:" + h.TrackID)
}
