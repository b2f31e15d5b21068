package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

const speakerRate = beep.SampleRate(48000)

var speakerInit struct {
	once sync.Once
	err  error
}

// SpeakerTransport plays mp3 from a file path or an http(s) URL on the default output device.
type SpeakerTransport struct {
	mu     sync.Mutex
	client *http.Client
	stream beep.StreamSeekCloser
	format beep.Format
	ctrl   *beep.Ctrl
	volume *effects.Volume
	level  float64
	muted  bool
	gen    uint64
}

// NewSpeakerTransport initializes the output device once per process.
func NewSpeakerTransport(client *http.Client) (*SpeakerTransport, error) {
	speakerInit.once.Do(func() {
		speakerInit.err = speaker.Init(speakerRate, speakerRate.N(100*time.Millisecond))
	})
	if speakerInit.err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", speakerInit.err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SpeakerTransport{client: client, level: 1}, nil
}

type seekableBody struct {
	*bytes.Reader
}

func (seekableBody) Close() error { return nil }

func (t *SpeakerTransport) open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return os.Open(strings.TrimPrefix(uri, "file://"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", uri, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return seekableBody{bytes.NewReader(data)}, nil
}

// speakerMedia is a decoded stream that has not reached the speaker yet.
type speakerMedia struct {
	t      *SpeakerTransport
	stream beep.StreamSeekCloser
	format beep.Format
}

// Prepare fetches and decodes uri without touching what is playing.
func (t *SpeakerTransport) Prepare(ctx context.Context, uri string) (Prepared, error) {
	rc, err := t.open(ctx, uri)
	if err != nil {
		return nil, err
	}

	stream, format, err := mp3.Decode(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", uri, err)
	}
	return &speakerMedia{t: t, stream: stream, format: format}, nil
}

// Load decodes uri and queues it paused. Any previously loaded media is stopped.
func (t *SpeakerTransport) Load(ctx context.Context, uri string, ended func()) error {
	m, err := t.Prepare(ctx, uri)
	if err != nil {
		return err
	}
	return m.Commit(ended)
}

func (m *speakerMedia) Commit(ended func()) error {
	t := m.t
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen

	var src beep.Streamer = m.stream
	if m.format.SampleRate != speakerRate {
		src = beep.Resample(4, m.format.SampleRate, speakerRate, m.stream)
	}

	t.stream = m.stream
	t.format = m.format
	t.ctrl = &beep.Ctrl{Streamer: src, Paused: true}
	t.volume = &effects.Volume{Streamer: t.ctrl, Base: 2}
	t.applyVolume()

	speaker.Play(beep.Seq(t.volume, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker locked.
		go t.ended(gen, ended)
	})))
	return nil
}

func (m *speakerMedia) Discard() { m.stream.Close() }

func (t *SpeakerTransport) ended(gen uint64, fn func()) {
	t.mu.Lock()
	current := gen == t.gen
	t.mu.Unlock()

	if current && fn != nil {
		fn()
	}
}

func (t *SpeakerTransport) setPaused(paused bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctrl == nil {
		return fmt.Errorf("nothing loaded")
	}
	speaker.Lock()
	t.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

func (t *SpeakerTransport) Play() error  { return t.setPaused(false) }
func (t *SpeakerTransport) Pause() error { return t.setPaused(true) }

func (t *SpeakerTransport) Seek(pos time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stream == nil {
		return fmt.Errorf("nothing loaded")
	}

	speaker.Lock()
	defer speaker.Unlock()
	n := t.format.SampleRate.N(pos)
	if n > t.stream.Len() {
		n = t.stream.Len()
	}
	return t.stream.Seek(n)
}

func (t *SpeakerTransport) SetVolume(v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = v
	t.applyVolume()
	return nil
}

func (t *SpeakerTransport) SetMuted(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = muted
	t.applyVolume()
	return nil
}

// applyVolume maps the linear level onto the base-2 exponent effects.Volume expects. Caller holds t.mu.
func (t *SpeakerTransport) applyVolume() {
	if t.volume == nil {
		return
	}
	speaker.Lock()
	defer speaker.Unlock()
	t.volume.Silent = t.muted || t.level <= 0
	if t.level > 0 {
		t.volume.Volume = math.Log2(t.level)
	}
}

func (t *SpeakerTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	return nil
}

func (t *SpeakerTransport) stopLocked() {
	t.gen++
	speaker.Clear()
	if t.stream != nil {
		t.stream.Close()
	}
	t.stream = nil
	t.ctrl = nil
	t.volume = nil
}

var (
	_ Transport = (*SpeakerTransport)(nil)
	_ Preparer  = (*SpeakerTransport)(nil)
)
