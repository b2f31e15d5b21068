package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/shared"
)

const historyTimeout = 10 * time.Second

// HistoryRecorder posts playback history to the remote API.
type HistoryRecorder interface {
	RecordHistory(ctx context.Context, h models.PlaybackHistory) error
}

// Authenticator reports whether a session is present.
type Authenticator interface {
	Authenticated() bool
}

// Options configures an [Engine]. Transport and Resolver are required.
type Options struct {
	Transport Transport
	Resolver  Resolver
	History   *repositories.HistoryRepository
	Remote    HistoryRecorder
	Session   Authenticator
	Notifier  notify.Notifier
	Logger    *log.Logger
	Rand      *rand.Rand

	Volume  float64
	Repeat  RepeatMode
	Shuffle bool
}

// Engine is the playback state machine. It is safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	queue     []models.Track
	index     int
	transport TransportState
	repeat    RepeatMode
	shuffle   bool
	volume    float64
	muted     bool
	handle    Handle
	uri       string
	order     *shuffler
	closed    bool
	gen       uint64 // bumped on every stop; a load or an end-of-media callback from an older value is stale

	media    Transport
	resolver Resolver
	history  *repositories.HistoryRepository
	remote   HistoryRecorder
	session  Authenticator
	notifier notify.Notifier
	logger   *log.Logger

	subMu  sync.Mutex
	subs   map[int]chan State
	nextID int

	writes sync.WaitGroup
}

// NewEngine creates a stopped engine with an empty queue.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	media := opts.Transport
	if media == nil {
		media = NullTransport{}
	}
	repeat := opts.Repeat
	if repeat == "" {
		repeat = RepeatNone
	}

	e := &Engine{
		repeat:   repeat,
		shuffle:  opts.Shuffle,
		volume:   shared.Clamp01(opts.Volume),
		order:    newShuffler(opts.Rand),
		media:    media,
		resolver: opts.Resolver,
		history:  opts.History,
		remote:   opts.Remote,
		session:  opts.Session,
		notifier: notify.OrDiscard(opts.Notifier),
		logger:   logger,
		subs:     make(map[int]chan State),
	}

	media.SetVolume(e.volume)
	return e
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) snapshot() State {
	s := State{
		Queue:        append([]models.Track(nil), e.queue...),
		CurrentIndex: e.index,
		Transport:    e.transport,
		Repeat:       e.repeat,
		Shuffle:      e.shuffle,
		Volume:       e.volume,
		Muted:        e.muted,
	}
	if len(e.queue) > 0 {
		cur := e.queue[e.index]
		s.Current = &cur
	}
	if e.handle != nil {
		s.ActiveHandle = e.handle.URI()
	}
	s.Source = e.uri
	return s
}

// Play starts playback.
//
// Several tracks replace the queue and start at the first. A single track already queued is jumped to;
// any other single track becomes the whole queue. No tracks resumes the current one.
func (e *Engine) Play(ctx context.Context, tracks ...models.Track) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch len(tracks) {
	case 0:
		if len(e.queue) == 0 {
			return e.snapshot()
		}
	case 1:
		if i := e.find(tracks[0].ID); i >= 0 {
			e.index = i
		} else {
			e.queue = []models.Track{tracks[0]}
			e.index = 0
		}
	default:
		e.queue = append([]models.Track(nil), tracks...)
		e.index = 0
	}

	e.rebuildOrder()
	e.load(ctx)
	return e.snapshot()
}

// PlayIndex jumps to position i of the queue.
func (e *Engine) PlayIndex(ctx context.Context, i int) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.queue) {
		return e.snapshot(), fmt.Errorf("%w: index %d outside queue of %d", shared.ErrInvalidArgument, i, len(e.queue))
	}

	e.index = i
	e.rebuildOrder()
	e.load(ctx)
	return e.snapshot(), nil
}

// Append adds tracks to the end of the queue without interrupting playback.
func (e *Engine) Append(tracks ...models.Track) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(tracks) == 0 {
		return e.snapshot()
	}
	e.queue = append(e.queue, tracks...)
	e.rebuildOrder()
	e.publish()
	return e.snapshot()
}

// Clear stops playback and empties the queue.
func (e *Engine) Clear() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stop()
	e.queue = nil
	e.index = 0
	e.rebuildOrder()
	e.publish()
	return e.snapshot()
}

// Toggle flips playing and paused. From stopped it reloads the current track. An empty queue is a no-op.
func (e *Engine) Toggle(ctx context.Context) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return e.snapshot()
	}

	switch e.transport {
	case Playing:
		if err := e.media.Pause(); err != nil {
			e.logger.Warn("pause failed", "error", err)
		}
		e.transport = Paused
		e.publish()
	case Paused:
		if err := e.media.Play(); err != nil {
			e.fail(fmt.Errorf("%w: %v", shared.ErrPlaybackUnavailable, err))
			break
		}
		e.transport = Playing
		e.publish()
	default:
		e.load(ctx)
	}
	return e.snapshot()
}

// Next advances according to the repeat and shuffle modes.
func (e *Engine) Next(ctx context.Context) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next(ctx)
	return e.snapshot()
}

func (e *Engine) next(ctx context.Context) {
	if len(e.queue) == 0 {
		return
	}

	if e.repeat == RepeatOne {
		e.restart(ctx)
		return
	}

	if e.shuffle {
		idx, ok := e.order.next(e.repeat, e.index)
		if !ok {
			e.stop()
			e.publish()
			return
		}
		e.index = idx
		e.load(ctx)
		return
	}

	switch {
	case e.index < len(e.queue)-1:
		e.index++
	case e.repeat == RepeatAll:
		e.index = 0
	default:
		e.stop()
		e.publish()
		return
	}
	e.load(ctx)
}

// Previous steps back according to the repeat and shuffle modes.
func (e *Engine) Previous(ctx context.Context) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return e.snapshot()
	}

	if e.repeat == RepeatOne {
		e.restart(ctx)
		return e.snapshot()
	}

	if e.shuffle {
		if idx, ok := e.order.prev(); ok {
			e.index = idx
			e.load(ctx)
		} else {
			e.restart(ctx)
		}
		return e.snapshot()
	}

	switch {
	case e.index > 0:
		e.index--
	case e.repeat == RepeatAll:
		e.index = len(e.queue) - 1
	default:
		e.restart(ctx)
		return e.snapshot()
	}
	e.load(ctx)
	return e.snapshot()
}

// OnEnded handles the end of the current media: repeat one restarts it, anything else advances.
func (e *Engine) OnEnded(ctx context.Context) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advance(ctx)
	return e.snapshot()
}

// ended is the transport callback for the media loaded at gen. It is ignored once that media was replaced.
func (e *Engine) ended(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		e.logger.Debug("ignoring end of replaced media")
		return
	}
	e.advance(context.Background())
}

func (e *Engine) advance(ctx context.Context) {
	if e.closed || len(e.queue) == 0 {
		return
	}
	if e.repeat == RepeatOne {
		e.restart(ctx)
	} else {
		e.next(ctx)
	}
}

// Stop halts playback and releases the active handle. The queue and index are kept.
func (e *Engine) Stop() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stop()
	e.publish()
	return e.snapshot()
}

// SetRepeat sets the repeat mode.
func (e *Engine) SetRepeat(mode RepeatMode) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeat = mode
	e.rebuildOrder()
	e.publish()
	return e.snapshot()
}

// CycleRepeat advances none → all → one → none.
func (e *Engine) CycleRepeat() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeat = e.repeat.Next()
	e.rebuildOrder()
	e.publish()
	return e.snapshot()
}

// SetShuffle turns shuffle on or off.
func (e *Engine) SetShuffle(on bool) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shuffle = on
	e.rebuildOrder()
	e.publish()
	return e.snapshot()
}

// ToggleShuffle flips shuffle.
func (e *Engine) ToggleShuffle() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shuffle = !e.shuffle
	e.rebuildOrder()
	e.publish()
	return e.snapshot()
}

// SetVolume sets the volume, clamped to [0, 1].
func (e *Engine) SetVolume(v float64) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = shared.Clamp01(v)
	if err := e.media.SetVolume(e.volume); err != nil {
		e.logger.Warn("set volume failed", "error", err)
	}
	e.publish()
	return e.snapshot()
}

// SetMuted mutes or unmutes without touching the volume.
func (e *Engine) SetMuted(muted bool) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setMuted(muted)
	return e.snapshot()
}

// ToggleMute flips mute.
func (e *Engine) ToggleMute() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setMuted(!e.muted)
	return e.snapshot()
}

func (e *Engine) setMuted(muted bool) {
	e.muted = muted
	if err := e.media.SetMuted(muted); err != nil {
		e.logger.Warn("set muted failed", "error", err)
	}
	e.publish()
}

// Close stops playback, releases the handle, ends subscriptions and waits for pending history writes.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stop()
	e.mu.Unlock()

	e.subMu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.subMu.Unlock()

	e.writes.Wait()
}

func (e *Engine) find(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range e.queue {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) rebuildOrder() {
	e.order.rebuild(len(e.queue), e.index)
}

// releaseHandle drops the active handle. Called before every new handle is created.
func (e *Engine) releaseHandle() {
	if e.handle != nil {
		e.handle.Release()
		e.handle = nil
	}
	e.uri = ""
}

func (e *Engine) stop() {
	e.gen++
	if err := e.media.Stop(); err != nil {
		e.logger.Warn("transport stop failed", "error", err)
	}
	e.releaseHandle()
	e.transport = Stopped
}

var errSuperseded = errors.New("load superseded")

// load resolves and starts the current track. Caller holds e.mu; it is released while a [Preparer] fetches the media.
func (e *Engine) load(ctx context.Context) {
	if e.closed {
		return
	}

	e.stop()
	e.transport = Loading
	e.publish()

	track := e.queue[e.index]
	if e.resolver == nil {
		e.fail(fmt.Errorf("%w: no resolver configured", shared.ErrPlaybackUnavailable))
		return
	}

	src, err := e.resolver.Resolve(ctx, track)
	if err != nil {
		e.fail(err)
		return
	}
	e.handle = src.Handle
	e.uri = src.URI

	gen := e.gen
	if err := e.open(ctx, gen, src.URI, func() { e.ended(gen) }); err != nil {
		if errors.Is(err, errSuperseded) {
			e.logger.Debug("load superseded", "track", track.ID)
			return
		}
		e.fail(fmt.Errorf("%w: %v", shared.ErrPlaybackUnavailable, err))
		return
	}
	e.media.SetVolume(e.volume)
	e.media.SetMuted(e.muted)

	if err := e.media.Play(); err != nil {
		e.fail(fmt.Errorf("%w: %v", shared.ErrPlaybackUnavailable, err))
		return
	}

	e.transport = Playing
	e.logger.Debug("playing", "track", track.ID, "uri", src.URI)
	e.recordHistory(track)
	e.publish()
}

// open hands uri to the transport. Caller holds e.mu.
func (e *Engine) open(ctx context.Context, gen uint64, uri string, ended func()) error {
	p, ok := e.media.(Preparer)
	if !ok {
		return e.media.Load(ctx, uri, ended)
	}

	e.mu.Unlock()
	prepared, err := p.Prepare(ctx, uri)
	e.mu.Lock()

	if gen != e.gen || e.closed {
		if prepared != nil {
			prepared.Discard()
		}
		return errSuperseded
	}
	if err != nil {
		return err
	}
	return prepared.Commit(ended)
}

// restart replays the current track from the beginning, reloading it when nothing is loaded.
func (e *Engine) restart(ctx context.Context) {
	if e.transport != Playing && e.transport != Paused {
		e.load(ctx)
		return
	}

	if err := e.media.Seek(0); err != nil {
		e.logger.Warn("seek failed, reloading", "error", err)
		e.load(ctx)
		return
	}
	if err := e.media.Play(); err != nil {
		e.fail(fmt.Errorf("%w: %v", shared.ErrPlaybackUnavailable, err))
		return
	}

	e.transport = Playing
	e.recordHistory(e.queue[e.index])
	e.publish()
}

// fail leaves the transport stopped and surfaces the failure.
func (e *Engine) fail(err error) {
	e.stop()
	e.publish()

	if !errors.Is(err, shared.ErrPlaybackUnavailable) {
		err = fmt.Errorf("%w: %v", shared.ErrPlaybackUnavailable, err)
	}
	e.logger.Error("playback failed", "error", err)

	label := "track"
	if len(e.queue) > 0 {
		label = e.queue[e.index].Label()
	}
	e.notifier.Notify(fmt.Sprintf("Playback unavailable: %s", label), notify.Error)
}

// recordHistory writes a history row and, for an authenticated session, posts it remotely. It never blocks playback.
func (e *Engine) recordHistory(track models.Track) {
	if track.ID == "" || e.history == nil {
		return
	}

	playedAt := time.Now().UTC()
	e.writes.Add(1)
	go func() {
		defer e.writes.Done()

		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		h, err := e.history.Record(ctx, track.ID, playedAt)
		if err != nil {
			e.logger.Warn("failed to record playback history", "track", track.ID, "error", err)
			return
		}

		if e.remote == nil || e.session == nil || !e.session.Authenticated() {
			return
		}
		if err := e.remote.RecordHistory(ctx, *h); err != nil {
			e.logger.Warn("failed to post playback history", "track", track.ID, "error", err)
		}
	}()
}
