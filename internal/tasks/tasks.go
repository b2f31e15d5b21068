package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/actions"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/services"
	"github.com/desertthunder/offbeat/internal/shared"
	"golang.org/x/sync/errgroup"
)

// SkipReason explains why a cycle did not run.
type SkipReason string

const (
	SkipBusy            SkipReason = "a cycle is already running"
	SkipOffline         SkipReason = "offline"
	SkipUnauthenticated SkipReason = "not signed in"
	SkipUnreachable     SkipReason = "server unreachable"
)

// CycleResult summarizes one reconciliation pass.
type CycleResult struct {
	Skipped   SkipReason    // Empty when the cycle ran
	Succeeded []string      // Items confirmed by the server
	Failed    []string      // Items left for the next cycle
	Dropped   []string      // Items rejected by the server and deleted
	Aborted   bool          // The session was rejected mid-cycle
	StartedAt time.Time     // Clock time the cycle began
	Duration  time.Duration // Clock time the cycle took
}

// Ran reports whether the cycle got past its preconditions.
func (r *CycleResult) Ran() bool { return r.Skipped == "" }

// HasFailures reports whether any item is left for retry.
func (r *CycleResult) HasFailures() bool { return len(r.Failed) > 0 }

// FailedIDs returns the failure set of the cycle.
func (r *CycleResult) FailedIDs() map[string]bool {
	ids := make(map[string]bool, len(r.Failed))
	for _, id := range r.Failed {
		ids[id] = true
	}
	return ids
}

// Syncer runs reconciliation cycles on demand.
type Syncer interface {
	RunCycle(ctx context.Context) (*CycleResult, error)
}

// Session is the part of the session holder the sync service reads.
type Session interface {
	Authenticated() bool
	IsAdmin() bool
	Clear()
}

// Rollbacker reverts the optimistic local change behind a dropped action.
type Rollbacker interface {
	Rollback(ctx context.Context, a *models.PendingAction) error
}

// Options configures a [SyncService]. Queue, Remote and Session are required.
type Options struct {
	Queue        *actions.Queue
	Remote       services.Service
	Session      Session
	Connectivity Connectivity
	Playlists    *repositories.PlaylistRepository
	Lyrics       *repositories.LyricsRepository
	Uploads      *repositories.UploadRepository
	Rollback     Rollbacker
	Notifier     notify.Notifier
	Logger       *log.Logger
	Clock        shared.Clock
	RetryClock   shared.Clock // Backoff between attempts of one item; nil is the wall clock
	Config       shared.SyncConfig
	Progress     chan<- ProgressUpdate
}

// SyncService is the background reconciliation loop.
type SyncService struct {
	queue     *actions.Queue
	remote    services.Service
	session   Session
	conn      Connectivity
	playlists *repositories.PlaylistRepository
	lyrics    *repositories.LyricsRepository
	uploads   *repositories.UploadRepository
	rollback  Rollbacker
	notifier  notify.Notifier
	logger    *log.Logger
	clock     shared.Clock
	cfg       shared.SyncConfig
	retry     shared.RetryPolicy
	progress  chan<- ProgressUpdate

	running atomic.Bool

	mu          sync.Mutex
	started     bool
	ctx         context.Context
	timer       shared.Timer
	nextRun     time.Time
	lastStart   time.Time
	unsubscribe func()
	inflight    sync.WaitGroup
}

// NewSyncService creates a stopped sync service. Zero config values take the embedded defaults.
func NewSyncService(opts Options) *SyncService {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	clock := opts.Clock
	if clock == nil {
		clock = shared.RealClock{}
	}
	conn := opts.Connectivity
	if conn == nil {
		conn = alwaysOnline{}
	}
	cfg := withDefaults(opts.Config)

	return &SyncService{
		queue:     opts.Queue,
		remote:    opts.Remote,
		session:   opts.Session,
		conn:      conn,
		playlists: opts.Playlists,
		lyrics:    opts.Lyrics,
		uploads:   opts.Uploads,
		rollback:  opts.Rollback,
		notifier:  notify.OrDiscard(opts.Notifier),
		logger:    shared.WithLogger(logger, "component", "sync"),
		clock:     clock,
		cfg:       cfg,
		retry:     shared.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay.Duration, Clock: opts.RetryClock},
		progress:  opts.Progress,
	}
}

func withDefaults(cfg shared.SyncConfig) shared.SyncConfig {
	def := shared.DefaultConfig().Sync
	if cfg.Interval.Duration <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RetryInterval.Duration <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.Debounce.Duration <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryBaseDelay.Duration <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.Batches.Lyrics < 1 {
		cfg.Batches.Lyrics = def.Batches.Lyrics
	}
	if cfg.Batches.Uploads < 1 {
		cfg.Batches.Uploads = def.Batches.Uploads
	}
	if cfg.Batches.Playlists < 1 {
		cfg.Batches.Playlists = def.Batches.Playlists
	}
	if cfg.Batches.Social < 1 {
		cfg.Batches.Social = def.Batches.Social
	}
	return cfg
}

// sendProgress sends a progress update through the channel without blocking.
func (s *SyncService) sendProgress(update ProgressUpdate) {
	if s.progress == nil {
		return
	}
	select {
	case s.progress <- update:
	default:
	}
}

// Start schedules cycles and listens for reconnects. Cycles run on a context detached from ctx's cancellation,
// so an in-flight cycle always finishes.
func (s *SyncService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx = context.WithoutCancel(ctx)
	s.unsubscribe = s.conn.OnReconnect(s.onReconnect)
	s.scheduleLocked(s.cfg.Interval.Duration)
	s.logger.Info("sync started", "interval", s.cfg.Interval.Duration)
}

// Stop cancels the schedule and waits for a cycle in flight.
func (s *SyncService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mu.Unlock()

	s.inflight.Wait()
	s.logger.Info("sync stopped")
}

// NextRun returns when the next scheduled cycle fires, or the zero time when stopped.
func (s *SyncService) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	return s.nextRun
}

func (s *SyncService) scheduleLocked(d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.nextRun = s.clock.Now().Add(d)
	s.timer = s.clock.AfterFunc(d, s.tick)
}

func (s *SyncService) tick() {
	ctx, ok := s.begin()
	if !ok {
		return
	}
	defer s.inflight.Done()

	res, err := s.RunCycle(ctx)
	if res.Skipped == SkipBusy {
		s.rearm(s.cfg.RetryInterval.Duration)
		return
	}
	s.reschedule(res, err)
}

// rearm keeps the schedule alive after a tick found another cycle in flight.
func (s *SyncService) rearm(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.scheduleLocked(d)
	s.logger.Debug("cycle in flight, next sync scheduled", "in", d)
}

func (s *SyncService) onReconnect() {
	ctx, ok := s.begin()
	if !ok {
		return
	}
	defer s.inflight.Done()

	s.mu.Lock()
	last := s.lastStart
	s.mu.Unlock()
	if !last.IsZero() && s.clock.Now().Sub(last) < s.cfg.Debounce.Duration {
		s.logger.Debug("reconnect ignored, cycle started recently", "since", s.clock.Now().Sub(last))
		return
	}

	s.logger.Info("reconnected, syncing")
	res, err := s.RunCycle(ctx)
	s.reschedule(res, err)
}

// begin registers a background cycle unless the service was stopped.
func (s *SyncService) begin() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, false
	}
	s.inflight.Add(1)
	return s.ctx, true
}

// reschedule arms the timer after a background cycle: the retry interval when items failed, the interval otherwise.
func (s *SyncService) reschedule(res *CycleResult, err error) {
	if err != nil && !errors.Is(err, shared.ErrUnauthorized) {
		s.logger.Error("sync cycle failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || res.Skipped == SkipBusy {
		return
	}

	d := s.cfg.Interval.Duration
	if res.HasFailures() || err != nil {
		d = s.cfg.RetryInterval.Duration
	}
	s.scheduleLocked(d)
	s.logger.Debug("next sync scheduled", "in", d)
}

// RunCycle runs one reconciliation pass unless another is in flight.
//
// The returned error wraps [shared.ErrUnauthorized] when the session was rejected, or reports that pending
// work could not be read from the local store.
func (s *SyncService) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return &CycleResult{Skipped: SkipBusy}, nil
	}
	defer s.running.Store(false)

	res := &CycleResult{StartedAt: s.clock.Now()}
	if reason := s.precondition(ctx); reason != "" {
		res.Skipped = reason
		s.logger.Debug("sync skipped", "reason", reason)
		s.sendProgress(skippedUpdate(reason))
		return res, nil
	}

	s.mu.Lock()
	s.lastStart = res.StartedAt
	s.mu.Unlock()

	c := &cycle{result: res, blocked: make(map[string]bool)}
	err := s.runGroups(ctx, c)
	res.Duration = s.clock.Now().Sub(res.StartedAt)

	s.sendProgress(completeUpdate(res))
	s.report(res)
	return res, err
}

func (s *SyncService) precondition(ctx context.Context) SkipReason {
	if !s.conn.Online() {
		return SkipOffline
	}
	if !s.session.Authenticated() {
		return SkipUnauthenticated
	}

	s.sendProgress(probeUpdate())
	if err := s.remote.Ping(ctx); err != nil {
		s.logger.Warn("liveness probe failed", "error", err)
		if r, ok := s.conn.(interface{ Report(bool) }); ok {
			r.Report(false)
		}
		return SkipUnreachable
	}
	return ""
}

func (s *SyncService) report(res *CycleResult) {
	s.logger.Info("sync cycle finished",
		"succeeded", len(res.Succeeded), "failed", len(res.Failed), "dropped", len(res.Dropped),
		"aborted", res.Aborted, "duration", res.Duration)

	switch {
	case res.Aborted:
	case res.HasFailures():
		s.notifier.Notify(fmt.Sprintf("%d changes could not be synced; retrying in %s", len(res.Failed), s.cfg.RetryInterval.Duration), notify.Warning)
	case len(res.Succeeded) > 0:
		s.notifier.Notify(fmt.Sprintf("Synced %d changes", len(res.Succeeded)), notify.Success)
	}
}

// cycle is the shared state of one pass. Items of a batch update it concurrently.
type cycle struct {
	mu      sync.Mutex
	result  *CycleResult
	blocked map[string]bool // playlists whose create failed this cycle
	aborted atomic.Bool
}

func (c *cycle) add(id string, o actions.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch o {
	case actions.Succeeded:
		c.result.Succeeded = append(c.result.Succeeded, id)
	case actions.Dropped:
		c.result.Dropped = append(c.result.Dropped, id)
	default:
		c.result.Failed = append(c.result.Failed, id)
	}
}

func (c *cycle) block(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[target] = true
}

func (c *cycle) isBlocked(target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked[target]
}

// item is one unit of remote work: a pending action or an unsynced cached row.
type item struct {
	id     string
	kind   models.ActionKind
	target string
	action *models.PendingAction // nil for write-back rows
	push   func(ctx context.Context) error
	settle func(ctx context.Context) error // stops a rejected write-back row from being pushed again
}

// group is one entity type of the cycle.
type group struct {
	phase     Phase
	size      int
	kinds     []models.ActionKind
	adminOnly bool
	writeBack func(ctx context.Context, covered map[string]bool) ([]item, error)
}

func (s *SyncService) groups() []group {
	return []group{
		{phase: SyncLyrics, size: s.cfg.Batches.Lyrics, kinds: []models.ActionKind{models.UploadLyrics}, writeBack: s.lyricsWriteBack},
		{phase: SyncUploads, size: s.cfg.Batches.Uploads, kinds: []models.ActionKind{models.UploadFile}, adminOnly: true, writeBack: s.uploadsWriteBack},
		{phase: SyncPlaylists, size: s.cfg.Batches.Playlists, kinds: []models.ActionKind{models.CreatePlaylist, models.UpdatePlaylist, models.DeletePlaylist, models.ToggleVisibility}, writeBack: s.playlistsWriteBack},
		{phase: SyncSocial, size: s.cfg.Batches.Social, kinds: []models.ActionKind{models.ToggleLike, models.ToggleFollow}},
	}
}

func (s *SyncService) runGroups(ctx context.Context, c *cycle) error {
	for _, g := range s.groups() {
		if g.adminOnly && !s.session.IsAdmin() {
			continue
		}

		items, err := s.collect(ctx, g)
		if err != nil {
			return fmt.Errorf("failed to collect %s: %w", g.phase, err)
		}

		if err := s.runBatches(ctx, c, g, items); err != nil {
			return err
		}
	}
	return nil
}

// collect returns the group's pending actions followed by its uncovered write-back rows, ordered by kind.
func (s *SyncService) collect(ctx context.Context, g group) ([]item, error) {
	pending, err := s.queue.ListKinds(ctx, g.kinds...)
	if err != nil {
		return nil, err
	}

	covered := make(map[string]bool, len(pending))
	items := make([]item, 0, len(pending))
	for _, a := range pending {
		covered[a.TargetID] = true
		items = append(items, s.actionItem(a))
	}

	if g.writeBack != nil {
		rows, err := g.writeBack(ctx, covered)
		if err != nil {
			return nil, err
		}
		items = append(items, rows...)
	}

	order := make(map[models.ActionKind]int, len(g.kinds))
	for i, k := range g.kinds {
		order[k] = i
	}
	sort.SliceStable(items, func(i, j int) bool { return order[items[i].kind] < order[items[j].kind] })
	return items, nil
}

// batches splits items into chunks of at most size that never mix kinds.
func batches(items []item, size int) [][]item {
	var out [][]item
	for len(items) > 0 {
		n := 1
		for n < len(items) && n < size && items[n].kind == items[0].kind {
			n++
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

// runBatches processes batches in order, running every item of a batch concurrently.
func (s *SyncService) runBatches(ctx context.Context, c *cycle, g group, items []item) error {
	chunks := batches(items, g.size)
	for i, batch := range chunks {
		s.sendProgress(batchUpdate(g.phase, i+1, len(chunks), len(batch)))

		var eg errgroup.Group
		for _, it := range batch {
			eg.Go(func() error { return s.syncItem(ctx, c, it) })
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

var errCycleAborted = errors.New("sync cycle aborted")

// syncItem pushes one item with retries and applies the outcome. It returns an error only when the session was rejected.
func (s *SyncService) syncItem(ctx context.Context, c *cycle, it item) error {
	if c.aborted.Load() {
		return nil
	}
	if it.kind != models.CreatePlaylist && c.isBlocked(it.target) {
		s.logger.Debug("waiting for playlist create", "item", it.id)
		c.add(it.id, actions.Failed)
		return nil
	}

	if it.action != nil {
		s.queue.Claim(it.action)
	}
	err := shared.Retry(ctx, s.retry, func(ctx context.Context, attempt int) error {
		if c.aborted.Load() {
			return errCycleAborted
		}
		if attempt > 0 {
			s.logger.Debug("retrying", "item", it.id, "attempt", attempt+1)
		}
		return it.push(ctx)
	})

	outcome, current := actions.OutcomeOf(err), true
	if it.action != nil {
		outcome, current = s.queue.Settle(ctx, it.action, err)
	}
	c.add(it.id, outcome)

	switch outcome {
	case actions.Succeeded:
		if it.action != nil && current {
			s.markActionSynced(ctx, it.action)
		}
	case actions.Failed:
		s.logger.Warn("sync item failed", "item", it.id, "error", err)
		if it.kind == models.CreatePlaylist {
			c.block(it.target)
		}
	case actions.Dropped:
		s.dropped(ctx, it, err, current)
	case actions.Aborted:
		if c.aborted.CompareAndSwap(false, true) {
			c.mu.Lock()
			c.result.Aborted = true
			c.mu.Unlock()
			s.abort(err)
		}
		return fmt.Errorf("%w: sync aborted at %s", shared.ErrUnauthorized, it.id)
	}
	return nil
}

// dropped reverts a rejected change. A superseded action is not rolled back since a newer revision replaced its state.
func (s *SyncService) dropped(ctx context.Context, it item, cause error, current bool) {
	if errors.Is(cause, errObsolete) {
		s.logger.Warn("discarded obsolete action", "item", it.id, "error", cause)
		return
	}

	s.logger.Error("server rejected change", "item", it.id, "error", cause)
	if it.action != nil && current && s.rollback != nil {
		if err := s.rollback.Rollback(ctx, it.action); err != nil {
			s.logger.Warn("rollback failed", "item", it.id, "error", err)
		}
	}
	if it.settle != nil {
		if err := it.settle(ctx); err != nil {
			s.logger.Warn("failed to settle rejected row", "item", it.id, "error", err)
		}
	}
	s.notifier.Notify(fmt.Sprintf("The server rejected %s for %s", describe(it.kind), it.target), notify.Error)
}

func (s *SyncService) abort(cause error) {
	s.logger.Error("session rejected, aborting sync", "error", cause)
	s.session.Clear()
	s.notifier.Notify("Your session has expired. Sign in again to sync your changes.", notify.Error)
}

func (s *SyncService) actionItem(a *models.PendingAction) item {
	return item{
		id:     a.ID,
		kind:   a.Kind,
		target: a.TargetID,
		action: a,
		push:   func(ctx context.Context) error { return s.Replay(ctx, a) },
	}
}

func (s *SyncService) lyricsWriteBack(ctx context.Context, covered map[string]bool) ([]item, error) {
	if s.lyrics == nil {
		return nil, nil
	}
	rows, err := s.lyrics.ListUnsynced(ctx)
	if err != nil {
		return nil, err
	}

	var items []item
	for _, l := range rows {
		if covered[l.ID] {
			continue
		}
		items = append(items, item{
			id:     string(repositories.Lyrics) + ":" + l.ID,
			kind:   models.UploadLyrics,
			target: l.ID,
			push: func(ctx context.Context) error {
				if err := s.remote.UploadLyrics(ctx, []models.Lyrics{*l}); err != nil {
					return err
				}
				return s.lyrics.MarkPushed(ctx, l)
			},
			settle: func(ctx context.Context) error { return s.lyrics.MarkPushed(ctx, l) },
		})
	}
	return items, nil
}

func (s *SyncService) uploadsWriteBack(ctx context.Context, covered map[string]bool) ([]item, error) {
	if s.uploads == nil {
		return nil, nil
	}
	rows, err := s.uploads.ListUnsynced(ctx)
	if err != nil {
		return nil, err
	}

	var items []item
	for _, f := range rows {
		if covered[f.ID] {
			continue
		}
		items = append(items, item{
			id:     string(repositories.UploadedFiles) + ":" + f.ID,
			kind:   models.UploadFile,
			target: f.ID,
			push: func(ctx context.Context) error {
				if err := s.pushUpload(ctx, f.ID); err != nil {
					return err
				}
				return s.uploads.MarkPushed(ctx, f)
			},
			settle: func(ctx context.Context) error { return s.uploads.MarkPushed(ctx, f) },
		})
	}
	return items, nil
}

func (s *SyncService) playlistsWriteBack(ctx context.Context, covered map[string]bool) ([]item, error) {
	if s.playlists == nil {
		return nil, nil
	}
	rows, err := s.playlists.ListUnsynced(ctx)
	if err != nil {
		return nil, err
	}

	var items []item
	for _, p := range rows {
		if covered[p.ID] {
			continue
		}
		items = append(items, item{
			id:     string(repositories.Playlists) + ":" + p.ID,
			kind:   models.UpdatePlaylist,
			target: p.ID,
			push: func(ctx context.Context) error {
				if err := s.pushPlaylist(ctx, p); err != nil {
					return err
				}
				return s.playlists.MarkPushed(ctx, p)
			},
			settle: func(ctx context.Context) error { return s.playlists.MarkPushed(ctx, p) },
		})
	}
	return items, nil
}

func describe(kind models.ActionKind) string {
	switch kind {
	case models.ToggleLike:
		return "a like"
	case models.ToggleFollow:
		return "a follow"
	case models.CreatePlaylist:
		return "a new playlist"
	case models.UpdatePlaylist:
		return "a playlist edit"
	case models.DeletePlaylist:
		return "a playlist deletion"
	case models.ToggleVisibility:
		return "a visibility change"
	case models.UploadLyrics:
		return "lyrics"
	case models.UploadFile:
		return "an upload"
	default:
		return string(kind)
	}
}

var _ Syncer = (*SyncService)(nil)
