package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/offbeat/internal/actions"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/shared"
	tu "github.com/desertthunder/offbeat/internal/testing"
)

type fakeSession struct {
	mu      sync.Mutex
	authed  bool
	admin   bool
	cleared int
}

func (s *fakeSession) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed
}

func (s *fakeSession) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed && s.admin
}

func (s *fakeSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authed = false
	s.cleared++
}

type recordingRollback struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRollback) Rollback(ctx context.Context, a *models.PendingAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, a.ID)
	return nil
}

// switchConn is a Connectivity whose state and reconnects the test drives.
type switchConn struct {
	mu     sync.Mutex
	online bool
	fns    []func()
}

func (c *switchConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *switchConn) OnReconnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.fns = nil
	}
}

func (c *switchConn) reconnect() {
	c.mu.Lock()
	c.online = true
	fns := append([]func(){}, c.fns...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type syncFixture struct {
	svc       *SyncService
	store     *repositories.MemoryStore
	queue     *actions.Queue
	remote    *tu.MockService
	session   *fakeSession
	conn      *switchConn
	rollback  *recordingRollback
	notifier  *tu.RecordingNotifier
	clock     *tu.FakeClock
	playlists *repositories.PlaylistRepository
	lyrics    *repositories.LyricsRepository
	uploads   *repositories.UploadRepository
}

func newSyncFixture(t *testing.T, batches shared.Batches) *syncFixture {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	store := repositories.NewMemoryStore()

	f := &syncFixture{
		store:     store,
		queue:     actions.NewQueue(store, logger),
		remote:    &tu.MockService{},
		session:   &fakeSession{authed: true},
		conn:      &switchConn{online: true},
		rollback:  &recordingRollback{},
		notifier:  &tu.RecordingNotifier{},
		clock:     tu.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		playlists: repositories.NewPlaylistRepository(store),
		lyrics:    repositories.NewLyricsRepository(store),
		uploads:   repositories.NewUploadRepository(store),
	}
	f.svc = NewSyncService(Options{
		Queue:        f.queue,
		Remote:       f.remote,
		Session:      f.session,
		Connectivity: f.conn,
		Playlists:    f.playlists,
		Lyrics:       f.lyrics,
		Uploads:      f.uploads,
		Rollback:     f.rollback,
		Notifier:     f.notifier,
		Logger:       logger,
		Clock:        f.clock,
		Config: shared.SyncConfig{
			RetryBaseDelay: shared.Duration{Duration: time.Millisecond},
			Batches:        batches,
		},
	})
	t.Cleanup(f.svc.Stop)
	return f
}

func (f *syncFixture) like(t *testing.T, id string, liked bool) {
	t.Helper()
	p := models.LikePayload{ItemType: "song", ID: id, Liked: liked}
	if _, err := f.queue.Enqueue(context.Background(), models.ToggleLike, p.Target(), p); err != nil {
		t.Fatalf("failed to enqueue like: %v", err)
	}
}

func (f *syncFixture) pending(t *testing.T) int {
	t.Helper()
	n, err := f.queue.Len(context.Background())
	if err != nil {
		t.Fatalf("failed to count queue: %v", err)
	}
	return n
}

func failOn(prefix string, err error) func(string) error {
	return func(call string) error {
		if strings.HasPrefix(call, prefix) {
			return err
		}
		return nil
	}
}

func TestRunCycleSkips(t *testing.T) {
	ctx := context.Background()

	t.Run("Offline", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)
		f.conn.online = false

		res, err := f.svc.RunCycle(ctx)
		if err != nil || res.Skipped != SkipOffline {
			t.Fatalf("expected offline skip, got %+v (%v)", res, err)
		}
		if len(f.remote.Calls()) != 0 {
			t.Errorf("expected no remote calls, got %v", f.remote.Calls())
		}
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)
		f.session.authed = false

		res, _ := f.svc.RunCycle(ctx)
		if res.Skipped != SkipUnauthenticated {
			t.Errorf("expected unauthenticated skip, got %q", res.Skipped)
		}
		if len(f.remote.Calls()) != 0 {
			t.Errorf("expected no remote calls, got %v", f.remote.Calls())
		}
		if f.pending(t) != 1 {
			t.Error("expected the action to stay queued")
		}
	})

	t.Run("Probe Failure", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)
		f.remote.Fail = failOn("Ping", shared.ErrNetworkUnavailable)

		res, _ := f.svc.RunCycle(ctx)
		if res.Skipped != SkipUnreachable {
			t.Errorf("expected unreachable skip, got %q", res.Skipped)
		}
		if got := f.remote.CallCount("SetLike"); got != 0 {
			t.Errorf("expected no replay after a failed probe, got %d", got)
		}
	})

	t.Run("Re-entrant Call Is Busy", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)
		f.remote.Delay = 100 * time.Millisecond

		done := make(chan *CycleResult)
		go func() {
			res, _ := f.svc.RunCycle(ctx)
			done <- res
		}()

		tu.Eventually(t, time.Second, func() bool { return f.remote.CallCount("Ping") == 1 })
		res, err := f.svc.RunCycle(ctx)
		if err != nil || res.Skipped != SkipBusy {
			t.Errorf("expected busy skip, got %+v (%v)", res, err)
		}

		if first := <-done; !first.Ran() || len(first.Succeeded) != 1 {
			t.Errorf("expected the first cycle to complete, got %+v", first)
		}
	})
}

func TestRunCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Offline Like Replays Once", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)

		res, err := f.svc.RunCycle(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.remote.CallCount("SetLike:song/s1:true"); got != 1 {
			t.Errorf("expected one like call, got %d", got)
		}
		if len(res.Succeeded) != 1 || res.Succeeded[0] != models.ActionKey(models.ToggleLike, "song/s1") {
			t.Errorf("unexpected succeeded set %v", res.Succeeded)
		}
		if f.pending(t) != 0 {
			t.Error("expected the action to be deleted")
		}
		if f.notifier.Count(notify.Success) != 1 {
			t.Errorf("expected a success notification, got %+v", f.notifier.All())
		}

		again, _ := f.svc.RunCycle(ctx)
		if len(again.Succeeded) != 0 || f.remote.CallCount("SetLike") != 1 {
			t.Error("expected no duplicate like on the next cycle")
		}
	})

	t.Run("Net Zero Toggle Sends Nothing", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)
		f.like(t, "s1", false)

		if _, err := f.svc.RunCycle(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.remote.CallCount("SetLike"); got != 0 {
			t.Errorf("expected no like calls, got %d", got)
		}
	})

	t.Run("Transient Failure Leaves Record Untouched", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "bad", true)
		f.like(t, "good", true)
		id := models.ActionKey(models.ToggleLike, "song/bad")
		before, _ := f.queue.Get(ctx, id)
		f.remote.Fail = failOn("SetLike:song/bad", shared.ErrTransient)

		res, err := f.svc.RunCycle(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := f.remote.CallCount("SetLike:song/bad"); got != 3 {
			t.Errorf("expected 3 attempts, got %d", got)
		}
		if !res.FailedIDs()[id] || len(res.Succeeded) != 1 {
			t.Errorf("expected bad failed and good succeeded, got %+v", res)
		}

		after, err := f.queue.Get(ctx, id)
		if err != nil {
			t.Fatalf("expected record to remain: %v", err)
		}
		if string(after.Payload) != string(before.Payload) || !after.UpdatedAt.Equal(before.UpdatedAt) || after.Attempts != before.Attempts {
			t.Errorf("expected untouched record, before %+v after %+v", before, after)
		}
		if f.notifier.Count(notify.Warning) != 1 {
			t.Errorf("expected a retry warning, got %+v", f.notifier.All())
		}
	})

	t.Run("Rejection Drops And Rolls Back", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		p := models.FollowPayload{ArtistID: "a1", Following: true}
		f.queue.Enqueue(ctx, models.ToggleFollow, "a1", p)
		f.remote.Fail = failOn("SetFollow", fmt.Errorf("%w: 422", shared.ErrRemoteRejected))

		res, _ := f.svc.RunCycle(ctx)

		if got := f.remote.CallCount("SetFollow"); got != 1 {
			t.Errorf("expected rejection not to be retried, got %d calls", got)
		}
		if len(res.Dropped) != 1 || f.pending(t) != 0 {
			t.Errorf("expected the action to be dropped, got %+v", res)
		}
		if len(f.rollback.ids) != 1 || f.rollback.ids[0] != models.ActionKey(models.ToggleFollow, "a1") {
			t.Errorf("expected rollback for the follow, got %v", f.rollback.ids)
		}
		if f.notifier.Count(notify.Error) != 1 {
			t.Errorf("expected an error notification, got %+v", f.notifier.All())
		}
	})

	t.Run("Unauthorized Aborts The Cycle", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{Social: 1})
		f.like(t, "s1", true)
		f.like(t, "s2", true)
		f.like(t, "s3", true)
		f.remote.Fail = failOn("SetLike", shared.ErrUnauthorized)

		res, err := f.svc.RunCycle(ctx)
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Fatalf("expected unauthorized error, got %v", err)
		}
		if !res.Aborted {
			t.Error("expected the cycle to be marked aborted")
		}
		if got := f.remote.CallCount("SetLike"); got != 1 {
			t.Errorf("expected no attempt after the rejected item, got %d", got)
		}
		if f.pending(t) != 3 {
			t.Errorf("expected every action to remain, got %d", f.pending(t))
		}
		if f.session.cleared != 1 {
			t.Errorf("expected the session to be cleared once, got %d", f.session.cleared)
		}
		if f.notifier.Count(notify.Error) != 1 {
			t.Errorf("expected a sign-in notification, got %+v", f.notifier.All())
		}
	})

	t.Run("Abort Stops Retries In The Same Batch", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{Social: 3})
		backoff := tu.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		f.svc.retry.Clock = backoff
		f.like(t, "s1", true)
		f.like(t, "s2", true)
		// s1 is rejected only after s2 has made its first attempt.
		s2Called := make(chan struct{})
		var once sync.Once
		f.remote.Fail = func(call string) error {
			switch {
			case strings.HasPrefix(call, "SetLike:song/s1"):
				<-s2Called
				return shared.ErrUnauthorized
			case strings.HasPrefix(call, "SetLike:song/s2"):
				once.Do(func() { close(s2Called) })
				return shared.ErrTransient
			}
			return nil
		}

		done := make(chan error, 1)
		go func() {
			_, err := f.svc.RunCycle(ctx)
			done <- err
		}()

		tu.Eventually(t, time.Second, func() bool {
			f.session.mu.Lock()
			cleared := f.session.cleared
			f.session.mu.Unlock()
			return cleared == 1 && backoff.Pending() == 1
		})
		backoff.Advance(time.Second)

		if err := <-done; !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected unauthorized error, got %v", err)
		}
		if got := f.remote.CallCount("SetLike:song/s2"); got != 1 {
			t.Errorf("expected no retry after the abort, got %d attempts", got)
		}
		if f.pending(t) != 2 {
			t.Errorf("expected both actions to remain, got %d", f.pending(t))
		}
	})

	t.Run("Unauthorized Stops Later Groups", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		l := models.Lyrics{ID: "l1", SongID: "s1", Text: "la"}
		f.queue.Enqueue(ctx, models.UploadLyrics, l.ID, models.LyricsPayload{Lyrics: l})
		f.like(t, "s1", true)
		f.remote.Fail = failOn("UploadLyrics", shared.ErrUnauthorized)

		f.svc.RunCycle(ctx)
		if got := f.remote.CallCount("SetLike"); got != 0 {
			t.Errorf("expected social group to be skipped, got %d likes", got)
		}
	})

	t.Run("Batches Bound Concurrency", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{Social: 4})
		for i := 0; i < 10; i++ {
			f.like(t, fmt.Sprintf("s%d", i), true)
		}
		f.remote.Delay = 10 * time.Millisecond

		res, err := f.svc.RunCycle(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Succeeded) != 10 {
			t.Errorf("expected 10 successes, got %d", len(res.Succeeded))
		}
		if peak := f.remote.MaxInflight(); peak > 4 {
			t.Errorf("expected at most 4 concurrent calls, got %d", peak)
		}
	})

	t.Run("Uploads Need Admin", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{Uploads: 2})
		for i := 0; i < 5; i++ {
			file := &models.UploadedFile{ID: fmt.Sprintf("u%d", i), Filename: "a.mp3"}
			f.uploads.Save(ctx, file, []byte("data"), false)
		}

		f.svc.RunCycle(ctx)
		if got := f.remote.CallCount("UploadFile"); got != 0 {
			t.Fatalf("expected no uploads for a regular user, got %d", got)
		}

		f.session.admin = true
		f.remote.Delay = 10 * time.Millisecond
		res, _ := f.svc.RunCycle(ctx)
		if got := f.remote.CallCount("UploadFile"); got != 5 {
			t.Errorf("expected 5 uploads, got %d", got)
		}
		if peak := f.remote.MaxInflight(); peak > 2 {
			t.Errorf("expected at most 2 concurrent uploads, got %d", peak)
		}
		if len(res.Succeeded) != 5 {
			t.Errorf("expected 5 successes, got %v", res.Succeeded)
		}
		if unsynced, _ := f.uploads.ListUnsynced(ctx); len(unsynced) != 0 {
			t.Errorf("expected uploads marked synced, got %d unsynced", len(unsynced))
		}
	})

	t.Run("Missing Upload Is Discarded", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.session.admin = true
		f.queue.Enqueue(ctx, models.UploadFile, "gone", models.UploadPayload{FileID: "gone"})

		res, _ := f.svc.RunCycle(ctx)
		if len(res.Dropped) != 1 || f.pending(t) != 0 {
			t.Errorf("expected obsolete upload to be dropped, got %+v", res)
		}
		if len(f.rollback.ids) != 0 || f.notifier.Count(notify.Error) != 0 {
			t.Error("expected no rollback or error notification for an obsolete action")
		}
	})

	t.Run("Write Back Rows", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		covered := &models.Playlist{ID: "p1", Name: "Covered"}
		loose := &models.Playlist{ID: "p2", Name: "Loose"}
		f.playlists.Save(ctx, covered, false)
		f.playlists.Save(ctx, loose, false)
		f.queue.Enqueue(ctx, models.CreatePlaylist, "p1", models.PlaylistPayload{Playlist: *covered})

		res, err := f.svc.RunCycle(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if f.remote.CallCount("CreatePlaylist:p1") != 1 || f.remote.CallCount("UpdatePlaylist:p1") != 0 {
			t.Errorf("expected p1 pushed once through its action, got %v", f.remote.Calls())
		}
		if f.remote.CallCount("UpdatePlaylist:p2") != 1 {
			t.Errorf("expected p2 pushed as write-back, got %v", f.remote.Calls())
		}
		if len(res.Succeeded) != 2 {
			t.Errorf("expected 2 successes, got %v", res.Succeeded)
		}
		if unsynced, _ := f.playlists.ListUnsynced(ctx); len(unsynced) != 0 {
			t.Errorf("expected playlists marked synced, got %d unsynced", len(unsynced))
		}
	})

	t.Run("Failed Create Holds Dependent Changes", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		p := models.Playlist{ID: "p1", Name: "New"}
		f.queue.Enqueue(ctx, models.CreatePlaylist, "p1", models.PlaylistPayload{Playlist: p})
		f.queue.Enqueue(ctx, models.ToggleVisibility, "p1", models.VisibilityPayload{PlaylistID: "p1", Public: true})
		f.remote.Fail = failOn("CreatePlaylist", shared.ErrTransient)

		res, _ := f.svc.RunCycle(ctx)
		if got := f.remote.CallCount("SetVisibility"); got != 0 {
			t.Errorf("expected visibility to wait for the create, got %d calls", got)
		}
		if len(res.Failed) != 2 || f.pending(t) != 2 {
			t.Errorf("expected both actions to remain, got %+v", res)
		}
	})
}

func TestDrain(t *testing.T) {
	ctx := context.Background()

	t.Run("Replays Every Action", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)
		f.like(t, "s2", false)

		res, err := f.svc.Drain(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Succeeded) != 2 || f.pending(t) != 0 {
			t.Errorf("expected both actions replayed, got %+v", res)
		}
		if f.remote.CallCount("SetLike:song/s2:false") != 1 {
			t.Errorf("expected unlike call, got %v", f.remote.Calls())
		}
	})

	t.Run("Marks Covered Rows Synced", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		p := &models.Playlist{ID: "p1", Name: "Queued"}
		f.playlists.Save(ctx, p, false)
		f.queue.Enqueue(ctx, models.CreatePlaylist, "p1", models.PlaylistPayload{Playlist: *p})

		if _, err := f.svc.Drain(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if unsynced, _ := f.playlists.ListUnsynced(ctx); len(unsynced) != 0 {
			t.Errorf("expected the playlist marked synced, got %d unsynced", len(unsynced))
		}
	})

	t.Run("Plain Handler", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)

		res, _ := f.queue.Drain(ctx, f.svc.Replay)
		if len(res.Succeeded) != 1 || f.pending(t) != 0 {
			t.Errorf("expected the action replayed, got %+v", res)
		}
	})
}

func TestQueuedActionsAcrossCycles(t *testing.T) {
	ctx := context.Background()

	twoCycles := func(t *testing.T, f *syncFixture) {
		t.Helper()
		for i := 0; i < 2; i++ {
			if _, err := f.svc.RunCycle(ctx); err != nil {
				t.Fatalf("cycle %d: unexpected error: %v", i+1, err)
			}
		}
	}

	t.Run("Lyrics Are Pushed Once", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		l := &models.Lyrics{ID: "l1", SongID: "s1", Text: "la la la"}
		f.lyrics.Save(ctx, l, false)
		f.queue.Enqueue(ctx, models.UploadLyrics, "l1", models.LyricsPayload{Lyrics: *l})

		twoCycles(t, f)
		if got := f.remote.CallCount("UploadLyrics"); got != 1 {
			t.Errorf("expected lyrics uploaded once, got %d", got)
		}
		if unsynced, _ := f.lyrics.ListUnsynced(ctx); len(unsynced) != 0 {
			t.Errorf("expected lyrics marked synced, got %d unsynced", len(unsynced))
		}
	})

	t.Run("Files Are Uploaded Once", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.session.admin = true
		file := &models.UploadedFile{ID: "u1", Filename: "a.mp3"}
		f.uploads.Save(ctx, file, []byte("data"), false)
		f.queue.Enqueue(ctx, models.UploadFile, "u1", models.UploadPayload{FileID: "u1"})

		twoCycles(t, f)
		if got := f.remote.CallCount("UploadFile:u1"); got != 1 {
			t.Errorf("expected file uploaded once, got %d", got)
		}
	})

	t.Run("Created Playlists Are Sent Once", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		p := &models.Playlist{ID: "p1", Name: "New"}
		f.playlists.Save(ctx, p, false)
		f.queue.Enqueue(ctx, models.CreatePlaylist, "p1", models.PlaylistPayload{Playlist: *p})

		twoCycles(t, f)
		if got := f.remote.CallCount("CreatePlaylist:p1") + f.remote.CallCount("UpdatePlaylist:p1"); got != 1 {
			t.Errorf("expected one playlist call, got %v", f.remote.Calls())
		}
	})
}

func TestEditsDuringCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Re-Enqueued Edit Survives Replay", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		v1 := models.Playlist{ID: "p1", Name: "v1"}
		f.queue.Enqueue(ctx, models.UpdatePlaylist, "p1", models.PlaylistPayload{Playlist: v1})

		var once sync.Once
		f.remote.Fail = func(call string) error {
			if strings.HasPrefix(call, "UpdatePlaylist") {
				once.Do(func() {
					v2 := models.Playlist{ID: "p1", Name: "v2"}
					f.queue.Enqueue(ctx, models.UpdatePlaylist, "p1", models.PlaylistPayload{Playlist: v2})
				})
			}
			return nil
		}

		res, err := f.svc.RunCycle(ctx)
		if err != nil || len(res.Succeeded) != 1 {
			t.Fatalf("expected v1 confirmed, got %+v (%v)", res, err)
		}
		if f.pending(t) != 1 {
			t.Fatalf("expected the v2 edit to stay queued, got %d pending", f.pending(t))
		}

		f.svc.RunCycle(ctx)
		if got := f.remote.CallCount("UpdatePlaylist:p1"); got != 2 {
			t.Errorf("expected v2 sent by the next cycle, got %d calls", got)
		}
		if f.pending(t) != 0 {
			t.Errorf("expected an empty queue, got %d", f.pending(t))
		}
	})

	t.Run("Superseded Rejection Is Not Rolled Back", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)
		f.remote.Fail = func(call string) error {
			if strings.HasPrefix(call, "SetLike:song/s1:true") {
				unlike := models.LikePayload{ItemType: "song", ID: "s1", Liked: false}
				f.queue.Enqueue(ctx, models.ToggleLike, unlike.Target(), unlike)
				return fmt.Errorf("%w: 422", shared.ErrRemoteRejected)
			}
			return nil
		}

		res, _ := f.svc.RunCycle(ctx)
		if len(res.Dropped) != 1 {
			t.Fatalf("expected the like dropped, got %+v", res)
		}
		if len(f.rollback.ids) != 0 {
			t.Errorf("expected no rollback over the newer unlike, got %v", f.rollback.ids)
		}
		if f.pending(t) != 1 {
			t.Errorf("expected the unlike to stay queued, got %d", f.pending(t))
		}
	})

	t.Run("Row Edited During Push Stays Unsynced", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.lyrics.Save(ctx, &models.Lyrics{ID: "l1", SongID: "s1", Text: "first"}, false)

		var once sync.Once
		f.remote.Fail = func(call string) error {
			if strings.HasPrefix(call, "UploadLyrics") {
				once.Do(func() {
					f.lyrics.Save(ctx, &models.Lyrics{ID: "l1", SongID: "s1", Text: "second"}, false)
				})
			}
			return nil
		}

		f.svc.RunCycle(ctx)
		unsynced, _ := f.lyrics.ListUnsynced(ctx)
		if len(unsynced) != 1 || unsynced[0].Text != "second" {
			t.Fatalf("expected the edit to stay unsynced, got %+v", unsynced)
		}

		f.svc.RunCycle(ctx)
		if got := f.remote.CallCount("UploadLyrics:l1"); got != 2 {
			t.Errorf("expected the edit pushed by the next cycle, got %d uploads", got)
		}
		if unsynced, _ := f.lyrics.ListUnsynced(ctx); len(unsynced) != 0 {
			t.Errorf("expected lyrics synced after the second push, got %d", len(unsynced))
		}
	})
}

func TestRetryBackoffClock(t *testing.T) {
	f := newSyncFixture(t, shared.Batches{})
	backoff := tu.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f.svc.retry.Clock = backoff
	f.svc.retry.BaseDelay = time.Hour
	f.like(t, "s1", true)

	var (
		mu    sync.Mutex
		tries int
	)
	f.remote.Fail = func(call string) error {
		if !strings.HasPrefix(call, "SetLike") {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		tries++
		if tries == 1 {
			return shared.ErrTransient
		}
		return nil
	}

	done := make(chan *CycleResult, 1)
	go func() {
		res, _ := f.svc.RunCycle(context.Background())
		done <- res
	}()

	tu.Eventually(t, time.Second, func() bool { return backoff.Pending() == 1 })
	backoff.Advance(time.Hour)

	select {
	case res := <-done:
		if len(res.Succeeded) != 1 {
			t.Errorf("expected the retry to succeed, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the backoff to end when the clock advanced")
	}
	if got := f.remote.CallCount("SetLike"); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("Interval", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.svc.Start(ctx)

		f.clock.Advance(299 * time.Second)
		if got := f.remote.CallCount("Ping"); got != 0 {
			t.Fatalf("expected no cycle before the interval, got %d", got)
		}

		f.clock.Advance(time.Second)
		if got := f.remote.CallCount("Ping"); got != 1 {
			t.Fatalf("expected one cycle at the interval, got %d", got)
		}

		f.clock.Advance(300 * time.Second)
		if got := f.remote.CallCount("Ping"); got != 2 {
			t.Errorf("expected a second cycle, got %d", got)
		}
	})

	t.Run("Retry Interval After Failures", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)
		f.remote.Fail = failOn("SetLike", shared.ErrTransient)
		f.svc.Start(ctx)

		f.clock.Advance(300 * time.Second)
		if want := f.clock.Now().Add(60 * time.Second); !f.svc.NextRun().Equal(want) {
			t.Errorf("expected next run at %s, got %s", want, f.svc.NextRun())
		}

		f.remote.Fail = nil
		f.clock.Advance(60 * time.Second)
		if f.pending(t) != 0 {
			t.Error("expected the retry cycle to clear the queue")
		}
		if want := f.clock.Now().Add(300 * time.Second); !f.svc.NextRun().Equal(want) {
			t.Errorf("expected the steady interval again, got %s", f.svc.NextRun())
		}
	})

	t.Run("Reconnect Debounce", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.svc.Start(ctx)

		f.conn.reconnect()
		if got := f.remote.CallCount("Ping"); got != 1 {
			t.Fatalf("expected reconnect to trigger a cycle, got %d", got)
		}

		f.clock.Advance(2 * time.Second)
		f.conn.reconnect()
		if got := f.remote.CallCount("Ping"); got != 1 {
			t.Errorf("expected reconnect within debounce to be ignored, got %d", got)
		}

		f.clock.Advance(10 * time.Second)
		f.conn.reconnect()
		if got := f.remote.CallCount("Ping"); got != 2 {
			t.Errorf("expected reconnect after debounce to run, got %d", got)
		}
	})

	t.Run("Tick During Manual Cycle Keeps Schedule", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.like(t, "s1", true)

		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		f.remote.Fail = func(call string) error {
			if strings.HasPrefix(call, "SetLike") {
				once.Do(func() { close(entered) })
				<-release
			}
			return nil
		}
		f.svc.Start(ctx)

		done := make(chan struct{})
		go func() {
			f.svc.RunCycle(ctx)
			close(done)
		}()
		<-entered

		f.clock.Advance(300 * time.Second)
		close(release)
		<-done

		if f.clock.Pending() != 1 {
			t.Fatalf("expected the schedule to be rearmed, got %d pending timers", f.clock.Pending())
		}
		if want := f.clock.Now().Add(60 * time.Second); !f.svc.NextRun().Equal(want) {
			t.Errorf("expected next run at %s, got %s", want, f.svc.NextRun())
		}

		pings := f.remote.CallCount("Ping")
		f.clock.Advance(60 * time.Second)
		if got := f.remote.CallCount("Ping"); got != pings+1 {
			t.Errorf("expected a background cycle after the collision, got %d pings", got-pings)
		}
	})

	t.Run("Stop", func(t *testing.T) {
		f := newSyncFixture(t, shared.Batches{})
		f.svc.Start(ctx)
		f.svc.Stop()

		if f.clock.Pending() != 0 {
			t.Errorf("expected no pending timers, got %d", f.clock.Pending())
		}
		f.clock.Advance(time.Hour)
		f.conn.reconnect()
		if got := len(f.remote.Calls()); got != 0 {
			t.Errorf("expected no cycles after stop, got %d calls", got)
		}
		if !f.svc.NextRun().IsZero() {
			t.Error("expected no next run after stop")
		}
	})
}

func TestProgress(t *testing.T) {
	f := newSyncFixture(t, shared.Batches{})
	progress := make(chan ProgressUpdate, 32)
	f.svc.progress = progress
	f.like(t, "s1", true)

	f.svc.RunCycle(context.Background())
	close(progress)

	var phases []Phase
	for u := range progress {
		phases = append(phases, u.Phase)
	}
	want := []Phase{Probe, SyncSocial, Complete}
	if len(phases) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
}

type stubPinger struct {
	mu  sync.Mutex
	err error
	n   int
}

func (p *stubPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return p.err
}

func TestProbeMonitor(t *testing.T) {
	ctx := context.Background()

	t.Run("Transitions", func(t *testing.T) {
		pinger := &stubPinger{}
		m := NewProbeMonitor(pinger, nil, time.Minute, shared.NewLogger(io.Discard))

		fired := 0
		m.OnReconnect(func() { fired++ })

		if !m.Check(ctx) || fired != 0 {
			t.Error("expected online without a reconnect event")
		}

		pinger.err = shared.ErrNetworkUnavailable
		if m.Check(ctx) || m.Online() {
			t.Error("expected offline after a failed probe")
		}
		m.Check(ctx)

		pinger.err = nil
		m.Check(ctx)
		m.Check(ctx)
		if fired != 1 {
			t.Errorf("expected one reconnect event, got %d", fired)
		}
	})

	t.Run("Cancel Callback", func(t *testing.T) {
		m := NewProbeMonitor(&stubPinger{}, nil, time.Minute, shared.NewLogger(io.Discard))
		fired := 0
		cancel := m.OnReconnect(func() { fired++ })
		cancel()

		m.Report(false)
		m.Report(true)
		if fired != 0 {
			t.Errorf("expected cancelled callback not to fire, got %d", fired)
		}
	})

	t.Run("Clock Driven", func(t *testing.T) {
		pinger := &stubPinger{}
		clock := tu.NewFakeClock(time.Unix(0, 0))
		m := NewProbeMonitor(pinger, clock, 30*time.Second, shared.NewLogger(io.Discard))
		m.Start()

		clock.Advance(95 * time.Second)
		if pinger.n != 3 {
			t.Errorf("expected 3 probes, got %d", pinger.n)
		}

		m.Stop()
		clock.Advance(time.Minute)
		if pinger.n != 3 {
			t.Errorf("expected no probes after stop, got %d", pinger.n)
		}
	})
}

func TestBatches(t *testing.T) {
	items := []item{
		{id: "1", kind: models.CreatePlaylist},
		{id: "2", kind: models.CreatePlaylist},
		{id: "3", kind: models.CreatePlaylist},
		{id: "4", kind: models.UpdatePlaylist},
		{id: "5", kind: models.ToggleVisibility},
	}

	got := batches(items, 2)
	want := [][]string{{"1", "2"}, {"3"}, {"4"}, {"5"}}
	if len(got) != len(want) {
		t.Fatalf("expected %d batches, got %d", len(want), len(got))
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("batch %d: expected %v", i, want[i])
		}
		for j := range want[i] {
			if got[i][j].id != want[i][j] {
				t.Errorf("batch %d item %d: expected %s, got %s", i, j, want[i][j], got[i][j].id)
			}
		}
	}
}
