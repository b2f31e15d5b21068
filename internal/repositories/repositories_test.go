package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/shared"
	tu "github.com/desertthunder/offbeat/internal/testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(shared.MemoryDSN)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// storeContract runs the shared [Store] behavior against an implementation.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("Put And Get", func(t *testing.T) {
		s := newStore(t)
		rec := &Record{ID: "k1", Data: []byte(`{"a":1}`), Blob: []byte{1, 2, 3}, Synced: false}
		if err := s.Put(ctx, Playlists, rec); err != nil {
			t.Fatalf("failed to put: %v", err)
		}

		got, err := s.Get(ctx, Playlists, "k1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if string(got.Data) != `{"a":1}` {
			t.Errorf("expected data {\"a\":1}, got %s", got.Data)
		}
		if len(got.Blob) != 3 || got.Blob[2] != 3 {
			t.Errorf("expected blob to round trip, got %v", got.Blob)
		}
		if got.Synced {
			t.Error("expected synced to be false")
		}
		if got.UpdatedAt.IsZero() {
			t.Error("expected updated_at to be set")
		}
	})

	t.Run("Get Missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, Lyrics, "missing")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Replace Keeps Order", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"a", "b", "c"} {
			rec, _ := NewRecord(id, map[string]string{"id": id})
			s.Put(ctx, PendingActions, rec)
		}
		rec, _ := NewRecord("a", map[string]string{"id": "a", "v": "2"})
		if err := s.Put(ctx, PendingActions, rec); err != nil {
			t.Fatalf("failed to replace: %v", err)
		}

		all, err := s.GetAll(ctx, PendingActions)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 records, got %d", len(all))
		}
		if all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
			t.Errorf("expected order a,b,c got %s,%s,%s", all[0].ID, all[1].ID, all[2].ID)
		}

		var v map[string]string
		all[0].Decode(&v)
		if v["v"] != "2" {
			t.Errorf("expected replaced document, got %v", v)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		rec, _ := NewRecord("x", map[string]string{})
		s.Put(ctx, UploadedFiles, rec)

		if err := s.Delete(ctx, UploadedFiles, "x"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if err := s.Delete(ctx, UploadedFiles, "x"); err != nil {
			t.Errorf("expected deleting a missing key to succeed, got %v", err)
		}
		if _, err := s.Get(ctx, UploadedFiles, "x"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("Collections Are Isolated", func(t *testing.T) {
		s := newStore(t)
		rec, _ := NewRecord("same", map[string]string{})
		s.Put(ctx, Lyrics, rec)

		if _, err := s.Get(ctx, Playlists, "same"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected key to be scoped to its collection, got %v", err)
		}
	})

	t.Run("Rejects Invalid Input", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, Lyrics, &Record{ID: "", Data: []byte("{}")}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
		}
		if err := s.Put(ctx, Collection("nope"), &Record{ID: "a", Data: []byte("{}")}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown collection, got %v", err)
		}
	})

	t.Run("Concurrent Writers", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec, _ := NewRecord(fmt.Sprintf("k%d", i%5), map[string]int{"i": i})
				if err := s.Put(ctx, PlaybackHistory, rec); err != nil {
					t.Errorf("concurrent put failed: %v", err)
				}
			}(i)
		}
		wg.Wait()

		all, err := s.GetAll(ctx, PlaybackHistory)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(all) != 5 {
			t.Errorf("expected 5 distinct keys, got %d", len(all))
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewSQLiteStore(setupTestDB(t)) })

	t.Run("Closed Database Is Unavailable", func(t *testing.T) {
		db := setupTestDB(t)
		s := NewSQLiteStore(db)
		db.Close()

		_, err := s.GetAll(context.Background(), Playlists)
		if !errors.Is(err, shared.ErrStoreUnavailable) {
			t.Errorf("expected ErrStoreUnavailable, got %v", err)
		}
	})

	t.Run("Open File Store", func(t *testing.T) {
		path := t.TempDir() + "/offbeat.db"
		s, err := OpenSQLiteStore(path)
		if err != nil {
			t.Fatalf("failed to open: %v", err)
		}
		rec, _ := NewRecord("p1", map[string]string{})
		if err := s.Put(context.Background(), Playlists, rec); err != nil {
			t.Fatalf("failed to put: %v", err)
		}
		s.Close()

		reopened, err := OpenSQLiteStore(path)
		if err != nil {
			t.Fatalf("failed to reopen: %v", err)
		}
		defer reopened.Close()
		if _, err := reopened.Get(context.Background(), Playlists, "p1"); err != nil {
			t.Errorf("expected record to survive a restart, got %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })

	t.Run("Clone On Read", func(t *testing.T) {
		s := NewMemoryStore()
		s.Put(context.Background(), Lyrics, &Record{ID: "a", Data: []byte(`{}`)})

		got, _ := s.Get(context.Background(), Lyrics, "a")
		got.Data[0] = 'x'

		again, _ := s.Get(context.Background(), Lyrics, "a")
		if string(again.Data) != "{}" {
			t.Errorf("expected stored record to be unaffected, got %s", again.Data)
		}
	})
}

// brokenStore fails every operation as unavailable.
type brokenStore struct{ calls int }

func (b *brokenStore) Get(ctx context.Context, c Collection, key string) (*Record, error) {
	b.calls++
	return nil, shared.ErrStoreUnavailable
}

func (b *brokenStore) GetAll(ctx context.Context, c Collection) ([]*Record, error) {
	b.calls++
	return nil, shared.ErrStoreUnavailable
}

func (b *brokenStore) Put(ctx context.Context, c Collection, r *Record) error {
	b.calls++
	return shared.ErrStoreUnavailable
}

func (b *brokenStore) Delete(ctx context.Context, c Collection, key string) error {
	b.calls++
	return shared.ErrStoreUnavailable
}

func TestFallbackStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Healthy Primary", func(t *testing.T) {
		primary := NewMemoryStore()
		rn := &tu.RecordingNotifier{}
		s := NewFallbackStore(primary, rn, nil)

		rec, _ := NewRecord("a", map[string]string{})
		if err := s.Put(ctx, Lyrics, rec); err != nil {
			t.Fatalf("failed to put: %v", err)
		}
		if _, err := primary.Get(ctx, Lyrics, "a"); err != nil {
			t.Errorf("expected write to reach the primary, got %v", err)
		}
		if s.Degraded() || len(rn.All()) != 0 {
			t.Error("expected no degradation")
		}
	})

	t.Run("Degrades Once", func(t *testing.T) {
		primary := &brokenStore{}
		rn := &tu.RecordingNotifier{}
		s := NewFallbackStore(primary, rn, nil)

		rec, _ := NewRecord("a", map[string]string{})
		if err := s.Put(ctx, Lyrics, rec); err != nil {
			t.Fatalf("expected put to fall back to memory, got %v", err)
		}
		if _, err := s.Get(ctx, Lyrics, "a"); err != nil {
			t.Errorf("expected record from memory, got %v", err)
		}
		s.GetAll(ctx, Lyrics)
		s.Delete(ctx, Lyrics, "a")

		if !s.Degraded() {
			t.Error("expected store to be degraded")
		}
		if primary.calls != 1 {
			t.Errorf("expected primary to be tried once, got %d", primary.calls)
		}
		if got := rn.Count(notify.Warning); got != 1 {
			t.Errorf("expected 1 warning, got %d", got)
		}
	})

	t.Run("Not Found Passes Through", func(t *testing.T) {
		s := NewFallbackStore(NewMemoryStore(), nil, nil)
		if _, err := s.Get(ctx, Lyrics, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if s.Degraded() {
			t.Error("expected a missing key not to degrade the store")
		}
	})

	t.Run("Nil Primary Starts Degraded", func(t *testing.T) {
		rn := &tu.RecordingNotifier{}
		s := NewFallbackStore(nil, rn, nil)
		if !s.Degraded() {
			t.Error("expected degraded store")
		}
		if rn.Count(notify.Warning) != 1 {
			t.Error("expected a warning notification")
		}
	})
}

func TestRepositories(t *testing.T) {
	ctx := context.Background()

	t.Run("Playlists", func(t *testing.T) {
		repo := NewPlaylistRepository(NewSQLiteStore(setupTestDB(t)))

		t.Run("Save Validates", func(t *testing.T) {
			err := repo.Save(ctx, &models.Playlist{ID: "p0"}, true)
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})

		t.Run("Unsynced Round Trip", func(t *testing.T) {
			p := &models.Playlist{ID: "p1", Name: "Road trip", TrackIDs: []string{"t1", "t2"}}
			if err := repo.Save(ctx, p, false); err != nil {
				t.Fatalf("failed to save: %v", err)
			}

			unsynced, err := repo.ListUnsynced(ctx)
			if err != nil {
				t.Fatalf("failed to list unsynced: %v", err)
			}
			if len(unsynced) != 1 || unsynced[0].ID != "p1" {
				t.Fatalf("expected p1 unsynced, got %v", unsynced)
			}

			if err := repo.MarkSynced(ctx, "p1"); err != nil {
				t.Fatalf("failed to mark synced: %v", err)
			}
			unsynced, _ = repo.ListUnsynced(ctx)
			if len(unsynced) != 0 {
				t.Errorf("expected no unsynced rows, got %d", len(unsynced))
			}

			got, err := repo.Get(ctx, "p1")
			if err != nil {
				t.Fatalf("failed to get: %v", err)
			}
			if len(got.TrackIDs) != 2 {
				t.Errorf("expected 2 track ids, got %v", got.TrackIDs)
			}
		})

		t.Run("ReplaceAll Keeps Local Edits", func(t *testing.T) {
			repo := NewPlaylistRepository(NewMemoryStore())
			repo.Save(ctx, &models.Playlist{ID: "old", Name: "Old"}, true)
			repo.Save(ctx, &models.Playlist{ID: "draft", Name: "Local draft"}, false)

			err := repo.ReplaceAll(ctx, []*models.Playlist{
				{ID: "new", Name: "New"},
				{ID: "draft", Name: "Server copy"},
			})
			if err != nil {
				t.Fatalf("failed to replace: %v", err)
			}

			if _, err := repo.Get(ctx, "old"); !IsNotFound(err) {
				t.Errorf("expected stale row to be removed, got %v", err)
			}
			draft, _ := repo.Get(ctx, "draft")
			if draft.Name != "Local draft" {
				t.Errorf("expected local edit to win, got %s", draft.Name)
			}
			if _, err := repo.Get(ctx, "new"); err != nil {
				t.Errorf("expected new row, got %v", err)
			}
		})
	})

	t.Run("Lyrics", func(t *testing.T) {
		repo := NewLyricsRepository(NewMemoryStore())
		repo.Save(ctx, &models.Lyrics{ID: "l1", SongID: "s1", Text: "la la"}, false)

		got, err := repo.ForSong(ctx, "s1")
		if err != nil {
			t.Fatalf("failed to find lyrics: %v", err)
		}
		if got.ID != "l1" {
			t.Errorf("expected l1, got %s", got.ID)
		}
		if _, err := repo.ForSong(ctx, "s2"); !IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Uploads", func(t *testing.T) {
		repo := NewUploadRepository(NewSQLiteStore(setupTestDB(t)))
		f := &models.UploadedFile{ID: "f1", Filename: "a.mp3", MIMEType: "audio/mpeg"}
		if err := repo.Save(ctx, f, []byte("audio"), false); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if f.Size != 5 {
			t.Errorf("expected size 5, got %d", f.Size)
		}

		meta, payload, err := repo.Payload(ctx, "f1")
		if err != nil {
			t.Fatalf("failed to read payload: %v", err)
		}
		if string(payload) != "audio" || meta.Filename != "a.mp3" {
			t.Errorf("unexpected payload %q / %+v", payload, meta)
		}

		repo.MarkSynced(ctx, "f1")
		if _, payload, _ := repo.Payload(ctx, "f1"); string(payload) != "audio" {
			t.Error("expected payload to survive MarkSynced")
		}

		repo.Save(ctx, &models.UploadedFile{ID: "f2", Filename: "b.mp3"}, nil, true)
		if _, _, err := repo.Payload(ctx, "f2"); !IsNotFound(err) {
			t.Errorf("expected ErrNotFound for empty payload, got %v", err)
		}
	})

	t.Run("History", func(t *testing.T) {
		repo := NewHistoryRepository(NewMemoryStore())
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"t1", "t2", "t3"} {
			if _, err := repo.Record(ctx, id, base.Add(time.Duration(i)*time.Minute)); err != nil {
				t.Fatalf("failed to record: %v", err)
			}
		}

		recent, err := repo.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(recent) != 2 || recent[0].TrackID != "t3" || recent[1].TrackID != "t2" {
			t.Errorf("expected t3,t2 got %+v", recent)
		}
	})
}
