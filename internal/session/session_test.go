package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/offbeat/internal/shared"
	"golang.org/x/oauth2"
)

func TestHolder(t *testing.T) {
	t.Run("Empty Holder Is Unauthenticated", func(t *testing.T) {
		h := New()
		if h.Authenticated() {
			t.Error("expected empty holder to be unauthenticated")
		}
		if _, err := h.Token(); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Expired Token Is Unauthenticated", func(t *testing.T) {
		h := New()
		h.Set(&oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(-time.Minute)}, RoleUser)
		if h.Authenticated() {
			t.Error("expected expired token to be unauthenticated")
		}
	})

	t.Run("Admin Role", func(t *testing.T) {
		h := New()
		h.SetAccessToken("abc", RoleAdmin, time.Hour)
		if !h.Authenticated() || !h.IsAdmin() {
			t.Error("expected authenticated admin")
		}

		tok, err := h.TokenSource().Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tok.AccessToken != "abc" {
			t.Errorf("expected access token abc, got %s", tok.AccessToken)
		}
	})

	t.Run("Clear Fires Callbacks Once", func(t *testing.T) {
		h := New()
		h.SetAccessToken("abc", RoleUser, 0)

		calls := 0
		h.OnClear(func() { calls++ })
		h.Clear()
		h.Clear()

		if h.Authenticated() {
			t.Error("expected cleared holder to be unauthenticated")
		}
		if calls != 1 {
			t.Errorf("expected 1 callback, got %d", calls)
		}
	})
}

func TestPersistence(t *testing.T) {
	t.Run("Save And Load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")

		h := New()
		h.SetAccessToken("secret", RoleAdmin, time.Hour)
		if err := h.Save(path); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("failed to stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("expected 0600 permissions, got %o", perm)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if !loaded.IsAdmin() {
			t.Error("expected loaded session to be admin")
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		h, err := Load(filepath.Join(t.TempDir(), "missing.json"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if h.Authenticated() {
			t.Error("expected unauthenticated holder")
		}
	})

	t.Run("Invalid File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		os.WriteFile(path, []byte("{not json"), 0o600)

		if _, err := Load(path); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Remove Missing", func(t *testing.T) {
		if err := Remove(filepath.Join(t.TempDir(), "missing.json")); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}
