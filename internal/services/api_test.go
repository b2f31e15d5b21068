package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
	tu "github.com/desertthunder/offbeat/internal/testing"
	"golang.org/x/oauth2"
)

func staticToken(access string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "Bearer"})
}

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL", func(t *testing.T) {
			srv := NewAPIService("http://example.com/", &http.Client{}, nil)
			if srv.BaseURL() != "http://example.com" {
				t.Errorf("expected trimmed baseURL 'http://example.com', got %s", srv.BaseURL())
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			srv := NewAPIService("", nil, nil)
			if srv.BaseURL() != defaultBaseURL {
				t.Errorf("expected default baseURL %s, got %s", defaultBaseURL, srv.BaseURL())
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})

		t.Run("From Config", func(t *testing.T) {
			cfg := shared.DefaultConfig().Remote
			srv := NewAPIServiceFromConfig(cfg, nil)
			if srv.limiter == nil {
				t.Error("expected rate limiter from config")
			}
			if srv.httpClient.Timeout != cfg.Timeout.Duration {
				t.Errorf("expected timeout %v, got %v", cfg.Timeout.Duration, srv.httpClient.Timeout)
			}
		})
	})

	t.Run("Classify", func(t *testing.T) {
		tests := []struct {
			status int
			want   error
		}{
			{http.StatusOK, nil},
			{http.StatusNoContent, nil},
			{http.StatusUnauthorized, shared.ErrUnauthorized},
			{http.StatusForbidden, shared.ErrUnauthorized},
			{http.StatusRequestTimeout, shared.ErrTransient},
			{http.StatusTooManyRequests, shared.ErrTransient},
			{http.StatusInternalServerError, shared.ErrTransient},
			{http.StatusBadGateway, shared.ErrTransient},
			{http.StatusBadRequest, shared.ErrRemoteRejected},
			{http.StatusNotFound, shared.ErrRemoteRejected},
			{http.StatusUnprocessableEntity, shared.ErrRemoteRejected},
		}

		for _, tt := range tests {
			if got := Classify(tt.status); got != tt.want {
				t.Errorf("Classify(%d) = %v, want %v", tt.status, got, tt.want)
			}
		}
	})

	t.Run("Ping", func(t *testing.T) {
		t.Run("Sends No Credentials", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/health" {
					t.Errorf("expected path '/api/health', got %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "" {
					t.Error("expected no Authorization header on the probe")
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, nil)
			if err := srv.Ping(context.Background()); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Network Failure", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			srv := NewAPIService("http://example.com", client, nil)

			err := srv.Ping(context.Background())
			if !errors.Is(err, shared.ErrNetworkUnavailable) {
				t.Errorf("expected ErrNetworkUnavailable, got %v", err)
			}
		})

		t.Run("Failed Response Body Read", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     http.Header{},
				}, nil),
			}

			srv := NewAPIService("http://example.com", client, nil)
			err := srv.Ping(context.Background())
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("With Canceled Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			srv := NewAPIService(server.URL, nil, nil)
			if err := srv.Ping(ctx); !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		})
	})

	t.Run("Authentication", func(t *testing.T) {
		t.Run("Bearer Header", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer secret" {
					t.Errorf("expected 'Bearer secret', got %q", got)
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("secret"))
			if err := srv.SetFollow(context.Background(), "a1", true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Missing Token", func(t *testing.T) {
			called := false
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, nil)
			err := srv.SetFollow(context.Background(), "a1", true)
			if !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
			if called {
				t.Error("expected no request without a token")
			}
		})

		t.Run("Unauthorized Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "token revoked", http.StatusUnauthorized)
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("secret"))
			err := srv.SetLike(context.Background(), "song", "s1", true)
			if !errors.Is(err, shared.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}

			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected StatusError, got %T", err)
			}
			if se.StatusCode != http.StatusUnauthorized || se.Body != "token revoked" {
				t.Errorf("unexpected status error: %+v", se)
			}
		})
	})

	t.Run("Likes And Follows", func(t *testing.T) {
		tests := []struct {
			name   string
			call   func(*APIService) error
			method string
			path   string
		}{
			{"Like", func(s *APIService) error { return s.SetLike(context.Background(), "song", "s1", true) }, http.MethodPost, "/api/likes/song/s1"},
			{"Unlike", func(s *APIService) error { return s.SetLike(context.Background(), "song", "s1", false) }, http.MethodDelete, "/api/likes/song/s1"},
			{"Follow", func(s *APIService) error { return s.SetFollow(context.Background(), "a1", true) }, http.MethodPost, "/api/follows/a1"},
			{"Unfollow", func(s *APIService) error { return s.SetFollow(context.Background(), "a1", false) }, http.MethodDelete, "/api/follows/a1"},
			{"Delete Playlist", func(s *APIService) error { return s.DeletePlaylist(context.Background(), "p1") }, http.MethodDelete, "/api/playlists/p1"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.Method != tt.method {
						t.Errorf("expected %s, got %s", tt.method, r.Method)
					}
					if r.URL.Path != tt.path {
						t.Errorf("expected path %s, got %s", tt.path, r.URL.Path)
					}
					w.WriteHeader(http.StatusNoContent)
				}))
				defer server.Close()

				if err := tt.call(NewAPIService(server.URL, nil, staticToken("t"))); err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
			})
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		t.Run("Create Echoes Server Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var p models.Playlist
				if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
					t.Fatalf("failed to decode request: %v", err)
				}
				if r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
				}
				p.Description = "from server"
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(p)
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("t"))
			created, err := srv.CreatePlaylist(context.Background(), models.Playlist{ID: "p1", Name: "Road trip"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if created.ID != "p1" || created.Description != "from server" {
				t.Errorf("unexpected playlist: %+v", created)
			}
		})

		t.Run("Validation Rejection", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"name too long"}`, http.StatusUnprocessableEntity)
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("t"))
			_, err := srv.UpdatePlaylist(context.Background(), models.Playlist{ID: "p1", Name: "x"})
			if !errors.Is(err, shared.ErrRemoteRejected) {
				t.Errorf("expected ErrRemoteRejected, got %v", err)
			}
		})

		t.Run("Visibility Body", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPut || r.URL.Path != "/api/playlists/p1/visibility" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				body, _ := io.ReadAll(r.Body)
				if string(body) != `{"public":true}` {
					t.Errorf("unexpected body %s", body)
				}
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("t"))
			if err := srv.SetVisibility(context.Background(), "p1", true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("List", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode([]models.Playlist{{ID: "p1", Name: "A"}, {ID: "p2", Name: "B"}})
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("t"))
			playlists, err := srv.ListPlaylists(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(playlists) != 2 {
				t.Errorf("expected 2 playlists, got %d", len(playlists))
			}
		})

		t.Run("Server Error Is Transient", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("t"))
			_, err := srv.ListPlaylists(context.Background())
			if !errors.Is(err, shared.ErrTransient) {
				t.Errorf("expected ErrTransient, got %v", err)
			}
			if !shared.IsRetryable(err) {
				t.Error("expected transient error to be retryable")
			}
		})
	})

	t.Run("Lyrics", func(t *testing.T) {
		t.Run("Batch Upload", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/admin/lyrics" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				var batch []models.Lyrics
				if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
					t.Fatalf("failed to decode: %v", err)
				}
				if len(batch) != 2 {
					t.Errorf("expected 2 lyrics, got %d", len(batch))
				}
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("t"))
			err := srv.UploadLyrics(context.Background(), []models.Lyrics{
				{ID: "l1", SongID: "s1", Text: "la"},
				{ID: "l2", SongID: "s2", Text: "da"},
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Empty Batch Sends Nothing", func(t *testing.T) {
			srv := NewAPIService("http://example.com", &http.Client{
				Transport: tu.NewMockRoundTripper(nil, errors.New("should not be called")),
			}, staticToken("t"))
			if err := srv.UploadLyrics(context.Background(), nil); err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})

		t.Run("Get Missing", func(t *testing.T) {
			server := httptest.NewServer(http.NotFoundHandler())
			defer server.Close()

			srv := NewAPIService(server.URL, nil, staticToken("t"))
			_, err := srv.GetLyrics(context.Background(), "s1")
			if !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("UploadFile", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/admin/uploads" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("failed to parse multipart: %v", err)
			}

			file, header, err := r.FormFile("file")
			if err != nil {
				t.Fatalf("missing file part: %v", err)
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			if string(data) != "ID3audio" {
				t.Errorf("unexpected payload %q", data)
			}
			if header.Filename != "song.mp3" {
				t.Errorf("expected filename song.mp3, got %s", header.Filename)
			}

			var meta models.UploadedFile
			if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
				t.Fatalf("bad metadata part: %v", err)
			}
			if meta.ID != "f1" || meta.Title != "Song" {
				t.Errorf("unexpected metadata %+v", meta)
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		srv := NewAPIService(server.URL, nil, staticToken("t"))
		file := models.UploadedFile{ID: "f1", Filename: "song.mp3", MIMEType: "audio/mpeg", Title: "Song"}
		if err := srv.UploadFile(context.Background(), file, []byte("ID3audio")); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("RecordHistory", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var h models.PlaybackHistory
			json.NewDecoder(r.Body).Decode(&h)
			if r.URL.Path != "/api/history" || h.TrackID != "t1" {
				t.Errorf("unexpected history request %s %+v", r.URL.Path, h)
			}
		}))
		defer server.Close()

		srv := NewAPIService(server.URL, nil, staticToken("t"))
		err := srv.RecordHistory(context.Background(), models.PlaybackHistory{ID: "h1", TrackID: "t1", PlayedAt: time.Now()})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}
