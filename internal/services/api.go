// HTTP implementation of [Service] for the remote music API
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "http://127.0.0.1:8000"

// APIService talks to the remote music API.
type APIService struct {
	baseURL    string
	httpClient *http.Client // unauthenticated, used for the liveness probe
	authClient *http.Client // bearer-authenticated through [oauth2.Transport]
	limiter    *rate.Limiter
}

// NewAPIService creates a new API service. A nil source leaves every authenticated call failing with [shared.ErrNotAuthenticated].
func NewAPIService(baseURL string, client *http.Client, source oauth2.TokenSource) *APIService {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if source == nil {
		source = missingToken{}
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		authClient: &http.Client{
			Transport: &oauth2.Transport{Source: source, Base: client.Transport},
			Timeout:   client.Timeout,
		},
	}
}

// NewAPIServiceFromConfig builds an API service with the configured timeout and pacing.
func NewAPIServiceFromConfig(cfg shared.RemoteConfig, source oauth2.TokenSource) *APIService {
	client := &http.Client{Timeout: cfg.Timeout.Duration}
	return NewAPIService(cfg.BaseURL, client, source).WithRateLimit(cfg.RateLimit, cfg.Burst)
}

// WithRateLimit paces requests to rps per second. A non-positive rps disables pacing.
func (a *APIService) WithRateLimit(rps float64, burst int) *APIService {
	if rps <= 0 {
		a.limiter = nil
		return a
	}
	if burst < 1 {
		burst = 1
	}
	a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return a
}

// BaseURL returns the API root.
func (a *APIService) BaseURL() string { return a.baseURL }

type missingToken struct{}

func (missingToken) Token() (*oauth2.Token, error) { return nil, shared.ErrNotAuthenticated }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%v: %s %s returned %d", e.kind, e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap returns the classification sentinel.
func (e *StatusError) Unwrap() error { return e.kind }

// Classify maps an HTTP status onto the shared error taxonomy. 2xx and 3xx return nil.
func Classify(status int) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return shared.ErrUnauthorized
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return shared.ErrTransient
	default:
		return shared.ErrRemoteRejected
	}
}

// do sends one request and classifies the outcome.
func (a *APIService) do(ctx context.Context, method, path string, body io.Reader, contentType string, auth bool) (*APIResponse, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	client := a.httpClient
	if auth {
		client = a.authClient
	}

	resp, err := client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotAuthenticated):
			return nil, fmt.Errorf("%w: %s %s", shared.ErrNotAuthenticated, method, path)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("%w: %s %s: %v", shared.ErrNetworkUnavailable, method, path, err)
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrNetworkUnavailable, err)
	}

	if kind := Classify(resp.StatusCode); kind != nil {
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			kind:       kind,
		}
	}

	return &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the response into out (when non-nil).
func (a *APIService) doJSON(ctx context.Context, method, path string, in, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := a.do(ctx, method, path, body, contentType, true)
	if err != nil {
		return err
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Ping checks that the API is reachable.
func (a *APIService) Ping(ctx context.Context) error {
	_, err := a.do(ctx, http.MethodGet, "/api/health", nil, "", false)
	return err
}

func (a *APIService) SetLike(ctx context.Context, itemType, id string, liked bool) error {
	method := http.MethodPost
	if !liked {
		method = http.MethodDelete
	}
	path := fmt.Sprintf("/api/likes/%s/%s", url.PathEscape(itemType), url.PathEscape(id))
	return a.doJSON(ctx, method, path, nil, nil)
}

func (a *APIService) SetFollow(ctx context.Context, artistID string, following bool) error {
	method := http.MethodPost
	if !following {
		method = http.MethodDelete
	}
	return a.doJSON(ctx, method, "/api/follows/"+url.PathEscape(artistID), nil, nil)
}

func (a *APIService) CreatePlaylist(ctx context.Context, p models.Playlist) (*models.Playlist, error) {
	var created models.Playlist
	if err := a.doJSON(ctx, http.MethodPost, "/api/playlists", p, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		created = p
	}
	return &created, nil
}

func (a *APIService) UpdatePlaylist(ctx context.Context, p models.Playlist) (*models.Playlist, error) {
	var updated models.Playlist
	if err := a.doJSON(ctx, http.MethodPut, "/api/playlists/"+url.PathEscape(p.ID), p, &updated); err != nil {
		return nil, err
	}
	if updated.ID == "" {
		updated = p
	}
	return &updated, nil
}

func (a *APIService) DeletePlaylist(ctx context.Context, id string) error {
	return a.doJSON(ctx, http.MethodDelete, "/api/playlists/"+url.PathEscape(id), nil, nil)
}

func (a *APIService) SetVisibility(ctx context.Context, playlistID string, public bool) error {
	body := struct {
		Public bool `json:"public"`
	}{Public: public}
	return a.doJSON(ctx, http.MethodPut, "/api/playlists/"+url.PathEscape(playlistID)+"/visibility", body, nil)
}

func (a *APIService) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	if err := a.doJSON(ctx, http.MethodGet, "/api/playlists", nil, &playlists); err != nil {
		return nil, err
	}
	return playlists, nil
}

func (a *APIService) UploadLyrics(ctx context.Context, lyrics []models.Lyrics) error {
	if len(lyrics) == 0 {
		return nil
	}
	return a.doJSON(ctx, http.MethodPost, "/api/admin/lyrics", lyrics, nil)
}

// GetLyrics returns [shared.ErrNotFound] when the song has no lyrics.
func (a *APIService) GetLyrics(ctx context.Context, songID string) (*models.Lyrics, error) {
	var l models.Lyrics
	err := a.doJSON(ctx, http.MethodGet, "/api/lyrics/"+url.PathEscape(songID), nil, &l)

	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: lyrics for %s", shared.ErrNotFound, songID)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (a *APIService) UploadFile(ctx context.Context, file models.UploadedFile, payload []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Filename))
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return fmt.Errorf("failed to write file part: %w", err)
	}

	metadata, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := w.WriteField("metadata", string(metadata)); err != nil {
		return fmt.Errorf("failed to write metadata part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	_, err = a.do(ctx, http.MethodPost, "/api/admin/uploads", &buf, w.FormDataContentType(), true)
	return err
}

func (a *APIService) RecordHistory(ctx context.Context, h models.PlaybackHistory) error {
	return a.doJSON(ctx, http.MethodPost, "/api/history", h, nil)
}

var _ Service = (*APIService)(nil)
