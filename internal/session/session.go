// package session holds the bearer credential the core reads before talking to the remote API.
//
// An absent or expired token means "unauthenticated": sync is skipped, remote history is not written, and mutations are queued.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/offbeat/internal/shared"
	"golang.org/x/oauth2"
)

// Role is the account role attached to the session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates s as a [Role]. An empty string is a user.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", shared.ErrInvalidArgument, s)
	}
}

type persisted struct {
	Token *oauth2.Token `json:"token"`
	Role  Role          `json:"role"`
}

// Holder is the process-wide session. It is safe for concurrent use.
type Holder struct {
	mu      sync.RWMutex
	token   *oauth2.Token
	role    Role
	onClear []func()
}

// New creates an empty, unauthenticated holder.
func New() *Holder {
	return &Holder{role: RoleUser}
}

// Set stores a credential.
func (h *Holder) Set(token *oauth2.Token, role Role) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
	h.role = role
}

// SetAccessToken stores a bearer token that expires after ttl. A non-positive ttl never expires.
func (h *Holder) SetAccessToken(accessToken string, role Role, ttl time.Duration) {
	tok := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	if ttl > 0 {
		tok.Expiry = time.Now().Add(ttl)
	}
	h.Set(tok, role)
}

// Authenticated reports whether a valid, unexpired token is present.
func (h *Holder) Authenticated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token.Valid()
}

// IsAdmin reports whether the session is authenticated with the admin role.
func (h *Holder) IsAdmin() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token.Valid() && h.role == RoleAdmin
}

// Role returns the session role.
func (h *Holder) Role() Role {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.role
}

// Token implements [oauth2.TokenSource].
func (h *Holder) Token() (*oauth2.Token, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.token.Valid() {
		return nil, shared.ErrNotAuthenticated
	}
	dup := *h.token
	return &dup, nil
}

// TokenSource returns the holder as an [oauth2.TokenSource].
func (h *Holder) TokenSource() oauth2.TokenSource { return h }

// OnClear registers fn to run after the session is cleared.
func (h *Holder) OnClear(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClear = append(h.onClear, fn)
}

// Clear drops the credential. Clearing an empty holder does not fire callbacks.
func (h *Holder) Clear() {
	h.mu.Lock()
	had := h.token != nil
	h.token = nil
	h.role = RoleUser
	callbacks := append([]func(){}, h.onClear...)
	h.mu.Unlock()

	if !had {
		return
	}
	for _, fn := range callbacks {
		fn()
	}
}

// Save writes the credential to path with owner-only permissions.
func (h *Holder) Save(path string) error {
	h.mu.RLock()
	p := persisted{Token: h.token, Role: h.role}
	h.mu.RUnlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads a holder from path. A missing file yields an empty holder.
func Load(path string) (*Holder, error) {
	h := New()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: session file: %v", shared.ErrInvalidInput, err)
	}

	role, err := ParseRole(string(p.Role))
	if err != nil {
		return nil, err
	}
	h.Set(p.Token, role)
	return h, nil
}

// Remove deletes the session file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
