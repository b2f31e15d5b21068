package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/shared"
)

// Queue is the action queue over a [repositories.Store].
type Queue struct {
	store    repositories.Store
	mu       sync.Mutex     // serializes read-modify-write enqueues
	inflight map[string]int // ids claimed by a replay that has not been resolved yet
	now      func() time.Time
	logger   *log.Logger
}

// NewQueue creates a Queue over store.
func NewQueue(store repositories.Store, logger *log.Logger) *Queue {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Queue{store: store, inflight: make(map[string]int), now: time.Now, logger: logger}
}

// Claim marks a as being replayed. While claimed, a newer enqueue for the same key is always stored as a new
// revision instead of collapsing into a, since a may already have reached the server. [Queue.Resolve] releases it.
func (q *Queue) Claim(a *models.PendingAction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight[a.ID]++
}

func (q *Queue) release(id string) {
	if q.inflight[id] <= 1 {
		delete(q.inflight, id)
		return
	}
	q.inflight[id]--
}

// Enqueue records a mutation for later replay and returns the stored record.
//
// A nil record with a nil error means the mutation cancelled out a pending one and nothing is left to replay.
func (q *Queue) Enqueue(ctx context.Context, kind models.ActionKind, targetID string, payload any) (*models.PendingAction, error) {
	return q.enqueue(ctx, kind, targetID, payload, nil)
}

// EnqueueFailure is [Queue.Enqueue] for a write whose online attempt failed with cause.
func (q *Queue) EnqueueFailure(ctx context.Context, kind models.ActionKind, targetID string, payload any, cause error) (*models.PendingAction, error) {
	return q.enqueue(ctx, kind, targetID, payload, cause)
}

func (q *Queue) enqueue(ctx context.Context, kind models.ActionKind, targetID string, payload any, cause error) (*models.PendingAction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown action kind %q", shared.ErrInvalidInput, kind)
	}
	if targetID == "" {
		return nil, fmt.Errorf("%w: action target id is required", shared.ErrInvalidInput)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	createID := models.ActionKey(models.CreatePlaylist, targetID)

	if kind == models.DeletePlaylist {
		_, err := q.get(ctx, createID)
		switch {
		case err == nil && q.inflight[createID] == 0:
			return nil, q.removeTarget(ctx, targetID, models.CreatePlaylist, models.UpdatePlaylist, models.ToggleVisibility)
		case err == nil:
		case !errors.Is(err, shared.ErrNotFound):
			return nil, err
		}
		if err := q.removeTarget(ctx, targetID, models.UpdatePlaylist, models.ToggleVisibility); err != nil {
			return nil, err
		}
	}

	if kind == models.UpdatePlaylist && q.inflight[createID] == 0 {
		create, err := q.get(ctx, createID)
		switch {
		case err == nil:
			create.Payload = raw
			create.UpdatedAt = q.now().UTC()
			create.Revision++
			return create, q.put(ctx, create)
		case !errors.Is(err, shared.ErrNotFound):
			return nil, err
		}
	}

	id := models.ActionKey(kind, targetID)
	now := q.now().UTC()
	action := &models.PendingAction{
		ID:        id,
		Kind:      kind,
		TargetID:  targetID,
		Payload:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := q.get(ctx, id)
	switch {
	case errors.Is(err, shared.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if kind.IsToggle() && q.inflight[id] == 0 {
			cancels, err := opposite(kind, existing.Payload, raw)
			if err != nil {
				return nil, err
			}
			if cancels {
				q.logger.Debug("toggle cancelled pending action", "id", id)
				return nil, q.delete(ctx, id)
			}
		}
		action.CreatedAt = existing.CreatedAt
		action.Revision = existing.Revision + 1
		action.Attempts = existing.Attempts
		action.LastError = existing.LastError
	}

	if cause != nil {
		action.Attempts++
		action.LastError = cause.Error()
	}

	if err := q.put(ctx, action); err != nil {
		return nil, err
	}
	q.logger.Debug("enqueued pending action", "id", id, "attempts", action.Attempts)
	return action, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", shared.ErrInvalidInput)
		}
		return p, nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode payload: %v", shared.ErrInvalidInput, err)
		}
		return data, nil
	}
}

// opposite reports whether two toggle payloads request different end states.
func opposite(kind models.ActionKind, a, b json.RawMessage) (bool, error) {
	prev, err := models.DesiredState(kind, a)
	if err != nil {
		return false, fmt.Errorf("%w: pending %s payload: %v", shared.ErrInvalidInput, kind, err)
	}
	next, err := models.DesiredState(kind, b)
	if err != nil {
		return false, fmt.Errorf("%w: %s payload: %v", shared.ErrInvalidInput, kind, err)
	}
	return prev != next, nil
}

func (q *Queue) get(ctx context.Context, id string) (*models.PendingAction, error) {
	rec, err := q.store.Get(ctx, repositories.PendingActions, id)
	if err != nil {
		return nil, err
	}
	var a models.PendingAction
	if err := rec.Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (q *Queue) put(ctx context.Context, a *models.PendingAction) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	rec, err := repositories.NewRecord(a.ID, a)
	if err != nil {
		return err
	}
	rec.Synced = false
	rec.UpdatedAt = a.UpdatedAt
	return q.store.Put(ctx, repositories.PendingActions, rec)
}

func (q *Queue) delete(ctx context.Context, id string) error {
	return q.store.Delete(ctx, repositories.PendingActions, id)
}

func (q *Queue) removeTarget(ctx context.Context, targetID string, kinds ...models.ActionKind) error {
	for _, kind := range kinds {
		if err := q.delete(ctx, models.ActionKey(kind, targetID)); err != nil {
			return err
		}
	}
	q.logger.Debug("dropped unpushed playlist actions", "playlist", targetID)
	return nil
}

// Get returns one pending action by id.
func (q *Queue) Get(ctx context.Context, id string) (*models.PendingAction, error) {
	return q.get(ctx, id)
}

// List returns every pending action in enqueue order.
func (q *Queue) List(ctx context.Context) ([]*models.PendingAction, error) {
	return q.ListKinds(ctx)
}

// ListKinds returns pending actions of the given kinds in enqueue order. No kinds means all.
func (q *Queue) ListKinds(ctx context.Context, kinds ...models.ActionKind) ([]*models.PendingAction, error) {
	records, err := q.store.GetAll(ctx, repositories.PendingActions)
	if err != nil {
		return nil, err
	}

	want := make(map[models.ActionKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	actions := make([]*models.PendingAction, 0, len(records))
	for _, rec := range records {
		var a models.PendingAction
		if err := rec.Decode(&a); err != nil {
			q.logger.Warn("skipping unreadable pending action", "id", rec.ID, "error", err)
			continue
		}
		if len(want) > 0 && !want[a.Kind] {
			continue
		}
		actions = append(actions, &a)
	}
	return actions, nil
}

// Len returns the number of pending actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	records, err := q.store.GetAll(ctx, repositories.PendingActions)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Remove deletes one pending action.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.delete(ctx, id)
}

// Clear deletes every pending action and returns how many were removed.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.store.GetAll(ctx, repositories.PendingActions)
	if err != nil {
		return 0, err
	}
	for i, rec := range records {
		if err := q.delete(ctx, rec.ID); err != nil {
			return i, err
		}
	}
	return len(records), nil
}
