package actions

import (
	"context"
	"errors"

	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/shared"
)

// Outcome is what happened to a pending action after one replay.
type Outcome int

const (
	Succeeded Outcome = iota // replayed and deleted
	Failed                   // left untouched for the next cycle
	Dropped                  // rejected by the server and deleted
	Aborted                  // the session is no longer valid
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Dropped:
		return "dropped"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// OutcomeOf classifies a replay error.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrNotAuthenticated):
		return Aborted
	case errors.Is(err, shared.ErrRemoteRejected):
		return Dropped
	default:
		return Failed
	}
}

// Resolve applies the result of replaying a. See [Queue.Settle].
func (q *Queue) Resolve(ctx context.Context, a *models.PendingAction, err error) Outcome {
	outcome, _ := q.Settle(ctx, a, err)
	return outcome
}

// Settle applies the result of replaying a and releases its claim. Success and rejection delete the record, anything
// else leaves it as stored.
//
// A record rewritten while a was in flight is a newer revision that was never sent. It is kept, and current reports
// false, so callers skip the follow-up work tied to a.
func (q *Queue) Settle(ctx context.Context, a *models.PendingAction, err error) (outcome Outcome, current bool) {
	outcome = OutcomeOf(err)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.release(a.ID)

	stored, getErr := q.get(ctx, a.ID)
	switch {
	case errors.Is(getErr, shared.ErrNotFound):
		current = false
	case getErr != nil:
		q.logger.Warn("failed to read resolved action", "id", a.ID, "error", getErr)
		return outcome, false
	default:
		current = stored.Revision == a.Revision
	}

	if current && (outcome == Succeeded || outcome == Dropped) {
		if rmErr := q.delete(ctx, a.ID); rmErr != nil {
			q.logger.Warn("failed to delete resolved action", "id", a.ID, "error", rmErr)
		}
	}
	if getErr == nil && !current {
		q.logger.Debug("kept newer revision of replayed action", "id", a.ID, "sent", a.Revision, "stored", stored.Revision)
	}
	if err != nil {
		q.logger.Debug("pending action replay", "id", a.ID, "outcome", outcome, "error", err)
	}
	return outcome, current
}

// Handler replays one pending action against the remote API.
type Handler func(ctx context.Context, a *models.PendingAction) error

// DrainResult reports one drain pass.
type DrainResult struct {
	Succeeded []string
	Failed    []string
	Dropped   []string
	Aborted   bool
}

// FailedIDs returns the failure set of the pass.
func (r DrainResult) FailedIDs() map[string]bool {
	set := make(map[string]bool, len(r.Failed))
	for _, id := range r.Failed {
		set[id] = true
	}
	return set
}

func (r *DrainResult) add(id string, o Outcome) {
	switch o {
	case Succeeded:
		r.Succeeded = append(r.Succeeded, id)
	case Dropped:
		r.Dropped = append(r.Dropped, id)
	case Failed:
		r.Failed = append(r.Failed, id)
	case Aborted:
		r.Failed = append(r.Failed, id)
		r.Aborted = true
	}
}

// SettledFunc is told how a drained action was settled. See [Queue.Settle] for current.
type SettledFunc func(ctx context.Context, a *models.PendingAction, outcome Outcome, current bool)

// Drain replays every pending action in order with handler.
//
// An authorization failure stops the pass; the remaining records are not attempted.
func (q *Queue) Drain(ctx context.Context, handler Handler) (DrainResult, error) {
	return q.DrainWith(ctx, handler, nil)
}

// DrainWith is [Queue.Drain] with a callback run after each record is settled.
func (q *Queue) DrainWith(ctx context.Context, handler Handler, settled SettledFunc) (DrainResult, error) {
	var result DrainResult

	pending, err := q.List(ctx)
	if err != nil {
		return result, err
	}

	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		q.Claim(a)
		outcome, current := q.Settle(ctx, a, handler(ctx, a))
		result.add(a.ID, outcome)
		if settled != nil {
			settled(ctx, a, outcome, current)
		}
		if outcome == Aborted {
			break
		}
	}
	return result, nil
}
