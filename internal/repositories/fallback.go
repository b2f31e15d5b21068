package repositories

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/shared"
)

// FallbackStore wraps a primary [Store] and degrades to memory for the rest of the session once the primary is unavailable.
//
// The degradation is surfaced once through the notifier; the primary is not retried per operation.
type FallbackStore struct {
	primary  Store
	memory   *MemoryStore
	degraded atomic.Bool
	once     sync.Once
	notifier notify.Notifier
	logger   *log.Logger
}

// NewFallbackStore creates a FallbackStore. A nil primary starts degraded, as when the database could not be opened at all.
func NewFallbackStore(primary Store, notifier notify.Notifier, logger *log.Logger) *FallbackStore {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	s := &FallbackStore{
		primary:  primary,
		memory:   NewMemoryStore(),
		notifier: notify.OrDiscard(notifier),
		logger:   logger,
	}
	if primary == nil {
		s.degrade(errors.New("no primary store"))
	}
	return s
}

// Degraded reports whether the store is running memory-only.
func (s *FallbackStore) Degraded() bool { return s.degraded.Load() }

func (s *FallbackStore) degrade(cause error) {
	s.once.Do(func() {
		s.degraded.Store(true)
		s.logger.Warn("local store unavailable, continuing in memory", "error", cause)
		s.notifier.Notify("Offline storage is unavailable; changes will only be kept until you close the app.", notify.Warning)
	})
}

// active returns the store to use and whether it is the primary.
func (s *FallbackStore) active() (Store, bool) {
	if s.degraded.Load() {
		return s.memory, false
	}
	return s.primary, true
}

// unavailable degrades on a store failure and reports whether the operation should be replayed on memory.
func (s *FallbackStore) unavailable(err error) bool {
	if err == nil || !errors.Is(err, shared.ErrStoreUnavailable) {
		return false
	}
	s.degrade(err)
	return true
}

func (s *FallbackStore) Get(ctx context.Context, c Collection, key string) (*Record, error) {
	store, primary := s.active()
	r, err := store.Get(ctx, c, key)
	if primary && s.unavailable(err) {
		return s.memory.Get(ctx, c, key)
	}
	return r, err
}

func (s *FallbackStore) GetAll(ctx context.Context, c Collection) ([]*Record, error) {
	store, primary := s.active()
	rs, err := store.GetAll(ctx, c)
	if primary && s.unavailable(err) {
		return s.memory.GetAll(ctx, c)
	}
	return rs, err
}

func (s *FallbackStore) Put(ctx context.Context, c Collection, r *Record) error {
	store, primary := s.active()
	err := store.Put(ctx, c, r)
	if primary && s.unavailable(err) {
		return s.memory.Put(ctx, c, r)
	}
	return err
}

func (s *FallbackStore) Delete(ctx context.Context, c Collection, key string) error {
	store, primary := s.active()
	err := store.Delete(ctx, c, key)
	if primary && s.unavailable(err) {
		return s.memory.Delete(ctx, c, key)
	}
	return err
}
