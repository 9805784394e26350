package repository

import (
	"context"
	"errors"
	"time"

	"diary-sync-server/internal/domain"
)

// ErrTooManyConflicts is returned when an optimistic write keeps losing
// the revision race and gives up.
var ErrTooManyConflicts = errors.New("too many concurrent update conflicts")

// EntryRepository stores one record per day. Upsert fully replaces any
// existing record with the same day.
type EntryRepository interface {
	List(ctx context.Context) ([]*domain.DiaryEntry, error)
	Upsert(ctx context.Context, entry *domain.DiaryEntry) error
}

// VersionRepository is the change counter. A missing counter reads as 0.
type VersionRepository interface {
	Get(ctx context.Context) (int64, error)
	Increment(ctx context.Context) (int64, error)
}

// Store bundles the repositories of one backend with its lifecycle hooks.
type Store struct {
	Driver   string
	Entries  EntryRepository
	Versions VersionRepository

	ping  func(ctx context.Context) error
	close func() error
}

func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Observer receives the duration and outcome of each store call.
type Observer interface {
	ObserveStoreOperation(operation string, d time.Duration, err error)
}

// Instrument wraps the store's repositories so every call is reported to obs.
func (s *Store) Instrument(obs Observer) {
	if obs == nil {
		return
	}
	s.Entries = &instrumentedEntries{next: s.Entries, obs: obs}
	s.Versions = &instrumentedVersions{next: s.Versions, obs: obs}
}

type instrumentedEntries struct {
	next EntryRepository
	obs  Observer
}

func (r *instrumentedEntries) List(ctx context.Context) ([]*domain.DiaryEntry, error) {
	start := time.Now()
	entries, err := r.next.List(ctx)
	r.obs.ObserveStoreOperation("entries_list", time.Since(start), err)
	return entries, err
}

func (r *instrumentedEntries) Upsert(ctx context.Context, entry *domain.DiaryEntry) error {
	start := time.Now()
	err := r.next.Upsert(ctx, entry)
	r.obs.ObserveStoreOperation("entries_upsert", time.Since(start), err)
	return err
}

type instrumentedVersions struct {
	next VersionRepository
	obs  Observer
}

func (r *instrumentedVersions) Get(ctx context.Context) (int64, error) {
	start := time.Now()
	v, err := r.next.Get(ctx)
	r.obs.ObserveStoreOperation("version_get", time.Since(start), err)
	return v, err
}

func (r *instrumentedVersions) Increment(ctx context.Context) (int64, error) {
	start := time.Now()
	v, err := r.next.Increment(ctx)
	r.obs.ObserveStoreOperation("version_increment", time.Since(start), err)
	return v, err
}
