// Package memory is an in-process profile store for tests and local runs.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"aboba/core/profile/domain"
)

var (
	_ domain.ProfileReadStore  = (*Store)(nil)
	_ domain.ProfileWriteStore = (*Store)(nil)
	_ domain.ProfileWriteTx    = (*tx)(nil)
)

type Store struct {
	// txMu serializes transactions; mu guards the maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	profiles  map[int64]domain.Profile
	prices    map[int64]int
	processed map[int64]int
}

func NewStore() *Store {
	return &Store{
		profiles:  make(map[int64]domain.Profile),
		prices:    make(map[int64]int),
		processed: make(map[int64]int),
	}
}

func (s *Store) AddProfile(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == "" {
		p.Status = domain.StatusDraft
	}
	s.profiles[p.ID] = p
}

func (s *Store) AddPrices(profileID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[profileID] += n
}

func (s *Store) SetProcessedPhotos(profileID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[profileID] = n
}

// Profile returns a copy of the stored profile.
func (s *Store) Profile(profileID int64) (domain.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileID]
	return p, ok
}

func (s *Store) IsProfileOwnedBy(_ context.Context, profileID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileID]
	return ok && p.UserID == userID, nil
}

func (s *Store) ReadinessFacts(_ context.Context, profileID int64) (domain.ReadinessFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.factsLocked(profileID), nil
}

func (s *Store) factsLocked(profileID int64) domain.ReadinessFacts {
	p, ok := s.profiles[profileID]
	return domain.ReadinessFacts{
		Exists:          ok,
		Nickname:        p.Nickname,
		ProcessedPhotos: s.processed[profileID],
		Prices:          s.prices[profileID],
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.ProfileWriteTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := maps.Clone(s.profiles)
	s.mu.RUnlock()

	if err := fn(ctx, &tx{s: s}); err != nil {
		s.mu.Lock()
		s.profiles = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) TransitionStatus(_ context.Context, profileID int64, from, to domain.Status, at time.Time) (bool, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = at
	s.profiles[profileID] = p
	return true, nil
}

type tx struct {
	s *Store
}

func (t *tx) LockProfile(_ context.Context, profileID int64) (*domain.Profile, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.profiles[profileID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &p, nil
}

func (t *tx) ReadinessFacts(_ context.Context, profileID int64) (domain.ReadinessFacts, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.factsLocked(profileID), nil
}

func (t *tx) SetStatus(_ context.Context, profileID int64, status domain.Status, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.profiles[profileID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.Status = status
	p.UpdatedAt = at
	if status == domain.StatusSubmitted {
		p.SubmittedAt = &at
	}
	t.s.profiles[profileID] = p
	return nil
}
