// Package memory is an in-process photo store with the same constraints as
// the Postgres schema. Transactions are serialized and rolled back on error.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"aboba/core/media/domain"
)

var (
	_ domain.PhotoReadStore   = (*Store)(nil)
	_ domain.PhotoWriteStore  = (*Store)(nil)
	_ domain.ProfileOwnership = (*Store)(nil)
	_ domain.PhotoWriteTx     = (*tx)(nil)
)

type Store struct {
	// txMu serializes transactions; mu guards the maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	profiles map[int64]int64 // profile id -> owner id
	photos   map[int64]domain.Photo
	failures map[int64]string
	nextID   int64
}

func NewStore() *Store {
	return &Store{
		profiles: make(map[int64]int64),
		photos:   make(map[int64]domain.Photo),
		failures: make(map[int64]string),
	}
}

// AddProfile registers a profile owned by userID.
func (s *Store) AddProfile(profileID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileID] = userID
}

// FailureReason returns the reason recorded by MarkFailed.
func (s *Store) FailureReason(photoID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures[photoID]
}

func (s *Store) IsProfileOwnedBy(_ context.Context, profileID, callerID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.profiles[profileID]
	return ok && owner == callerID, nil
}

func (s *Store) ListPhotos(_ context.Context, profileID int64) ([]domain.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Photo
	for _, p := range s.photos {
		if p.ProfileID == profileID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Photo) int { return a.Position - b.Position })
	return out, nil
}

func (s *Store) GetPhoto(_ context.Context, photoID int64) (*domain.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.photos[photoID]
	if !ok {
		return nil, domain.ErrPhotoNotFound
	}
	return &p, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.PhotoWriteTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := maps.Clone(s.photos)
	nextID := s.nextID
	s.mu.RUnlock()

	if err := fn(ctx, &tx{s: s}); err != nil {
		s.mu.Lock()
		s.photos = snapshot
		s.nextID = nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) MarkProcessing(_ context.Context, photoID int64) (bool, error) {
	return s.transition(photoID, func(p *domain.Photo) bool {
		if p.State != domain.StatePending {
			return false
		}
		p.State = domain.StateProcessing
		return true
	})
}

func (s *Store) MarkProcessed(_ context.Context, photoID int64, outcome domain.ProcessedOutcome) (bool, error) {
	return s.transition(photoID, func(p *domain.Photo) bool {
		if p.State.Terminal() {
			return false
		}
		score := outcome.NSFWScore
		at := outcome.ProcessedAt
		p.State = domain.StateProcessed
		p.VirusScanned = outcome.VirusScanned
		p.ExifStripped = outcome.ExifStripped
		p.WatermarkApplied = outcome.WatermarkApplied
		p.NSFWScore = &score
		p.ProcessedAt = &at
		return true
	})
}

func (s *Store) MarkFailed(_ context.Context, photoID int64, reason string) (bool, error) {
	changed, err := s.transition(photoID, func(p *domain.Photo) bool {
		if p.State.Terminal() {
			return false
		}
		p.State = domain.StateFailed
		return true
	})
	if changed {
		s.mu.Lock()
		s.failures[photoID] = reason
		s.mu.Unlock()
	}
	return changed, err
}

func (s *Store) transition(photoID int64, apply func(*domain.Photo) bool) (bool, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[photoID]
	if !ok {
		return false, nil
	}
	if !apply(&p) {
		return false, nil
	}
	s.photos[photoID] = p
	return true, nil
}

type tx struct {
	s *Store
}

func (t *tx) LockProfile(_ context.Context, profileID int64) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if _, ok := t.s.profiles[profileID]; !ok {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (t *tx) FindByStorageKey(_ context.Context, storageKey string) (*domain.Photo, error) {
	return t.find(func(p domain.Photo) bool { return p.StorageKey == storageKey })
}

func (t *tx) FindByContentHash(_ context.Context, profileID int64, contentHash string) (*domain.Photo, error) {
	return t.find(func(p domain.Photo) bool { return p.ProfileID == profileID && p.ContentHash == contentHash })
}

func (t *tx) GetProfilePhoto(_ context.Context, profileID, photoID int64) (*domain.Photo, error) {
	return t.find(func(p domain.Photo) bool { return p.ID == photoID && p.ProfileID == profileID })
}

func (t *tx) find(match func(domain.Photo) bool) (*domain.Photo, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, p := range t.s.photos {
		if match(p) {
			return &p, nil
		}
	}
	return nil, domain.ErrPhotoNotFound
}

func (t *tx) CountPhotos(_ context.Context, profileID int64) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	n := 0
	for _, p := range t.s.photos {
		if p.ProfileID == profileID {
			n++
		}
	}
	return n, nil
}

func (t *tx) MaxPosition(_ context.Context, profileID int64) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	maxPos := 0
	for _, p := range t.s.photos {
		if p.ProfileID == profileID && p.Position > maxPos {
			maxPos = p.Position
		}
	}
	return maxPos, nil
}

func (t *tx) PositionTaken(_ context.Context, profileID int64, position int, excludePhotoID int64) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.positionTakenLocked(profileID, position, excludePhotoID), nil
}

func (t *tx) positionTakenLocked(profileID int64, position int, excludePhotoID int64) bool {
	for _, p := range t.s.photos {
		if p.ProfileID == profileID && p.Position == position && p.ID != excludePhotoID {
			return true
		}
	}
	return false
}

func (t *tx) coverTakenLocked(profileID, excludePhotoID int64) bool {
	for _, p := range t.s.photos {
		if p.ProfileID == profileID && p.IsCover && p.ID != excludePhotoID {
			return true
		}
	}
	return false
}

func (t *tx) InsertPhoto(_ context.Context, np domain.NewPhoto) (*domain.Photo, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, p := range t.s.photos {
		if p.StorageKey == np.StorageKey || (p.ProfileID == np.ProfileID && p.ContentHash == np.ContentHash) {
			return nil, domain.ErrDuplicatePhoto
		}
	}
	if t.positionTakenLocked(np.ProfileID, np.Position, 0) {
		return nil, domain.ErrPositionTaken
	}
	if np.IsCover && t.coverTakenLocked(np.ProfileID, 0) {
		return nil, domain.ErrCoverTaken
	}

	t.s.nextID++
	p := domain.Photo{
		ID:          t.s.nextID,
		ProfileID:   np.ProfileID,
		StorageKey:  np.StorageKey,
		ContentHash: np.ContentHash,
		SizeBytes:   np.SizeBytes,
		Mime:        np.Mime,
		IsCover:     np.IsCover,
		Position:    np.Position,
		State:       np.State,
		CreatedAt:   np.CreatedAt,
	}
	t.s.photos[p.ID] = p
	return &p, nil
}

func (t *tx) ClearCover(_ context.Context, profileID int64, exceptPhotoID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, p := range t.s.photos {
		if p.ProfileID == profileID && p.ID != exceptPhotoID && p.IsCover {
			p.IsCover = false
			t.s.photos[id] = p
		}
	}
	return nil
}

func (t *tx) SetCover(_ context.Context, photoID int64, isCover bool) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.photos[photoID]
	if !ok {
		return domain.ErrPhotoNotFound
	}
	if isCover && t.coverTakenLocked(p.ProfileID, p.ID) {
		return domain.ErrCoverTaken
	}
	p.IsCover = isCover
	t.s.photos[photoID] = p
	return nil
}

func (t *tx) SetPosition(_ context.Context, photoID int64, position int) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.photos[photoID]
	if !ok {
		return domain.ErrPhotoNotFound
	}
	if t.positionTakenLocked(p.ProfileID, position, p.ID) {
		return domain.ErrPositionTaken
	}
	p.Position = position
	t.s.photos[photoID] = p
	return nil
}
