package domain_test

import (
	"context"
	"sync"
	"testing"

	"aboba/core/media/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmUpload_FirstPhotoIsCoverAndQueued(t *testing.T) {
	f := newFixture(t)

	first, err := f.confirm(t, 1)
	require.NoError(t, err)
	assert.True(t, first.IsCover)
	assert.Equal(t, 10, first.Position)
	assert.Equal(t, domain.StateProcessing, first.State)
	assert.True(t, first.CreatedAt.Equal(start))

	second, err := f.confirm(t, 2)
	require.NoError(t, err)
	assert.False(t, second.IsCover)
	assert.Equal(t, 20, second.Position)

	assert.Equal(t, 2, f.jobs.Len())
}

func TestConfirmUpload_ReplaysReturnTheSameRow(t *testing.T) {
	f := newFixture(t)

	first, err := f.confirm(t, 1)
	require.NoError(t, err)

	again, err := f.confirm(t, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// same bytes uploaded under a second temporary key
	byHash, err := f.app.ConfirmUpload(context.Background(), domain.ConfirmUploadRequest{
		ProfileID:   1,
		CallerID:    owner,
		StorageKey:  key(99),
		ContentHash: hash(1),
		SizeBytes:   2048,
		Mime:        domain.MimeJPEG,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, byHash.ID)

	photos, err := f.store.ListPhotos(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, photos, 1)
	assert.Equal(t, 1, f.jobs.Len())
}

func TestConfirmUpload_FailedEnqueueIsRetriedByReplay(t *testing.T) {
	f := newFixture(t)
	f.queue.setBroken(true)

	_, err := f.confirm(t, 1)
	require.ErrorIs(t, err, domain.ErrUnhandled)

	photos, err := f.store.ListPhotos(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, domain.StatePending, photos[0].State)
	assert.Zero(t, f.jobs.Len())

	f.queue.setBroken(false)
	replay, err := f.confirm(t, 1)
	require.NoError(t, err)
	assert.Equal(t, photos[0].ID, replay.ID)
	assert.Equal(t, domain.StateProcessing, replay.State)
	assert.Equal(t, 1, f.jobs.Len())
}

func TestConfirmUpload_Rejections(t *testing.T) {
	base := domain.ConfirmUploadRequest{
		ProfileID:   1,
		CallerID:    owner,
		StorageKey:  key(1),
		ContentHash: hash(1),
		SizeBytes:   2048,
		Mime:        domain.MimePNG,
	}
	tests := []struct {
		name   string
		mutate func(*domain.ConfirmUploadRequest)
		want   error
	}{
		{"foreign profile", func(r *domain.ConfirmUploadRequest) { r.CallerID = stranger }, domain.ErrProfileNotFound},
		{"unknown profile", func(r *domain.ConfirmUploadRequest) { r.ProfileID = 404 }, domain.ErrProfileNotFound},
		{"key of another profile", func(r *domain.ConfirmUploadRequest) { r.StorageKey = "profiles/2/photos/tmp_x/orig" }, domain.ErrInvalidInput},
		{"path traversal", func(r *domain.ConfirmUploadRequest) { r.StorageKey = "profiles/1/photos/../../2/orig" }, domain.ErrInvalidInput},
		{"oversized", func(r *domain.ConfirmUploadRequest) { r.SizeBytes = domain.MaxUploadBytes + 1 }, domain.ErrInvalidInput},
		{"zero size", func(r *domain.ConfirmUploadRequest) { r.SizeBytes = 0 }, domain.ErrInvalidInput},
		{"gif", func(r *domain.ConfirmUploadRequest) { r.Mime = "image/gif" }, domain.ErrInvalidInput},
		{"missing hash", func(r *domain.ConfirmUploadRequest) { r.ContentHash = "" }, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := base
			tt.mutate(&req)
			_, err := f.app.ConfirmUpload(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.jobs.Len())
		})
	}
}

func TestConfirmUpload_ConcurrentConfirmsKeepSlotsUnique(t *testing.T) {
	f := newFixture(t)

	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.confirm(t, i+1)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	photos, err := f.store.ListPhotos(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, photos, n)

	positions := make(map[int]bool, n)
	covers := 0
	for _, p := range photos {
		assert.False(t, positions[p.Position], "position %d used twice", p.Position)
		positions[p.Position] = true
		if p.IsCover {
			covers++
		}
	}
	assert.Equal(t, 1, covers)
}
