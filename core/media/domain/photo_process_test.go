package domain_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"aboba/core/media/domain"
	"aboba/modules/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransformer struct {
	err   error
	calls int
}

func (s *stubTransformer) Transform(_ context.Context, original io.Reader, _ string) (*domain.Transformation, error) {
	s.calls++
	if _, err := io.ReadAll(original); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Transformation{
		Variants: map[domain.VariantName][]byte{
			domain.VariantThumb:       []byte("thumb"),
			domain.VariantCard:        []byte("card"),
			domain.VariantWatermarked: []byte("watermarked"),
		},
		VirusScanned:     true,
		ExifStripped:     true,
		WatermarkApplied: true,
		NSFWScore:        0.1,
	}, nil
}

type published struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *published) Publish(_ context.Context, evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (f *fixture) processor(tr domain.Transformer, pub domain.EventPublisher) *domain.Processor {
	return domain.NewProcessor(f.store, f.store, f.blobs, tr, pub, f.clock)
}

func (f *fixture) uploaded(t *testing.T, n int) domain.ProcessPhotoJob {
	t.Helper()
	f.blobs.PutOriginal(key(n), []byte("original bytes"))
	photo, err := f.confirm(t, n)
	require.NoError(t, err)
	return domain.ProcessPhotoJob{ProfileID: 1, PhotoID: photo.ID, StorageKey: photo.StorageKey}
}

func TestProcess_WritesVariantsAndPublishesOnce(t *testing.T) {
	f := newFixture(t)
	job := f.uploaded(t, 1)
	pub := &published{}
	p := f.processor(&stubTransformer{}, pub)

	require.NoError(t, p.Process(context.Background(), job))

	for _, v := range domain.Variants {
		data, ok := f.blobs.Derived(domain.DerivedKey(1, job.PhotoID, v))
		require.True(t, ok, "variant %s", v)
		assert.Equal(t, string(v), string(data))
	}

	photo, err := f.store.GetPhoto(context.Background(), job.PhotoID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateProcessed, photo.State)
	assert.True(t, photo.VirusScanned)
	assert.True(t, photo.ExifStripped)
	assert.True(t, photo.WatermarkApplied)
	require.NotNil(t, photo.NSFWScore)
	assert.InDelta(t, 0.1, *photo.NSFWScore, 1e-9)
	require.NotNil(t, photo.ProcessedAt)
	assert.True(t, photo.ProcessedAt.Equal(start))

	// redelivery of a processed photo is a no-op
	require.NoError(t, p.Process(context.Background(), job))

	require.Len(t, pub.events, 1)
	evt := pub.events[0]
	assert.Equal(t, domain.EventPhotoProcessed, evt.Name)
	assert.Equal(t, domain.PhotoProcessedPayload{ProfileID: 1, PhotoID: job.PhotoID, StorageKey: job.StorageKey}, evt.Payload)
}

func TestProcess_TransientStorageFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	job := f.uploaded(t, 1)
	pub := &published{}
	p := f.processor(&stubTransformer{}, pub)

	f.blobs.FailNextPuts(1)
	err := p.Process(context.Background(), job)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPermanent)

	photo, err := f.store.GetPhoto(context.Background(), job.PhotoID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateProcessing, photo.State)

	require.NoError(t, p.Process(context.Background(), job))
	assert.Len(t, pub.events, 1)
}

func TestProcess_PermanentFailures(t *testing.T) {
	t.Run("original missing", func(t *testing.T) {
		f := newFixture(t)
		photo, err := f.confirm(t, 1)
		require.NoError(t, err)
		job := domain.ProcessPhotoJob{ProfileID: 1, PhotoID: photo.ID, StorageKey: photo.StorageKey}

		err = f.processor(&stubTransformer{}, &published{}).Process(context.Background(), job)
		assert.ErrorIs(t, err, domain.ErrPermanent)
	})

	t.Run("content rejected", func(t *testing.T) {
		f := newFixture(t)
		job := f.uploaded(t, 1)
		tr := &stubTransformer{err: errors.Join(domain.ErrRejectedContent, errors.New("not an image"))}

		err := f.processor(tr, &published{}).Process(context.Background(), job)
		assert.ErrorIs(t, err, domain.ErrPermanent)
	})

	t.Run("unknown photo", func(t *testing.T) {
		f := newFixture(t)
		job := domain.ProcessPhotoJob{ProfileID: 1, PhotoID: 77, StorageKey: key(1)}
		err := f.processor(&stubTransformer{}, &published{}).Process(context.Background(), job)
		assert.ErrorIs(t, err, domain.ErrPermanent)
	})

	t.Run("job does not match row", func(t *testing.T) {
		f := newFixture(t)
		job := f.uploaded(t, 1)
		job.StorageKey = key(2)
		tr := &stubTransformer{}
		err := f.processor(tr, &published{}).Process(context.Background(), job)
		assert.ErrorIs(t, err, domain.ErrPermanent)
		assert.Zero(t, tr.calls)
	})
}

func TestFail_RecordsReasonOnce(t *testing.T) {
	f := newFixture(t)
	job := f.uploaded(t, 1)
	p := f.processor(&stubTransformer{}, &published{})

	require.NoError(t, p.Fail(context.Background(), job, errors.New("decode failed")))
	require.NoError(t, p.Fail(context.Background(), job, errors.New("second reason")))

	photo, err := f.store.GetPhoto(context.Background(), job.PhotoID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, photo.State)
	assert.Equal(t, "decode failed", f.store.FailureReason(job.PhotoID))

	err = p.Process(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrPermanent)
}
