// Package queue puts ProcessPhotoJob onto the job channel.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"aboba/core/media/domain"
	"aboba/modules/jobs"
)

// Name is the job channel shared by the API and the worker.
const Name = "media.process_photo"

// Config selects the Redis job channel.
type Config struct {
	Name  string        `env:"NAME"  envDefault:"media.process_photo"`
	Lease time.Duration `env:"LEASE" envDefault:"5m"`
}

var _ domain.JobQueue = (*ProcessPhotoQueue)(nil)

type ProcessPhotoQueue struct {
	producer jobs.Producer
}

func NewProcessPhotoQueue(p jobs.Producer) *ProcessPhotoQueue {
	return &ProcessPhotoQueue{producer: p}
}

// JobID is deterministic per photo so repeated enqueues collapse into one job.
func JobID(photoID int64) string {
	return "photo:" + strconv.FormatInt(photoID, 10)
}

func (q *ProcessPhotoQueue) EnqueueProcessPhoto(ctx context.Context, job domain.ProcessPhotoJob, maxAttempts int) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode process photo job: %w", err)
	}
	return q.producer.Enqueue(ctx, JobID(job.PhotoID), payload, jobs.EnqueueOptions{MaxAttempts: maxAttempts})
}

// Decode parses a delivery payload back into a job.
func Decode(d *jobs.Delivery) (domain.ProcessPhotoJob, error) {
	var job domain.ProcessPhotoJob
	if err := json.Unmarshal(d.Payload, &job); err != nil {
		return job, fmt.Errorf("decode job %s: %w", d.ID, err)
	}
	if job.PhotoID <= 0 || job.ProfileID <= 0 || job.StorageKey == "" {
		return job, fmt.Errorf("decode job %s: incomplete payload", d.ID)
	}
	return job, nil
}
