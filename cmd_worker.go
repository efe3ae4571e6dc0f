package main

import (
	"context"
	"fmt"
	"log/slog"

	s3store "aboba/core/media/adapters/blob/s3"
	mediapg "aboba/core/media/adapters/persistence/pg"
	"aboba/core/media/adapters/transform"
	media "aboba/core/media/domain"
	mediaworker "aboba/core/media/worker"
	"aboba/modules/clock"
	"aboba/modules/db/redis"
	"aboba/modules/db/redis/locking"
	"aboba/modules/jobs/redisqueue"
	"aboba/modules/telemetry"

	"github.com/spf13/cobra"
)

func workerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process uploaded photos",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	rt, err := bootstrap(ctx, telemetry.RoleWorker)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	cfg := rt.cfg
	clk := clock.RealClockProvider()

	redisClient, err := redis.NewRueidisClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis not properly setup: %w", err)
	}
	rt.onClose(func(context.Context) error {
		redisClient.Close()
		return nil
	})

	blobs, err := s3store.New(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("s3 store: %w", err)
	}

	jobQueue, err := redisqueue.New(redisClient, cfg.Queue.Name, redisqueue.WithLease(cfg.Queue.Lease), redisqueue.WithClock(clk))
	if err != nil {
		return fmt.Errorf("job queue: %w", err)
	}

	// a job is enqueued right after the photo row commits, so reads must not lag behind on a replica
	processor := media.NewProcessor(
		mediapg.NewPrimaryPhotoReader(rt.pool),
		mediapg.NewPostgresPhotoWriter(rt.pool),
		blobs,
		transform.NewImagingTransformer(
			transform.WithMaxBytes(cfg.Media.MaxUploadBytes),
			transform.WithJPEGQuality(cfg.Worker.JPEGQuality),
		),
		newBus(rt),
		clk,
	)

	var opts []mediaworker.Option
	if metrics, err := telemetry.NewWorkerMetrics(cfg.Otel.ServiceNameFor(telemetry.RoleWorker), cfg.Queue.Name); err != nil {
		slog.WarnContext(ctx, "failed to initialize worker metrics, continuing without metrics", slog.Any("error", err))
	} else {
		opts = append(opts, mediaworker.WithMetrics(metrics))
	}
	consumer := mediaworker.NewConsumer(jobQueue, processor, cfg.Worker, opts...)

	// every replica runs the reaper, the lock keeps it to one at a time
	locker, err := redis.NewLocker(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis locker: %w", err)
	}
	rt.onClose(func(context.Context) error {
		locker.Close()
		return nil
	})
	reaper := locking.NewLockingTaskExecutor(locker, locking.WithNamePrefix(cfg.Redis.Namespace+":"), locking.WithClock(clk))
	go reaper.Every(ctx, cfg.Worker.ReapInterval, locking.LockConfiguration{
		Name:           "media.reap-leases",
		LockAtMostFor:  cfg.Worker.ReapInterval,
		LockAtLeastFor: cfg.Worker.ReapInterval / 2,
	}, consumer.Reap)

	consumer.Run(ctx)
	return nil
}
