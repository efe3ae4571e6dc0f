package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	s3store "aboba/core/media/adapters/blob/s3"
	mediapg "aboba/core/media/adapters/persistence/pg"
	"aboba/core/media/adapters/queue"
	mediarest "aboba/core/media/adapters/rest"
	media "aboba/core/media/domain"
	profilepg "aboba/core/profile/adapters/persistence/pg"
	profilerest "aboba/core/profile/adapters/rest"
	profile "aboba/core/profile/domain"
	"aboba/modules/auth"
	"aboba/modules/clock"
	"aboba/modules/db/redis"
	"aboba/modules/db/redis/counter"
	"aboba/modules/jobs/redisqueue"
	"aboba/modules/middleware"
	"aboba/modules/middleware/ratelimit"
	"aboba/modules/oapi"
	rl "aboba/modules/ratelimit"
	"aboba/modules/server"
	"aboba/modules/telemetry"

	"github.com/spf13/cobra"
)

func apiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAPI(cmd.Context())
		},
	}
}

// manual dependency injections, imo there's no need to over-engineer with DI frameworks like Fx or Wire
func runAPI(ctx context.Context) error {
	rt, err := bootstrap(ctx, telemetry.RoleAPI)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	cfg := rt.cfg
	clk := clock.RealClockProvider()

	// --- infrastructure ---

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

	// the ownership check runs a prepared statement on the primary
	profileReader, err := profilepg.NewPostgresProfileReader(ctx, rt.pool)
	if err != nil {
		return fmt.Errorf("profile reader initialization error: %w", err)
	}
	profileWriter := profilepg.NewPostgresProfileWriter(rt.pool)

	// --- application layer ---

	mediaApp := media.NewApp(
		profileReader,
		mediapg.NewPostgresPhotoReader(rt.pool),
		mediapg.NewPostgresPhotoWriter(rt.pool),
		blobs,
		queue.NewProcessPhotoQueue(jobQueue),
		media.WithConfig(cfg.Media),
		media.WithClock(clk),
	)
	profileApp := profile.NewApp(profileReader, profileWriter, newBus(rt), profile.WithClock(clk))

	// --- transport ---

	rateLimit := cfg.RateLimit.OrDefaults()
	slog.Debug("app rate limit config", slog.Any("rate_limit_config", rateLimit))
	rtp, err := ratelimit.ParsePolicy(
		rl.SlidingWindowFactory(clk, counter.NewRedisCounterStore(redisClient, cfg.Redis.RateLimitPrefix()), cfg.Env),
		&rateLimit,
		ratelimit.PatternRouteInfo,
		map[ratelimit.KeyStrategyId]ratelimit.KeyFunc{
			ratelimit.RemoteIpKeyStrategy:    ratelimit.RemoteIpKeyFunc,
			ratelimit.SessionKeyStrategy:     ratelimit.SessionKeyFunc(auth.CookieName),
			ratelimit.SessionOrIpKeyStrategy: ratelimit.SessionOrIpKeyFunc(auth.CookieName),
		},
	)
	if err != nil {
		return fmt.Errorf("ratelimit config not properly parsed: %w", err)
	}

	// Initialize HTTP metrics for middleware-based instrumentation
	httpMetrics, err := telemetry.NewHTTPMetrics(cfg.Otel.ServiceNameFor(telemetry.RoleAPI))
	if err != nil {
		slog.WarnContext(ctx, "failed to initialize HTTP metrics, continuing without metrics", slog.Any("error", err))
		httpMetrics = nil
	}

	session := auth.Session(auth.NewPostgresSessionStore(rt.pool), clk)
	limiter := ratelimit.NewRateLimitMiddleware(rtp)
	validate := func(prefix string) func(http.Handler) http.Handler {
		return middleware.OpenAPIValidation(oapi.FS, oapi.Path,
			middleware.ProblemValidationErrorHandler(prefix),
			middleware.ProblemSpecLoadErrorHandler,
		)
	}

	mediaRoutes := mediarest.NewRoutes(mediarest.NewMediaAPI(mediaApp),
		mediarest.WithRouteMiddlewares(limiter, session, validate("media")),
	)
	health := profilerest.NewHealthAPI(
		profilerest.WithCheck("db", rt.pool.HealthCheck),
		profilerest.WithCheck("redis", redis.HealthCheck(redisClient)),
		profilerest.WithCheck("s3", blobs.HealthCheck),
	)
	profileRoutes := profilerest.NewRoutes(profilerest.NewProfileAPI(profileApp), health,
		profilerest.WithRouteMiddlewares(limiter, session, validate("profiles")),
	)

	srv, err := server.New(
		cfg.HTTP.Host, cfg.HTTP.Port,
		server.WithReadTimeout(cfg.HTTP.ReadTimeout),
		server.WithWriteTimeout(cfg.HTTP.WriteTimeout),
		server.WithServices(mediaRoutes, profileRoutes),
		server.WithGlobalMiddlewares(
			middleware.Telemetry(httpMetrics),
			middleware.Recovery(middleware.ProblemPanicHandler),
		),
	)
	if err != nil {
		return fmt.Errorf("init server error: %w", err)
	}

	return srv.Run(ctx)
}
