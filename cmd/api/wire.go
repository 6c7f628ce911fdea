package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/echospot/echospot/internal/api"
	"github.com/echospot/echospot/internal/badge"
	"github.com/echospot/echospot/internal/config"
	"github.com/echospot/echospot/internal/db"
	"github.com/echospot/echospot/internal/discovery"
	"github.com/echospot/echospot/internal/health"
	"github.com/echospot/echospot/internal/idempotency"
	"github.com/echospot/echospot/internal/image"
	"github.com/echospot/echospot/internal/ingest"
	"github.com/echospot/echospot/internal/jobs"
	"github.com/echospot/echospot/internal/middleware"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/summary"
	"github.com/echospot/echospot/internal/transcribe"
	"github.com/echospot/echospot/internal/translate"
	"github.com/echospot/echospot/internal/upload"
	"github.com/echospot/echospot/internal/user"
)

const serviceName = "echospot-api"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is the assembled server: its handler plus everything that must be
// released on shutdown.
type app struct {
	handler   http.Handler
	discovery *discovery.Service
	closers   []func(context.Context) error
}

// Close waits for detached view updates, then releases resources in reverse
// order of acquisition.
func (a *app) Close(ctx context.Context) error {
	if a.discovery != nil {
		a.discovery.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// repositories are the persistence backends selected by STORE_DRIVER.
type repositories struct {
	spots  spot.Repository
	users  user.Repository
	badges badge.Repository
}

// newApp wires stores, providers and handlers from cfg. On error every
// resource opened so far is released.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	checkers := map[string]api.HealthChecker{}

	repos, err := a.openRepositories(ctx, cfg, logger, checkers)
	if err != nil {
		return nil, err
	}

	// Redis backs pending summaries and rate limits; memory otherwise.
	var (
		summaries  summary.Store = summary.NewMemoryStore()
		limitStore middleware.RateLimitStore
		idemKeys   idempotency.Repository
	)
	httpMetrics := middleware.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	runner := jobs.NewRunner(jobMetrics, logger)
	a.closers = append(a.closers, func(context.Context) error {
		runner.Stop()
		return nil
	})
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		summaries = summary.NewRedisStore(client, "")
		limitStore = middleware.NewRedisRateLimitStore(client).WithMetrics(httpMetrics)
		idemKeys = idempotency.NewRedisRepository(client, idempotency.DefaultExpiry)
		checkers["redis"] = health.NewRedisChecker(client)
		logger.Info("redis configured")
	} else {
		memLimits := middleware.NewInMemoryRateLimitStore()
		limitStore = memLimits
		runner.Every(jobs.JobTypeRateLimitCleanup, 5*time.Minute, func(context.Context) error {
			memLimits.Cleanup()
			return nil
		})

		memKeys := idempotency.NewInMemoryRepository()
		idemKeys = memKeys
		runner.Every(jobs.JobTypeIdempotencyCleanup, time.Hour, func(ctx context.Context) error {
			_, err := idempotency.CleanupOldKeys(ctx, memKeys, idempotency.DefaultExpiry)
			return err
		})
	}

	// Object storage falls back to an in-process store serving no real URLs.
	var blobs upload.Store
	if cfg.S3Endpoint != "" {
		s3Store, err := upload.NewS3Store(upload.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create object store: %w", err)
		}
		blobs = s3Store
	} else {
		logger.Warn("S3_ENDPOINT not set, media is kept in memory")
		blobs = upload.NewMemoryStore(fmt.Sprintf("http://localhost:%d/media", cfg.Port))
	}

	deps := ingest.Deps{
		Blobs:     blobs,
		Summaries: summaries,
		Spots:     repos.spots,
		Logger:    logger,
	}

	var speaker transcribe.Speaker
	if cfg.WhisperURL != "" {
		whisper, err := transcribe.NewWhisperClient(transcribe.WhisperConfig{BaseURL: cfg.WhisperURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create whisper client: %w", err)
		}
		deps.Transcriber = whisper
		speaker = whisper
		checkers["whisper"] = health.NewHTTPChecker("whisper", cfg.WhisperURL)
	} else {
		logger.Warn("WHISPER_URL not set, spots are stored without transcripts and captions cannot be spoken")
	}

	if cfg.AssemblyAIAPIKey != "" {
		assembly, err := transcribe.NewAssemblyAIClient(transcribe.AssemblyAIConfig{
			BaseURL:      cfg.AssemblyAIURL,
			APIKey:       cfg.AssemblyAIAPIKey,
			PollInterval: cfg.TranscriptPollInterval,
			MaxWait:      cfg.TranscriptMaxWait,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create assemblyai client: %w", err)
		}
		deps.ChapterTranscriber = assembly
	}

	if cfg.OpenAIAPIKey != "" {
		translator, err := translate.NewOpenAIProvider(translate.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create translation provider: %w", err)
		}
		deps.Translator = translator
	} else {
		logger.Warn("OPENAI_API_KEY not set, captions fall back to placeholders")
	}

	if cfg.SanitizeImages {
		deps.Sanitizer = image.NewVipsSanitizer(image.DefaultConfig())
	}

	policy, err := translate.ParsePolicy(cfg.TranslationPolicy)
	if err != nil {
		return nil, err
	}

	counter := badge.NewCounter(repos.badges, repos.spots, repos.users, cfg.BadgeAward)
	deps.Counter = counter

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := httpMetrics.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}
	if err := jobMetrics.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register job metrics: %w", err)
	}
	deps.Metrics = ingest.NewMetrics()
	if err := deps.Metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register ingest metrics: %w", err)
	}

	pipeline, err := ingest.NewPipeline(deps, ingest.Config{
		AudioBucket:    cfg.AudioBucket,
		ImageBucket:    cfg.ImageBucket,
		MaxAudioBytes:  cfg.MaxUploadBytes(),
		MaxImageBytes:  cfg.MaxUploadBytes(),
		Policy:         policy,
		SanitizeImages: cfg.SanitizeImages,
		SummaryTTL:     cfg.SummaryTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest pipeline: %w", err)
	}

	a.discovery = discovery.NewService(repos.spots, repos.users, counter, discovery.Config{
		DefaultRadiusMeters: cfg.NearbyRadiusMeters,
		MatchTolerance:      cfg.GeoMatchTolerance,
	}, logger)
	if speaker != nil {
		a.discovery.WithSpeaker(speaker)
	}

	submitLimit := middleware.DefaultSubmitLimit()
	submitLimit.RequestsPerWindow = cfg.RateLimitSubmitPerMinute

	a.handler = api.NewRouter(api.RouterConfig{
		Spots:          api.NewSpotHandlers(pipeline, cfg.MaxUploadBytes()),
		Discovery:      api.NewDiscoveryHandlers(a.discovery),
		Health:         api.NewHealthHandlers(api.HealthHandlersConfig{Checkers: checkers}),
		Logger:         logger,
		Metrics:        httpMetrics,
		Gatherer:       registry,
		Tracing:        cfg.TracingEnabled,
		ServiceName:    serviceName,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitStore: limitStore,
		SubmitLimit:    submitLimit,
		ReadLimit:      middleware.DefaultReadLimit(),
		Idempotency:    idemKeys,
	})

	return a, nil
}

// openRepositories connects the backend named by cfg.StoreDriver and
// registers its health checker.
func (a *app) openRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger, checkers map[string]api.HealthChecker) (repositories, error) {
	switch cfg.StoreDriver {
	case db.DriverPostgres:
		conn, err := db.OpenPostgres(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
		if err != nil {
			return repositories{}, err
		}
		a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
		checkers["database"] = health.NewDBChecker(conn)
		logger.Info("using postgres store")
		return repositories{
			spots:  spot.NewPostgresRepository(conn, logger),
			users:  user.NewPostgresRepository(conn, logger),
			badges: badge.NewPostgresRepository(conn, logger),
		}, nil

	case db.DriverMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return repositories{}, err
		}
		a.closers = append(a.closers, client.Disconnect)
		checkers["database"] = health.NewMongoChecker(client)

		spots := spot.NewMongoRepository(database, logger)
		if err := spots.EnsureIndexes(ctx); err != nil {
			return repositories{}, fmt.Errorf("failed to create spot indexes: %w", err)
		}
		logger.Info("using mongo store", "database", cfg.MongoDatabase)
		return repositories{
			spots:  spots,
			users:  user.NewMongoRepository(database, logger),
			badges: badge.NewMongoRepository(database, logger),
		}, nil

	case db.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return repositories{
			spots:  spot.NewInMemoryRepository(),
			users:  user.NewInMemoryRepository(),
			badges: badge.NewInMemoryRepository(),
		}, nil

	default:
		return repositories{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
