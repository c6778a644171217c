// Package app builds the long-lived services of a run and exposes the
// collect, ingest and full-pipeline modes driven by the CLI.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/clock/system"
	"github.com/JakeFAU/reddit-collector/internal/config"
	"github.com/JakeFAU/reddit-collector/internal/hash/sha256"
	"github.com/JakeFAU/reddit-collector/internal/id/uuid"
	memorypublisher "github.com/JakeFAU/reddit-collector/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/reddit-collector/internal/publisher/pubsub"
	"github.com/JakeFAU/reddit-collector/internal/reddit"
	"github.com/JakeFAU/reddit-collector/internal/redditapi"
	gcsstorage "github.com/JakeFAU/reddit-collector/internal/storage/gcs"
	localstorage "github.com/JakeFAU/reddit-collector/internal/storage/local"
	memorystorage "github.com/JakeFAU/reddit-collector/internal/storage/memory"
	pgstore "github.com/JakeFAU/reddit-collector/internal/storage/postgres"
	"github.com/JakeFAU/reddit-collector/internal/telemetry"
)

// RecordStore is the relational store used by ingestion.
type RecordStore interface {
	Ping(ctx context.Context) error
	UpsertAuthor(ctx context.Context, a reddit.Author) error
	UpsertSubmission(ctx context.Context, s reddit.Submission) error
	InsertComment(ctx context.Context, c reddit.Comment) (bool, error)
}

// clock is both the wall clock and the governor's sleeper.
type clock interface {
	reddit.Clock
	reddit.Sleeper
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	clock     clock
	ids       reddit.IDGenerator
	hasher    *sha256.Hasher
	blobs     reddit.BlobStore
	publisher reddit.Publisher
	status    *runStatus

	// Factories are replaced in tests.
	newAPI   func(ctx context.Context) (reddit.API, error)
	newStore func(ctx context.Context) (RecordStore, func(), error)

	storeMu sync.Mutex
	store   RecordStore

	gcs       *gcsstorage.BlobStore
	pubsub    *gcppublisher.Publisher
	telemetry *telemetry.Providers
}

// Build creates the application's dependencies. Remote API clients and the
// database pool are opened lazily by the mode that needs them.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
		hasher: sha256.New(),
		status: newRunStatus(),
	}
	a.newAPI = a.openAPI
	a.newStore = a.openStore

	logger.Info("Building application dependencies",
		zap.Strings("subreddits", cfg.Collection.Subreddits),
		zap.String("sort", cfg.Collection.Sort),
		zap.Int("max_in_flight", cfg.Scheduler.MaxInFlight),
		zap.String("artifacts_backend", cfg.Artifacts.Backend),
	)

	if cfg.Tracing.Enabled {
		providers, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Tracing.ServiceName,
			ProjectID:   cfg.Tracing.ProjectID,
		}, prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("telemetry init failed: %w", err)
		}
		a.telemetry = providers
	}

	if err := a.setupStorage(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Artifacts.Backend {
	case "gcs":
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Artifacts.GCSBucket}, a.logger.Named("gcs"))
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs, a.blobs = store, store
		a.logger.Info("Using GCS artifact backend", zap.String("bucket", a.cfg.Artifacts.GCSBucket))
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Artifacts.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = store
		a.logger.Info("Using local artifact backend", zap.String("path", a.cfg.Artifacts.LocalDir))
	default:
		a.blobs = memorystorage.NewBlobStore()
		a.logger.Info("Using in-memory artifact backend")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Debug("No Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub, a.publisher = pub, pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) openAPI(ctx context.Context) (reddit.API, error) {
	client, err := redditapi.New(ctx, redditapi.Config{
		BaseURL:           a.cfg.Reddit.BaseURL,
		TokenURL:          a.cfg.Reddit.TokenURL,
		ClientID:          a.cfg.Reddit.ClientID,
		ClientSecret:      a.cfg.Reddit.ClientSecret,
		UserAgent:         a.cfg.Reddit.UserAgent,
		Timeout:           a.cfg.RequestTimeout(),
		RequestsPerMinute: a.cfg.Reddit.RequestsPerMinute,
	}, a.logger.Named("redditapi"))
	if err != nil {
		return nil, fmt.Errorf("reddit client init failed: %w", err)
	}
	return client, nil
}

func (a *App) openStore(ctx context.Context) (RecordStore, func(), error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, nil, err
	}
	store, err := pgstore.NewRecordStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        int32(a.cfg.DB.MaxConns),
		MinConns:        int32(a.cfg.DB.MinConns),
		MaxConnLifetime: a.cfg.MaxConnLifetime(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record store init failed: %w", err)
	}
	if a.cfg.DB.Migrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		a.logger.Info("Database schema ensured")
	}
	return store, store.Close, nil
}

// Close releases clients and flushes telemetry and logs.
func (a *App) Close(ctx context.Context) {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("Pub/Sub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("GCS client close failed", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
