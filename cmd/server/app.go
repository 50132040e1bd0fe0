package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/internal/migrations"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/service"
	"github.com/maheshrc27/tweetflow/pkg/oauth1"
)

// app holds everything the commands share. Redis-backed parts are wired by serve only.
type app struct {
	cfg *config.Config
	db  *sql.DB

	scheduledRepo repository.ScheduledPostRepository
	publishedRepo repository.PublishedPostRepository
	apiKeyRepo    repository.ApiKeyRepository

	twitter    service.TwitterService
	duplicates service.DuplicateService
	publisher  service.PublishService
	reconciler *service.ScheduleReconciler
	posts      service.PostService
	apiKeys    service.ApiKeyService
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.LoadConfig()

	signer, err := oauth1.NewSigner(cfg.OAuthCredentials())
	if err != nil {
		return nil, fmt.Errorf("platform credentials: %w", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	a := &app{
		cfg:           cfg,
		db:            db,
		scheduledRepo: repository.NewScheduledPostRepository(db),
		publishedRepo: repository.NewPublishedPostRepository(db),
		apiKeyRepo:    repository.NewApiKeyRepository(db),
	}

	platform := service.NewPlatformClient(*cfg, signer)
	a.twitter = service.NewTwitterService(platform)
	media := service.NewMediaService(platform)
	a.duplicates = service.NewDuplicateService(a.publishedRepo)
	a.publisher = service.NewPublishService(media, a.twitter, a.duplicates, cfg.Scheduler.DuplicateWindowHours)
	a.reconciler = service.NewScheduleReconciler(*cfg, a.scheduledRepo, a.publishedRepo, a.publisher)
	a.apiKeys = service.NewApiKeyService(a.apiKeyRepo)

	var storage service.ObjectStorage
	if cfg.R2.AccountID != "" && cfg.R2.BucketName != "" {
		r2, err := service.NewR2Service(ctx, *cfg)
		if err != nil {
			slog.Warn("media storage disabled", "error", err)
		} else {
			storage = r2
		}
	}
	a.posts = service.NewPostService(db, a.scheduledRepo, a.publishedRepo, storage, cfg.Scheduler.DefaultMaxRetries)

	return a, nil
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}
