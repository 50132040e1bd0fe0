package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/tweetflow/internal/api/handlers"
	"github.com/maheshrc27/tweetflow/internal/api/middleware"
	job "github.com/maheshrc27/tweetflow/internal/jobs"
	"github.com/maheshrc27/tweetflow/internal/queue"
	"github.com/maheshrc27/tweetflow/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the reconcile schedule and the task worker",
		Run: func(cmd *cobra.Command, args []string) {
			serve(cmd)
		},
	}
}

func serve(cmd *cobra.Command) {
	a, err := newApp(cmd.Context())
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	cfg := a.cfg

	var (
		asynqClient *asynq.Client
		asynqServer *asynq.Server
		locker      *redislock.Client
		redisClient *redis.Client
	)
	if cfg.RedisURI != "" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		asynqClient = asynq.NewClient(redisConn)
		defer asynqClient.Close()

		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
		defer redisClient.Close()
		locker = redislock.New(redisClient)

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 1,
		})
	} else {
		slog.Warn("REDIS_URI is empty, running without task queue and tick lease")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		BodyLimit:    20 * 1024 * 1024, // 20 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	health := handlers.NewHealthHandler(a.db)
	app.Get("/health", health.Health)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, a.apiKeys)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	reconcile := handlers.NewReconcileHandler(a.reconciler, asynqClient)
	api.Post("/reconcile", reconcile.Reconcile)

	publish := handlers.NewPublishHandler(service.NewImmediatePublishService(a.publisher, a.publishedRepo))
	api.Post("/publish", publish.Publish)

	apiKeys := handlers.NewApiKeyHandler(a.apiKeys)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(a.posts)
	api.Post("/posts/create", post.CreatePost)
	api.Post("/posts/bulk", post.BulkCreate)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/update", post.UpdatePost)
	api.Post("/posts/remove", post.RemovePost)
	api.Post("/posts/retry", post.RetryPost)

	published := handlers.NewPublishedHandler(a.posts, a.duplicates)
	api.Get("/published", published.ListPublished)
	api.Post("/published/dedup", published.Deduplicate)

	// cron jobs
	reconcileJob := job.NewReconcileJob(a.reconciler, locker, cfg.ReconcileEvery())
	metricsJob := job.NewMetricsRefreshJob(a.publishedRepo, a.twitter, cfg.Scheduler.MetricsLookback)

	c := cron.New()
	if err := c.AddFunc(cfg.Scheduler.ReconcileInterval, reconcileJob.Tick); err != nil {
		log.Fatalf("Invalid RECONCILE_INTERVAL %q: %v", cfg.Scheduler.ReconcileInterval, err)
	}
	if err := c.AddFunc(cfg.Scheduler.MetricsInterval, metricsJob.RefreshMetrics); err != nil {
		log.Fatalf("Invalid METRICS_INTERVAL %q: %v", cfg.Scheduler.MetricsInterval, err)
	}
	c.Start()

	if asynqServer != nil {
		queueW := queue.NewQueue(a.reconciler)

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeReconcile, queueW.HandleReconcileTask)

		log.Println("Starting the Asynq server...")
		if err := asynqServer.Start(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, asynqServer, c, reconcileJob, a.db)
}

const tickDrainTimeout = time.Minute

// gracefulShutdown stops every source of work before closing the database, so
// a tick in flight can still record what it published.
func gracefulShutdown(app *fiber.App, worker *asynq.Server, c *cron.Cron, reconcileJob *job.ReconcileJob, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	if worker != nil {
		worker.Shutdown()
	}

	c.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), tickDrainTimeout)
	defer cancel()
	if err := reconcileJob.Stop(ctx); err != nil {
		log.Printf("Reconcile tick still running at shutdown: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
