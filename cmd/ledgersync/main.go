package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ledgersync/app/controllers"
	"github.com/ManuelReschke/ledgersync/app/repository"
	"github.com/ManuelReschke/ledgersync/internal/pkg/accounting"
	"github.com/ManuelReschke/ledgersync/internal/pkg/apidocs"
	"github.com/ManuelReschke/ledgersync/internal/pkg/archive"
	"github.com/ManuelReschke/ledgersync/internal/pkg/cache"
	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
	"github.com/ManuelReschke/ledgersync/internal/pkg/database"
	"github.com/ManuelReschke/ledgersync/internal/pkg/entitysync"
	"github.com/ManuelReschke/ledgersync/internal/pkg/env"
	"github.com/ManuelReschke/ledgersync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ledgersync/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ledgersync/internal/pkg/router"
	"github.com/ManuelReschke/ledgersync/internal/pkg/webhook"
)

const (
	// Change notification bodies are small; this leaves room for batched
	// envelopes without accepting arbitrary uploads.
	bodyLimit       = 4 << 20
	shutdownTimeout = 30 * time.Second
)

// Application holds the HTTP app and everything that needs an orderly stop.
type Application struct {
	App       *fiber.App
	Config    *config.Config
	submitter *webhook.DetachedSubmitter
	manager   *jobqueue.Manager
}

func main() {
	application, err := NewApplication()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		cfg := application.Config
		errCh <- application.App.Listen(fmt.Sprintf("%s:%s", cfg.Host, cfg.Port))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	application.Shutdown()
}

func NewApplication() (*Application, error) {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := database.SetupDatabase(cfg.Database); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	cache.SetupCache(cfg.Cache)
	redisUp := cache.Ping(2*time.Second) == nil

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	// ARCHIVE (optional)
	var archiver webhook.PayloadArchiver
	if cfg.Archive.Enabled {
		store, err := archive.NewStore(context.Background(), cfg.Archive, !cfg.IsProd())
		if err != nil {
			log.Errorf("[Archive] disabled: %v", err)
		} else {
			archiver = store
		}
	}

	// PIPELINE
	client := accounting.NewClient(cfg.Accounting)
	if !client.Configured() {
		log.Warn("[EntitySync] accounting API credentials missing, entity sync will be skipped")
	}
	registry := entitysync.NewDefaultRegistry(client, repos.Entity, cfg.Webhook.Source)

	var submitter webhook.Submitter = webhook.InlineSubmitter{Timeout: cfg.Webhook.SyncTimeout}
	var detached *webhook.DetachedSubmitter
	if cfg.Webhook.ProcessingMode == config.ProcessingModeBackground {
		detached = webhook.NewDetachedSubmitter(cfg.Webhook.BackgroundWorkers, cfg.Webhook.SyncTimeout)
		submitter = detached
	}

	supervisor := webhook.NewSupervisor(
		webhook.NewEventLog(repos.Delivery, archiver),
		registry,
		submitter,
		webhook.Options{
			Source:           cfg.Webhook.Source,
			VerifierToken:    cfg.Webhook.VerifierToken,
			StrictSignatures: cfg.StrictSignatures(),
		},
	)
	if cfg.Webhook.VerifierToken == "" {
		log.Warn("[Webhook] WEBHOOK_VERIFIER_TOKEN is empty, deliveries are accepted unverified with a warning")
	}

	// REDIS BACKED SERVICES
	var (
		counters    *counter.Counters
		manager     *jobqueue.Manager
		replayQueue controllers.ReplayQueue
		counterRead controllers.CounterStore
		limiterStor fiber.Storage
	)
	if redisUp {
		counters = counter.New(cache.GetClient())
		supervisor.WithRecorder(counters)
		counterRead = counters

		queue := jobqueue.NewQueue(cache.GetClient(), supervisor, cfg.Queue.Workers)
		manager = jobqueue.NewManager(queue, supervisor.Events(), cfg.Queue.StuckDeliveryAge)
		jobqueue.SetManager(manager)
		manager.Start()
		replayQueue = queue

		limiterStor = router.NewLimiterStorage(cfg.Cache)
	} else {
		log.Warn("[Cache] Redis unavailable, counters, replay queue and shared rate limits are disabled")
	}

	// FIBER APP
	app := fiber.New(fiber.Config{
		AppName:   "ledgersync",
		BodyLimit: bodyLimit,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Use("/admin", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST",
	}))

	// SWAGGER / OPENAPI
	if root, err := apidocs.FindRoot("./", "../../", "../../../"); err != nil {
		log.Warnf("[Docs] %v", err)
	} else {
		docPath := filepath.Join(root, apidocs.RelativePath)
		if _, err := apidocs.Load(context.Background(), docPath); err != nil {
			log.Warnf("[Docs] %v", err)
		}
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: docPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Config:  cfg,
		Webhook: controllers.NewWebhookController(supervisor),
		Admin:   controllers.NewAdminDeliveryController(repos.Delivery, repos.Entity, replayQueue, counterRead),
		Health: controllers.NewHealthController(
			controllers.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
				return database.Ping(ctx, 2*time.Second)
			}},
			controllers.HealthCheck{Name: "cache", Check: func(ctx context.Context) error {
				return cache.Ping(2 * time.Second)
			}},
		),
		LimiterStorage: limiterStor,
	})

	log.Infof("ledgersync ready: env=%s signatures=%s processing=%s",
		cfg.AppEnv, cfg.Webhook.SignatureMode, cfg.Webhook.ProcessingMode)

	return &Application{
		App:       app,
		Config:    cfg,
		submitter: detached,
		manager:   manager,
	}, nil
}

// Shutdown stops accepting requests, lets detached syncs finalize their
// deliveries and then stops the job queue.
func (a *Application) Shutdown() {
	if err := a.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("http shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a.submitter != nil {
		if err := a.submitter.Close(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("[Webhook] background syncs still running at shutdown, the stuck sweeper will replay them")
			} else {
				log.Errorf("[Webhook] submitter close: %v", err)
			}
		}
	}
	if a.manager != nil {
		a.manager.Stop()
	}
	log.Info("shutdown complete")
}
