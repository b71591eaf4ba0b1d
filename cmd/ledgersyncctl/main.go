package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ManuelReschke/ledgersync/app/repository"
	"github.com/ManuelReschke/ledgersync/internal/pkg/accounting"
	"github.com/ManuelReschke/ledgersync/internal/pkg/archive"
	"github.com/ManuelReschke/ledgersync/internal/pkg/cli"
	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
	"github.com/ManuelReschke/ledgersync/internal/pkg/database"
	"github.com/ManuelReschke/ledgersync/internal/pkg/entitysync"
	"github.com/ManuelReschke/ledgersync/internal/pkg/env"
	"github.com/ManuelReschke/ledgersync/internal/pkg/webhook"
)

func main() {
	env.SetupEnvFile()

	if err := cli.NewRootCommand(openBackend).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openBackend wires the same pipeline as the service, but always processes
// inline so a replay finishes before the command exits.
func openBackend(ctx context.Context) (*cli.Backend, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := database.SetupDatabase(cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	repos := repository.NewRepositories(database.GetDB())

	var archiver webhook.PayloadArchiver
	if cfg.Archive.Enabled {
		store, err := archive.NewStore(ctx, cfg.Archive, false)
		if err != nil {
			log.Printf("payload archive unavailable: %v", err)
		} else {
			archiver = store
		}
	}

	registry := entitysync.NewDefaultRegistry(accounting.NewClient(cfg.Accounting), repos.Entity, cfg.Webhook.Source)
	supervisor := webhook.NewSupervisor(
		webhook.NewEventLog(repos.Delivery, archiver),
		registry,
		webhook.InlineSubmitter{Timeout: cfg.Webhook.SyncTimeout},
		webhook.Options{
			Source:           cfg.Webhook.Source,
			VerifierToken:    cfg.Webhook.VerifierToken,
			StrictSignatures: cfg.StrictSignatures(),
		},
	)

	release := func() {
		if sqlDB, err := database.GetDB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return &cli.Backend{Deliveries: repos.Delivery, Replayer: supervisor}, release, nil
}
