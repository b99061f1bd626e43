// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweepd/sweepd/internal/api"
	"github.com/sweepd/sweepd/internal/buildinfo"
	"github.com/sweepd/sweepd/internal/config"
	"github.com/sweepd/sweepd/internal/database"
	"github.com/sweepd/sweepd/internal/engine"
	"github.com/sweepd/sweepd/internal/fileops"
	"github.com/sweepd/sweepd/internal/logger"
	"github.com/sweepd/sweepd/internal/metrics"
	"github.com/sweepd/sweepd/internal/models"
	"github.com/sweepd/sweepd/internal/scans"
	"github.com/sweepd/sweepd/internal/storage"
)

func RunServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sweepd server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath, _ = cmd.Root().PersistentFlags().GetString("config")
	}

	cfg, err := config.New(configPath, buildinfo.Version)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Config.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger.Setup(cfg.Config)

	log.Info().
		Str("version", buildinfo.Version).
		Str("commit", buildinfo.Commit).
		Msg("Starting sweepd")

	db, err := database.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	store := models.NewScanStore(db)
	broadcaster := scans.NewBroadcaster()
	runner := engine.NewRunner(cfg.Config.EnginePath)

	scanService := scans.NewService(store, runner, broadcaster, cfg)
	if err := scanService.Start(ctx); err != nil {
		return fmt.Errorf("start scan service: %w", err)
	}
	defer scanService.Stop()

	server := api.NewServer(&api.Dependencies{
		Config:      cfg,
		ScanService: scanService,
		Broadcaster: broadcaster,
		FileOps:     fileops.NewService(cfg.Config.StorageRoot, cfg.Config.TrashDir),
		Storage:     storage.NewService(cfg.Config.StorageRoot),
		Metrics:     metrics.NewManager(scanService),
	})

	return server.ListenAndServe(ctx)
}
