// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sweepd",
		Short: "Scan orchestration service for the czkawka duplicate detection engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Running without a subcommand starts the server.
			return runServe(cmd, args)
		},
	}
	rootCmd.PersistentFlags().String("config", "", "path to configuration file or directory")

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
