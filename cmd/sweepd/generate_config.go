// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const configTemplate = `# sweepd configuration

# Address the HTTP server binds to.
host = "0.0.0.0"
port = 7733

# Base URL when served behind a reverse proxy subpath, e.g. "/sweepd/".
baseUrl = "/"

# Log level: TRACE, DEBUG, INFO, WARN, ERROR.
logLevel = "INFO"
# Optional log file; rotation keeps logMaxSize MB and logMaxBackups files.
#logPath = "/config/logs/sweepd.log"
#logMaxSize = 50
#logMaxBackups = 3

# Where the sqlite database lives. Defaults next to this file.
#dataDir = "/config"

# Path to the czkawka_cli binary.
enginePath = "/usr/local/bin/czkawka_cli"

# All scan targets and disposition operations are confined to this tree.
storageRoot = "/storage"

# Trashed files are moved here with restore metadata.
trashDir = "/config/trash"

# Directories preselected in new scans.
defaultDirectories = ["/storage"]

# Exclusion patterns added to every scan on top of the built-in set.
defaultExclusions = []
`

func RunGenerateConfigCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "generate-config [path]",
		Short: "Write a commented default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, "config.toml")
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return errors.New(path + " already exists, use --force to overwrite")
				}
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
				return err
			}

			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
