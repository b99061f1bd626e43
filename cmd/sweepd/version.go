// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/sweepd/sweepd/internal/buildinfo"
)

func RunVersionCommand() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outputJSON {
				out, err := buildinfo.JSON()
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			cmd.Println(buildinfo.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output version information as JSON")
	return cmd
}
