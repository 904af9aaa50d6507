/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// RootCmd is the kwmmsed command, which on its own only prints usage.
var RootCmd = &cobra.Command{
	Use:   "kwmmsed",
	Short: "Media source extensions daemon",
	Long:  "kwmmsed keeps media sources and their source buffers in sync between an appending client and a media pipeline.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(2)
	},
}
