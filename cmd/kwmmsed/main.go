/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package main

import (
	"fmt"
	"os"

	"stash.kopano.io/kwm/kwmmse/cmd"
)

func main() {
	cmd.RootCmd.AddCommand(
		commandServe(),
		commandHealthcheck(),
		commandVersion(),
	)
	cmd.RootCmd.SilenceUsage = true

	if err := cmd.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
