/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package version

var (
	// Version specifies the version string of this build. Set via ldflags.
	Version = "0.0.0-dev"
	// BuildDate specifies the build date. Set via ldflags.
	BuildDate = "0000000"
)
