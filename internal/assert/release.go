//go:build !debug

/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package assert

// Enabled is true when built with the debug tag.
const Enabled = false
