/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package kwmmse provides the Kopano media source daemon which coordinates
// source buffers and tracks between a media pipeline and its consumers.
package kwmmse
