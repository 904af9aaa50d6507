/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"errors"
)

// Errors returned by media source operations. Failed operations leave the
// media source state and its collections unchanged.
var (
	ErrInvalidState      = errors.New("invalid state")
	ErrNotSupported      = errors.New("not supported")
	ErrOrderingViolation = errors.New("ordering violation")
	ErrDetached          = errors.New("detached")
	ErrQuotaExceeded     = errors.New("quota exceeded")
)
