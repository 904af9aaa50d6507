/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package api

import (
	"errors"
)

// Error codes.
const (
	ErrorCodeUnspecifiedError = "ErrorUnspecifiedError"
	ErrorCodeBadRequest       = "ErrorBadRequest"
	ErrorCodeNotSupported     = "ErrorNotSupported"
	ErrorCodeInvalidState     = "ErrorInvalidState"
	ErrorCodeOrderingViolated = "ErrorOrderingViolation"
	ErrorCodeQuotaExceeded    = "ErrorQuotaExceeded"
	ErrorCodeDetached         = "ErrorDetached"
	ErrorCodeTooLarge         = "ErrorRequestEntityTooLarge"
)

// Errors which select the HTTP status of an error response.
var (
	ErrNotFound             = errors.New("not found")
	ErrBadRequest           = errors.New("bad request")
	ErrConflict             = errors.New("conflict")
	ErrGone                 = errors.New("gone")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrTooLarge             = errors.New("request entity too large")
	ErrUnavailable          = errors.New("service unavailable")
)
