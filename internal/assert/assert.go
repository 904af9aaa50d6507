/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package assert provides internal invariant checks. Failing checks panic in
// builds with the debug tag and are reported as false otherwise, so callers
// can skip the offending operation.
package assert

import (
	"fmt"
)

// That reports whether cond holds. In debug builds a false cond panics with
// the formatted message.
func That(cond bool, format string, args ...interface{}) bool {
	if !cond && Enabled {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
	return cond
}

// NotReached marks code which must never execute.
func NotReached(format string, args ...interface{}) {
	That(false, format, args...)
}
