/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package utils

import (
	"github.com/rogpeppe/fastuuid"
)

var guidGenerator = fastuuid.MustNewGenerator()

// NewRandomGUID returns a new unique identifier string.
func NewRandomGUID() string {
	return guidGenerator.Hex128()
}
