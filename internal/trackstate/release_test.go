//go:build !debug

/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package trackstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnknownValuesInReleaseBuild(t *testing.T) {
	assert.Equal(t, "", Kind(99).String())
	assert.Equal(t, "", FacingMode(42).String())
	assert.Equal(t, "", SourceType(-1).String())
	assert.Equal(t, "", Type(0).String())
}
