/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package bpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsEmptyBuffer(t *testing.T) {
	b := Get()
	b.WriteString("segment")
	Put(b)

	for i := 0; i < 10; i++ {
		b = Get()
		assert.Zero(t, b.Len())
		Put(b)
	}
}

func TestPutDropsLargeBuffers(t *testing.T) {
	b := Get()
	b.Grow(MaxRetainedSize + 1)
	b.WriteByte(1)
	Put(b)

	// The large buffer kept its content since it was not reset for reuse.
	assert.Equal(t, 1, b.Len())
}
