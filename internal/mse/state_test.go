/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyStateKeywords(t *testing.T) {
	for _, state := range []ReadyState{ReadyStateClosed, ReadyStateOpen, ReadyStateEnded} {
		parsed, err := ParseReadyState(state.String())
		require.NoError(t, err)
		assert.Equal(t, state, parsed)
	}
	_, err := ParseReadyState("opened")
	assert.Error(t, err)
}

func TestEndOfStreamStatusKeywords(t *testing.T) {
	for _, status := range []EndOfStreamStatus{EndOfStreamNone, EndOfStreamNetworkError, EndOfStreamDecodeError} {
		parsed, err := ParseEndOfStreamStatus(status.String())
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}
	_, err := ParseEndOfStreamStatus("timeout")
	assert.Error(t, err)
}

func TestPlaybackStateOrder(t *testing.T) {
	assert.True(t, HaveNothing < HaveMetadata)
	assert.True(t, HaveFutureData < HaveEnoughData)
	text, err := HaveCurrentData.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "current-data", string(text))
}
