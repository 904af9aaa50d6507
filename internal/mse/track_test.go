/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stash.kopano.io/kwm/kwmmse/internal/trackstate"
)

type recordingListener struct {
	calls []bool
}

func (l *recordingListener) SelectedChanged(track *TrackPrivate, selected bool) {
	l.calls = append(l.calls, selected)
}

func TestSetSelectedNotifiesOnce(t *testing.T) {
	registry := newListenerRegistry()
	listener := &recordingListener{}
	track := newTrackPrivate(registry, TrackInfo{ID: "1", Type: trackstate.TypeVideo, Kind: trackstate.KindMain})
	track.SetListener(registry.register(listener))

	track.SetSelected(true)
	track.SetSelected(true)
	assert.Equal(t, []bool{true}, listener.calls)
	assert.True(t, track.Selected())

	track.SetSelected(false)
	track.SetSelected(false)
	assert.Equal(t, []bool{true, false}, listener.calls)
}

func TestSetListenerReplaces(t *testing.T) {
	registry := newListenerRegistry()
	first := &recordingListener{}
	second := &recordingListener{}
	track := newTrackPrivate(registry, TrackInfo{ID: "1", Type: trackstate.TypeAudio})

	track.SetListener(registry.register(first))
	track.SetListener(registry.register(second))
	track.SetSelected(true)

	assert.Empty(t, first.calls)
	assert.Equal(t, []bool{true}, second.calls)
}

func TestSetSelectedWithoutListener(t *testing.T) {
	track := newTrackPrivate(newListenerRegistry(), TrackInfo{Type: trackstate.TypeText, Kind: trackstate.KindCaptions})

	track.SetSelected(true)
	assert.True(t, track.Selected())
	assert.NotEmpty(t, track.ID())
	assert.Equal(t, trackstate.KindCaptions, track.Kind())
}

func TestTrackAttributes(t *testing.T) {
	track := newTrackPrivate(newListenerRegistry(), TrackInfo{
		ID:       "7",
		Type:     trackstate.TypeAudio,
		Kind:     trackstate.KindCommentary,
		Codec:    "opus",
		Language: "de",
		Label:    "Kommentar",
		Selected: true,
	})

	assert.Equal(t, "7", track.ID())
	assert.Equal(t, trackstate.TypeAudio, track.Type())
	assert.Equal(t, trackstate.KindCommentary, track.Kind())
	assert.Equal(t, "opus", track.Codec())
	assert.Equal(t, "de", track.Language())
	assert.Equal(t, "Kommentar", track.Label())
	// Selection is only ever changed through SetSelected.
	assert.False(t, track.Selected())
}
