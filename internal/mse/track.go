/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"github.com/orcaman/concurrent-map"

	"stash.kopano.io/kwm/kwmmse/internal/assert"
	"stash.kopano.io/kwm/kwmmse/internal/trackstate"
	"stash.kopano.io/kwm/kwmmse/internal/utils"
)

// TrackInfo describes a track found in an initialization segment.
type TrackInfo struct {
	ID       string
	Type     trackstate.Type
	Kind     trackstate.Kind
	Codec    string
	Language string
	Label    string
	Selected bool
}

// TrackListener is notified when the selection of a track changes.
type TrackListener interface {
	SelectedChanged(track *TrackPrivate, selected bool)
}

// listenerRegistry maps listener handles to listeners. Tracks hold handles
// instead of listener references, so a track never keeps its listener alive.
type listenerRegistry struct {
	listeners cmap.ConcurrentMap
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{
		listeners: cmap.New(),
	}
}

func (r *listenerRegistry) register(listener TrackListener) string {
	handle := utils.NewRandomGUID()
	r.listeners.Set(handle, listener)
	return handle
}

func (r *listenerRegistry) unregister(handle string) {
	r.listeners.Remove(handle)
}

func (r *listenerRegistry) lookup(handle string) (TrackListener, bool) {
	if record, ok := r.listeners.Get(handle); ok {
		return record.(TrackListener), true
	}
	return nil, false
}

// TrackPrivate is the internal description of one media track. Its selection
// is changed by the coordinator only.
type TrackPrivate struct {
	id       string
	kind     trackstate.Kind
	typ      trackstate.Type
	codec    string
	language string
	label    string

	selected bool

	registry *listenerRegistry
	listener string
}

func newTrackPrivate(registry *listenerRegistry, info TrackInfo) *TrackPrivate {
	id := info.ID
	if id == "" {
		id = utils.NewRandomGUID()
	}
	return &TrackPrivate{
		id:       id,
		kind:     info.Kind,
		typ:      info.Type,
		codec:    info.Codec,
		language: info.Language,
		label:    info.Label,

		registry: registry,
	}
}

// ID returns the track's id.
func (t *TrackPrivate) ID() string {
	return t.id
}

// Kind returns the track's kind.
func (t *TrackPrivate) Kind() trackstate.Kind {
	return t.kind
}

// Type returns the track's media type.
func (t *TrackPrivate) Type() trackstate.Type {
	return t.typ
}

// Codec returns the codec string of the track.
func (t *TrackPrivate) Codec() string {
	return t.codec
}

// Language returns the BCP 47 language tag of the track, if any.
func (t *TrackPrivate) Language() string {
	return t.language
}

// Label returns the track's label, if any.
func (t *TrackPrivate) Label() string {
	return t.label
}

// Selected returns whether the track is selected.
func (t *TrackPrivate) Selected() bool {
	return t.selected
}

// SetListener sets the listener handle. The empty handle clears it.
func (t *TrackPrivate) SetListener(handle string) {
	t.listener = handle
}

// SetSelected changes the selection and notifies the listener synchronously.
// Setting the current value does nothing.
func (t *TrackPrivate) SetSelected(selected bool) {
	if t.selected == selected {
		return
	}
	t.selected = selected

	if t.listener == "" {
		return
	}
	listener, ok := t.registry.lookup(t.listener)
	if !assert.That(ok, "listener %s of track %s is gone", t.listener, t.id) {
		return
	}
	listener.SelectedChanged(t, selected)
}
