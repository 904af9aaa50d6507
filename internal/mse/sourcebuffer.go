/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmmse/internal/events"
	"stash.kopano.io/kwm/kwmmse/internal/utils"
)

// Sink is the media pipeline side of source buffers. Its methods are called
// on the consumer context and must not block.
type Sink interface {
	// Append hands data to the pipeline. Completion is reported back with
	// the same generation through ReportAppendComplete.
	Append(buffer *SourceBuffer, generation uint64, data []byte) error
	// Abort cancels the pending append of the buffer.
	Abort(buffer *SourceBuffer)
	// RemovedFromMediaSource releases pipeline resources of the buffer.
	RemovedFromMediaSource(buffer *SourceBuffer)
}

// AppendResult is the outcome of an append reported by the pipeline.
type AppendResult int

// Append results.
const (
	AppendSucceeded AppendResult = iota
	AppendParsingFailed
	AppendReadStreamFailed
)

func (r AppendResult) String() string {
	switch r {
	case AppendSucceeded:
		return "succeeded"
	case AppendParsingFailed:
		return "parsing-failed"
	case AppendReadStreamFailed:
		return "read-stream-failed"
	default:
		return "unknown"
	}
}

// SourceBuffer is one media stream of a media source. All state is owned by
// the consumer context of its media source.
type SourceBuffer struct {
	id          string
	contentType ContentType
	source      *MediaSource
	logger      logrus.FieldLogger

	listener string

	tracks      []*TrackPrivate
	initialized bool
	playback    PlaybackState

	updating    bool
	generation  uint64
	appended    uint64
	errorStatus EndOfStreamStatus
	detached    bool
}

func newSourceBuffer(source *MediaSource, contentType ContentType) *SourceBuffer {
	id := utils.NewRandomGUID()
	return &SourceBuffer{
		id:          id,
		contentType: contentType,
		source:      source,
		logger:      source.logger.WithField("sourcebuffer", id),
	}
}

// ID returns the buffer's id.
func (b *SourceBuffer) ID() string {
	return b.id
}

// ContentType returns the content type the buffer was created with.
func (b *SourceBuffer) ContentType() ContentType {
	return b.contentType
}

// MediaSource returns the media source which created the buffer.
func (b *SourceBuffer) MediaSource() *MediaSource {
	return b.source
}

// Tracks returns the buffer's tracks.
func (b *SourceBuffer) Tracks() []*TrackPrivate {
	tracks := make([]*TrackPrivate, len(b.tracks))
	copy(tracks, b.tracks)
	return tracks
}

// Track returns the track with the provided id.
func (b *SourceBuffer) Track(id string) (*TrackPrivate, bool) {
	for _, track := range b.tracks {
		if track.id == id {
			return track, true
		}
	}
	return nil, false
}

// Updating reports whether an append is in progress.
func (b *SourceBuffer) Updating() bool {
	return b.updating
}

// Generation returns the generation of the current or last append.
func (b *SourceBuffer) Generation() uint64 {
	return b.generation
}

// AppendedBytes returns the number of bytes successfully appended.
func (b *SourceBuffer) AppendedBytes() uint64 {
	return b.appended
}

// Initialized reports whether an initialization segment was received.
func (b *SourceBuffer) Initialized() bool {
	return b.initialized
}

// PlaybackState returns the readiness last reported by the pipeline.
func (b *SourceBuffer) PlaybackState() PlaybackState {
	return b.playback
}

// ErrorStatus returns the end of stream error which aborted the buffer.
func (b *SourceBuffer) ErrorStatus() EndOfStreamStatus {
	return b.errorStatus
}

// Detached reports whether the buffer was removed from its media source.
func (b *SourceBuffer) Detached() bool {
	return b.detached
}

// Active reports whether the buffer has a selected track.
func (b *SourceBuffer) Active() bool {
	for _, track := range b.tracks {
		if track.selected {
			return true
		}
	}
	return false
}

// SelectedChanged implements TrackListener.
func (b *SourceBuffer) SelectedChanged(track *TrackPrivate, selected bool) {
	if b.detached {
		return
	}
	b.logger.WithFields(logrus.Fields{
		"track":    track.id,
		"selected": selected,
	}).Debugln("track selection changed")
	b.source.outbox.Schedule(events.KindTrackSelectionChanged, b.id)
	b.source.trackSelectionChanged(b, track, selected)
}

// abort cancels a pending append and reports whether one was pending.
func (b *SourceBuffer) abort() bool {
	if !b.updating {
		return false
	}
	b.updating = false
	b.source.sink.Abort(b)
	b.generation++
	return true
}

func (b *SourceBuffer) release() {
	b.abort()
	b.detached = true
	for _, track := range b.tracks {
		track.SetListener("")
	}
	b.source.listeners.unregister(b.listener)
	b.source.sink.RemovedFromMediaSource(b)
}
