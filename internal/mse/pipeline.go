/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmmse/internal/events"
	"stash.kopano.io/kwm/kwmmse/internal/trackstate"
)

// Pipeline side of the media source. These methods can be called from any
// goroutine, they marshal their request onto the consumer context and wait
// for its result.

// DeclareStream adds a source buffer for a stream found by the pipeline.
func (ms *MediaSource) DeclareStream(ctx context.Context, contentType string) (*SourceBuffer, error) {
	var b *SourceBuffer
	err := ms.Do(ctx, func() error {
		var addErr error
		b, addErr = ms.AddSourceBuffer(contentType)
		return addErr
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ReportDuration reports the stream duration in seconds.
func (ms *MediaSource) ReportDuration(ctx context.Context, seconds float64) error {
	return ms.Do(ctx, func() error {
		return ms.SetDuration(seconds)
	})
}

// ReportEndOfStream reports the end of all streams.
func (ms *MediaSource) ReportEndOfStream(ctx context.Context, status EndOfStreamStatus) error {
	return ms.Do(ctx, func() error {
		return ms.MarkEndOfStream(status)
	})
}

// ReportResume reports that data is available again after an end of stream.
func (ms *MediaSource) ReportResume(ctx context.Context) error {
	return ms.Do(ctx, ms.UnmarkEndOfStream)
}

// ReportReadyState requests a ready state transition.
func (ms *MediaSource) ReportReadyState(ctx context.Context, state ReadyState) error {
	return ms.Do(ctx, func() error {
		return ms.SetReadyState(state)
	})
}

// ReportInitializationSegment reports the tracks found in an initialization
// segment of the buffer. Tracks already known by id are kept. The first
// video track is selected when no video track is selected, and the first
// audio track of a segment when no audio track is selected.
func (ms *MediaSource) ReportInitializationSegment(ctx context.Context, bufferID string, infos []TrackInfo) error {
	return ms.Do(ctx, func() error {
		b, ok := ms.sourceBuffers.Find(bufferID)
		if !ok {
			return fmt.Errorf("source buffer %s is not attached: %w", bufferID, ErrDetached)
		}
		ms.initializationSegmentReceived(b, infos)
		return nil
	})
}

func (ms *MediaSource) initializationSegmentReceived(b *SourceBuffer, infos []TrackInfo) {
	var created []*TrackPrivate
	var selections []bool
	for _, info := range infos {
		if info.ID != "" {
			if _, exists := b.Track(info.ID); exists {
				continue
			}
		}
		track := newTrackPrivate(ms.listeners, info)
		track.SetListener(b.listener)
		b.tracks = append(b.tracks, track)
		created = append(created, track)
		selections = append(selections, info.Selected)
	}
	b.initialized = true
	if b.playback < HaveMetadata {
		b.playback = HaveMetadata
		ms.outbox.Schedule(events.KindReadyStateChanged, b.id)
	}

	b.logger.WithFields(logrus.Fields{
		"tracks":  len(b.tracks),
		"created": len(created),
	}).Debugln("initialization segment received")

	for idx, track := range created {
		selected := selections[idx]
		if !selected {
			switch track.typ {
			case trackstate.TypeVideo:
				selected = !ms.hasSelectedTrack(trackstate.TypeVideo)
			case trackstate.TypeAudio:
				selected = !ms.hasSelectedTrack(trackstate.TypeAudio)
			}
		}
		if selected {
			track.SetSelected(true)
		}
	}
}

func (ms *MediaSource) hasSelectedTrack(typ trackstate.Type) bool {
	found := false
	ms.sourceBuffers.Each(func(_ int, b *SourceBuffer) bool {
		for _, track := range b.tracks {
			if track.typ == typ && track.selected {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// ReportAppendComplete finishes the append of the provided generation.
// Completions of aborted or superseded appends are ignored. A failed append
// ends the stream with a decode error.
func (ms *MediaSource) ReportAppendComplete(ctx context.Context, bufferID string, generation uint64, result AppendResult, size int) error {
	return ms.Do(ctx, func() error {
		b, ok := ms.sourceBuffers.Find(bufferID)
		if !ok {
			return fmt.Errorf("source buffer %s is not attached: %w", bufferID, ErrDetached)
		}
		if !b.updating || b.generation != generation {
			b.logger.WithFields(logrus.Fields{
				"generation": generation,
				"current":    b.generation,
			}).Debugln("ignoring stale append completion")
			return nil
		}

		b.updating = false
		ms.metrics.appendFinished(result.String())
		if result == AppendSucceeded {
			b.appended += uint64(size)
			ms.metrics.appended(size)
			return nil
		}

		b.logger.WithField("result", result.String()).Warnln("append failed")
		ms.outbox.Schedule(events.KindError, b.id)
		if ms.readyState == ReadyStateOpen {
			return ms.MarkEndOfStream(EndOfStreamDecodeError)
		}
		return nil
	})
}

// ReportBufferReadyState reports the decode readiness of the buffer.
func (ms *MediaSource) ReportBufferReadyState(ctx context.Context, bufferID string, state PlaybackState) error {
	return ms.Do(ctx, func() error {
		b, ok := ms.sourceBuffers.Find(bufferID)
		if !ok {
			return fmt.Errorf("source buffer %s is not attached: %w", bufferID, ErrDetached)
		}
		if b.playback == state {
			return nil
		}
		b.playback = state
		ms.outbox.Schedule(events.KindReadyStateChanged, b.id)
		return nil
	})
}
