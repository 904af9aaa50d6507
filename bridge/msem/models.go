/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package msem

import (
	"time"

	"stash.kopano.io/kwm/kwmmse/internal/events"
	"stash.kopano.io/kwm/kwmmse/internal/mse"
)

// MediaSourceResource is the JSON representation of a media source. It must
// be built on the media source's consumer context.
type MediaSourceResource struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`

	ReadyState        mse.ReadyState        `json:"readyState"`
	Duration          *float64              `json:"duration,omitempty"`
	EndOfStreamStatus mse.EndOfStreamStatus `json:"endOfStreamStatus,omitempty"`
	PendingSeek       *float64              `json:"pendingSeek,omitempty"`
	PlaybackState     mse.PlaybackState     `json:"playbackState"`

	SourceBuffers       []string `json:"sourceBuffers"`
	ActiveSourceBuffers []string `json:"activeSourceBuffers"`
}

func newMediaSourceResource(record *Record) *MediaSourceResource {
	ms := record.source
	state := ms.State()

	resource := &MediaSourceResource{
		ID:      ms.ID(),
		Created: record.created,

		ReadyState:        state.ReadyState,
		EndOfStreamStatus: state.EndOfStreamStatus,
		PlaybackState:     state.Playback,

		SourceBuffers:       bufferIDs(ms.SourceBuffers()),
		ActiveSourceBuffers: bufferIDs(ms.ActiveSourceBuffers()),
	}
	if state.HasDuration {
		duration := state.Duration
		resource.Duration = &duration
	}
	if state.PendingSeek != nil {
		target := state.PendingSeek.Seconds()
		resource.PendingSeek = &target
	}

	return resource
}

func bufferIDs(c *mse.Collection) []string {
	ids := make([]string, 0, c.Len())
	c.Each(func(_ int, b *mse.SourceBuffer) bool {
		ids = append(ids, b.ID())
		return true
	})
	return ids
}

// SourceBufferResource is the JSON representation of a source buffer.
type SourceBufferResource struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"`
	Codecs []string `json:"codecs,omitempty"`

	Updating      bool                  `json:"updating"`
	Generation    uint64                `json:"generation"`
	AppendedBytes uint64                `json:"appendedBytes"`
	Initialized   bool                  `json:"initialized"`
	Active        bool                  `json:"active"`
	PlaybackState mse.PlaybackState     `json:"playbackState"`
	ErrorStatus   mse.EndOfStreamStatus `json:"errorStatus,omitempty"`

	Tracks []*TrackResource `json:"tracks"`
}

func newSourceBufferResource(b *mse.SourceBuffer) *SourceBufferResource {
	ct := b.ContentType()
	resource := &SourceBufferResource{
		ID:     b.ID(),
		Type:   ct.Type,
		Codecs: ct.Codecs,

		Updating:      b.Updating(),
		Generation:    b.Generation(),
		AppendedBytes: b.AppendedBytes(),
		Initialized:   b.Initialized(),
		Active:        b.Active(),
		PlaybackState: b.PlaybackState(),
		ErrorStatus:   b.ErrorStatus(),
	}
	tracks := b.Tracks()
	resource.Tracks = make([]*TrackResource, 0, len(tracks))
	for _, track := range tracks {
		resource.Tracks = append(resource.Tracks, newTrackResource(b, track))
	}

	return resource
}

// TrackResource is the JSON representation of a track.
type TrackResource struct {
	ID           string `json:"id"`
	SourceBuffer string `json:"sourceBuffer"`

	Type     string `json:"type"`
	Kind     string `json:"kind"`
	Codec    string `json:"codec,omitempty"`
	Language string `json:"language,omitempty"`
	Label    string `json:"label,omitempty"`
	Selected bool   `json:"selected"`
}

func newTrackResource(b *mse.SourceBuffer, track *mse.TrackPrivate) *TrackResource {
	return &TrackResource{
		ID:           track.ID(),
		SourceBuffer: b.ID(),

		Type:     track.Type().String(),
		Kind:     track.Kind().String(),
		Codec:    track.Codec(),
		Language: track.Language(),
		Label:    track.Label(),
		Selected: track.Selected(),
	}
}

// SourceBufferRequest creates a source buffer.
type SourceBufferRequest struct {
	Type string `json:"type"`
}

// DurationRequest sets the duration in seconds.
type DurationRequest struct {
	Duration *float64 `json:"duration"`
}

// EndOfStreamRequest marks the end of the stream. Status is empty, network
// or decode.
type EndOfStreamRequest struct {
	Status string `json:"status"`
}

// SeekRequest requests a seek to Time seconds.
type SeekRequest struct {
	Time *float64 `json:"time"`
}

// TrackRequest changes the selection of a track.
type TrackRequest struct {
	Selected *bool `json:"selected"`
}

// EventsMessage is sent to event stream subscribers for every batch of
// notifications.
type EventsMessage struct {
	Type   string         `json:"type"`
	Events []events.Event `json:"events"`
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
