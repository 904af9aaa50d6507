/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmmse/internal/assert"
	"stash.kopano.io/kwm/kwmmse/internal/events"
	"stash.kopano.io/kwm/kwmmse/internal/loop"
	"stash.kopano.io/kwm/kwmmse/internal/trackstate"
	"stash.kopano.io/kwm/kwmmse/internal/utils"
)

// Config bundles the settings of a MediaSource.
type Config struct {
	Logger  logrus.FieldLogger
	Metrics *Metrics

	Sink  Sink
	Types *TypeRegistry

	SeekWaitPolicy   SeekWaitPolicy
	MaxSourceBuffers int
	QueueSize        int
}

// MediaSource coordinates the source buffers of one media source between
// its consumer and its media pipeline. Its state is owned by its consumer
// context. The consumer methods must run on that context, see Do. The
// pipeline methods may be called from any goroutine.
type MediaSource struct {
	id     string
	logger logrus.FieldLogger

	sink    Sink
	types   *TypeRegistry
	metrics *Metrics

	maxSourceBuffers int

	loop      *loop.Loop
	outbox    *events.Outbox
	hub       *events.Hub
	listeners *listenerRegistry

	sourceBuffers       *Collection
	activeSourceBuffers *Collection

	readyState        ReadyState
	duration          float64
	durationSet       bool
	endOfStreamStatus EndOfStreamStatus

	seek *seekBarrier

	closed int32
}

// New creates a MediaSource in the closed state. Run must be called to start
// its consumer context.
func New(config *Config) (*MediaSource, error) {
	if config.Sink == nil {
		return nil, errors.New("media source requires a sink")
	}

	id := utils.NewRandomGUID()
	logger := config.Logger
	if logger == nil {
		l := logrus.New()
		l.Out = ioutil.Discard
		logger = l
	}
	logger = logger.WithField("mediasource", id)

	types := config.Types
	if types == nil {
		types = DefaultTypeRegistry()
	}

	ms := &MediaSource{
		id:     id,
		logger: logger,

		sink:    config.Sink,
		types:   types,
		metrics: config.Metrics,

		maxSourceBuffers: config.MaxSourceBuffers,

		loop:      loop.New(logger, config.QueueSize),
		outbox:    events.NewOutbox(),
		hub:       events.NewHub(),
		listeners: newListenerRegistry(),

		duration: math.NaN(),

		seek: newSeekBarrier(config.SeekWaitPolicy),
	}
	ms.sourceBuffers = NewCollection(id, ms.outbox)
	ms.activeSourceBuffers = NewCollection(id+"/active", ms.outbox)
	ms.loop.OnTurnEnd(ms.flush)

	return ms, nil
}

// ID returns the media source's id.
func (ms *MediaSource) ID() string {
	return ms.id
}

// Run runs the consumer context until the provided context is done or Close
// is called. Run blocks.
func (ms *MediaSource) Run(ctx context.Context) error {
	ms.metrics.mediaSourceStarted()
	defer ms.metrics.mediaSourceStopped()

	ms.logger.Debugln("media source started")
	err := ms.loop.Run(ctx)

	// The loop has stopped, nothing else touches the state anymore.
	ms.detach()
	ms.outbox.Flush()
	ms.hub.Close()
	ms.logger.Debugln("media source stopped")

	return err
}

// Close detaches the media source and stops its consumer context.
func (ms *MediaSource) Close() error {
	if !atomic.CompareAndSwapInt32(&ms.closed, 0, 1) {
		return errors.New("already closed")
	}

	if ms.loop.Running() {
		err := ms.loop.Do(context.Background(), func() error {
			ms.detach()
			return nil
		})
		if err != nil && !errors.Is(err, loop.ErrStopped) {
			ms.logger.WithError(err).Warnln("failed to detach media source on close")
		}
	}
	ms.loop.Stop()
	ms.hub.Close()

	return nil
}

// Done is closed when the consumer context has stopped.
func (ms *MediaSource) Done() <-chan struct{} {
	return ms.loop.Done()
}

// Do runs fn on the consumer context and waits for its result. Consumer
// methods are called from within fn.
func (ms *MediaSource) Do(ctx context.Context, fn func() error) error {
	err := ms.loop.Do(ctx, fn)
	if errors.Is(err, loop.ErrStopped) {
		return fmt.Errorf("media source %s is closed: %w", ms.id, ErrDetached)
	}
	return err
}

// Post runs fn on the consumer context without waiting.
func (ms *MediaSource) Post(fn func()) error {
	err := ms.loop.Post(fn)
	if errors.Is(err, loop.ErrStopped) {
		return fmt.Errorf("media source %s is closed: %w", ms.id, ErrDetached)
	}
	return err
}

// Subscribe registers a consumer for the notifications of this media source.
func (ms *MediaSource) Subscribe() *events.Subscription {
	return ms.hub.Subscribe()
}

func (ms *MediaSource) flush() {
	batch := ms.outbox.Flush()
	if batch == nil {
		return
	}
	ms.metrics.delivered(batch)
	ms.hub.Publish(batch)
}

// State returns a snapshot of the media source state.
func (ms *MediaSource) State() State {
	state := State{
		ReadyState:        ms.readyState,
		Duration:          ms.duration,
		HasDuration:       ms.durationSet,
		EndOfStreamStatus: ms.endOfStreamStatus,
		Playback:          ms.PlaybackState(),
	}
	if target, ok := ms.PendingSeek(); ok {
		state.PendingSeek = &target
	}
	return state
}

// ReadyState returns the current ready state.
func (ms *MediaSource) ReadyState() ReadyState {
	return ms.readyState
}

// Duration returns the duration in seconds and whether it is set.
func (ms *MediaSource) Duration() (float64, bool) {
	return ms.duration, ms.durationSet
}

// SourceBuffers returns the collection of attached source buffers.
func (ms *MediaSource) SourceBuffers() *Collection {
	return ms.sourceBuffers
}

// ActiveSourceBuffers returns the collection of source buffers with a
// selected track, in source order.
func (ms *MediaSource) ActiveSourceBuffers() *Collection {
	return ms.activeSourceBuffers
}

// PlaybackState returns the lowest readiness of all source buffers.
func (ms *MediaSource) PlaybackState() PlaybackState {
	if ms.sourceBuffers.Len() == 0 {
		return HaveNothing
	}
	state := HaveEnoughData
	ms.sourceBuffers.Each(func(_ int, b *SourceBuffer) bool {
		if b.playback < state {
			state = b.playback
		}
		return true
	})
	return state
}

// Open moves a closed media source to open.
func (ms *MediaSource) Open() error {
	if ms.readyState != ReadyStateClosed {
		return fmt.Errorf("open in %s state: %w", ms.readyState, ErrInvalidState)
	}
	return ms.SetReadyState(ReadyStateOpen)
}

// SetReadyState performs a ready state transition. Setting the current state
// does nothing. Closing detaches all source buffers.
func (ms *MediaSource) SetReadyState(state ReadyState) error {
	current := ms.readyState
	switch {
	case state == current:
		return nil
	case state == ReadyStateClosed:
		ms.detach()
		return nil
	case current == ReadyStateClosed && state == ReadyStateOpen:
		ms.readyState = ReadyStateOpen
		ms.outbox.Schedule(events.KindReadyStateChanged, ms.id)
		ms.logger.Debugln("media source opened")
		return nil
	case current == ReadyStateOpen && state == ReadyStateEnded:
		return ms.MarkEndOfStream(EndOfStreamNone)
	case current == ReadyStateEnded && state == ReadyStateOpen:
		return ms.UnmarkEndOfStream()
	}
	return fmt.Errorf("transition from %s to %s: %w", current, state, ErrInvalidState)
}

// AddSourceBuffer creates a source buffer for the provided content type.
func (ms *MediaSource) AddSourceBuffer(contentType string) (*SourceBuffer, error) {
	ct, err := ParseContentType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNotSupported)
	}
	if !ms.types.IsSupported(ct) {
		return nil, fmt.Errorf("content type %q: %w", contentType, ErrNotSupported)
	}
	if ms.readyState != ReadyStateOpen {
		return nil, fmt.Errorf("add source buffer in %s state: %w", ms.readyState, ErrInvalidState)
	}
	if ms.maxSourceBuffers > 0 && ms.sourceBuffers.Len() >= ms.maxSourceBuffers {
		return nil, fmt.Errorf("limit of %d source buffers reached: %w", ms.maxSourceBuffers, ErrQuotaExceeded)
	}

	b := newSourceBuffer(ms, ct)
	b.listener = ms.listeners.register(b)
	added := ms.sourceBuffers.Add(b)
	assert.That(added, "new source buffer %s already attached", b.id)

	ms.metrics.sourceBufferAdded()
	b.logger.WithField("type", ct.String()).Debugln("source buffer added")

	return b, nil
}

// RemoveSourceBuffer detaches the buffer and releases its pipeline resources.
func (ms *MediaSource) RemoveSourceBuffer(b *SourceBuffer) error {
	if !ms.sourceBuffers.Contains(b) {
		return fmt.Errorf("source buffer is not attached: %w", ErrDetached)
	}

	ms.activeSourceBuffers.Remove(b)
	ms.sourceBuffers.Remove(b)
	b.release()

	ms.metrics.sourceBufferRemoved(1)
	b.logger.Debugln("source buffer removed")

	return nil
}

// SourceBuffer returns the attached buffer with the provided id.
func (ms *MediaSource) SourceBuffer(id string) (*SourceBuffer, bool) {
	return ms.sourceBuffers.Find(id)
}

// SetDuration sets the duration in seconds. Negative values are clamped to
// zero and values which are not finite are ignored.
func (ms *MediaSource) SetDuration(seconds float64) error {
	if ms.readyState == ReadyStateClosed {
		return fmt.Errorf("set duration in %s state: %w", ms.readyState, ErrInvalidState)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		ms.logger.WithField("duration", seconds).Warnln("ignoring duration which is not finite")
		return nil
	}
	if seconds < 0 {
		seconds = 0
	}
	if ms.durationSet && ms.duration == seconds {
		return nil
	}

	ms.duration = seconds
	ms.durationSet = true
	ms.outbox.Schedule(events.KindDurationChanged, ms.id)

	return nil
}

// MarkEndOfStream moves an open media source to ended. An error status
// aborts pending appends.
func (ms *MediaSource) MarkEndOfStream(status EndOfStreamStatus) error {
	if ms.readyState != ReadyStateOpen {
		return fmt.Errorf("end of stream in %s state: %w", ms.readyState, ErrInvalidState)
	}

	ms.readyState = ReadyStateEnded
	ms.endOfStreamStatus = status
	if status != EndOfStreamNone {
		ms.sourceBuffers.Each(func(_ int, b *SourceBuffer) bool {
			b.errorStatus = status
			if b.abort() {
				ms.outbox.Schedule(events.KindError, b.id)
			}
			return true
		})
	}
	ms.outbox.Schedule(events.KindReadyStateChanged, ms.id)

	ms.metrics.endedStream(status)
	ms.logger.WithField("status", status.String()).Debugln("media source ended")

	return nil
}

// UnmarkEndOfStream moves an ended media source back to open.
func (ms *MediaSource) UnmarkEndOfStream() error {
	if ms.readyState != ReadyStateEnded {
		return fmt.Errorf("resume in %s state: %w", ms.readyState, ErrInvalidState)
	}

	ms.readyState = ReadyStateOpen
	ms.endOfStreamStatus = EndOfStreamNone
	ms.outbox.Schedule(events.KindReadyStateChanged, ms.id)

	ms.logger.Debugln("media source reopened")

	return nil
}

// Append hands data to the pipeline for the buffer. The buffer stays
// updating until the pipeline reports completion. Appending to an ended
// media source reopens it.
func (ms *MediaSource) Append(b *SourceBuffer, data []byte) error {
	if b.detached || !ms.sourceBuffers.Contains(b) {
		return fmt.Errorf("append to source buffer %s: %w", b.id, ErrDetached)
	}
	if b.updating {
		return fmt.Errorf("append while updating: %w", ErrInvalidState)
	}

	// The pipeline must accept the data before any state changes.
	generation := b.generation + 1
	b.updating = true
	if err := ms.sink.Append(b, generation, data); err != nil {
		b.updating = false
		ms.metrics.appendFinished("rejected")
		return fmt.Errorf("pipeline rejected append: %w", err)
	}
	b.generation = generation
	b.errorStatus = EndOfStreamNone

	if ms.readyState == ReadyStateEnded {
		if err := ms.UnmarkEndOfStream(); err != nil {
			return err
		}
	}

	return nil
}

// Abort cancels the pending append of the buffer, if any.
func (ms *MediaSource) Abort(b *SourceBuffer) error {
	if b.detached || !ms.sourceBuffers.Contains(b) {
		return fmt.Errorf("abort source buffer %s: %w", b.id, ErrDetached)
	}
	if b.abort() {
		ms.metrics.appendFinished("aborted")
		b.logger.Debugln("append aborted")
	}
	return nil
}

// SelectTrack changes the selection of an attached track. Selecting a video
// track deselects all other video tracks.
func (ms *MediaSource) SelectTrack(trackID string, selected bool) error {
	track, _, ok := ms.findTrack(trackID)
	if !ok {
		return fmt.Errorf("track %s is not attached: %w", trackID, ErrDetached)
	}
	track.SetSelected(selected)
	return nil
}

func (ms *MediaSource) findTrack(trackID string) (*TrackPrivate, *SourceBuffer, bool) {
	var found *TrackPrivate
	var owner *SourceBuffer
	ms.sourceBuffers.Each(func(_ int, b *SourceBuffer) bool {
		if track, ok := b.Track(trackID); ok {
			found = track
			owner = b
			return false
		}
		return true
	})
	return found, owner, found != nil
}

func (ms *MediaSource) trackSelectionChanged(b *SourceBuffer, track *TrackPrivate, selected bool) {
	if selected && track.typ == trackstate.TypeVideo {
		ms.sourceBuffers.Each(func(_ int, other *SourceBuffer) bool {
			for _, t := range other.tracks {
				if t != track && t.typ == trackstate.TypeVideo && t.selected {
					t.SetSelected(false)
				}
			}
			return true
		})
	}
	ms.updateActiveSourceBuffers()
}

func (ms *MediaSource) updateActiveSourceBuffers() {
	var active []*SourceBuffer
	ms.sourceBuffers.Each(func(_ int, b *SourceBuffer) bool {
		if b.Active() {
			active = append(active, b)
		}
		return true
	})
	ms.activeSourceBuffers.Swap(active)
}

// detach moves the media source to closed, releasing all buffers and
// failing pending seek waits.
func (ms *MediaSource) detach() {
	if ms.readyState == ReadyStateClosed && ms.sourceBuffers.Len() == 0 {
		ms.failSeeks(fmt.Errorf("media source %s closed: %w", ms.id, ErrDetached))
		return
	}

	buffers := ms.sourceBuffers.Buffers()
	ms.activeSourceBuffers.Clear()
	ms.sourceBuffers.Clear()
	for _, b := range buffers {
		b.release()
	}
	if len(buffers) > 0 {
		ms.metrics.sourceBufferRemoved(len(buffers))
	}

	ms.failSeeks(fmt.Errorf("media source %s closed: %w", ms.id, ErrDetached))

	ms.readyState = ReadyStateClosed
	ms.duration = math.NaN()
	ms.durationSet = false
	ms.endOfStreamStatus = EndOfStreamNone
	ms.outbox.Schedule(events.KindReadyStateChanged, ms.id)

	ms.logger.WithField("buffers", len(buffers)).Debugln("media source closed")
}
