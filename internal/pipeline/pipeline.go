/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package pipeline implements a media pipeline for source buffers. It
// probes appended data for tracks and reports its progress back to the
// media source.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmmse/internal/mse"
)

const maxChSize = 100

var (
	errQueueFull = errors.New("pipeline queue is full")
	errClosed    = errors.New("pipeline is closed")
)

type jobKind int

const (
	jobAppend jobKind = iota
	jobSeek
)

type job struct {
	kind jobKind

	buffer     *mse.SourceBuffer
	generation uint64
	data       []byte

	source *mse.MediaSource
	target time.Duration
}

type bufferState struct {
	initialized bool
	aborted     uint64
}

// Pipeline processes the appends of source buffers in order on its own
// goroutine. It implements mse.Sink.
type Pipeline struct {
	logger logrus.FieldLogger

	jobs chan *job

	mutex   deadlock.Mutex
	buffers map[string]*bufferState

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Pipeline with a job queue of the provided size.
func New(logger logrus.FieldLogger, queueSize int) *Pipeline {
	if queueSize <= 0 {
		queueSize = maxChSize
	}
	return &Pipeline{
		logger: logger,

		jobs:    make(chan *job, queueSize),
		buffers: make(map[string]*bufferState),

		done: make(chan struct{}),
	}
}

// Run processes jobs until ctx is done or Close is called. Run blocks.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case j := <-p.jobs:
			switch j.kind {
			case jobAppend:
				p.append(ctx, j)
			case jobSeek:
				p.seek(ctx, j)
			}
		}
	}
}

// Close stops the pipeline. Queued jobs are discarded.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}

// Append implements mse.Sink. The data is copied.
func (p *Pipeline) Append(buffer *mse.SourceBuffer, generation uint64, data []byte) error {
	p.mutex.Lock()
	if _, ok := p.buffers[buffer.ID()]; !ok {
		p.buffers[buffer.ID()] = &bufferState{}
	}
	p.mutex.Unlock()

	payload := make([]byte, len(data))
	copy(payload, data)

	return p.enqueue(&job{
		kind:       jobAppend,
		buffer:     buffer,
		generation: generation,
		data:       payload,
	})
}

// Abort implements mse.Sink.
func (p *Pipeline) Abort(buffer *mse.SourceBuffer) {
	p.mutex.Lock()
	if state, ok := p.buffers[buffer.ID()]; ok {
		state.aborted = buffer.Generation()
	}
	p.mutex.Unlock()
}

// RemovedFromMediaSource implements mse.Sink.
func (p *Pipeline) RemovedFromMediaSource(buffer *mse.SourceBuffer) {
	p.mutex.Lock()
	delete(p.buffers, buffer.ID())
	p.mutex.Unlock()
}

// Seek queues a seek to target. Processing of later jobs waits until the
// consumer completed the seek on the media source.
func (p *Pipeline) Seek(source *mse.MediaSource, target time.Duration) error {
	return p.enqueue(&job{
		kind:   jobSeek,
		source: source,
		target: target,
	})
}

func (p *Pipeline) enqueue(j *job) error {
	select {
	case <-p.done:
		return errClosed
	default:
	}

	select {
	case p.jobs <- j:
		return nil
	default:
		return errQueueFull
	}
}

// current returns whether the job is still wanted, with the initialized flag
// of its buffer.
func (p *Pipeline) current(id string, generation uint64) (bool, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	state, ok := p.buffers[id]
	if !ok || generation <= state.aborted {
		return false, false
	}
	return true, state.initialized
}

func (p *Pipeline) markInitialized(id string) {
	p.mutex.Lock()
	if state, ok := p.buffers[id]; ok {
		state.initialized = true
	}
	p.mutex.Unlock()
}

func (p *Pipeline) append(ctx context.Context, j *job) {
	id := j.buffer.ID()
	source := j.buffer.MediaSource()
	logger := p.logger.WithFields(logrus.Fields{
		"sourcebuffer": id,
		"generation":   j.generation,
	})

	wanted, initialized := p.current(id, j.generation)
	if !wanted {
		logger.Debugln("pipeline skipping append of removed or aborted buffer")
		return
	}

	contentType := j.buffer.ContentType()
	tracks, found, err := probe(contentType, j.data, initialized)
	if err != nil {
		logger.WithError(err).Warnln("pipeline failed to parse appended data")
		p.report(logger, source.ReportAppendComplete(ctx, id, j.generation, mse.AppendParsingFailed, 0))
		return
	}
	if found {
		p.markInitialized(id)
		logger.WithField("tracks", len(tracks)).Debugln("pipeline found initialization segment")
		p.report(logger, source.ReportInitializationSegment(ctx, id, tracks))
	}

	p.report(logger, source.ReportAppendComplete(ctx, id, j.generation, mse.AppendSucceeded, len(j.data)))

	// An fMP4 initialization segment carries no media.
	isFMP4Init := found && isInitSegment(j.data)
	if (initialized || found) && !isFMP4Init {
		p.report(logger, source.ReportBufferReadyState(ctx, id, mse.HaveEnoughData))
	}
}

func (p *Pipeline) seek(ctx context.Context, j *job) {
	logger := p.logger.WithField("target", j.target)
	logger.Debugln("pipeline waiting for seek completion")

	err := j.source.RequestSeekSync(ctx, j.target)
	if err != nil {
		logger.WithError(err).Warnln("pipeline seek failed")
		return
	}
	logger.Debugln("pipeline seek completed")
}

func (p *Pipeline) report(logger logrus.FieldLogger, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, mse.ErrDetached) {
		logger.WithError(err).Debugln("pipeline report for detached buffer")
		return
	}
	logger.WithError(err).Warnln("pipeline report failed")
}
