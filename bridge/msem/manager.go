/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package msem manages the media sources of the daemon and exposes them via
// HTTP.
package msem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"

	cfg "stash.kopano.io/kwm/kwmmse/config"
	"stash.kopano.io/kwm/kwmmse/internal/mse"
	"stash.kopano.io/kwm/kwmmse/internal/pipeline"
)

// ErrManagerClosed is returned when creating media sources after the
// manager's context is done.
var ErrManagerClosed = errors.New("manager is closed")

// Record binds a media source to the pipeline feeding it.
type Record struct {
	source   *mse.MediaSource
	pipeline *pipeline.Pipeline

	created time.Time
	cancel  context.CancelFunc
}

// Source returns the record's media source.
func (r *Record) Source() *mse.MediaSource {
	return r.source
}

// Pipeline returns the record's pipeline.
func (r *Record) Pipeline() *pipeline.Pipeline {
	return r.pipeline
}

// Created returns when the record was created.
func (r *Record) Created() time.Time {
	return r.created
}

// Manager handles media sources.
type Manager struct {
	logger  logrus.FieldLogger
	ctx     context.Context
	config  *cfg.Config
	metrics *mse.Metrics

	wg      sync.WaitGroup
	sources cmap.ConcurrentMap

	active uint64
}

// NewManager creates a Manager bound to ctx. All media sources are closed
// when ctx is done.
func NewManager(ctx context.Context, config *cfg.Config) (*Manager, error) {
	if config.Logger == nil {
		return nil, errors.New("manager requires a logger")
	}

	m := &Manager{
		logger:  config.Logger.WithField("manager", "msem"),
		ctx:     ctx,
		config:  config,
		metrics: mse.NewMetrics(config.Metrics),

		sources: cmap.New(),
	}

	return m, nil
}

// Create creates, starts and opens a new media source with its pipeline.
func (m *Manager) Create() (*Record, error) {
	if m.ctx.Err() != nil {
		return nil, ErrManagerClosed
	}

	p := pipeline.New(m.config.Logger.WithField("component", "pipeline"), m.config.PipelineQueueSize)
	source, err := mse.New(&mse.Config{
		Logger:  m.config.Logger,
		Metrics: m.metrics,

		Sink:  p,
		Types: m.config.Types,

		SeekWaitPolicy:   m.config.SeekWaitPolicy,
		MaxSourceBuffers: m.config.MaxSourceBuffers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create media source: %w", err)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	record := &Record{
		source:   source,
		pipeline: p,

		created: time.Now(),
		cancel:  cancel,
	}

	logger := m.logger.WithField("mediasource", source.ID())

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		if runErr := p.Run(ctx); runErr != nil {
			logger.WithError(runErr).Warnln("pipeline stopped with error")
		}
	}()
	go func() {
		defer func() {
			m.sources.Remove(source.ID())
			atomic.AddUint64(&m.active, ^uint64(0))
			p.Close()
			cancel()
			logger.Debugln("media source record removed")
			m.wg.Done()
		}()
		if runErr := source.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.WithError(runErr).Warnln("media source stopped with error")
		}
	}()

	m.sources.Set(source.ID(), record)
	atomic.AddUint64(&m.active, 1)

	if err := source.Do(ctx, source.Open); err != nil {
		m.Remove(source.ID())
		return nil, fmt.Errorf("failed to open media source: %w", err)
	}

	logger.Infoln("media source created")
	return record, nil
}

// Get returns the record with the provided media source id.
func (m *Manager) Get(id string) (*Record, bool) {
	record, ok := m.sources.Get(id)
	if !ok {
		return nil, false
	}
	return record.(*Record), true
}

// Records returns all records ordered by creation time.
func (m *Manager) Records() []*Record {
	records := make([]*Record, 0, m.sources.Count())
	for _, record := range m.sources.Items() {
		records = append(records, record.(*Record))
	}
	sortRecords(records)
	return records
}

// Remove closes the media source with the provided id and releases its
// pipeline.
func (m *Manager) Remove(id string) bool {
	record, ok := m.sources.Pop(id)
	if !ok {
		return false
	}
	r := record.(*Record)
	if err := r.source.Close(); err != nil {
		m.logger.WithError(err).WithField("mediasource", id).Debugln("media source close failed")
	}
	r.pipeline.Close()
	r.cancel()

	m.logger.WithField("mediasource", id).Infoln("media source removed")
	return true
}

// Wait blocks until all media sources have stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// NumActive returns the number of running media sources.
func (m *Manager) NumActive() uint64 {
	return atomic.LoadUint64(&m.active)
}
