/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"github.com/prometheus/client_golang/prometheus"

	"stash.kopano.io/kwm/kwmmse/internal/events"
)

const metricsSubsystem = "mse"

// Metrics holds the collectors shared by all media sources of a process. A
// nil Metrics records nothing.
type Metrics struct {
	mediaSources         prometheus.Gauge
	sourceBuffersAdded   prometheus.Counter
	sourceBuffersRemoved prometheus.Counter
	appends              *prometheus.CounterVec
	appendBytes          prometheus.Counter
	endOfStream          *prometheus.CounterVec
	seeks                *prometheus.CounterVec
	events               *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg, if reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mediaSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: metricsSubsystem,
			Name:      "media_sources",
			Help:      "Number of running media sources",
		}),
		sourceBuffersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "source_buffers_added_total",
			Help:      "Total number of source buffers added",
		}),
		sourceBuffersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "source_buffers_removed_total",
			Help:      "Total number of source buffers removed",
		}),
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "appends_total",
			Help:      "Total number of appends by result, including appends the pipeline rejected before starting",
		}, []string{"result"}),
		appendBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "append_bytes_total",
			Help:      "Total number of bytes appended successfully",
		}),
		endOfStream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "end_of_stream_total",
			Help:      "Total number of end of stream transitions by status",
		}, []string{"status"}),
		seeks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "seeks_total",
			Help:      "Total number of pipeline seek waits by outcome",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "events_total",
			Help:      "Total number of delivered notifications by type",
		}, []string{"type"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.mediaSources,
			m.sourceBuffersAdded,
			m.sourceBuffersRemoved,
			m.appends,
			m.appendBytes,
			m.endOfStream,
			m.seeks,
			m.events,
		)
	}

	return m
}

func (m *Metrics) mediaSourceStarted() {
	if m == nil {
		return
	}
	m.mediaSources.Inc()
}

func (m *Metrics) mediaSourceStopped() {
	if m == nil {
		return
	}
	m.mediaSources.Dec()
}

func (m *Metrics) sourceBufferAdded() {
	if m == nil {
		return
	}
	m.sourceBuffersAdded.Inc()
}

func (m *Metrics) sourceBufferRemoved(count int) {
	if m == nil {
		return
	}
	m.sourceBuffersRemoved.Add(float64(count))
}

func (m *Metrics) appended(size int) {
	if m == nil {
		return
	}
	m.appendBytes.Add(float64(size))
}

func (m *Metrics) appendFinished(result string) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues(result).Inc()
}

func (m *Metrics) endedStream(status EndOfStreamStatus) {
	if m == nil {
		return
	}
	label := status.String()
	if label == "" {
		label = "none"
	}
	m.endOfStream.WithLabelValues(label).Inc()
}

func (m *Metrics) seek(outcome string) {
	if m == nil {
		return
	}
	m.seeks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) delivered(batch []events.Event) {
	if m == nil {
		return
	}
	for _, event := range batch {
		m.events.WithLabelValues(event.Kind.String()).Inc()
	}
}
