/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	metrics := NewMetrics(reg)

	ms, _, sub := openTestMediaSource(t, &Config{Metrics: metrics})
	b := addBuffer(t, ms, "video/mp4")
	do(t, ms, func() error { return ms.Append(b, []byte("12345")) })
	require.NoError(t, ms.ReportAppendComplete(context.Background(), b.ID(), 1, AppendSucceeded, 5))
	require.NoError(t, ms.ReportEndOfStream(context.Background(), EndOfStreamNone))
	do(t, ms, func() error { return ms.RemoveSourceBuffer(b) })
	settle(t, ms, sub)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.mediaSources))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sourceBuffersAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sourceBuffersRemoved))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.appendBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.appends.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.endOfStream.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.events.WithLabelValues("buffers-added")))

	count, err := testutil.GatherAndCount(reg, "mse_appends_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsCountOnlyAppendedBytes(t *testing.T) {
	metrics := NewMetrics(prometheus.NewPedanticRegistry())

	ms, sink, _ := openTestMediaSource(t, &Config{Metrics: metrics})
	b := addBuffer(t, ms, "video/mp4")

	sink.Lock()
	sink.err = errors.New("full")
	sink.Unlock()
	assert.Error(t, ms.Do(context.Background(), func() error { return ms.Append(b, []byte("1234567")) }))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.appends.WithLabelValues("rejected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.appendBytes))

	sink.Lock()
	sink.err = nil
	sink.Unlock()
	do(t, ms, func() error { return ms.Append(b, []byte("1234567")) })
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.appendBytes))
	require.NoError(t, ms.ReportAppendComplete(context.Background(), b.ID(), 1, AppendSucceeded, 7))
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.appendBytes))
}

func TestNilMetrics(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.mediaSourceStarted()
		metrics.sourceBufferAdded()
		metrics.appendFinished("succeeded")
		metrics.seek("completed")
		metrics.delivered(nil)
	})
}
