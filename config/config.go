/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmmse/internal/mse"
)

// Config defines a Server's configuration settings.
type Config struct {
	ListenAddr string

	WithMetrics       bool
	MetricsListenAddr string

	Logger logrus.FieldLogger

	Metrics prometheus.Registerer

	Types             *mse.TypeRegistry
	SeekWaitPolicy    mse.SeekWaitPolicy
	MaxSourceBuffers  int
	MaxAppendSize     int64
	PipelineQueueSize int
}
