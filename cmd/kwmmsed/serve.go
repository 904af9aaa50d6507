/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stash.kopano.io/kwm/kwmmse/bridge/server"
	cfg "stash.kopano.io/kwm/kwmmse/config"
	"stash.kopano.io/kwm/kwmmse/internal/mse"
	"stash.kopano.io/kwm/kwmmse/version"
)

const defaultListenAddr = cfg.DefaultListenAddr

func commandServe() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve [...args]",
		Short: "Start server and listen for requests",
		Run: func(cmd *cobra.Command, args []string) {
			if err := serve(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("config", "", "Path to optional config file (yaml, toml or json)")
	serveCmd.Flags().String("listen", defaultListenAddr, "TCP listen address")
	serveCmd.Flags().Bool("log-timestamp", true, "Prefix each log line with timestamp")
	serveCmd.Flags().String("log-level", "info", "Log level (one of panic, fatal, error, warn, info or debug)")
	serveCmd.Flags().Bool("with-pprof", false, "With pprof enabled")
	serveCmd.Flags().String("pprof-listen", cfg.DefaultPprofListenAddr, "TCP listen address for pprof")
	serveCmd.Flags().Bool("with-metrics", false, "Enable metrics")
	serveCmd.Flags().String("metrics-listen", cfg.DefaultMetricsListenAddr, "TCP listen address for metrics")
	serveCmd.Flags().Int("max-source-buffers", cfg.DefaultMaxSourceBuffers, "Maximum number of source buffers per media source, 0 for no limit")
	serveCmd.Flags().Int64("max-append-size", cfg.DefaultMaxAppendSize, "Maximum size in bytes of a single append")
	serveCmd.Flags().String("seek-wait-policy", mse.SeekWaitReject.String(), "How a seek request is handled while another seek is pending (one of reject or queue)")
	serveCmd.Flags().StringArray("supported-type", nil, "Supported container type with its codecs as type:codec,codec, replaces the default types when set")
	serveCmd.Flags().Int("pipeline-queue-size", cfg.DefaultPipelineQueueSize, "Number of pending jobs per media pipeline")
	serveCmd.Flags().Bool("with-deadlock-detector", true, "Enable deadlock detection")

	return serveCmd
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	configPath, _ := cmd.Flags().GetString("config")
	settings, err := cfg.Load(viper.New(), configPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(!settings.LogTimestamp, settings.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}
	logger.WithField("version", version.Version).Infoln("serve start")

	deadlock.Opts.Disable = !settings.WithDeadlockDetector
	deadlock.Opts.DeadlockTimeout = 15 * time.Second
	if !deadlock.Opts.Disable {
		logger.Warnln("enabled automatic deadlock detector")
	}

	config := &cfg.Config{
		Logger: logger,
	}
	if err = settings.Apply(config); err != nil {
		return err
	}
	logger.WithField("types", config.Types.Types()).Debugln("supported container types")

	if config.WithMetrics && config.MetricsListenAddr != "" {
		config.Metrics = startMetricsListener(config.MetricsListenAddr, logger)
	}

	srv, err := server.NewServer(config)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	if settings.WithPprof && settings.PprofListen != "" {
		startPprofListener(settings.PprofListen, logger)
	}

	logger.Infoln("serve started")
	return srv.Serve(ctx)
}

// startMetricsListener serves a registry with the process and Go collectors
// and returns the registerer for the daemon's own metrics.
func startMetricsListener(listenAddr string, logger logrus.FieldLogger) prometheus.Registerer {
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)

	handler := http.NewServeMux()
	handler.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logger.WithField("listenAddr", listenAddr).Infoln("metrics enabled, starting listener")
		if err := http.ListenAndServe(listenAddr, handler); err != nil {
			logger.WithError(err).Errorln("unable to start metrics listener")
		}
	}()

	return prometheus.WrapRegistererWithPrefix("kwmmsed_", reg)
}

// startPprofListener serves the default mux which carries the pprof
// handlers.
func startPprofListener(listenAddr string, logger logrus.FieldLogger) {
	runtime.SetMutexProfileFraction(5)
	go func() {
		logger.WithField("listenAddr", listenAddr).Infoln("pprof enabled, starting listener")
		if err := http.ListenAndServe(listenAddr, nil); err != nil {
			logger.WithError(err).Errorln("unable to start pprof listener")
		}
	}()
}
