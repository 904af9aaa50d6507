/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"stash.kopano.io/kwm/kwmmse/internal/mse"
)

// EnvPrefix is the prefix of environment variables overriding settings.
const EnvPrefix = "KWMMSED"

// Defaults.
const (
	DefaultListenAddr        = "127.0.0.1:8780"
	DefaultMetricsListenAddr = "127.0.0.1:6780"
	DefaultPprofListenAddr   = "127.0.0.1:6060"
	DefaultMaxSourceBuffers  = 16
	DefaultMaxAppendSize     = 32 * 1024 * 1024
	DefaultPipelineQueueSize = 100
)

// Settings are the values read from flags, environment and the optional
// config file. Flags take precedence over the environment, which takes
// precedence over the config file.
type Settings struct {
	Listen string `mapstructure:"listen"`

	LogTimestamp bool   `mapstructure:"log-timestamp"`
	LogLevel     string `mapstructure:"log-level"`

	WithPprof   bool   `mapstructure:"with-pprof"`
	PprofListen string `mapstructure:"pprof-listen"`

	WithMetrics   bool   `mapstructure:"with-metrics"`
	MetricsListen string `mapstructure:"metrics-listen"`

	WithDeadlockDetector bool `mapstructure:"with-deadlock-detector"`

	MaxSourceBuffers  int      `mapstructure:"max-source-buffers"`
	MaxAppendSize     int64    `mapstructure:"max-append-size"`
	SeekWaitPolicy    string   `mapstructure:"seek-wait-policy"`
	SupportedTypes    []string `mapstructure:"supported-type"`
	PipelineQueueSize int      `mapstructure:"pipeline-queue-size"`
}

// SetDefaults sets the default values of all settings.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", DefaultListenAddr)
	v.SetDefault("log-timestamp", true)
	v.SetDefault("log-level", "info")
	v.SetDefault("with-pprof", false)
	v.SetDefault("pprof-listen", DefaultPprofListenAddr)
	v.SetDefault("with-metrics", false)
	v.SetDefault("metrics-listen", DefaultMetricsListenAddr)
	v.SetDefault("with-deadlock-detector", true)
	v.SetDefault("max-source-buffers", DefaultMaxSourceBuffers)
	v.SetDefault("max-append-size", DefaultMaxAppendSize)
	v.SetDefault("seek-wait-policy", mse.SeekWaitReject.String())
	v.SetDefault("pipeline-queue-size", DefaultPipelineQueueSize)
}

// Load reads the settings. The config file is optional, flags may be nil.
func Load(v *viper.Viper, configPath string, flags *pflag.FlagSet) (*Settings, error) {
	SetDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("validating settings: %w", err)
	}

	return &settings, nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if s.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	if s.MaxSourceBuffers < 0 {
		return errors.New("max-source-buffers must not be negative")
	}
	if s.MaxAppendSize <= 0 {
		return errors.New("max-append-size must be positive")
	}
	if _, err := mse.ParseSeekWaitPolicy(s.SeekWaitPolicy); err != nil {
		return err
	}
	if _, err := s.TypeRegistry(); err != nil {
		return err
	}
	return nil
}

// TypeRegistry returns the registry of the configured supported types, or
// the default registry when none are configured.
func (s *Settings) TypeRegistry() (*mse.TypeRegistry, error) {
	if len(s.SupportedTypes) == 0 {
		return mse.DefaultTypeRegistry(), nil
	}
	registry := mse.NewTypeRegistry()
	for _, spec := range s.SupportedTypes {
		if err := registry.RegisterSpec(spec); err != nil {
			return nil, fmt.Errorf("invalid supported-type: %w", err)
		}
	}
	return registry, nil
}

// Apply copies the settings into c.
func (s *Settings) Apply(c *Config) error {
	policy, err := mse.ParseSeekWaitPolicy(s.SeekWaitPolicy)
	if err != nil {
		return err
	}
	types, err := s.TypeRegistry()
	if err != nil {
		return err
	}

	c.ListenAddr = s.Listen
	c.WithMetrics = s.WithMetrics
	c.MetricsListenAddr = s.MetricsListen
	c.Types = types
	c.SeekWaitPolicy = policy
	c.MaxSourceBuffers = s.MaxSourceBuffers
	c.MaxAppendSize = s.MaxAppendSize
	c.PipelineQueueSize = s.PipelineQueueSize

	return nil
}
