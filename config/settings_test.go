/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash.kopano.io/kwm/kwmmse/internal/mse"
)

func TestLoadDefaults(t *testing.T) {
	settings, err := Load(viper.New(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, settings.Listen)
	assert.Equal(t, "info", settings.LogLevel)
	assert.True(t, settings.LogTimestamp)
	assert.Equal(t, DefaultMaxSourceBuffers, settings.MaxSourceBuffers)
	assert.Equal(t, "reject", settings.SeekWaitPolicy)

	c := &Config{}
	require.NoError(t, settings.Apply(c))
	assert.Equal(t, DefaultListenAddr, c.ListenAddr)
	assert.Equal(t, mse.SeekWaitReject, c.SeekWaitPolicy)
	require.NotNil(t, c.Types)
	ct, _ := mse.ParseContentType("video/mp4")
	assert.True(t, c.Types.IsSupported(ct))
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kwmmsed.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
listen: 127.0.0.1:9000
max-source-buffers: 4
seek-wait-policy: queue
supported-type:
  - "video/x-test:foo"
`), 0600))

	t.Setenv("KWMMSED_MAX_SOURCE_BUFFERS", "8")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", DefaultListenAddr, "")
	flags.Int("max-source-buffers", DefaultMaxSourceBuffers, "")
	require.NoError(t, flags.Parse([]string{"--listen", "127.0.0.1:9001"}))

	settings, err := Load(viper.New(), path, flags)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9001", settings.Listen)
	assert.Equal(t, 8, settings.MaxSourceBuffers)
	assert.Equal(t, "queue", settings.SeekWaitPolicy)

	c := &Config{}
	require.NoError(t, settings.Apply(c))
	assert.Equal(t, mse.SeekWaitQueue, c.SeekWaitPolicy)
	ct, _ := mse.ParseContentType(`video/x-test; codecs="foo.1"`)
	assert.True(t, c.Types.IsSupported(ct))
	ct, _ = mse.ParseContentType("video/mp4")
	assert.False(t, c.Types.IsSupported(ct))
}

func TestLoadInvalid(t *testing.T) {
	v := viper.New()
	v.Set("seek-wait-policy", "block")
	_, err := Load(v, "", nil)
	assert.Error(t, err)

	v = viper.New()
	v.Set("supported-type", []string{"bogus"})
	_, err = Load(v, "", nil)
	assert.Error(t, err)

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
