/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	cfg "stash.kopano.io/kwm/kwmmse/config"
	"stash.kopano.io/kwm/kwmmse/internal/mse"
)

var logger = &logrus.Logger{
	Out:       os.Stderr,
	Formatter: &logrus.TextFormatter{DisableColors: true},
	Level:     logrus.DebugLevel,
}

func newTestServer(ctx context.Context, t *testing.T) (*httptest.Server, *Server, http.Handler, *cfg.Config) {
	config := &cfg.Config{
		Logger: logger,
		Types:  mse.DefaultTypeRegistry(),
	}

	server, err := NewServer(config)
	require.NoError(t, err)

	router := mux.NewRouter()
	chain := alice.New(server.WithRequestLog)
	server.AddRoutes(ctx, router, chain)
	_, manager, err := server.AddServices(ctx, router, chain)
	require.NoError(t, err)

	s := httptest.NewServer(server.WithServeContext(ctx, router))
	t.Cleanup(func() {
		s.Close()
		manager.Wait()
	})

	return s, server, router, config
}

func TestNewTestServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	newTestServer(ctx, t)
}

func TestServeStopsOnContext(t *testing.T) {
	config := &cfg.Config{
		Logger:     logger,
		ListenAddr: "127.0.0.1:0",
	}
	server, err := NewServer(config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ctx)
	}()

	cancel()
	select {
	case err = <-errCh:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return")
	}
	require.True(t, server.stopping())
}

func TestNewServerRequiresLogger(t *testing.T) {
	_, err := NewServer(&cfg.Config{})
	require.Error(t, err)
}
