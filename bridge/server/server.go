/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/longsleep/go-metrics/loggedwriter"
	"github.com/longsleep/go-metrics/timing"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmmse/bridge"
	apiv0 "stash.kopano.io/kwm/kwmmse/bridge/api-v0/service"
	"stash.kopano.io/kwm/kwmmse/bridge/msem"
	cfg "stash.kopano.io/kwm/kwmmse/config"
)

const (
	shutdownTimeout  = 10 * time.Second
	exitPollInterval = 100 * time.Millisecond
)

// Server is our HTTP server implementation.
type Server struct {
	config *cfg.Config

	listenAddr string
	logger     logrus.FieldLogger

	requestLog bool

	shutdown int32
}

// NewServer constructs a server from the provided parameters.
func NewServer(c *cfg.Config) (*Server, error) {
	if c.Logger == nil {
		return nil, errors.New("server requires a logger")
	}

	s := &Server{
		config: c,

		listenAddr: c.ListenAddr,
		logger:     c.Logger,

		requestLog: os.Getenv("KWMMSED_REQUEST_LOG") == "1",
	}

	return s, nil
}

func (s *Server) stopping() bool {
	return atomic.LoadInt32(&s.shutdown) == 1
}

// WithRequestLog logs every completed request with its status and duration
// at debug level.
func (s *Server) WithRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()

		lw := metrics.NewLoggedResponseWriter(rw)
		ctx = timing.NewContext(ctx, func(duration time.Duration) {
			s.logger.WithFields(logrus.Fields{
				"status":     lw.Status(),
				"method":     req.Method,
				"path":       req.URL.Path,
				"remote":     req.RemoteAddr,
				"duration":   float64(duration) / float64(time.Millisecond),
				"user-agent": req.UserAgent(),
			}).Debug("HTTP request complete")
		})

		next.ServeHTTP(lw, req.WithContext(ctx))
	})
}

// WithServeContext cancels the request context when parent is done, so
// long running requests like event streams end on shutdown.
func (s *Server) WithServeContext(parent context.Context, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()
		go func() {
			select {
			case <-parent.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		next.ServeHTTP(rw, req.WithContext(ctx))
	})
}

// AddRoutes add the accociated Servers URL routes to the provided router with
// the provided context.Context.
func (s *Server) AddRoutes(ctx context.Context, router *mux.Router, chain alice.Chain) http.Handler {
	router.Handle("/health-check", chain.ThenFunc(s.HealthCheckHandler))

	return router
}

// AddServices creates the media source manager and adds its API routes.
func (s *Server) AddServices(ctx context.Context, router *mux.Router, chain alice.Chain) (*bridge.Services, *msem.Manager, error) {
	manager, err := msem.NewManager(ctx, s.config)
	if err != nil {
		return nil, nil, err
	}
	services := &bridge.Services{
		MediaSources: manager,
	}

	apiv0.NewHTTPService(ctx, s.logger, services).AddRoutes(ctx, router, chain)

	return services, manager, nil
}

// Serve starts the HTTP listener and the media source manager and blocks
// until a signal is received, ctx is done or the listener fails. All media
// sources are closed before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	serveCtx, serveCtxCancel := context.WithCancel(ctx)
	defer serveCtxCancel()

	logger := s.logger

	router := mux.NewRouter()
	chain := alice.New()
	if s.requestLog {
		chain = chain.Append(s.WithRequestLog)
	}
	s.AddRoutes(serveCtx, router, chain)

	_, manager, err := s.AddServices(serveCtx, router, chain)
	if err != nil {
		return err
	}

	logger.WithField("listenAddr", s.listenAddr).Infoln("starting http listener")
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler: s.WithServeContext(serveCtx, router),
	}
	errCh := make(chan error, 1)
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		logger.Debugln("http listener stopped")
	}()

	logger.Infoln("ready to handle requests")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case err = <-errCh:
	case reason := <-signalCh:
		logger.WithField("signal", reason).Warnln("received signal")
	case <-ctx.Done():
	}

	s.stop(serveCtxCancel, srv, manager, signalCh)
	return err
}

// stop closes all media sources, then shuts down the HTTP server and waits
// for the manager. A second signal stops waiting.
func (s *Server) stop(cancel context.CancelFunc, srv *http.Server, manager *msem.Manager, signalCh <-chan os.Signal) {
	logger := s.logger
	atomic.StoreInt32(&s.shutdown, 1)

	logger.Infoln("clean server shutdown start")
	cancel()

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCtxCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("clean server shutdown failed")
	}

	exitCh := make(chan struct{})
	go func() {
		manager.Wait()
		close(exitCh)
	}()

	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-exitCh:
			logger.Infoln("clean server shutdown complete")
			return
		case reason := <-signalCh:
			logger.WithField("signal", reason).Warn("received signal")
			return
		case <-ticker.C:
			logger.WithField("active", manager.NumActive()).Info("waiting for services to exit")
		}
	}
}
