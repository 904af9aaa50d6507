/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package loop implements the consumer context: a single goroutine which
// runs posted tasks one turn at a time and runs end of turn hooks after each.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

const defaultQueueSize = 100

// ErrStopped is returned when posting to a stopped Loop.
var ErrStopped = errors.New("loop stopped")

// Loop serializes tasks onto one goroutine.
type Loop struct {
	logger logrus.FieldLogger

	tasks    chan func()
	done     chan struct{}
	started  int32
	stopOnce sync.Once

	hooksMu deadlock.Mutex
	hooks   []func()

	turns uint64
}

// New creates a Loop with a task queue of the provided size.
func New(logger logrus.FieldLogger, size int) *Loop {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Loop{
		logger: logger,

		tasks: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// OnTurnEnd registers fn to run on the loop after every task.
func (l *Loop) OnTurnEnd(fn func()) {
	l.hooksMu.Lock()
	l.hooks = append(l.hooks, fn)
	l.hooksMu.Unlock()
}

// Run executes tasks until the provided context is done or Stop is called.
// Run blocks.
func (l *Loop) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&l.started, 0, 1) {
		return errors.New("already started")
	}
	defer l.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Debugln("loop context done")
			return nil
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			l.turn(fn)
		}
	}
}

func (l *Loop) turn(fn func()) {
	fn()

	l.hooksMu.Lock()
	hooks := l.hooks
	l.hooksMu.Unlock()
	for _, hook := range hooks {
		hook()
	}
	atomic.AddUint64(&l.turns, 1)
}

// Stop ends the loop. Queued tasks are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// Done is closed when the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Running reports whether Run has been called and the loop has not stopped.
func (l *Loop) Running() bool {
	if atomic.LoadInt32(&l.started) == 0 {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Turns returns the number of completed turns.
func (l *Loop) Turns() uint64 {
	return atomic.LoadUint64(&l.turns)
}

// Post queues fn to run in its own turn. It does not wait for fn.
func (l *Loop) Post(fn func()) error {
	return l.post(context.Background(), fn)
}

func (l *Loop) post(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.tasks <- fn:
		return nil
	}
}

// Do runs fn in its own turn and waits for its result. Do must not be called
// from a task running on the same loop.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	if err := l.post(ctx, func() {
		errCh <- fn()
	}); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-errCh:
			return err
		default:
		}
		return ErrStopped
	}
}
