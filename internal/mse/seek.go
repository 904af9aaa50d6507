/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmmse/internal/events"
)

// SeekWaitPolicy decides what happens to a seek wait requested while another
// one is outstanding.
type SeekWaitPolicy int

// Seek wait policies.
const (
	// SeekWaitReject fails the second wait with ErrOrderingViolation.
	SeekWaitReject SeekWaitPolicy = iota
	// SeekWaitQueue parks the second wait until the outstanding handshake
	// resolved, then makes it the outstanding one.
	SeekWaitQueue
)

func (p SeekWaitPolicy) String() string {
	switch p {
	case SeekWaitReject:
		return "reject"
	case SeekWaitQueue:
		return "queue"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseSeekWaitPolicy parses the policy keyword.
func ParseSeekWaitPolicy(value string) (SeekWaitPolicy, error) {
	switch value {
	case "", "reject":
		return SeekWaitReject, nil
	case "queue":
		return SeekWaitQueue, nil
	}
	return SeekWaitReject, fmt.Errorf("unknown seek wait policy %q", value)
}

type seekWaiter struct {
	target time.Duration
	done   chan error
}

func newSeekWaiter(target time.Duration) *seekWaiter {
	return &seekWaiter{
		target: target,
		done:   make(chan error, 1), // Resolved exactly once.
	}
}

func (w *seekWaiter) resolve(err error) {
	select {
	case w.done <- err:
	default:
	}
}

// seekBarrier is owned by the consumer context.
type seekBarrier struct {
	policy SeekWaitPolicy
	active *seekWaiter
	queue  []*seekWaiter
}

func newSeekBarrier(policy SeekWaitPolicy) *seekBarrier {
	return &seekBarrier{
		policy: policy,
	}
}

// PendingSeek returns the target of the outstanding seek wait.
func (ms *MediaSource) PendingSeek() (time.Duration, bool) {
	if ms.seek.active == nil {
		return 0, false
	}
	return ms.seek.active.target, true
}

// SeekCompleted resolves the outstanding seek wait. Without an outstanding
// wait it returns ErrOrderingViolation.
func (ms *MediaSource) SeekCompleted() error {
	w := ms.seek.active
	if w == nil {
		return fmt.Errorf("seek completed without pending seek: %w", ErrOrderingViolation)
	}

	ms.seek.active = nil
	w.resolve(nil)
	ms.metrics.seek("completed")
	ms.logger.WithField("target", w.target).Debugln("seek completed")

	ms.activateNextSeek()
	return nil
}

func (ms *MediaSource) beginSeek(w *seekWaiter) error {
	if ms.readyState == ReadyStateClosed {
		return fmt.Errorf("seek in %s state: %w", ms.readyState, ErrInvalidState)
	}
	if ms.seek.active != nil {
		if ms.seek.policy != SeekWaitQueue {
			ms.metrics.seek("rejected")
			return fmt.Errorf("seek requested while another is pending: %w", ErrOrderingViolation)
		}
		ms.seek.queue = append(ms.seek.queue, w)
		ms.metrics.seek("queued")
		ms.logger.WithFields(logrus.Fields{
			"target": w.target,
			"queued": len(ms.seek.queue),
		}).Debugln("seek queued")
		return nil
	}

	ms.activateSeek(w)
	return nil
}

func (ms *MediaSource) activateSeek(w *seekWaiter) {
	ms.seek.active = w
	ms.outbox.Schedule(events.KindSeeking, ms.id)
	ms.logger.WithField("target", w.target).Debugln("seek pending")
}

func (ms *MediaSource) activateNextSeek() {
	if len(ms.seek.queue) == 0 {
		return
	}
	next := ms.seek.queue[0]
	ms.seek.queue = ms.seek.queue[1:]
	ms.activateSeek(next)
}

// withdrawSeek removes w, wherever it is.
func (ms *MediaSource) withdrawSeek(w *seekWaiter) {
	if ms.seek.active == w {
		ms.seek.active = nil
		ms.metrics.seek("withdrawn")
		ms.activateNextSeek()
		return
	}
	for idx, queued := range ms.seek.queue {
		if queued == w {
			ms.seek.queue = append(ms.seek.queue[:idx], ms.seek.queue[idx+1:]...)
			ms.metrics.seek("withdrawn")
			return
		}
	}
}

func (ms *MediaSource) failSeeks(err error) {
	if ms.seek.active != nil {
		ms.seek.active.resolve(err)
		ms.seek.active = nil
		ms.metrics.seek("failed")
	}
	for _, w := range ms.seek.queue {
		w.resolve(err)
		ms.metrics.seek("failed")
	}
	ms.seek.queue = nil
}

// RequestSeekSync blocks until the consumer acknowledged the seek to target
// with SeekCompleted. Canceling ctx withdraws the wait. Closing the media
// source fails the wait with ErrDetached.
func (ms *MediaSource) RequestSeekSync(ctx context.Context, target time.Duration) error {
	w := newSeekWaiter(target)
	if err := ms.Do(ctx, func() error {
		return ms.beginSeek(w)
	}); err != nil {
		if errors.Is(err, ctx.Err()) {
			// The request might still run, withdraw it after.
			ms.withdrawSeekLater(w)
		}
		return err
	}

	select {
	case err := <-w.done:
		return err

	case <-ctx.Done():
		ms.withdrawSeekNow(w)
		select {
		case err := <-w.done:
			if err == nil {
				return nil
			}
		default:
		}
		return ctx.Err()

	case <-ms.loop.Done():
		select {
		case err := <-w.done:
			return err
		default:
		}
		return fmt.Errorf("media source %s closed while seeking: %w", ms.id, ErrDetached)
	}
}

// withdrawSeekLater queues the withdraw of w without waiting for it.
func (ms *MediaSource) withdrawSeekLater(w *seekWaiter) {
	if err := ms.loop.Post(func() {
		ms.withdrawSeek(w)
	}); err != nil {
		ms.logger.WithError(err).WithField("target", w.target).Debugln("seek withdraw not posted")
	}
}

// withdrawSeekNow withdraws w and waits until done.
func (ms *MediaSource) withdrawSeekNow(w *seekWaiter) {
	if err := ms.loop.Do(context.Background(), func() error {
		ms.withdrawSeek(w)
		return nil
	}); err != nil {
		ms.logger.WithError(err).WithField("target", w.target).Debugln("seek withdraw did not run")
	}
}

// AckSeekSync runs SeekCompleted on the consumer context.
func (ms *MediaSource) AckSeekSync(ctx context.Context) error {
	return ms.Do(ctx, ms.SeekCompleted)
}
