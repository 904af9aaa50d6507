/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash.kopano.io/kwm/kwmmse/internal/events"
	"stash.kopano.io/kwm/kwmmse/internal/loop"
)

func pendingSeek(t *testing.T, ms *MediaSource) (time.Duration, bool) {
	var target time.Duration
	var ok bool
	do(t, ms, func() error {
		target, ok = ms.PendingSeek()
		return nil
	})
	return target, ok
}

func waitForPendingSeek(t *testing.T, ms *MediaSource, expected time.Duration) {
	require.Eventually(t, func() bool {
		target, ok := pendingSeek(t, ms)
		return ok && target == expected
	}, 5*time.Second, 5*time.Millisecond)
}

func requestSeekAsync(ms *MediaSource, ctx context.Context, target time.Duration) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- ms.RequestSeekSync(ctx, target)
	}()
	return result
}

func requireResult(t *testing.T, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("seek wait did not return")
	}
	return nil
}

func requireBlocked(t *testing.T, result <-chan error) {
	select {
	case err := <-result:
		t.Fatalf("seek wait returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSeekCompletedWithoutWait(t *testing.T) {
	ms, _, sub := openTestMediaSource(t, nil)

	assert.ErrorIs(t, ms.AckSeekSync(context.Background()), ErrOrderingViolation)
	_, ok := pendingSeek(t, ms)
	assert.False(t, ok)
	assert.Empty(t, settle(t, ms, sub))
}

func TestSeekHandshake(t *testing.T) {
	ms, _, sub := openTestMediaSource(t, nil)

	result := requestSeekAsync(ms, context.Background(), 3*time.Second)
	waitForPendingSeek(t, ms, 3*time.Second)
	requireBlocked(t, result)
	assert.Contains(t, settle(t, ms, sub), events.Event{Kind: events.KindSeeking, Source: ms.ID()})

	do(t, ms, func() error {
		assert.NotNil(t, ms.State().PendingSeek)
		return nil
	})

	require.NoError(t, ms.AckSeekSync(context.Background()))
	assert.NoError(t, requireResult(t, result))
	_, ok := pendingSeek(t, ms)
	assert.False(t, ok)

	// A completed handshake cannot be completed again.
	assert.ErrorIs(t, ms.AckSeekSync(context.Background()), ErrOrderingViolation)
}

func TestSeekRequiresAttachedSource(t *testing.T) {
	ms, _ := newTestMediaSource(t, nil)

	assert.ErrorIs(t, ms.RequestSeekSync(context.Background(), time.Second), ErrInvalidState)
}

func TestSecondSeekRejected(t *testing.T) {
	ms, _, _ := openTestMediaSource(t, &Config{SeekWaitPolicy: SeekWaitReject})

	first := requestSeekAsync(ms, context.Background(), time.Second)
	waitForPendingSeek(t, ms, time.Second)

	err := ms.RequestSeekSync(context.Background(), 2*time.Second)
	assert.ErrorIs(t, err, ErrOrderingViolation)

	target, ok := pendingSeek(t, ms)
	assert.True(t, ok)
	assert.Equal(t, time.Second, target)

	require.NoError(t, ms.AckSeekSync(context.Background()))
	assert.NoError(t, requireResult(t, first))
}

func TestSecondSeekQueued(t *testing.T) {
	ms, _, _ := openTestMediaSource(t, &Config{SeekWaitPolicy: SeekWaitQueue})

	first := requestSeekAsync(ms, context.Background(), time.Second)
	waitForPendingSeek(t, ms, time.Second)
	second := requestSeekAsync(ms, context.Background(), 2*time.Second)
	requireBlocked(t, second)

	require.NoError(t, ms.AckSeekSync(context.Background()))
	assert.NoError(t, requireResult(t, first))

	// The queued wait is now the outstanding one.
	waitForPendingSeek(t, ms, 2*time.Second)
	requireBlocked(t, second)

	require.NoError(t, ms.AckSeekSync(context.Background()))
	assert.NoError(t, requireResult(t, second))
	assert.ErrorIs(t, ms.AckSeekSync(context.Background()), ErrOrderingViolation)
}

func TestSeekWaitWithdrawnOnCancel(t *testing.T) {
	ms, _, _ := openTestMediaSource(t, &Config{SeekWaitPolicy: SeekWaitQueue})

	ctx, cancel := context.WithCancel(context.Background())
	result := requestSeekAsync(ms, ctx, time.Second)
	waitForPendingSeek(t, ms, time.Second)

	cancel()
	assert.ErrorIs(t, requireResult(t, result), context.Canceled)

	_, ok := pendingSeek(t, ms)
	assert.False(t, ok)
	assert.ErrorIs(t, ms.AckSeekSync(context.Background()), ErrOrderingViolation)
}

func TestQueuedSeekWithdrawnOnCancel(t *testing.T) {
	ms, _, _ := openTestMediaSource(t, &Config{SeekWaitPolicy: SeekWaitQueue})

	first := requestSeekAsync(ms, context.Background(), time.Second)
	waitForPendingSeek(t, ms, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	second := requestSeekAsync(ms, ctx, 2*time.Second)
	requireBlocked(t, second)
	cancel()
	assert.ErrorIs(t, requireResult(t, second), context.Canceled)

	require.NoError(t, ms.AckSeekSync(context.Background()))
	assert.NoError(t, requireResult(t, first))
	_, ok := pendingSeek(t, ms)
	assert.False(t, ok)
}

func TestCloseUnblocksSeekWaiters(t *testing.T) {
	ms, _, _ := openTestMediaSource(t, &Config{SeekWaitPolicy: SeekWaitQueue})

	first := requestSeekAsync(ms, context.Background(), time.Second)
	waitForPendingSeek(t, ms, time.Second)
	second := requestSeekAsync(ms, context.Background(), 2*time.Second)
	requireBlocked(t, second)

	require.NoError(t, ms.Close())
	assert.ErrorIs(t, requireResult(t, first), ErrDetached)
	assert.ErrorIs(t, requireResult(t, second), ErrDetached)
}

func TestDetachUnblocksSeekWaiter(t *testing.T) {
	ms, _, _ := openTestMediaSource(t, nil)

	result := requestSeekAsync(ms, context.Background(), time.Second)
	waitForPendingSeek(t, ms, time.Second)

	require.NoError(t, ms.ReportReadyState(context.Background(), ReadyStateClosed))
	assert.ErrorIs(t, requireResult(t, result), ErrDetached)
}

func TestStoppedLoopUnblocksSeekWaiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ms, _ := startTestMediaSource(t, ctx, nil)
	do(t, ms, ms.Open)

	result := requestSeekAsync(ms, context.Background(), time.Second)
	waitForPendingSeek(t, ms, time.Second)

	cancel()
	assert.ErrorIs(t, requireResult(t, result), ErrDetached)
	<-ms.Done()
}

func TestSeekWithdrawOnStoppedLoopLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	ctx, cancel := context.WithCancel(context.Background())
	ms, _ := startTestMediaSource(t, ctx, &Config{Logger: logger})
	cancel()
	<-ms.Done()

	ms.withdrawSeekLater(newSeekWaiter(time.Second))
	ms.withdrawSeekNow(newSeekWaiter(2 * time.Second))

	var messages []string
	for _, entry := range hook.AllEntries() {
		if _, ok := entry.Data["target"]; !ok {
			continue
		}
		messages = append(messages, entry.Message)
		assert.Equal(t, logrus.DebugLevel, entry.Level)
		assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), loop.ErrStopped)
	}
	assert.Equal(t, []string{"seek withdraw not posted", "seek withdraw did not run"}, messages)
}

func TestParseSeekWaitPolicy(t *testing.T) {
	policy, err := ParseSeekWaitPolicy("queue")
	require.NoError(t, err)
	assert.Equal(t, SeekWaitQueue, policy)

	policy, err = ParseSeekWaitPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SeekWaitReject, policy)
	assert.Equal(t, "reject", policy.String())

	_, err = ParseSeekWaitPolicy("block")
	assert.Error(t, err)
}
