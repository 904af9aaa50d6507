/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxCoalescesByKindAndSource(t *testing.T) {
	o := NewOutbox()
	o.Schedule(KindBuffersAdded, "a")
	o.Schedule(KindBuffersAdded, "a")
	o.Schedule(KindBuffersRemoved, "a")
	o.Schedule(KindBuffersAdded, "a")
	o.Schedule(KindBuffersAdded, "b")

	assert.Equal(t, 3, o.Len())
	assert.Equal(t, []Event{
		{Kind: KindBuffersAdded, Source: "a"},
		{Kind: KindBuffersRemoved, Source: "a"},
		{Kind: KindBuffersAdded, Source: "b"},
	}, o.Flush())

	assert.Equal(t, 0, o.Len())
	assert.Nil(t, o.Flush())

	o.Schedule(KindBuffersAdded, "a")
	assert.Equal(t, []Event{{Kind: KindBuffersAdded, Source: "a"}}, o.Flush(), "flush must reset coalescing")
}

func TestEventJSON(t *testing.T) {
	b, err := json.Marshal(Event{Kind: KindTrackSelectionChanged, Source: "sb1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"track-selection-changed","source":"sb1"}`, string(b))
}

func TestHubDeliversToAllSubscriptions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := NewHub()
	sub1 := hub.Subscribe()
	sub2 := hub.Subscribe()
	assert.Equal(t, 2, hub.Count())

	hub.Publish([]Event{{Kind: KindDurationChanged, Source: "ms"}})

	for _, sub := range []*Subscription{sub1, sub2} {
		events, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Event{{Kind: KindDurationChanged, Source: "ms"}}, events)
	}
}

func TestSubscriptionCoalescesUndrainedBatches(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()

	hub.Publish([]Event{{Kind: KindBuffersAdded, Source: "ms"}})
	hub.Publish([]Event{{Kind: KindBuffersAdded, Source: "ms"}, {Kind: KindBuffersRemoved, Source: "ms"}})

	select {
	case <-sub.Ready():
	default:
		t.Fatal("subscription must be signaled")
	}
	assert.Equal(t, []Event{
		{Kind: KindBuffersAdded, Source: "ms"},
		{Kind: KindBuffersRemoved, Source: "ms"},
	}, sub.Drain())
}

func TestSubscriptionClose(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	sub.Close()
	sub.Close()

	assert.Equal(t, 0, hub.Count())
	hub.Publish([]Event{{Kind: KindSeeking, Source: "ms"}})

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	hub.Close()

	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription must be done after hub close")
	}
}

func TestHubSubscribeAfterClose(t *testing.T) {
	hub := NewHub()
	hub.Close()

	sub := hub.Subscribe()
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription must be done when the hub is closed")
	}
	assert.Equal(t, 0, hub.Count())

	hub.Publish([]Event{{Kind: KindBuffersAdded, Source: "a"}})
	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
	assert.NotPanics(t, sub.Close)
}
