/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package events

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/orcaman/concurrent-map"

	"stash.kopano.io/kwm/kwmmse/internal/utils"
)

// ErrSubscriptionClosed is returned when waiting on a closed Subscription.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Hub fans out published events to its subscriptions.
type Hub struct {
	subscriptions cmap.ConcurrentMap
	closed        int32
}

// NewHub creates a Hub without subscriptions.
func NewHub() *Hub {
	return &Hub{
		subscriptions: cmap.New(),
	}
}

// Subscribe registers a new Subscription.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		hub: h,
		id:  utils.NewRandomGUID(),

		pending: NewOutbox(),
		ready:   make(chan struct{}, 1), // Allow exactly one.
		done:    make(chan struct{}),
	}
	if atomic.LoadInt32(&h.closed) == 1 {
		sub.closed = 1
		close(sub.done)
		return sub
	}
	h.subscriptions.Set(sub.id, sub)
	// Close might have missed the subscription.
	if atomic.LoadInt32(&h.closed) == 1 {
		sub.Close()
	}
	return sub
}

// Publish hands the events to every subscription. It never blocks.
func (h *Hub) Publish(events []Event) {
	if len(events) == 0 {
		return
	}
	h.subscriptions.IterCb(func(id string, record interface{}) {
		record.(*Subscription).push(events)
	})
}

// Count returns the number of active subscriptions.
func (h *Hub) Count() int {
	return h.subscriptions.Count()
}

// Close closes all subscriptions. Subscriptions made after Close are
// returned closed.
func (h *Hub) Close() {
	atomic.StoreInt32(&h.closed, 1)
	for _, record := range h.subscriptions.Items() {
		record.(*Subscription).Close()
	}
}

// Subscription receives events published at its Hub. Events published
// before the subscriber drained them are coalesced.
type Subscription struct {
	hub *Hub
	id  string

	pending *Outbox
	ready   chan struct{}
	done    chan struct{}
	closed  int32
}

func (sub *Subscription) push(events []Event) {
	if atomic.LoadInt32(&sub.closed) == 1 {
		return
	}
	sub.pending.Merge(events)
	select {
	case sub.ready <- struct{}{}:
	default:
		// Already signaled.
	}
}

// Ready is signaled when events are pending.
func (sub *Subscription) Ready() <-chan struct{} {
	return sub.ready
}

// Done is closed when the subscription is closed.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Drain returns all pending events.
func (sub *Subscription) Drain() []Event {
	return sub.pending.Flush()
}

// Next waits until events are pending and returns them.
func (sub *Subscription) Next(ctx context.Context) ([]Event, error) {
	for {
		if events := sub.Drain(); len(events) > 0 {
			return events, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sub.done:
			return nil, ErrSubscriptionClosed
		case <-sub.ready:
		}
	}
}

// Close removes the subscription from its hub.
func (sub *Subscription) Close() {
	if closed := atomic.SwapInt32(&sub.closed, 1); closed == 1 {
		return
	}
	sub.hub.subscriptions.Remove(sub.id)
	close(sub.done)
}
