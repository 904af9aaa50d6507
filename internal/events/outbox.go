/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package events

import (
	"github.com/sasha-s/go-deadlock"
)

// Outbox collects scheduled events, keeping one entry per kind and source
// in the order they were first scheduled.
type Outbox struct {
	mu deadlock.Mutex

	pending   []Event
	scheduled map[Event]struct{}
}

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{
		scheduled: make(map[Event]struct{}),
	}
}

// Schedule adds an event of the provided kind for source unless the same
// event is already pending.
func (o *Outbox) Schedule(kind Kind, source string) {
	o.mu.Lock()
	o.schedule(Event{Kind: kind, Source: source})
	o.mu.Unlock()
}

// Merge schedules all provided events.
func (o *Outbox) Merge(events []Event) {
	o.mu.Lock()
	for _, event := range events {
		o.schedule(event)
	}
	o.mu.Unlock()
}

func (o *Outbox) schedule(event Event) {
	if _, ok := o.scheduled[event]; ok {
		return
	}
	o.scheduled[event] = struct{}{}
	o.pending = append(o.pending, event)
}

// Len returns the number of pending events.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Flush returns all pending events and empties the outbox.
func (o *Outbox) Flush() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.pending) == 0 {
		return nil
	}
	events := o.pending
	o.pending = nil
	o.scheduled = make(map[Event]struct{})
	return events
}
