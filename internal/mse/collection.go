/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"stash.kopano.io/kwm/kwmmse/internal/events"
)

// Collection is an ordered list of source buffers. Membership changes are
// scheduled on the outbox, named by the collection's source.
type Collection struct {
	source  string
	outbox  *events.Outbox
	buffers []*SourceBuffer
}

// NewCollection creates an empty Collection.
func NewCollection(source string, outbox *events.Outbox) *Collection {
	return &Collection{
		source: source,
		outbox: outbox,
	}
}

// Source returns the event source name of the collection.
func (c *Collection) Source() string {
	return c.source
}

// Len returns the number of buffers.
func (c *Collection) Len() int {
	return len(c.buffers)
}

// Item returns the buffer at index or nil if out of range.
func (c *Collection) Item(index int) *SourceBuffer {
	if index < 0 || index >= len(c.buffers) {
		return nil
	}
	return c.buffers[index]
}

// Contains reports whether the buffer is a member.
func (c *Collection) Contains(buffer *SourceBuffer) bool {
	return c.indexOf(buffer) >= 0
}

// Find returns the member with the provided id.
func (c *Collection) Find(id string) (*SourceBuffer, bool) {
	for _, buffer := range c.buffers {
		if buffer.id == id {
			return buffer, true
		}
	}
	return nil, false
}

// Buffers returns a copy of the members in order.
func (c *Collection) Buffers() []*SourceBuffer {
	buffers := make([]*SourceBuffer, len(c.buffers))
	copy(buffers, c.buffers)
	return buffers
}

// Each calls fn for the members in order until fn returns false. fn must not
// modify the collection.
func (c *Collection) Each(fn func(index int, buffer *SourceBuffer) bool) {
	for idx, buffer := range c.buffers {
		if !fn(idx, buffer) {
			return
		}
	}
}

// Add appends the buffer and reports whether it was not yet a member.
func (c *Collection) Add(buffer *SourceBuffer) bool {
	if c.Contains(buffer) {
		return false
	}
	c.buffers = append(c.buffers, buffer)
	c.outbox.Schedule(events.KindBuffersAdded, c.source)
	return true
}

// Remove removes the buffer and reports whether it was a member.
func (c *Collection) Remove(buffer *SourceBuffer) bool {
	idx := c.indexOf(buffer)
	if idx < 0 {
		return false
	}
	c.buffers = append(c.buffers[:idx], c.buffers[idx+1:]...)
	c.outbox.Schedule(events.KindBuffersRemoved, c.source)
	return true
}

// Clear removes all members.
func (c *Collection) Clear() {
	if len(c.buffers) == 0 {
		return
	}
	c.buffers = nil
	c.outbox.Schedule(events.KindBuffersRemoved, c.source)
}

// Swap replaces the members with buffers, scheduling added and removed
// events for the actual membership difference.
func (c *Collection) Swap(buffers []*SourceBuffer) {
	next := make(map[*SourceBuffer]struct{}, len(buffers))
	for _, buffer := range buffers {
		next[buffer] = struct{}{}
	}

	var added, removed bool
	for _, buffer := range c.buffers {
		if _, ok := next[buffer]; !ok {
			removed = true
			break
		}
	}
	for _, buffer := range buffers {
		if !c.Contains(buffer) {
			added = true
			break
		}
	}

	c.buffers = append([]*SourceBuffer(nil), buffers...)
	if removed {
		c.outbox.Schedule(events.KindBuffersRemoved, c.source)
	}
	if added {
		c.outbox.Schedule(events.KindBuffersAdded, c.source)
	}
}

func (c *Collection) indexOf(buffer *SourceBuffer) int {
	for idx, b := range c.buffers {
		if b == buffer {
			return idx
		}
	}
	return -1
}
