/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"stash.kopano.io/kwm/kwmmse/internal/events"
)

func testBuffers(ids ...string) []*SourceBuffer {
	buffers := make([]*SourceBuffer, len(ids))
	for idx, id := range ids {
		buffers[idx] = &SourceBuffer{id: id}
	}
	return buffers
}

func ids(buffers []*SourceBuffer) []string {
	result := make([]string, 0, len(buffers))
	for _, b := range buffers {
		result = append(result, b.id)
	}
	return result
}

func TestCollectionOrderFollowsAdds(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	pool := testBuffers("a", "b", "c", "d", "e", "f")

	for round := 0; round < 50; round++ {
		c := NewCollection("source", events.NewOutbox())
		var model []*SourceBuffer

		for step := 0; step < 30; step++ {
			b := pool[rnd.Intn(len(pool))]
			if rnd.Intn(2) == 0 {
				added := c.Add(b)
				present := false
				for _, m := range model {
					if m == b {
						present = true
					}
				}
				assert.Equal(t, !present, added)
				if !present {
					model = append(model, b)
				}
			} else {
				removed := c.Remove(b)
				idx := -1
				for i, m := range model {
					if m == b {
						idx = i
					}
				}
				assert.Equal(t, idx >= 0, removed)
				if idx >= 0 {
					model = append(model[:idx], model[idx+1:]...)
				}
			}
			assert.Equal(t, ids(model), ids(c.Buffers()))
		}
	}
}

func TestCollectionAddPresentIsNoop(t *testing.T) {
	outbox := events.NewOutbox()
	c := NewCollection("source", outbox)
	buffers := testBuffers("a", "b")

	assert.True(t, c.Add(buffers[0]))
	assert.True(t, c.Add(buffers[1]))
	outbox.Flush()

	assert.False(t, c.Add(buffers[0]))
	assert.Equal(t, []string{"a", "b"}, ids(c.Buffers()))
	assert.Equal(t, 0, outbox.Len())
}

func TestCollectionRemoveAbsentIsNoop(t *testing.T) {
	outbox := events.NewOutbox()
	c := NewCollection("source", outbox)
	buffers := testBuffers("a", "b")

	c.Add(buffers[0])
	outbox.Flush()

	assert.False(t, c.Remove(buffers[1]))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, outbox.Len())
}

func TestCollectionCoalescesPerKind(t *testing.T) {
	outbox := events.NewOutbox()
	c := NewCollection("source", outbox)
	buffers := testBuffers("first", "second", "third")

	for _, b := range buffers {
		c.Add(b)
	}
	c.Remove(buffers[1])

	assert.Equal(t, []events.Event{
		{Kind: events.KindBuffersAdded, Source: "source"},
		{Kind: events.KindBuffersRemoved, Source: "source"},
	}, outbox.Flush())
	assert.Equal(t, []string{"first", "third"}, ids(c.Buffers()))
}

func TestCollectionClearSchedulesOnce(t *testing.T) {
	outbox := events.NewOutbox()
	c := NewCollection("source", outbox)
	for _, b := range testBuffers("a", "b", "c") {
		c.Add(b)
	}
	outbox.Flush()

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, []events.Event{
		{Kind: events.KindBuffersRemoved, Source: "source"},
	}, outbox.Flush())

	c.Clear()
	assert.Equal(t, 0, outbox.Len())
}

func TestCollectionItemAndFind(t *testing.T) {
	c := NewCollection("source", events.NewOutbox())
	buffers := testBuffers("a", "b")
	c.Add(buffers[0])
	c.Add(buffers[1])

	assert.Equal(t, buffers[1], c.Item(1))
	assert.Nil(t, c.Item(2))
	assert.Nil(t, c.Item(-1))

	b, ok := c.Find("a")
	assert.True(t, ok)
	assert.Equal(t, buffers[0], b)
	_, ok = c.Find("z")
	assert.False(t, ok)

	visited := 0
	c.Each(func(index int, buffer *SourceBuffer) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestCollectionSwap(t *testing.T) {
	outbox := events.NewOutbox()
	c := NewCollection("active", outbox)
	buffers := testBuffers("a", "b", "c")

	c.Swap(buffers[:2])
	assert.Equal(t, []events.Event{
		{Kind: events.KindBuffersAdded, Source: "active"},
	}, outbox.Flush())

	c.Swap(buffers[:2])
	assert.Equal(t, 0, outbox.Len())

	c.Swap([]*SourceBuffer{buffers[1], buffers[2]})
	assert.Equal(t, []events.Event{
		{Kind: events.KindBuffersRemoved, Source: "active"},
		{Kind: events.KindBuffersAdded, Source: "active"},
	}, outbox.Flush())
	assert.Equal(t, []string{"b", "c"}, ids(c.Buffers()))
}
