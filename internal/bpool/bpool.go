/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2018 Kopano and its licensors
 */

// Package bpool pools the buffers which hold request bodies.
package bpool

import (
	"bytes"
	"sync"
)

// MaxRetainedSize is the capacity above which buffers are dropped instead of
// returned to the pool.
const MaxRetainedSize = 4 * 1024 * 1024

var bpool sync.Pool

// Get returns a buffer from the pool creating a new one if the pool is empty.
func Get() *bytes.Buffer {
	b, ok := bpool.Get().(*bytes.Buffer)
	if !ok {
		b = &bytes.Buffer{}
	}
	return b
}

// Put returns the provided buffer into the pool. Buffers which grew beyond
// MaxRetainedSize are left to the garbage collector.
func Put(b *bytes.Buffer) {
	if b.Cap() > MaxRetainedSize {
		return
	}
	b.Reset()
	bpool.Put(b)
}
