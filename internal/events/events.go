/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package events implements the coalescing notification outbox and the hub
// which delivers flushed notifications to subscribers.
package events

import (
	"fmt"
)

// Kind is the closed set of notification kinds.
type Kind int

// Notification kinds.
const (
	KindBuffersAdded Kind = iota + 1
	KindBuffersRemoved
	KindDurationChanged
	KindReadyStateChanged
	KindTrackSelectionChanged
	KindSeeking
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindBuffersAdded:
		return "buffers-added"
	case KindBuffersRemoved:
		return "buffers-removed"
	case KindDurationChanged:
		return "duration-changed"
	case KindReadyStateChanged:
		return "ready-state-changed"
	case KindTrackSelectionChanged:
		return "track-selection-changed"
	case KindSeeking:
		return "seeking"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event signals that something of Kind changed at Source. It carries no
// diff, receivers re-read the current state.
type Event struct {
	Kind   Kind   `json:"type"`
	Source string `json:"source"`
}
