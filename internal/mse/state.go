/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"fmt"
	"time"
)

// ReadyState is the lifecycle stage of a media source.
type ReadyState int

// Ready states.
const (
	ReadyStateClosed ReadyState = iota
	ReadyStateOpen
	ReadyStateEnded
)

func (s ReadyState) String() string {
	switch s {
	case ReadyStateClosed:
		return "closed"
	case ReadyStateOpen:
		return "open"
	case ReadyStateEnded:
		return "ended"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ReadyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseReadyState parses the ready state keyword.
func ParseReadyState(value string) (ReadyState, error) {
	switch value {
	case "closed":
		return ReadyStateClosed, nil
	case "open":
		return ReadyStateOpen, nil
	case "ended":
		return ReadyStateEnded, nil
	}
	return ReadyStateClosed, fmt.Errorf("unknown ready state %q", value)
}

// EndOfStreamStatus is the error status recorded with an end of stream.
type EndOfStreamStatus int

// End of stream status values.
const (
	EndOfStreamNone EndOfStreamStatus = iota
	EndOfStreamNetworkError
	EndOfStreamDecodeError
)

func (s EndOfStreamStatus) String() string {
	switch s {
	case EndOfStreamNone:
		return ""
	case EndOfStreamNetworkError:
		return "network"
	case EndOfStreamDecodeError:
		return "decode"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s EndOfStreamStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseEndOfStreamStatus parses the end of stream status keyword. The empty
// string is EndOfStreamNone.
func ParseEndOfStreamStatus(value string) (EndOfStreamStatus, error) {
	switch value {
	case "":
		return EndOfStreamNone, nil
	case "network":
		return EndOfStreamNetworkError, nil
	case "decode":
		return EndOfStreamDecodeError, nil
	}
	return EndOfStreamNone, fmt.Errorf("unknown end of stream status %q", value)
}

// PlaybackState is the decode readiness of a source buffer as reported by
// the pipeline.
type PlaybackState int

// Playback states, in increasing order of readiness.
const (
	HaveNothing PlaybackState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

func (s PlaybackState) String() string {
	switch s {
	case HaveNothing:
		return "nothing"
	case HaveMetadata:
		return "metadata"
	case HaveCurrentData:
		return "current-data"
	case HaveFutureData:
		return "future-data"
	case HaveEnoughData:
		return "enough-data"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a snapshot of a media source's state.
type State struct {
	ReadyState        ReadyState
	Duration          float64
	HasDuration       bool
	EndOfStreamStatus EndOfStreamStatus
	PendingSeek       *time.Duration
	Playback          PlaybackState
}
