/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package trackstate holds the enumerations describing tracks and capture
// sources together with their keyword lookup tables.
package trackstate

import (
	"stash.kopano.io/kwm/kwmmse/internal/assert"
)

// Kind is the role of a track within its presentation.
type Kind int

// Track kinds.
const (
	KindAlternative Kind = iota
	KindCaptions
	KindMain
	KindSign
	KindSubtitles
	KindCommentary
	KindNone
)

var kindKeywords = map[string]Kind{
	"alternative": KindAlternative,
	"captions":    KindCaptions,
	"main":        KindMain,
	"sign":        KindSign,
	"subtitles":   KindSubtitles,
	"commentary":  KindCommentary,
	"":            KindNone,
}

func (k Kind) String() string {
	switch k {
	case KindAlternative:
		return "alternative"
	case KindCaptions:
		return "captions"
	case KindMain:
		return "main"
	case KindSign:
		return "sign"
	case KindSubtitles:
		return "subtitles"
	case KindCommentary:
		return "commentary"
	case KindNone:
		return ""
	}

	assert.NotReached("unknown track kind %d", int(k))
	return ""
}

// ParseKind returns the Kind for the provided keyword. Only the exact
// keywords are valid.
func ParseKind(keyword string) (Kind, bool) {
	kind, ok := kindKeywords[keyword]
	if !ok {
		return KindNone, false
	}
	return kind, true
}

// Type is the media type carried by a track.
type Type int

// Track types.
const (
	TypeVideo Type = iota + 1
	TypeAudio
	TypeText
)

func (t Type) String() string {
	switch t {
	case TypeVideo:
		return "video"
	case TypeAudio:
		return "audio"
	case TypeText:
		return "text"
	}

	assert.NotReached("unknown track type %d", int(t))
	return ""
}

// FacingMode is the direction a video capture source is facing.
type FacingMode int

// Facing modes.
const (
	FacingUnknown FacingMode = iota
	FacingUser
	FacingEnvironment
	FacingLeft
	FacingRight
)

func (f FacingMode) String() string {
	switch f {
	case FacingUser:
		return "user"
	case FacingEnvironment:
		return "environment"
	case FacingLeft:
		return "left"
	case FacingRight:
		return "right"
	case FacingUnknown:
		return ""
	}

	assert.NotReached("unknown facing mode %d", int(f))
	return ""
}

// SourceType is the kind of device a capture source reads from.
type SourceType int

// Source types.
const (
	SourceNone SourceType = iota
	SourceCamera
	SourceMicrophone
)

func (s SourceType) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceCamera:
		return "camera"
	case SourceMicrophone:
		return "microphone"
	}

	assert.NotReached("unknown source type %d", int(s))
	return ""
}
