/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package trackstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindKeywords(t *testing.T) {
	for _, kind := range []Kind{KindAlternative, KindCaptions, KindMain, KindSign, KindSubtitles, KindCommentary, KindNone} {
		parsed, ok := ParseKind(kind.String())
		assert.True(t, ok, "keyword %q must parse", kind.String())
		assert.Equal(t, kind, parsed)
	}

	assert.Equal(t, "", KindNone.String())
	assert.Equal(t, "sign", KindSign.String())
}

func TestParseKindRejectsUnknown(t *testing.T) {
	for _, keyword := range []string{"Main", "description", " main", "none"} {
		kind, ok := ParseKind(keyword)
		assert.False(t, ok, keyword)
		assert.Equal(t, KindNone, kind)
	}
}

func TestFacingModeStrings(t *testing.T) {
	assert.Equal(t, "user", FacingUser.String())
	assert.Equal(t, "environment", FacingEnvironment.String())
	assert.Equal(t, "left", FacingLeft.String())
	assert.Equal(t, "right", FacingRight.String())
	assert.Equal(t, "", FacingUnknown.String())
}

func TestSourceTypeStrings(t *testing.T) {
	assert.Equal(t, "none", SourceNone.String())
	assert.Equal(t, "camera", SourceCamera.String())
	assert.Equal(t, "microphone", SourceMicrophone.String())
}
