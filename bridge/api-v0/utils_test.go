/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash.kopano.io/kwm/kwmmse/bridge/odata"
)

func TestWriteErrorAsJSON(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
		code   string
	}{
		{NewErrorWithCodeAndMessage("ErrorThingNotFound", "gone fishing", ErrNotFound), http.StatusNotFound, "ErrorThingNotFound"},
		{NewErrorWithCodeAndMessage(ErrorCodeInvalidState, "", fmt.Errorf("wrapped: %w", ErrConflict)), http.StatusConflict, ErrorCodeInvalidState},
		{NewErrorWithCodeAndMessage(ErrorCodeDetached, "", ErrGone), http.StatusGone, ErrorCodeDetached},
		{NewErrorWithCodeAndMessage(ErrorCodeNotSupported, "", ErrUnsupportedMediaType), http.StatusUnsupportedMediaType, ErrorCodeNotSupported},
		{NewErrorWithCodeAndMessage(ErrorCodeTooLarge, "", ErrTooLarge), http.StatusRequestEntityTooLarge, ErrorCodeTooLarge},
		{NewErrorWithCodeAndMessage(ErrorCodeBadRequest, "", ErrBadRequest), http.StatusBadRequest, ErrorCodeBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError, ErrorCodeUnspecifiedError},
	} {
		rr := httptest.NewRecorder()
		require.NoError(t, WriteErrorAsJSON(rr, tc.err))
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())

		var e ErrorWithCodeAndMessage
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
		assert.Equal(t, tc.code, e.Code)
		assert.NotEmpty(t, e.Message)
	}
}

func TestResourceContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/things?x=1", nil)

	item := NewItemResource("value", req)
	assert.Equal(t, "/api/things", item.ODataContext)

	var collection *CollectionResource
	odata.WithOData(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		next, _ := url.Parse("/api/things?page=2")
		collection = NewCollectionResource([]string{"a"}, r, next)
	})).ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, collection)
	assert.Equal(t, "/api/things", collection.ODataContext)
	assert.Equal(t, "/api/things?page=2", collection.ODataNextLink)
}
