/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package api

import (
	"fmt"
	"net/http"
	"net/url"

	"stash.kopano.io/kwm/kwmmse/bridge/odata"
)

type CollectionResource struct {
	ODataContext  string `json:"@odata.context"`
	ODataNextLink string `json:"@odata.nextLink,omitempty"`

	Values Collection `json:"values"`
}

type Collection interface{}

// NewCollectionResource wraps values for the request. The next link is
// optional.
func NewCollectionResource(values Collection, req *http.Request, next *url.URL) *CollectionResource {
	resource := &CollectionResource{
		ODataContext: contextFromRequest(req),
		Values:       values,
	}
	if next != nil {
		resource.ODataNextLink = next.String()
	}
	return resource
}

type ItemResource struct {
	ODataContext string `json:"@odata.context"`

	Value Item `json:"value"`
}

type Item interface{}

// NewItemResource wraps a single item for the request.
func NewItemResource(item Item, req *http.Request) *ItemResource {
	return &ItemResource{
		ODataContext: contextFromRequest(req),
		Value:        item,
	}
}

func contextFromRequest(req *http.Request) string {
	if o := odata.FromContext(req.Context()); o != nil {
		return o.Context
	}
	return req.URL.Path
}

type ErrorResource struct {
	Error interface{}
}

type ErrorWithCodeAndMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	innerError error
}

func NewErrorWithCodeAndMessage(code string, message string, err error) *ErrorWithCodeAndMessage {
	return &ErrorWithCodeAndMessage{
		Code:    code,
		Message: message,

		innerError: err,
	}
}

func (err *ErrorWithCodeAndMessage) Error() string {
	code := err.Code
	message := err.Message
	if message == "" && err.innerError != nil {
		message = err.innerError.Error()
	}

	return fmt.Sprintf("%s: %s", code, message)
}

func (err *ErrorWithCodeAndMessage) Unwrap() error {
	return err.innerError
}
