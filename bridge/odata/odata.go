/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package odata

import (
	"context"
	"net/http"
)

type key int

const (
	odataKey key = 0
)

// OData holds the request scoped values rendered into resource envelopes.
type OData struct {
	// Context is the request path, rendered as @odata.context.
	Context string
}

func newContextWithOData(ctx context.Context, req *http.Request) context.Context {
	odata := &OData{
		Context: req.URL.Path,
	}

	return context.WithValue(ctx, odataKey, odata)
}

// FromContext returns the OData of the request context, or nil when the
// request was not routed through WithOData.
func FromContext(ctx context.Context) *OData {
	o, _ := ctx.Value(odataKey).(*OData)
	return o
}

// WithOData is a middleware which attaches the OData of the request to its
// context.
func WithOData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ctx := newContextWithOData(req.Context(), req)
		next.ServeHTTP(rw, req.WithContext(ctx))
	})
}
