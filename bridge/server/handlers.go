/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package server

import (
	"net/http"
)

// HealthCheckHandler reports whether media sources can be created. It
// answers 503 once shutdown has begun.
func (s *Server) HealthCheckHandler(rw http.ResponseWriter, req *http.Request) {
	if s.stopping() {
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	rw.WriteHeader(http.StatusOK)
}
