/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package msem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"

	api "stash.kopano.io/kwm/kwmmse/bridge/api-v0"
	"stash.kopano.io/kwm/kwmmse/internal/bpool"
	"stash.kopano.io/kwm/kwmmse/internal/mse"
)

const maxRequestSize = 64 * 1024

// AddRoutes adds the manager's routes to r.
func (m *Manager) AddRoutes(r *mux.Router, chain alice.Chain) {
	// /api/kwm/v0/mse/sources
	// /api/kwm/v0/mse/sources/:source
	// /api/kwm/v0/mse/sources/:source/buffers/:buffer
	// /api/kwm/v0/mse/sources/:source/buffers/:buffer/append
	// /api/kwm/v0/mse/sources/:source/tracks/:track
	// /api/kwm/v0/mse/sources/:source/events
	r.Handle("/sources", chain.ThenFunc(m.HTTPSourcesHandler)).Methods(http.MethodGet)
	r.Handle("/sources", chain.ThenFunc(m.HTTPCreateSourceHandler)).Methods(http.MethodPost)
	r.Handle("/sources/{sourceID}", chain.ThenFunc(m.HTTPSourcesHandler)).Methods(http.MethodGet)
	r.Handle("/sources/{sourceID}", chain.ThenFunc(m.HTTPDeleteSourceHandler)).Methods(http.MethodDelete)

	r.Handle("/sources/{sourceID}/buffers", chain.ThenFunc(m.HTTPBuffersHandler)).Methods(http.MethodGet)
	r.Handle("/sources/{sourceID}/buffers", chain.ThenFunc(m.HTTPCreateBufferHandler)).Methods(http.MethodPost)
	r.Handle("/sources/{sourceID}/buffers/{bufferID}", chain.ThenFunc(m.HTTPBuffersHandler)).Methods(http.MethodGet)
	r.Handle("/sources/{sourceID}/buffers/{bufferID}", chain.ThenFunc(m.HTTPDeleteBufferHandler)).Methods(http.MethodDelete)
	r.Handle("/sources/{sourceID}/buffers/{bufferID}/append", chain.ThenFunc(m.HTTPAppendHandler)).Methods(http.MethodPost)
	r.Handle("/sources/{sourceID}/buffers/{bufferID}/abort", chain.ThenFunc(m.HTTPAbortHandler)).Methods(http.MethodPost)

	r.Handle("/sources/{sourceID}/duration", chain.ThenFunc(m.HTTPDurationHandler)).Methods(http.MethodPost)
	r.Handle("/sources/{sourceID}/end-of-stream", chain.ThenFunc(m.HTTPEndOfStreamHandler)).Methods(http.MethodPost, http.MethodDelete)
	r.Handle("/sources/{sourceID}/seek", chain.ThenFunc(m.HTTPSeekHandler)).Methods(http.MethodPost)
	r.Handle("/sources/{sourceID}/seek-completed", chain.ThenFunc(m.HTTPSeekCompletedHandler)).Methods(http.MethodPost)

	r.Handle("/sources/{sourceID}/tracks", chain.ThenFunc(m.HTTPTracksHandler)).Methods(http.MethodGet)
	r.Handle("/sources/{sourceID}/tracks/{trackID}", chain.ThenFunc(m.HTTPTracksHandler)).Methods(http.MethodGet)
	r.Handle("/sources/{sourceID}/tracks/{trackID}", chain.ThenFunc(m.HTTPSelectTrackHandler)).Methods(http.MethodPost)

	r.Handle("/sources/{sourceID}/events", chain.ThenFunc(m.HTTPEventsHandler)).Methods(http.MethodGet)
}

func (m *Manager) writeResource(rw http.ResponseWriter, status int, resource interface{}) {
	if writeErr := api.WriteResourceAsJSONWithStatus(rw, status, resource); writeErr != nil {
		m.logger.WithError(writeErr).Errorln("failed to write json response")
	}
}

func (m *Manager) writeError(rw http.ResponseWriter, err error) {
	if writeErr := api.WriteErrorAsJSON(rw, errorResource(err)); writeErr != nil {
		m.logger.WithError(writeErr).Errorln("failed to write json error")
	}
}

// errorResource maps media source errors to API errors.
func errorResource(err error) error {
	var e *api.ErrorWithCodeAndMessage
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, mse.ErrNotSupported):
		return api.NewErrorWithCodeAndMessage(api.ErrorCodeNotSupported, err.Error(), api.ErrUnsupportedMediaType)
	case errors.Is(err, mse.ErrInvalidState):
		return api.NewErrorWithCodeAndMessage(api.ErrorCodeInvalidState, err.Error(), api.ErrConflict)
	case errors.Is(err, mse.ErrOrderingViolation):
		return api.NewErrorWithCodeAndMessage(api.ErrorCodeOrderingViolated, err.Error(), api.ErrConflict)
	case errors.Is(err, mse.ErrQuotaExceeded):
		return api.NewErrorWithCodeAndMessage(api.ErrorCodeQuotaExceeded, err.Error(), api.ErrConflict)
	case errors.Is(err, mse.ErrDetached):
		return api.NewErrorWithCodeAndMessage(api.ErrorCodeDetached, err.Error(), api.ErrGone)
	case errors.Is(err, ErrManagerClosed):
		return api.NewErrorWithCodeAndMessage(api.ErrorCodeUnspecifiedError, err.Error(), api.ErrUnavailable)
	}
	return err
}

func badRequest(format string, args ...interface{}) error {
	return api.NewErrorWithCodeAndMessage(api.ErrorCodeBadRequest, fmt.Sprintf(format, args...), api.ErrBadRequest)
}

func (m *Manager) getRecordOrWriteError(rw http.ResponseWriter, req *http.Request) *Record {
	sourceID, _ := api.GetRequestVar(req, "sourceID")
	record, ok := m.Get(sourceID)
	if !ok {
		m.writeError(rw, api.NewErrorWithCodeAndMessage(
			"ErrorMessageMediaSourceNotFound",
			"The specified media source was not found",
			api.ErrNotFound,
		))
		return nil
	}
	return record
}

func errBufferNotFound() error {
	return api.NewErrorWithCodeAndMessage(
		"ErrorMessageSourceBufferNotFound",
		"The specified source buffer was not found",
		api.ErrNotFound,
	)
}

func errTrackNotFound() error {
	return api.NewErrorWithCodeAndMessage(
		"ErrorMessageTrackNotFound",
		"The specified track was not found",
		api.ErrNotFound,
	)
}

func decodeRequest(req *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(req.Body, maxRequestSize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func (m *Manager) HTTPSourcesHandler(rw http.ResponseWriter, req *http.Request) {
	sourceID, _ := api.GetRequestVar(req, "sourceID")

	if sourceID == "" {
		resources := make([]*MediaSourceResource, 0)
		for _, record := range m.Records() {
			var resource *MediaSourceResource
			if err := record.source.Do(req.Context(), func() error {
				resource = newMediaSourceResource(record)
				return nil
			}); err != nil {
				// Stopped while listing.
				continue
			}
			resources = append(resources, resource)
		}
		m.writeResource(rw, http.StatusOK, api.NewCollectionResource(resources, req, nil))
		return
	}

	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}
	var resource *MediaSourceResource
	if err := record.source.Do(req.Context(), func() error {
		resource = newMediaSourceResource(record)
		return nil
	}); err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, http.StatusOK, api.NewItemResource(resource, req))
}

func (m *Manager) HTTPCreateSourceHandler(rw http.ResponseWriter, req *http.Request) {
	record, err := m.Create()
	if err != nil {
		m.writeError(rw, err)
		return
	}

	var resource *MediaSourceResource
	if err = record.source.Do(req.Context(), func() error {
		resource = newMediaSourceResource(record)
		return nil
	}); err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, http.StatusCreated, api.NewItemResource(resource, req))
}

func (m *Manager) HTTPDeleteSourceHandler(rw http.ResponseWriter, req *http.Request) {
	sourceID, _ := api.GetRequestVar(req, "sourceID")
	if !m.Remove(sourceID) {
		m.getRecordOrWriteError(rw, req)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (m *Manager) HTTPBuffersHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}
	bufferID, _ := api.GetRequestVar(req, "bufferID")

	var resource interface{}
	err := record.source.Do(req.Context(), func() error {
		ms := record.source
		if bufferID == "" {
			resources := make([]*SourceBufferResource, 0, ms.SourceBuffers().Len())
			for _, b := range ms.SourceBuffers().Buffers() {
				resources = append(resources, newSourceBufferResource(b))
			}
			resource = api.NewCollectionResource(resources, req, nil)
			return nil
		}
		b, ok := ms.SourceBuffer(bufferID)
		if !ok {
			return errBufferNotFound()
		}
		resource = api.NewItemResource(newSourceBufferResource(b), req)
		return nil
	})
	if err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, http.StatusOK, resource)
}

func (m *Manager) HTTPCreateBufferHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	var request SourceBufferRequest
	if err := decodeRequest(req, &request); err != nil {
		m.writeError(rw, err)
		return
	}

	var resource *SourceBufferResource
	err := record.source.Do(req.Context(), func() error {
		b, addErr := record.source.AddSourceBuffer(request.Type)
		if addErr != nil {
			return addErr
		}
		resource = newSourceBufferResource(b)
		return nil
	})
	if err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, http.StatusCreated, api.NewItemResource(resource, req))
}

// withBuffer runs fn on the consumer context of the record with the
// requested buffer.
func (m *Manager) withBuffer(req *http.Request, record *Record, fn func(b *mse.SourceBuffer) error) error {
	bufferID, _ := api.GetRequestVar(req, "bufferID")
	return record.source.Do(req.Context(), func() error {
		b, ok := record.source.SourceBuffer(bufferID)
		if !ok {
			return errBufferNotFound()
		}
		return fn(b)
	})
}

func (m *Manager) HTTPDeleteBufferHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	if err := m.withBuffer(req, record, record.source.RemoveSourceBuffer); err != nil {
		m.writeError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (m *Manager) HTTPAppendHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	buf := bpool.Get()
	defer bpool.Put(buf)

	limit := m.config.MaxAppendSize
	if limit <= 0 {
		limit = math.MaxInt64
	}
	if _, err := buf.ReadFrom(http.MaxBytesReader(rw, req.Body, limit)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			m.writeError(rw, api.NewErrorWithCodeAndMessage(api.ErrorCodeTooLarge, err.Error(), api.ErrTooLarge))
			return
		}
		m.writeError(rw, badRequest("failed to read append data: %v", err))
		return
	}
	if buf.Len() == 0 {
		m.writeError(rw, badRequest("append data is empty"))
		return
	}

	var resource *SourceBufferResource
	err := m.withBuffer(req, record, func(b *mse.SourceBuffer) error {
		// The pipeline copies the data, buf is reused after return.
		if appendErr := record.source.Append(b, buf.Bytes()); appendErr != nil {
			return appendErr
		}
		resource = newSourceBufferResource(b)
		return nil
	})
	if err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, http.StatusAccepted, api.NewItemResource(resource, req))
}

func (m *Manager) HTTPAbortHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	var resource *SourceBufferResource
	err := m.withBuffer(req, record, func(b *mse.SourceBuffer) error {
		if abortErr := record.source.Abort(b); abortErr != nil {
			return abortErr
		}
		resource = newSourceBufferResource(b)
		return nil
	})
	if err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, http.StatusOK, api.NewItemResource(resource, req))
}

// doAndWriteSource runs fn on the consumer context and writes the resulting
// media source resource.
func (m *Manager) doAndWriteSource(rw http.ResponseWriter, req *http.Request, record *Record, status int, fn func() error) {
	var resource *MediaSourceResource
	err := record.source.Do(req.Context(), func() error {
		if err := fn(); err != nil {
			return err
		}
		resource = newMediaSourceResource(record)
		return nil
	})
	if err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, status, api.NewItemResource(resource, req))
}

func (m *Manager) HTTPDurationHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	var request DurationRequest
	if err := decodeRequest(req, &request); err != nil {
		m.writeError(rw, err)
		return
	}
	if request.Duration == nil {
		m.writeError(rw, badRequest("duration is required"))
		return
	}

	m.doAndWriteSource(rw, req, record, http.StatusOK, func() error {
		return record.source.SetDuration(*request.Duration)
	})
}

func (m *Manager) HTTPEndOfStreamHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	if req.Method == http.MethodDelete {
		m.doAndWriteSource(rw, req, record, http.StatusOK, record.source.UnmarkEndOfStream)
		return
	}

	var request EndOfStreamRequest
	if req.ContentLength != 0 {
		if err := decodeRequest(req, &request); err != nil {
			m.writeError(rw, err)
			return
		}
	}
	status, err := mse.ParseEndOfStreamStatus(request.Status)
	if err != nil {
		m.writeError(rw, badRequest("%v", err))
		return
	}

	m.doAndWriteSource(rw, req, record, http.StatusOK, func() error {
		return record.source.MarkEndOfStream(status)
	})
}

func (m *Manager) HTTPSeekHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	var request SeekRequest
	if err := decodeRequest(req, &request); err != nil {
		m.writeError(rw, err)
		return
	}
	if request.Time == nil || *request.Time < 0 || math.IsInf(*request.Time, 0) {
		m.writeError(rw, badRequest("seek time must be a positive number"))
		return
	}

	m.doAndWriteSource(rw, req, record, http.StatusAccepted, func() error {
		if record.source.ReadyState() == mse.ReadyStateClosed {
			return fmt.Errorf("seek in %s state: %w", mse.ReadyStateClosed, mse.ErrInvalidState)
		}
		// The pipeline waits for the seek on its own goroutine.
		return record.pipeline.Seek(record.source, secondsToDuration(*request.Time))
	})
}

func (m *Manager) HTTPSeekCompletedHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	m.doAndWriteSource(rw, req, record, http.StatusOK, record.source.SeekCompleted)
}

func (m *Manager) HTTPTracksHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}
	trackID, _ := api.GetRequestVar(req, "trackID")

	var resource interface{}
	err := record.source.Do(req.Context(), func() error {
		resources := make([]*TrackResource, 0)
		for _, b := range record.source.SourceBuffers().Buffers() {
			for _, track := range b.Tracks() {
				if trackID == "" || track.ID() == trackID {
					resources = append(resources, newTrackResource(b, track))
				}
			}
		}
		if trackID == "" {
			resource = api.NewCollectionResource(resources, req, nil)
			return nil
		}
		if len(resources) == 0 {
			return errTrackNotFound()
		}
		resource = api.NewItemResource(resources[0], req)
		return nil
	})
	if err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, http.StatusOK, resource)
}

func (m *Manager) HTTPSelectTrackHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}
	trackID, _ := api.GetRequestVar(req, "trackID")

	var request TrackRequest
	if err := decodeRequest(req, &request); err != nil {
		m.writeError(rw, err)
		return
	}
	if request.Selected == nil {
		m.writeError(rw, badRequest("selected is required"))
		return
	}

	var resource *TrackResource
	err := record.source.Do(req.Context(), func() error {
		for _, b := range record.source.SourceBuffers().Buffers() {
			if track, ok := b.Track(trackID); ok {
				if selectErr := record.source.SelectTrack(trackID, *request.Selected); selectErr != nil {
					return selectErr
				}
				resource = newTrackResource(b, track)
				return nil
			}
		}
		return errTrackNotFound()
	})
	if err != nil {
		m.writeError(rw, err)
		return
	}
	m.writeResource(rw, http.StatusOK, api.NewItemResource(resource, req))
}
