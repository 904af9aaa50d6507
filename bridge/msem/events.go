/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package msem

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"stash.kopano.io/kwm/kwmmse/internal/events"
)

const eventsWriteTimeout = 10 * time.Second

// HTTPEventsHandler streams the notifications of a media source over a
// WebSocket connection. Notifications which arrive while a write is in
// progress are coalesced into the next message.
func (m *Manager) HTTPEventsHandler(rw http.ResponseWriter, req *http.Request) {
	record := m.getRecordOrWriteError(rw, req)
	if record == nil {
		return
	}

	sub := record.source.Subscribe()
	defer sub.Close()

	c, err := websocket.Accept(rw, req, nil)
	if err != nil {
		m.logger.WithError(err).Debugln("events websocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	logger := m.logger.WithField("mediasource", record.source.ID())
	logger.Debugln("events subscriber connected")

	// Incoming messages are not expected, CloseRead cancels ctx once the
	// peer closes.
	ctx := c.CloseRead(req.Context())

	err = m.streamEvents(ctx, c, sub)
	switch {
	case errors.Is(err, events.ErrSubscriptionClosed):
		c.Close(websocket.StatusGoingAway, "media source closed")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) == websocket.StatusNormalClosure:
		c.Close(websocket.StatusNormalClosure, "")
	default:
		logger.WithError(err).Debugln("events subscriber failed")
		c.Close(websocket.StatusInternalError, "")
	}
	logger.Debugln("events subscriber disconnected")
}

func (m *Manager) streamEvents(ctx context.Context, c *websocket.Conn, sub *events.Subscription) error {
	for {
		batch, err := sub.Next(ctx)
		if err != nil {
			return err
		}

		writeCtx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
		err = wsjson.Write(writeCtx, c, &EventsMessage{
			Type:   "events",
			Events: batch,
		})
		cancel()
		if err != nil {
			return err
		}
	}
}
