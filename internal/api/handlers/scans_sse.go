// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/models"
	"github.com/sweepd/sweepd/internal/scans"
)

// SSE event type constants
const (
	scanEventConnected = "connected"
	scanEventProgress  = "progress"
	scanEventHeartbeat = "heartbeat"
	scanEventDone      = "done"
)

const heartbeatInterval = 5 * time.Second

// ScanEventsHandler streams a scan's progress over Server-Sent Events.
// A client that connects to a scan that already finished gets exactly one
// done event and the stream closes; reconnecting clients rely on that plus
// the regular GET endpoint, the server keeps no per-client replay state.
type ScanEventsHandler struct {
	service     *scans.Service
	broadcaster *scans.Broadcaster
	heartbeat   time.Duration
}

func NewScanEventsHandler(service *scans.Service, broadcaster *scans.Broadcaster) *ScanEventsHandler {
	return &ScanEventsHandler{
		service:     service,
		broadcaster: broadcaster,
		heartbeat:   heartbeatInterval,
	}
}

// HandleSSE handles the SSE connection for scan progress updates
func (h *ScanEventsHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseScanID(w, r)
	if !ok {
		return
	}

	// Get flusher for streaming - check before setting SSE headers
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	scan, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrScanNotFound) {
			RespondError(w, http.StatusNotFound, "Scan not found")
			return
		}
		log.Error().Err(err).Str("scanID", id).Msg("Failed to load scan for event stream")
		RespondError(w, http.StatusInternalServerError, "Failed to load scan")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	if scan.Status.Terminal() {
		sendSSE(w, flusher, scanEventDone, scan)
		return
	}

	events, cancel := h.broadcaster.Subscribe(id)
	defer cancel()

	// The scan can reach a terminal state between the lookup and the
	// subscription; re-check so the done event is never lost.
	scan, err = h.service.Get(r.Context(), id)
	if err == nil && scan.Status.Terminal() {
		sendSSE(w, flusher, scanEventDone, scan)
		return
	}

	if err := sendSSE(w, flusher, scanEventConnected, scan); err != nil {
		return
	}

	log.Debug().Str("scanID", id).Msg("Scan event stream connected")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("scanID", id).Msg("Scan event stream client disconnected")
			return

		case <-heartbeat.C:
			if err := sendSSE(w, flusher, scanEventHeartbeat, map[string]int64{"timestamp": time.Now().Unix()}); err != nil {
				return
			}

		case ev, open := <-events:
			if !open {
				return
			}
			switch ev.Type {
			case scans.EventProgress:
				if err := sendSSE(w, flusher, scanEventProgress, ev.Progress); err != nil {
					return
				}
			case scans.EventDone:
				sendSSE(w, flusher, scanEventDone, ev.Scan)
				return
			}
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// SSE format: "event: <type>\ndata: <json>\n\n"
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
