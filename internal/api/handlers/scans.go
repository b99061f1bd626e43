// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/models"
	"github.com/sweepd/sweepd/internal/scans"
	"github.com/sweepd/sweepd/internal/selection"
)

// ScansHandler serves scan submission, inspection, cancellation, and
// selection.
type ScansHandler struct {
	service *scans.Service
}

func NewScansHandler(service *scans.Service) *ScansHandler {
	return &ScansHandler{service: service}
}

func (h *ScansHandler) Routes(r chi.Router) {
	r.Post("/", h.submit)
	r.Get("/", h.list)
	r.Get("/{scanID}", h.get)
	r.Delete("/{scanID}", h.cancel)
	r.Post("/{scanID}/select", h.selectFindings)
}

func (h *ScansHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	scan, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, scans.ErrQueueFull):
			RespondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			RespondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	RespondJSON(w, http.StatusCreated, scan)
}

func (h *ScansHandler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list scans")
		RespondError(w, http.StatusInternalServerError, "Failed to list scans")
		return
	}
	if list == nil {
		list = []*models.Scan{}
	}
	RespondJSON(w, http.StatusOK, list)
}

func (h *ScansHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseScanID(w, r)
	if !ok {
		return
	}

	scan, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrScanNotFound) {
			RespondError(w, http.StatusNotFound, "Scan not found")
			return
		}
		log.Error().Err(err).Str("scanID", id).Msg("Failed to get scan")
		RespondError(w, http.StatusInternalServerError, "Failed to get scan")
		return
	}
	RespondJSON(w, http.StatusOK, scan)
}

func (h *ScansHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseScanID(w, r)
	if !ok {
		return
	}

	scan, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrScanNotFound):
			RespondError(w, http.StatusNotFound, "Scan not found")
		case errors.Is(err, scans.ErrNotCancellable):
			RespondError(w, http.StatusConflict, "Scan already finished")
		default:
			log.Error().Err(err).Str("scanID", id).Msg("Failed to cancel scan")
			RespondError(w, http.StatusInternalServerError, "Failed to cancel scan")
		}
		return
	}
	RespondJSON(w, http.StatusOK, scan)
}

type selectRequest struct {
	Strategy selection.Strategy `json:"strategy"`
}

type selectResponse struct {
	Strategy selection.Strategy `json:"strategy"`
	Paths    []string           `json:"paths"`
}

// selectFindings applies a selection strategy to a completed scan's grouped
// findings and returns the paths that would be acted on. Pure computation;
// nothing is persisted.
func (h *ScansHandler) selectFindings(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseScanID(w, r)
	if !ok {
		return
	}

	var req selectRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	scan, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrScanNotFound) {
			RespondError(w, http.StatusNotFound, "Scan not found")
			return
		}
		log.Error().Err(err).Str("scanID", id).Msg("Failed to get scan for selection")
		RespondError(w, http.StatusInternalServerError, "Failed to get scan")
		return
	}

	if scan.Status != models.ScanStatusCompleted {
		RespondError(w, http.StatusConflict, "Scan has no results to select from")
		return
	}
	if !scan.Category.Grouped() {
		RespondError(w, http.StatusBadRequest, "Selection requires grouped findings")
		return
	}

	var groups []models.FindingGroup
	if scan.Findings != nil {
		groups = scan.Findings.Groups
	}

	paths, err := selection.Select(groups, req.Strategy)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if paths == nil {
		paths = []string{}
	}

	RespondJSON(w, http.StatusOK, selectResponse{Strategy: req.Strategy, Paths: paths})
}
