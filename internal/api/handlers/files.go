// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/fileops"
)

// FilesHandler serves disposition operations on scanned files.
type FilesHandler struct {
	fileOps *fileops.Service
}

func NewFilesHandler(fileOps *fileops.Service) *FilesHandler {
	return &FilesHandler{fileOps: fileOps}
}

func (h *FilesHandler) Routes(r chi.Router) {
	r.Post("/delete", h.deleteFiles)
	r.Post("/trash", h.trashFiles)
	r.Post("/restore", h.restoreFile)
	r.Get("/trash", h.listTrash)
}

type pathsRequest struct {
	Paths []string `json:"paths"`
}

func (h *FilesHandler) deleteFiles(w http.ResponseWriter, r *http.Request) {
	var req pathsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 {
		RespondError(w, http.StatusBadRequest, "No paths provided")
		return
	}

	result := h.fileOps.Delete(r.Context(), req.Paths)
	log.Info().
		Int("requested", len(req.Paths)).
		Int("deleted", len(result.Success)).
		Int("failed", len(result.Failed)).
		Msg("Delete batch processed")
	RespondJSON(w, http.StatusOK, result)
}

func (h *FilesHandler) trashFiles(w http.ResponseWriter, r *http.Request) {
	var req pathsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 {
		RespondError(w, http.StatusBadRequest, "No paths provided")
		return
	}

	result := h.fileOps.Trash(r.Context(), req.Paths)
	log.Info().
		Int("requested", len(req.Paths)).
		Int("trashed", len(result.Success)).
		Int("failed", len(result.Failed)).
		Msg("Trash batch processed")
	RespondJSON(w, http.StatusOK, result)
}

type restoreRequest struct {
	TrashID string `json:"trashId"`
}

func (h *FilesHandler) restoreFile(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.TrashID == "" {
		RespondError(w, http.StatusBadRequest, "Trash ID is required")
		return
	}

	result := h.fileOps.Restore(r.Context(), req.TrashID)
	RespondJSON(w, http.StatusOK, result)
}

func (h *FilesHandler) listTrash(w http.ResponseWriter, r *http.Request) {
	items, err := h.fileOps.ListTrash(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list trash")
		RespondError(w, http.StatusInternalServerError, "Failed to list trash")
		return
	}
	RespondJSON(w, http.StatusOK, items)
}
