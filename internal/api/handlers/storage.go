// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/storage"
)

// StorageHandler serves disk usage and directory listings for the storage
// root.
type StorageHandler struct {
	storage *storage.Service
}

func NewStorageHandler(storage *storage.Service) *StorageHandler {
	return &StorageHandler{storage: storage}
}

func (h *StorageHandler) Routes(r chi.Router) {
	r.Get("/stats", h.stats)
	r.Get("/directories", h.directories)
}

func (h *StorageHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect storage stats")
		RespondError(w, http.StatusInternalServerError, "Failed to collect storage stats")
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

func (h *StorageHandler) directories(w http.ResponseWriter, r *http.Request) {
	dirs, err := h.storage.Directories(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list storage directories")
		RespondError(w, http.StatusInternalServerError, "Failed to list storage directories")
		return
	}
	RespondJSON(w, http.StatusOK, dirs)
}
