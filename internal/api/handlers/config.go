// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/config"
)

// ConfigHandler exposes the user-adjustable settings subset.
type ConfigHandler struct {
	cfg *config.AppConfig
}

func NewConfigHandler(cfg *config.AppConfig) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

func (h *ConfigHandler) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Put("/", h.update)
}

func (h *ConfigHandler) get(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.cfg.Settings())
}

func (h *ConfigHandler) update(w http.ResponseWriter, r *http.Request) {
	var settings config.UserSettings
	if !DecodeJSON(w, r, &settings) {
		return
	}

	if err := h.cfg.UpdateSettings(settings); err != nil {
		log.Error().Err(err).Msg("Failed to update settings")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, h.cfg.Settings())
}
