// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/personacast/personacast/services/chatbot/personality"
)

// HandleHealthCheck serves GET /healthz.
func HandleHealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// personalitySummary is the listing shape; the style descriptor stays
// server-side.
type personalitySummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	VoiceID     string `json:"voice_id"`
}

// HandleListPersonalities serves GET /v1/personalities.
func HandleListPersonalities(personalities *personality.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		profiles := personalities.List()
		out := make([]personalitySummary, 0, len(profiles))
		for _, p := range profiles {
			out = append(out, personalitySummary{
				ID:          p.ID,
				DisplayName: p.DisplayName,
				VoiceID:     p.VoiceID,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"default":       personality.DefaultID,
			"personalities": out,
		})
	}
}
