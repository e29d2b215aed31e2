// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/personacast/personacast/services/chatbot/memory"
)

// sessionInfo is the listing shape for one live session.
type sessionInfo struct {
	SessionID  string `json:"session_id"`
	LastActive string `json:"last_active"`
	Turns      int    `json:"turns"`
}

// HandleListSessions serves GET /v1/sessions.
func HandleListSessions(registry *memory.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := registry.List()
		out := make([]sessionInfo, 0, len(active))
		for id, lastActive := range active {
			out = append(out, sessionInfo{
				SessionID:  id,
				LastActive: lastActive.UTC().Format(time.RFC3339),
				Turns:      registry.GetOrCreate(id).Store.Len(),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
		c.JSON(http.StatusOK, gin.H{"count": len(out), "sessions": out})
	}
}

// HandleDeleteSession serves DELETE /v1/sessions/:id. Removes the session
// and its persisted transcript.
func HandleDeleteSession(registry *memory.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !registry.Remove(id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": id})
	}
}

// HandleResetSession serves POST /v1/sessions/:id/reset. Clears the
// conversation memory but keeps the session alive.
func HandleResetSession(registry *memory.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		sess := registry.GetOrCreate(id)
		sess.Lock()
		sess.Store.Clear()
		sess.Unlock()
		registry.Commit(sess)
		c.JSON(http.StatusOK, gin.H{"status": "reset", "session_id": id})
	}
}
