// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin HTTP handlers for the chatbot service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/engine"
	"github.com/personacast/personacast/services/chatbot/observability"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/personacast/personacast/services/voice"
)

// HandleChat serves POST /v1/chat.
//
// # Description
//
// Validates the request, runs it through the chat engine, and optionally
// attaches a TTS rendering of the answer. Voice synthesis failure degrades
// to a text-only response; the answer is never withheld because audio broke.
//
// # Inputs (HTTP)
//
//   - Body: datatypes.ChatRequest JSON.
//
// # Outputs (HTTP)
//
//   - 200: datatypes.ChatResponse JSON.
//   - 400: Malformed or invalid request body.
//   - 500: Pipeline failure that could not be degraded.
func HandleChat(eng *engine.Engine, synth voice.Synthesizer,
	personalities *personality.Catalog, metrics *observability.ChatMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := eng.Process(c.Request.Context(), &req)
		if err != nil {
			if metrics != nil {
				metrics.RecordRequest("chat", false)
			}
			if errors.Is(err, context.Canceled) {
				// Client went away; nothing useful to send.
				c.Status(499)
				return
			}
			slog.Error("Chat pipeline failed", "session_id", req.SessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chat pipeline failed"})
			return
		}

		if req.VoiceReply && synth != nil {
			attachAudio(c.Request.Context(), resp, synth, personalities, req.Personality)
		}

		if metrics != nil {
			metrics.RecordRequest("chat", true)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// attachAudio synthesizes the answer with the personality's voice. Failure
// logs and leaves AudioData empty.
func attachAudio(ctx context.Context, resp *datatypes.ChatResponse, synth voice.Synthesizer,
	personalities *personality.Catalog, personalityID string) {

	voiceID := personalities.Get(personalityID).VoiceID
	audio, err := synth.Synthesize(ctx, resp.Answer, voiceID)
	if err != nil {
		slog.Warn("Voice synthesis failed, returning text only",
			"session_id", resp.SessionID, "error", err)
		return
	}
	resp.AudioData = audio
}
