// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/engine"
	"github.com/personacast/personacast/services/chatbot/observability"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/personacast/personacast/services/voice"
)

// maxVoiceUploadBytes caps the uploaded audio size.
const maxVoiceUploadBytes = 25 * 1024 * 1024 // 25MB

// HandleVoiceChat serves POST /v1/chat/voice.
//
// # Description
//
// Accepts a multipart recording, transcribes it, and runs the transcribed
// text through the same pipeline as a typed message. The reply always
// carries a TTS rendering; a voice question gets a voice answer.
//
// # Inputs (HTTP)
//
//   - Form file "audio": the recording.
//   - Form field "session_id": optional session identifier.
//   - Form field "personality": optional personality identifier.
//
// # Outputs (HTTP)
//
//   - 200: datatypes.ChatResponse JSON with audio_data set.
//   - 400: Missing or oversized audio upload.
//   - 422: Audio could not be transcribed.
func HandleVoiceChat(eng *engine.Engine, transcriber voice.Transcriber,
	synth voice.Synthesizer, personalities *personality.Catalog,
	metrics *observability.ChatMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("audio")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing audio file"})
			return
		}
		if fileHeader.Size > maxVoiceUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "audio file too large"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio file"})
			return
		}
		defer file.Close()

		audio, err := io.ReadAll(io.LimitReader(file, maxVoiceUploadBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio file"})
			return
		}

		text, err := transcriber.Transcribe(c.Request.Context(), audio, fileHeader.Filename)
		if err != nil {
			if errors.Is(err, voice.ErrUnintelligible) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "could not understand audio"})
				return
			}
			slog.Error("Transcription failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transcription failed"})
			return
		}
		slog.Info("Transcribed voice message", "chars", len(text))

		req := datatypes.ChatRequest{
			SessionID:   c.PostForm("session_id"),
			Message:     text,
			Personality: c.PostForm("personality"),
			VoiceReply:  true,
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := eng.Process(c.Request.Context(), &req)
		if err != nil {
			if metrics != nil {
				metrics.RecordRequest("voice", false)
			}
			slog.Error("Voice chat pipeline failed", "session_id", req.SessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chat pipeline failed"})
			return
		}

		if synth != nil {
			attachAudio(c.Request.Context(), resp, synth, personalities, req.Personality)
		}

		// Echo the transcription so the client can display what was heard.
		if metrics != nil {
			metrics.RecordRequest("voice", true)
		}
		c.JSON(http.StatusOK, gin.H{
			"transcription": text,
			"response":      resp,
		})
	}
}
