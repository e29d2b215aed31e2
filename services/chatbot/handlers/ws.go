// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/engine"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/personacast/personacast/services/voice"
)

// WSChatRequest is one inbound websocket message.
type WSChatRequest struct {
	Message     string                       `json:"message"`
	Personality string                       `json:"personality,omitempty"`
	Settings    *datatypes.RetrievalSettings `json:"settings,omitempty"`
	VoiceReply  bool                         `json:"voice_reply,omitempty"`
}

// WSChatResponse is one outbound websocket message.
type WSChatResponse struct {
	Response *datatypes.ChatResponse `json:"response,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket serves GET /v1/chat/ws.
//
// # Description
//
// One websocket connection is one conversation session. The session ID is
// generated on connect and announced to the client, then every message on
// the connection shares that session's memory. Messages are handled
// serially in arrival order, which the session mutex would enforce anyway.
func HandleChatWebSocket(eng *engine.Engine, synth voice.Synthesizer,
	personalities *personality.Catalog) gin.HandlerFunc {

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionID := uuid.New().String()
		slog.Info("Websocket session started", "session_id", sessionID)

		if err := sendJSON(ws, map[string]interface{}{
			"action":     "session_created",
			"session_id": sessionID,
		}); err != nil {
			return
		}

		for {
			var req WSChatRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected", "session_id", sessionID, "error", err.Error())
				return
			}

			chatReq := datatypes.ChatRequest{
				SessionID:   sessionID,
				Message:     req.Message,
				Personality: req.Personality,
				Settings:    req.Settings,
				VoiceReply:  req.VoiceReply,
			}
			chatReq.EnsureDefaults()
			if err := chatReq.Validate(); err != nil {
				if sendJSON(ws, WSChatResponse{Error: err.Error()}) != nil {
					return
				}
				continue
			}

			resp, err := eng.Process(c.Request.Context(), &chatReq)
			if err != nil {
				slog.Error("Websocket chat turn failed", "session_id", sessionID, "error", err)
				if sendJSON(ws, WSChatResponse{Error: "chat pipeline failed"}) != nil {
					return
				}
				continue
			}

			if req.VoiceReply && synth != nil {
				attachAudio(c.Request.Context(), resp, synth, personalities, chatReq.Personality)
			}

			if sendJSON(ws, WSChatResponse{Response: resp}) != nil {
				return
			}
		}
	}
}
