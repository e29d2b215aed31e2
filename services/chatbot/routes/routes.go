// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/personacast/personacast/services/chatbot/engine"
	"github.com/personacast/personacast/services/chatbot/handlers"
	"github.com/personacast/personacast/services/chatbot/memory"
	"github.com/personacast/personacast/services/chatbot/middleware"
	"github.com/personacast/personacast/services/chatbot/observability"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/personacast/personacast/services/chatbot/retrieval"
	"github.com/personacast/personacast/services/voice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// Deps bundles everything the route tree needs.
type Deps struct {
	Engine        *engine.Engine
	Registry      *memory.Registry
	Personalities *personality.Catalog
	WeaviateClnt  *weaviate.Client
	Embedder      retrieval.EmbeddingProvider
	Transcriber   voice.Transcriber
	Synthesizer   voice.Synthesizer
	Metrics       *observability.ChatMetrics
}

// SetupRoutes registers all HTTP routes on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/healthz", handlers.HandleHealthCheck())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuth())
	{
		v1.POST("/chat", handlers.HandleChat(deps.Engine, deps.Synthesizer, deps.Personalities, deps.Metrics))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(deps.Engine, deps.Synthesizer, deps.Personalities))
		v1.POST("/chat/voice", handlers.HandleVoiceChat(deps.Engine, deps.Transcriber, deps.Synthesizer, deps.Personalities, deps.Metrics))
		v1.GET("/personalities", handlers.HandleListPersonalities(deps.Personalities))
		v1.POST("/transcripts", handlers.HandleTranscriptIngest(deps.WeaviateClnt, deps.Embedder))
		v1.GET("/transcripts", handlers.HandleListTranscripts(deps.WeaviateClnt))
		v1.DELETE("/transcripts/:video_id", handlers.HandleDeleteTranscript(deps.WeaviateClnt))
		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.HandleListSessions(deps.Registry))
			sessions.DELETE("/:id", handlers.HandleDeleteSession(deps.Registry))
			sessions.POST("/:id/reset", handlers.HandleResetSession(deps.Registry))
		}
	}
}
