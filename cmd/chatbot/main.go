// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command chatbot starts the PersonaCast chatbot HTTP server.
//
// This is the main entry point for the containerized chatbot service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - CHATBOT_PORT: HTTP server port (default: 12300)
//   - LLM_BACKEND_TYPE: Model provider - openai, ollama (default: ollama)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: personacast-otel-collector:4317)
//   - PERSONALITY_DIR: Directory with YAML personality overrides (optional)
//   - MEMORY_PERSIST_DIR: Badger directory for session transcripts (optional)
//   - SESSION_TTL_SECONDS: Idle session expiry (default: 3600)
//   - ELEVENLABS_API_KEY: Enables voice replies and transcription (optional)
//
// # Usage
//
//	# Build
//	go build -o chatbot ./cmd/chatbot
//
//	# Run
//	./chatbot
//
//	# Or via container
//	podman-compose up chatbot
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/personacast/personacast/services/chatbot"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := chatbot.Config{
		Port:             getEnvInt("CHATBOT_PORT", 12300),
		LLMBackend:       getEnvString("LLM_BACKEND_TYPE", "ollama"),
		WeaviateURL:      os.Getenv("WEAVIATE_SERVICE_URL"),
		OTelEndpoint:     getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "personacast-otel-collector:4317"),
		PersonalityDir:   os.Getenv("PERSONALITY_DIR"),
		MemoryPersistDir: os.Getenv("MEMORY_PERSIST_DIR"),
	}

	slog.Info("Starting chatbot",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := chatbot.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create chatbot: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Chatbot error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
