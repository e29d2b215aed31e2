// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		model:      "test-model",
	}
}

func TestOllamaGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "docker")

		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "an answer", Done: true})
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)
	got, err := client.Generate(context.Background(), "tell me about docker", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "an answer", got)
}

func TestOllamaChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: datatypes.Message{Role: "assistant", Content: "chat answer"},
			Done:    true,
		})
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)
	got, err := client.Chat(context.Background(), []datatypes.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "chat answer", got)
}

func TestOllamaModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model 'test-model' not found"})
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)
	_, err := client.Generate(context.Background(), "hello", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull")
}

func TestOllamaParamDefaults(t *testing.T) {
	options := buildOptions(GenerationParams{})
	assert.Equal(t, float32(0.2), options["temperature"])
	assert.Equal(t, 20, options["top_k"])

	temp := float32(0.7)
	options = buildOptions(GenerationParams{Temperature: &temp})
	assert.Equal(t, float32(0.7), options["temperature"])
}
