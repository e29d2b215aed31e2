// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/personacast/personacast/services/chatbot/classifier"
	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/engine"
	"github.com/personacast/personacast/services/chatbot/generator"
	"github.com/personacast/personacast/services/chatbot/memory"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Pipeline fakes
// =============================================================================

type fixedClassifier struct {
	decision classifier.Decision
}

func (f *fixedClassifier) Classify(context.Context, string, []memory.Turn) (classifier.Decision, error) {
	return f.decision, nil
}

type fixedRetriever struct {
	passages []datatypes.RetrievedPassage
}

func (f *fixedRetriever) Retrieve(context.Context, string, int, float64) ([]datatypes.RetrievedPassage, error) {
	return f.passages, nil
}

type fixedGenerator struct {
	answer string
}

func (f *fixedGenerator) Generate(_ context.Context, in generator.Input) (generator.Result, error) {
	return generator.Result{Answer: f.answer}, nil
}

func newTestPipeline() (*engine.Engine, *memory.Registry, *personality.Catalog) {
	registry := memory.NewRegistry(memory.Config{WindowSize: 10, KeepRecent: 5}, nil)
	catalog := personality.NewCatalog()
	eng := engine.New(
		&fixedClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}},
		&fixedRetriever{passages: []datatypes.RetrievedPassage{{
			Text:             "Docker volumes persist data.",
			SourceVideoID:    "vid1",
			VideoTitle:       "Docker Deep Dive",
			VideoURL:         "https://youtube.com/watch?v=vid1",
			StartTimeSeconds: 150,
			RelevanceScore:   0.9,
		}}},
		&fixedGenerator{answer: "Volumes outlive containers."},
		registry,
		catalog,
		nil,
	)
	return eng, registry, catalog
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Chat handler
// =============================================================================

func TestHandleChatHappyPath(t *testing.T) {
	eng, _, catalog := newTestPipeline()
	router := gin.New()
	router.POST("/v1/chat", HandleChat(eng, nil, catalog, nil))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{Message: "How do Docker volumes work?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Answer, "Volumes outlive containers.")
	assert.Contains(t, resp.Answer, "Source Videos")
	assert.Equal(t, string(datatypes.FullRetrieval), resp.Strategy)
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.RequestID)
	require.Len(t, resp.Citations, 1)
}

func TestHandleChatSessionContinuity(t *testing.T) {
	eng, registry, catalog := newTestPipeline()
	router := gin.New()
	router.POST("/v1/chat", HandleChat(eng, nil, catalog, nil))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{Message: "first question"})
	require.Equal(t, http.StatusOK, w.Code)
	var first datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = postJSON(router, "/v1/chat", datatypes.ChatRequest{
		SessionID: first.SessionID, Message: "second question"})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, registry.GetOrCreate(first.SessionID).Store.Len())
}

func TestHandleChatRejectsEmptyMessage(t *testing.T) {
	eng, _, catalog := newTestPipeline()
	router := gin.New()
	router.POST("/v1/chat", HandleChat(eng, nil, catalog, nil))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatRejectsOversizedMessage(t *testing.T) {
	eng, _, catalog := newTestPipeline()
	router := gin.New()
	router.POST("/v1/chat", HandleChat(eng, nil, catalog, nil))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{
		Message: strings.Repeat("a", datatypes.MaxMessageContentBytes+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatRejectsMalformedBody(t *testing.T) {
	eng, _, catalog := newTestPipeline()
	router := gin.New()
	router.POST("/v1/chat", HandleChat(eng, nil, catalog, nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatClampsSettings(t *testing.T) {
	eng, _, catalog := newTestPipeline()
	router := gin.New()
	router.POST("/v1/chat", HandleChat(eng, nil, catalog, nil))

	w := postJSON(router, "/v1/chat", map[string]interface{}{
		"message":  "How do Docker volumes work?",
		"settings": map[string]interface{}{"max_results": 50, "min_relevance": -3, "enable_videos": true},
	})
	assert.Equal(t, http.StatusOK, w.Code, "out-of-range settings are clamped, not rejected")
}

// =============================================================================
// Sessions handlers
// =============================================================================

func sessionsRouter(registry *memory.Registry) *gin.Engine {
	router := gin.New()
	router.GET("/v1/sessions", HandleListSessions(registry))
	router.DELETE("/v1/sessions/:id", HandleDeleteSession(registry))
	router.POST("/v1/sessions/:id/reset", HandleResetSession(registry))
	return router
}

func TestHandleListSessions(t *testing.T) {
	_, registry, _ := newTestPipeline()
	registry.GetOrCreate("sess-a").Store.Append("q", "a")
	registry.GetOrCreate("sess-b")

	w := httptest.NewRecorder()
	sessionsRouter(registry).ServeHTTP(w,
		httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count    int           `json:"count"`
		Sessions []sessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "sess-a", resp.Sessions[0].SessionID)
	assert.Equal(t, 1, resp.Sessions[0].Turns)
}

func TestHandleDeleteSession(t *testing.T) {
	_, registry, _ := newTestPipeline()
	registry.GetOrCreate("sess-a")
	router := sessionsRouter(registry)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-a", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, registry.ActiveCount())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-a", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleResetSession(t *testing.T) {
	_, registry, _ := newTestPipeline()
	registry.GetOrCreate("sess-a").Store.Append("q", "a")
	router := sessionsRouter(registry)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-a/reset", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, registry.GetOrCreate("sess-a").Store.Len())
	assert.Equal(t, 1, registry.ActiveCount(), "reset keeps the session alive")
}

// =============================================================================
// Misc handlers
// =============================================================================

func TestHandleHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/healthz", HandleHealthCheck())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestHandleListPersonalities(t *testing.T) {
	router := gin.New()
	router.GET("/v1/personalities", HandleListPersonalities(personality.NewCatalog()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/personalities", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Default       string               `json:"default"`
		Personalities []personalitySummary `json:"personalities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, personality.DefaultID, resp.Default)
	assert.Len(t, resp.Personalities, 6)
	assert.NotEmpty(t, resp.Personalities[0].VoiceID)
}

// =============================================================================
// Voice handler
// =============================================================================

func TestHandleVoiceChatMissingAudio(t *testing.T) {
	eng, _, catalog := newTestPipeline()
	router := gin.New()
	router.POST("/v1/chat/voice", HandleVoiceChat(eng, nil, nil, catalog, nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/voice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Transcript chunking
// =============================================================================

func TestMergeSegmentsKeepsEarliestStartTime(t *testing.T) {
	long := strings.Repeat("transcript words here ", 30) // ~660 chars

	chunks := mergeSegments([]TranscriptSegment{
		{Text: long, StartTime: 12.5},
		{Text: long, StartTime: 45.0},
		{Text: "tail segment", StartTime: 90.0},
	})

	require.NotEmpty(t, chunks)
	assert.Equal(t, 12.5, chunks[0].startTime)
	// Later chunks start where their first merged segment started.
	if len(chunks) > 1 {
		assert.Greater(t, chunks[1].startTime, chunks[0].startTime)
	}
}

func TestMergeSegmentsSkipsEmpty(t *testing.T) {
	chunks := mergeSegments([]TranscriptSegment{
		{Text: "   ", StartTime: 0},
		{Text: "real text", StartTime: 30},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, 30.0, chunks[0].startTime)
	assert.Equal(t, "real text", chunks[0].text)
}

func TestBuildChunksFromRawContent(t *testing.T) {
	req := TranscriptIngestRequest{
		VideoID: "vid1", VideoTitle: "t", VideoURL: "u",
		Content: strings.Repeat("Docker is a container runtime. ", 100),
	}
	chunks, err := buildChunks(req)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Zero(t, c.startTime, "untimed content chunks start at zero")
	}
}
