// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the chatbot service.
//
// This file contains the request and response types for the chat endpoints.
// Retrieval-side types (passages, citations, strategies) live in passage.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single user message.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxRetrievalResults is the upper bound for user-supplied max_results.
	MaxRetrievalResults = 15

	// MinRetrievalResults is the lower bound for user-supplied max_results.
	MinRetrievalResults = 1

	// DefaultRetrievalResults is used when the client omits max_results.
	DefaultRetrievalResults = 5

	// DefaultMinRelevance is used when the client omits min_relevance.
	DefaultMinRelevance = 0.2
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length (not rune count) so oversized payloads
// are rejected before they reach prompt construction.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Messages
// =============================================================================

// Message is a single chat message exchanged with an LLM backend.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// =============================================================================
// Retrieval Settings
// =============================================================================

// RetrievalSettings carries the user-configurable retrieval knobs.
//
// # Description
//
// Exposed directly on the chat request so every request carries its own
// settings instead of relying on server-side mutable state. Out-of-range
// values are clamped, never rejected (see Clamp).
//
// # Fields
//
//   - MaxResults: Upper bound on returned passages (1-15).
//   - MinRelevance: Lower bound on relevance score (0.0-1.0).
//   - EnableVideos: Whether video citations are rendered.
//   - EnableDocs: Whether documentation links are appended.
type RetrievalSettings struct {
	MaxResults   int     `json:"max_results"`
	MinRelevance float64 `json:"min_relevance"`
	EnableVideos bool    `json:"enable_videos"`
	EnableDocs   bool    `json:"enable_docs"`
}

// DefaultRetrievalSettings returns the settings used when the client omits
// the settings block entirely.
func DefaultRetrievalSettings() RetrievalSettings {
	return RetrievalSettings{
		MaxResults:   DefaultRetrievalResults,
		MinRelevance: DefaultMinRelevance,
		EnableVideos: true,
		EnableDocs:   false,
	}
}

// Clamp forces out-of-range values back to the nearest valid bound.
//
// # Description
//
// A request with max_results=50 or min_relevance=-1 is still served; the
// values are clamped to [1,15] and [0,1] respectively. Rejecting the request
// outright would turn a harmless slider bug in a client into a hard failure.
func (s *RetrievalSettings) Clamp() {
	if s.MaxResults < MinRetrievalResults {
		s.MaxResults = MinRetrievalResults
	}
	if s.MaxResults > MaxRetrievalResults {
		s.MaxResults = MaxRetrievalResults
	}
	if s.MinRelevance < 0 {
		s.MinRelevance = 0
	}
	if s.MinRelevance > 1 {
		s.MinRelevance = 1
	}
}

// =============================================================================
// Chat Request
// =============================================================================

// ChatRequest represents one user turn sent to POST /v1/chat.
//
// # Description
//
// Carries the user message, the session the turn belongs to, the personality
// selection for this turn, and the retrieval settings. Personality is an
// explicit per-request parameter; there is no server-side "current
// personality" toggle.
//
// # Fields
//
//   - RequestID: Optional client-supplied UUID v4; generated if empty.
//   - SessionID: Optional session identifier; a new session is created if empty.
//   - Message: Required user text, capped at 32KB.
//   - Personality: Personality identifier (e.g. "networkchuck"). Defaults to
//     the catalog default when empty or unknown.
//   - Settings: Retrieval knobs, clamped server-side.
//   - VoiceReply: When true, a TTS rendering of the reply is attached.
//
// # Validation
//
//   - RequestID: uuid4 when present
//   - Message: required, maxbytes
type ChatRequest struct {
	RequestID   string             `json:"request_id" validate:"omitempty,uuid4"`
	SessionID   string             `json:"session_id"`
	Message     string             `json:"message" validate:"required,maxbytes"`
	Personality string             `json:"personality"`
	Settings    *RetrievalSettings `json:"settings,omitempty"`
	VoiceReply  bool               `json:"voice_reply"`
}

// Validate validates the ChatRequest fields.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates identifiers and clamps settings.
//
// # Description
//
// Generates RequestID and SessionID when absent and normalizes the settings
// block. Safe to call more than once.
func (r *ChatRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.SessionID == "" {
		r.SessionID = uuid.New().String()
	}
	if r.Settings == nil {
		defaults := DefaultRetrievalSettings()
		r.Settings = &defaults
	}
	r.Settings.Clamp()
}

// =============================================================================
// Chat Response
// =============================================================================

// ChatResponse is the reply for one user turn.
//
// # Fields
//
//   - Answer: Personality-styled reply text, including any citation block.
//   - Strategy: The retrieval strategy that produced the answer.
//   - Citations: Structured citation data mirroring the rendered block.
//   - AudioData: Optional base64 data URI with the TTS rendering. Omitted
//     when voice was not requested or synthesis failed.
//   - Fallback: True when the answer is the fixed degradation text.
type ChatResponse struct {
	ResponseID       string          `json:"response_id"`
	RequestID        string          `json:"request_id"`
	SessionID        string          `json:"session_id"`
	Timestamp        int64           `json:"timestamp"`
	Answer           string          `json:"answer"`
	Strategy         string          `json:"strategy"`
	Personality      string          `json:"personality"`
	Citations        []VideoCitation `json:"citations,omitempty"`
	AudioData        string          `json:"audio_data,omitempty"`
	Fallback         bool            `json:"fallback,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms,omitempty"`
}

// NewChatResponse creates a ChatResponse with generated ID and timestamp.
func NewChatResponse(requestID, sessionID, answer string) *ChatResponse {
	return &ChatResponse{
		ResponseID: uuid.New().String(),
		RequestID:  requestID,
		SessionID:  sessionID,
		Timestamp:  time.Now().UnixMilli(),
		Answer:     answer,
	}
}
