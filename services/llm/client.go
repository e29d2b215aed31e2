// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm abstracts the language model backends used for
// classification and answer generation.
package llm

import (
	"context"

	"github.com/personacast/personacast/services/chatbot/datatypes"
)

// GenerationParams tunes one model call. Nil fields take backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is the standard interface for any model backend.
type LLMClient interface {
	// Generate completes a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat completes a multi-turn message exchange.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}
