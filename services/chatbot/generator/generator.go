// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generator

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/memory"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/personacast/personacast/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("personacast.generator")

const (
	generationTemperature float32 = 0.7
	generationMaxTokens           = 1024
)

// FallbackAnswer is returned verbatim when the response model fails. The
// text never varies, so callers and tests can detect the degraded path.
const FallbackAnswer = "I'm sorry, I'm having trouble putting together an answer right now. " +
	"Please try asking again in a moment."

// Input carries everything one generation needs.
type Input struct {
	Query        string
	Personality  personality.Profile
	Strategy     datatypes.RetrievalStrategy
	Passages     []datatypes.RetrievedPassage
	MemoryTurns  []memory.Turn
	MemoryDigest string
}

// Result is the generation outcome.
//
// Fallback is true when the model failed and Answer holds FallbackAnswer.
// The conversation turn is still recorded in that case, so a fallback is
// not an error from the caller's point of view.
type Result struct {
	Answer   string
	Fallback bool
}

// Generator produces a styled answer for a classified query.
type Generator interface {
	Generate(ctx context.Context, in Input) (Result, error)
}

// LLMGenerator implements Generator over the shared model client.
type LLMGenerator struct {
	llmClient llm.LLMClient
}

// NewLLMGenerator returns a generator backed by client.
func NewLLMGenerator(client llm.LLMClient) *LLMGenerator {
	return &LLMGenerator{llmClient: client}
}

// Generate implements Generator.
//
// # Description
//
// Builds the prompt for the decided strategy and calls the model at a
// conversational temperature. Model failure degrades to the fixed fallback
// answer; only context cancellation propagates as an error, because in that
// case the caller must not record the exchange.
func (g *LLMGenerator) Generate(ctx context.Context, in Input) (Result, error) {
	ctx, span := tracer.Start(ctx, "LLMGenerator.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("generation.strategy", string(in.Strategy)),
		attribute.String("generation.personality", in.Personality.ID),
	)

	prompt := buildPrompt(in)

	temp := generationTemperature
	maxTokens := generationMaxTokens
	answer, err := g.llmClient.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		slog.Error("Generation failed, returning fallback answer", "error", err)
		return Result{Answer: FallbackAnswer, Fallback: true}, nil
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		slog.Warn("Model returned empty answer, returning fallback")
		return Result{Answer: FallbackAnswer, Fallback: true}, nil
	}
	return Result{Answer: answer}, nil
}

// buildPrompt picks the prompt shape for the strategy.
func buildPrompt(in Input) string {
	b := NewPromptBuilder().
		WithStyle(in.Personality).
		WithQuery(in.Query).
		WithConstraint("Answer in character, as a spoken-word reply of a few sentences.").
		WithConstraint("Keep the answer between 50 and 150 words.").
		WithConstraint("Use bullet points when listing steps or options.").
		WithConstraint("Never invent video names or timestamps; sources are attached separately.")

	switch in.Strategy {
	case datatypes.MemoryOnly:
		b.WithMemoryDigest(in.MemoryDigest).
			WithConversation(in.MemoryTurns).
			WithConstraint("Base the answer only on this conversation, not on outside material.")
	case datatypes.Blended:
		b.WithVideoContext(in.Passages).
			WithConversation(in.MemoryTurns)
	default:
		b.WithVideoContext(in.Passages)
		if len(in.Passages) == 0 {
			b.WithConstraint("No video excerpts matched; answer from general knowledge and say so briefly.")
		}
	}

	return b.Build()
}

var _ Generator = (*LLMGenerator)(nil)
