// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine runs the chat pipeline for one user turn.
//
// # Description
//
// The engine ties the per-session memory, the query classifier, the vector
// retriever, and the styled generator into one request-response cycle:
//
//	classify -> retrieve (or skip) -> generate -> attach citations -> commit
//
// # Thread Safety
//
// Process is safe for concurrent use across sessions. Turns for the same
// session serialize on the session mutex, so memory reads and the final
// commit always see a consistent transcript.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/personacast/personacast/services/chatbot/citations"
	"github.com/personacast/personacast/services/chatbot/classifier"
	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/docs"
	"github.com/personacast/personacast/services/chatbot/generator"
	"github.com/personacast/personacast/services/chatbot/memory"
	"github.com/personacast/personacast/services/chatbot/observability"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/personacast/personacast/services/chatbot/retrieval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("personacast.engine")

// blendedResultCap bounds how many passages a blended answer uses. Blended
// queries lean on conversation memory for most of their context, so they
// need fewer excerpts than a fresh retrieval.
const blendedResultCap = 3

// Engine executes chat turns.
type Engine struct {
	classifier    classifier.Classifier
	retriever     retrieval.Retriever
	generator     generator.Generator
	registry      *memory.Registry
	personalities *personality.Catalog
	metrics       *observability.ChatMetrics
}

// New wires the pipeline stages together. metrics may be nil in tests.
func New(
	cls classifier.Classifier,
	ret retrieval.Retriever,
	gen generator.Generator,
	registry *memory.Registry,
	personalities *personality.Catalog,
	metrics *observability.ChatMetrics,
) *Engine {
	return &Engine{
		classifier:    cls,
		retriever:     ret,
		generator:     gen,
		registry:      registry,
		personalities: personalities,
		metrics:       metrics,
	}
}

// Process runs one user turn through the pipeline.
//
// # Description
//
// The request must already be validated and defaulted by the handler. The
// exchange is recorded in session memory after generation, including when
// generation degraded to the fallback answer; the only path that skips the
// commit is context cancellation, so an abandoned request leaves no
// half-turn behind.
//
// # Inputs
//
//   - ctx: Request context. Cancellation aborts without recording the turn.
//   - req: Validated chat request with settings populated.
//
// # Outputs
//
//   - *datatypes.ChatResponse: The styled answer with citations.
//   - error: Only context cancellation errors; everything else degrades.
func (e *Engine) Process(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "Engine.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.session_id", req.SessionID),
		attribute.String("chat.personality", req.Personality),
	)

	start := time.Now()
	profile := e.personalities.Get(req.Personality)

	sess := e.registry.GetOrCreate(req.SessionID)
	sess.Lock()
	defer sess.Unlock()

	snapshot := sess.Store.Snapshot()

	decision, err := e.classifier.Classify(ctx, req.Message, snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	strategy := decision.Strategy

	// A memory-only decision against an empty store has nothing to answer
	// from; fall through to retrieval instead of apologizing.
	if strategy == datatypes.MemoryOnly && sess.Store.Len() == 0 {
		strategy = datatypes.FullRetrieval
	}
	span.SetAttributes(attribute.String("chat.strategy", string(strategy)))

	passages := e.retrieve(ctx, strategy, decision, req)

	genInput := generator.Input{
		Query:       req.Message,
		Personality: profile,
		Strategy:    strategy,
		Passages:    passages,
		MemoryTurns: snapshot,
	}
	if strategy == datatypes.MemoryOnly {
		genInput.MemoryDigest = sess.Store.SummarizeTopics(req.Message)
	}

	genStart := time.Now()
	result, err := e.generator.Generate(ctx, genInput)
	if err != nil {
		// Cancellation only. The turn is not recorded.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.ObserveGeneration(time.Since(genStart).Seconds())
		if result.Fallback {
			e.metrics.RecordFallback(observability.CauseGenerationFailed)
		}
	}

	answer := result.Answer
	var cites []datatypes.VideoCitation
	if strategy != datatypes.MemoryOnly && req.Settings.EnableVideos && !result.Fallback {
		cites = citations.BuildCitations(passages)
		answer += citations.RenderBlock(cites)
	}
	if req.Settings.EnableDocs && !result.Fallback {
		answer += docs.RenderBlock(docs.Match(req.Message))
	}

	// Record the exchange, fallback answers included. A user who got the
	// apology still said what they said.
	sess.Store.Append(req.Message, result.Answer)
	e.registry.Commit(sess)

	if e.metrics != nil {
		e.metrics.SetActiveSessions(e.registry.ActiveCount())
	}

	resp := datatypes.NewChatResponse(req.RequestID, req.SessionID, answer)
	resp.Strategy = string(strategy)
	resp.Personality = profile.ID
	resp.Citations = cites
	resp.Fallback = result.Fallback
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()

	slog.Info("Chat turn complete",
		"session_id", req.SessionID,
		"strategy", strategy,
		"passages", len(passages),
		"citations", len(cites),
		"fallback", result.Fallback,
		"duration_ms", resp.ProcessingTimeMs,
	)
	return resp, nil
}

// retrieve fetches passages for strategies that need them. Backend failure
// degrades to an empty passage list; the generator states the gap instead
// of the user seeing an error page.
func (e *Engine) retrieve(ctx context.Context, strategy datatypes.RetrievalStrategy,
	decision classifier.Decision, req *datatypes.ChatRequest) []datatypes.RetrievedPassage {

	if strategy == datatypes.MemoryOnly {
		return nil
	}

	query := decision.SearchTerms
	if query == "" {
		query = req.Message
	}

	maxResults := req.Settings.MaxResults
	if strategy == datatypes.Blended && maxResults > blendedResultCap {
		maxResults = blendedResultCap
	}

	start := time.Now()
	passages, err := e.retriever.Retrieve(ctx, query, maxResults, req.Settings.MinRelevance)
	if e.metrics != nil {
		e.metrics.ObserveRetrieval(time.Since(start).Seconds())
	}
	if err != nil {
		// An unconfigured store fails every request; warn-level logging
		// for that would flood the log in lightweight deployments.
		if re, ok := retrieval.IsRetrievalError(err); ok && !re.Retryable {
			slog.Debug("Retrieval unavailable, answering without video context",
				"session_id", req.SessionID, "error", err)
		} else {
			slog.Warn("Retrieval failed, answering without video context",
				"session_id", req.SessionID, "error", err)
		}
		if e.metrics != nil {
			e.metrics.RecordFallback(observability.CauseRetrievalFailed)
		}
		return nil
	}
	return passages
}
