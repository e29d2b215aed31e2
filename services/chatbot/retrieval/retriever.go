// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("personacast.retrieval")

// TranscriptClass is the Weaviate class holding video transcript chunks.
const TranscriptClass = "TranscriptChunk"

const (
	maxRetrievalRetries = 3
	initialRetryDelay   = 1 * time.Second

	// overFetchFactor is how many extra candidates we pull before applying
	// the relevance threshold. Threshold filtering happens client-side, so
	// fetching exactly maxResults would under-fill the list whenever some
	// candidates score below the floor.
	overFetchFactor = 2
)

// =============================================================================
// Errors
// =============================================================================

// RetrievalError signals that the vector backend could not serve a query.
//
// # Description
//
// Carries a retryable flag so the caller can distinguish transient backend
// trouble (connection refused, 503) from permanent misconfiguration. The
// engine degrades both cases to an answer without video context; the flag
// only decides how loudly the failure is logged. Transient errors have
// already been through the retry loop by the time they surface here.
type RetrievalError struct {
	Message   string
	Retryable bool
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %s (retryable=%v)", e.Message, e.Retryable)
}

// IsRetrievalError reports whether err is a RetrievalError.
func IsRetrievalError(err error) (*RetrievalError, bool) {
	re, ok := err.(*RetrievalError)
	return re, ok
}

// =============================================================================
// Retriever
// =============================================================================

// Retriever finds transcript passages relevant to a query.
type Retriever interface {
	// Retrieve returns at most maxResults passages scoring at least
	// minRelevance, ordered by descending score. Backend failure returns an
	// empty slice plus a RetrievalError; the caller falls back to a
	// memory-only answer rather than surfacing the error text.
	Retrieve(ctx context.Context, query string, maxResults int, minRelevance float64) ([]datatypes.RetrievedPassage, error)
}

// WeaviateRetriever implements Retriever over a Weaviate nearVector query.
//
// # Description
//
// Embeds the query via the configured EmbeddingProvider, over-fetches
// 2x maxResults candidates, then applies the relevance floor, the result
// cap, and deterministic ordering client-side. Results are request-scoped;
// nothing is cached across requests.
type WeaviateRetriever struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

// NewWeaviateRetriever wires the vector store client and embedder together.
func NewWeaviateRetriever(client *weaviate.Client, embedder EmbeddingProvider) *WeaviateRetriever {
	return &WeaviateRetriever{client: client, embedder: embedder}
}

// Retrieve implements Retriever.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string, maxResults int,
	minRelevance float64) ([]datatypes.RetrievedPassage, error) {

	ctx, span := tracer.Start(ctx, "WeaviateRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("retrieval.max_results", maxResults),
		attribute.Float64("retrieval.min_relevance", minRelevance),
	)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &RetrievalError{Message: "embedding failed: " + err.Error(), Retryable: true}
	}

	passages, err := r.queryWithRetry(ctx, vector, maxResults*overFetchFactor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	filtered := filterAndRank(passages, maxResults, minRelevance)
	span.SetAttributes(attribute.Int("retrieval.result_count", len(filtered)))
	slog.Debug("Retrieval complete",
		"candidates", len(passages), "returned", len(filtered))
	return filtered, nil
}

// queryWithRetry runs the nearVector query with bounded exponential backoff.
func (r *WeaviateRetriever) queryWithRetry(ctx context.Context, vector []float32,
	limit int) ([]datatypes.RetrievedPassage, error) {

	delay := initialRetryDelay
	var lastErr error

	for attempt := 1; attempt <= maxRetrievalRetries; attempt++ {
		passages, err := r.query(ctx, vector, limit)
		if err == nil {
			return passages, nil
		}
		lastErr = err

		slog.Warn("Vector store query failed",
			"attempt", attempt, "max_attempts", maxRetrievalRetries, "error", err)

		if attempt == maxRetrievalRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}

	return nil, &RetrievalError{Message: lastErr.Error(), Retryable: true}
}

func (r *WeaviateRetriever) query(ctx context.Context, vector []float32,
	limit int) ([]datatypes.RetrievedPassage, error) {

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "video_id"},
		{Name: "video_title"},
		{Name: "video_url"},
		{Name: "start_time"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	nearVector := r.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := r.client.GraphQL().Get().
		WithClassName(TranscriptClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", result.Errors[0].Message)
	}

	data := make(map[string]interface{}, len(result.Data))
	for k, v := range result.Data {
		data[k] = v
	}
	return parsePassages(data), nil
}

// parsePassages walks the loosely typed GraphQL response. Missing or
// mistyped fields drop the candidate rather than aborting the query.
func parsePassages(data map[string]interface{}) []datatypes.RetrievedPassage {
	var passages []datatypes.RetrievedPassage

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return passages
	}
	chunks, ok := get[TranscriptClass].([]interface{})
	if !ok {
		return passages
	}

	for _, raw := range chunks {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		passage := datatypes.RetrievedPassage{
			Text:          asString(obj["text"]),
			SourceVideoID: asString(obj["video_id"]),
			VideoTitle:    asString(obj["video_title"]),
			VideoURL:      asString(obj["video_url"]),
		}
		if start, ok := obj["start_time"].(float64); ok {
			passage.StartTimeSeconds = start
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				passage.RelevanceScore = certainty
			}
		}
		if passage.Text == "" {
			continue
		}
		passages = append(passages, passage)
	}
	return passages
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// filterAndRank applies the relevance floor, deterministic ordering and the
// result cap.
//
// Ordering: descending relevance score; equal scores break toward the later
// start time, which keeps repeated runs byte-identical.
func filterAndRank(passages []datatypes.RetrievedPassage, maxResults int,
	minRelevance float64) []datatypes.RetrievedPassage {

	filtered := make([]datatypes.RetrievedPassage, 0, len(passages))
	for _, p := range passages {
		if p.RelevanceScore >= minRelevance {
			filtered = append(filtered, p)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].RelevanceScore != filtered[j].RelevanceScore {
			return filtered[i].RelevanceScore > filtered[j].RelevanceScore
		}
		return filtered[i].StartTimeSeconds > filtered[j].StartTimeSeconds
	})

	if len(filtered) > maxResults {
		filtered = filtered[:maxResults]
	}
	return filtered
}

var _ Retriever = (*WeaviateRetriever)(nil)

// Disabled is the retriever used when no vector store is configured. Every
// query reports an unretryable backend absence, which the engine degrades
// the same way it degrades an unreachable store.
type Disabled struct{}

// Retrieve implements Retriever.
func (Disabled) Retrieve(context.Context, string, int, float64) ([]datatypes.RetrievedPassage, error) {
	return nil, &RetrievalError{Message: "vector store not configured", Retryable: false}
}

var _ Retriever = Disabled{}
