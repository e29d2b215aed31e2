// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"testing"

	"github.com/personacast/personacast/services/chatbot/classifier"
	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/generator"
	"github.com/personacast/personacast/services/chatbot/memory"
	"github.com/personacast/personacast/services/chatbot/personality"
	"github.com/personacast/personacast/services/chatbot/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fakes
// =============================================================================

type stubClassifier struct {
	decision classifier.Decision
	err      error
}

func (s *stubClassifier) Classify(context.Context, string, []memory.Turn) (classifier.Decision, error) {
	return s.decision, s.err
}

type spyRetriever struct {
	passages   []datatypes.RetrievedPassage
	err        error
	calls      int
	lastQuery  string
	lastMax    int
	lastMinRel float64
}

func (s *spyRetriever) Retrieve(_ context.Context, query string, maxResults int,
	minRelevance float64) ([]datatypes.RetrievedPassage, error) {
	s.calls++
	s.lastQuery = query
	s.lastMax = maxResults
	s.lastMinRel = minRelevance
	return s.passages, s.err
}

type stubGenerator struct {
	result    generator.Result
	err       error
	lastInput generator.Input
}

func (s *stubGenerator) Generate(_ context.Context, in generator.Input) (generator.Result, error) {
	s.lastInput = in
	return s.result, s.err
}

func somePassages() []datatypes.RetrievedPassage {
	return []datatypes.RetrievedPassage{
		{
			Text:             "Docker volumes persist data.",
			SourceVideoID:    "vid1",
			VideoTitle:       "Docker Deep Dive",
			VideoURL:         "https://youtube.com/watch?v=vid1",
			StartTimeSeconds: 150,
			RelevanceScore:   0.9,
		},
	}
}

func newTestEngine(cls classifier.Classifier, ret retrieval.Retriever,
	gen generator.Generator) (*Engine, *memory.Registry) {

	registry := memory.NewRegistry(memory.Config{WindowSize: 10, KeepRecent: 5}, nil)
	return New(cls, ret, gen, registry, personality.NewCatalog(), nil), registry
}

func chatRequest(session, message string) *datatypes.ChatRequest {
	req := &datatypes.ChatRequest{SessionID: session, Message: message}
	req.EnsureDefaults()
	return req
}

// =============================================================================
// Tests
// =============================================================================

func TestProcessFullRetrievalWithCitations(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{result: generator.Result{Answer: "Volumes outlive containers."}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, _ := newTestEngine(cls, ret, gen)

	resp, err := e.Process(context.Background(), chatRequest("s1", "How do Docker volumes work?"))
	require.NoError(t, err)

	assert.Equal(t, string(datatypes.FullRetrieval), resp.Strategy)
	assert.Equal(t, 1, ret.calls)
	assert.Contains(t, resp.Answer, "Volumes outlive containers.")
	assert.Contains(t, resp.Answer, "🎥 **Source Videos:**")
	assert.Contains(t, resp.Answer, "2:30")
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "vid1", resp.Citations[0].VideoID)
}

func TestProcessMemoryOnlySkipsRetrieval(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{result: generator.Result{Answer: "We talked about Docker networking."}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.MemoryOnly}}
	e, registry := newTestEngine(cls, ret, gen)

	sess := registry.GetOrCreate("s1")
	sess.Store.Append("Explain Docker bridge networks", "Bridge networks connect containers on one host.")

	resp, err := e.Process(context.Background(), chatRequest("s1", "what did we discuss?"))
	require.NoError(t, err)

	assert.Equal(t, string(datatypes.MemoryOnly), resp.Strategy)
	assert.Zero(t, ret.calls, "memory-only must not hit the vector store")
	assert.Empty(t, resp.Citations)
	assert.NotContains(t, resp.Answer, "Source Videos")
	assert.NotEmpty(t, gen.lastInput.MemoryDigest)
	assert.Contains(t, gen.lastInput.MemoryDigest, "Docker")
}

func TestProcessMemoryOnlyWithEmptyStoreFallsThrough(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{result: generator.Result{Answer: "ok"}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.MemoryOnly}}
	e, _ := newTestEngine(cls, ret, gen)

	resp, err := e.Process(context.Background(), chatRequest("fresh", "what did we discuss?"))
	require.NoError(t, err)
	assert.Equal(t, string(datatypes.FullRetrieval), resp.Strategy)
	assert.Equal(t, 1, ret.calls)
}

func TestProcessBlendedCapsResultsAndUsesSearchTerms(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{result: generator.Result{Answer: "ok"}}
	cls := &stubClassifier{decision: classifier.Decision{
		Strategy:    datatypes.Blended,
		SearchTerms: "docker compose networking",
	}}
	e, registry := newTestEngine(cls, ret, gen)
	registry.GetOrCreate("s1").Store.Append("Explain docker compose", "It runs multi-container apps.")

	req := chatRequest("s1", "what about networking?")
	req.Settings.MaxResults = 10

	_, err := e.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "docker compose networking", ret.lastQuery)
	assert.Equal(t, blendedResultCap, ret.lastMax)
}

func TestProcessRetrievalFailureDegrades(t *testing.T) {
	ret := &spyRetriever{err: &retrieval.RetrievalError{Message: "connection refused", Retryable: true}}
	gen := &stubGenerator{result: generator.Result{Answer: "General knowledge answer."}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, registry := newTestEngine(cls, ret, gen)

	resp, err := e.Process(context.Background(), chatRequest("s1", "How do I install nginx?"))
	require.NoError(t, err, "retrieval failure must not surface as a request error")

	assert.Empty(t, resp.Citations)
	assert.Empty(t, gen.lastInput.Passages)
	assert.Equal(t, 1, registry.GetOrCreate("s1").Store.Len(), "turn still recorded")
}

func TestProcessUnconfiguredStoreDegrades(t *testing.T) {
	gen := &stubGenerator{result: generator.Result{Answer: "General knowledge answer."}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, registry := newTestEngine(cls, retrieval.Disabled{}, gen)

	resp, err := e.Process(context.Background(), chatRequest("s1", "How do I install nginx?"))
	require.NoError(t, err, "a missing vector store must not surface as a request error")

	assert.Empty(t, resp.Citations)
	assert.Empty(t, gen.lastInput.Passages)
	assert.Equal(t, 1, registry.GetOrCreate("s1").Store.Len())
}

func TestProcessGenerationFallbackStillCommitsMemory(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{result: generator.Result{Answer: generator.FallbackAnswer, Fallback: true}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, registry := newTestEngine(cls, ret, gen)

	resp, err := e.Process(context.Background(), chatRequest("s1", "How do I install nginx?"))
	require.NoError(t, err)

	assert.True(t, resp.Fallback)
	assert.Equal(t, generator.FallbackAnswer, resp.Answer, "fallback answers carry no citation block")
	assert.Empty(t, resp.Citations)

	turns := registry.GetOrCreate("s1").Store.Snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, "How do I install nginx?", turns[0].UserText)
}

func TestProcessCancellationSkipsCommit(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{err: context.Canceled}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, registry := newTestEngine(cls, ret, gen)

	_, err := e.Process(context.Background(), chatRequest("s1", "How do I install nginx?"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, registry.GetOrCreate("s1").Store.Len(), "abandoned request leaves no half-turn")
}

func TestProcessClassifierErrorPropagates(t *testing.T) {
	cls := &stubClassifier{err: context.DeadlineExceeded}
	e, _ := newTestEngine(cls, &spyRetriever{}, &stubGenerator{})

	_, err := e.Process(context.Background(), chatRequest("s1", "hello?"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessDisabledVideosSkipsCitationBlock(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{result: generator.Result{Answer: "ok"}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, _ := newTestEngine(cls, ret, gen)

	req := chatRequest("s1", "How do Docker volumes work?")
	req.Settings.EnableVideos = false

	resp, err := e.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, ret.calls, "retrieval still runs for the answer context")
	assert.Empty(t, resp.Citations)
	assert.NotContains(t, resp.Answer, "Source Videos")
}

func TestProcessDocsLinksAppended(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{result: generator.Result{Answer: "ok"}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, _ := newTestEngine(cls, ret, gen)

	req := chatRequest("s1", "How do I install docker?")
	req.Settings.EnableDocs = true

	resp, err := e.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "📚 **Official Docs:**")
	assert.Contains(t, resp.Answer, "docs.docker.com")
}

func TestProcessUnknownPersonalityFallsBack(t *testing.T) {
	ret := &spyRetriever{}
	gen := &stubGenerator{result: generator.Result{Answer: "ok"}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, _ := newTestEngine(cls, ret, gen)

	req := chatRequest("s1", "hello there, tell me about docker")
	req.Personality = "nonexistent"

	resp, err := e.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, personality.DefaultID, resp.Personality)
	assert.Equal(t, personality.DefaultID, gen.lastInput.Personality.ID)
}

func TestProcessRecordsRawTurnNotRenderedAnswer(t *testing.T) {
	ret := &spyRetriever{passages: somePassages()}
	gen := &stubGenerator{result: generator.Result{Answer: "Core answer."}}
	cls := &stubClassifier{decision: classifier.Decision{Strategy: datatypes.FullRetrieval}}
	e, registry := newTestEngine(cls, ret, gen)

	_, err := e.Process(context.Background(), chatRequest("s1", "How do Docker volumes work?"))
	require.NoError(t, err)

	turns := registry.GetOrCreate("s1").Store.Snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, "Core answer.", turns[0].AssistantText,
		"memory keeps the answer text without the citation block")
}
