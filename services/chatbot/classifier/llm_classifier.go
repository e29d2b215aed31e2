// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/memory"
	"github.com/personacast/personacast/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("personacast.classifier")

// =============================================================================
// Controller Prompt
// =============================================================================

// controllerPromptTemplate is deliberately strict: the model is boxed into a
// line-oriented output format that parseDecision can consume without JSON
// parsing. Memory-priority is reserved for explicit conversation references;
// greetings are called out as NEVER memory because earlier versions kept
// dumping conversation summaries on people who said "hi".
const controllerPromptTemplate = `You are a query classification controller for a retrieval chatbot.
Decide how the assistant should answer the LATEST USER MESSAGE.

Rules, in priority order:
1. MEMORY_ONLY is ONLY for explicit requests to recall this conversation
   ("what did we discuss", "remind me", "summarize our conversation").
2. Greetings, thanks and small talk are NEVER MEMORY_ONLY.
3. BLENDED is for follow-ups that lean on pronouns or "what about X" and
   need both recent context and a small amount of fresh retrieval.
4. Everything else is FULL_RETRIEVAL.

Conversation so far:
%s

LATEST USER MESSAGE: %s

Reply with EXACTLY these lines and nothing else:
QUERY_TYPE: FULL_RETRIEVAL | MEMORY_ONLY | BLENDED
SEARCH_TERMS: <rewritten search query, or the original message>
REASONING: <one short sentence>`

// maxClassifierCacheEntries bounds the decision cache. The cache is a plain
// map with random-ish eviction; hit rates at chat cadence do not justify a
// real LRU.
const maxClassifierCacheEntries = 512

// =============================================================================
// LLM Classifier
// =============================================================================

// LLMClassifier decides strategy with a low-temperature LLM call.
//
// # Description
//
// The unambiguous cases (greetings, explicit memory references) are decided
// by the rule tables without spending an LLM round trip. Everything else
// goes to the model with a strict output contract. Identical concurrent
// queries are coalesced through singleflight, and decisions are cached per
// (query, memory-size) pair.
//
// # Failure Semantics
//
// Context cancellation propagates to the caller. Any other failure, or
// unparseable model output, degrades to FULL_RETRIEVAL.
type LLMClassifier struct {
	llmClient llm.LLMClient
	rules     *RuleClassifier

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]Decision
}

// NewLLMClassifier wraps an LLM client in the classification contract.
func NewLLMClassifier(llmClient llm.LLMClient) *LLMClassifier {
	return &LLMClassifier{
		llmClient: llmClient,
		rules:     NewRuleClassifier(),
		cache:     make(map[string]Decision),
	}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, query string, mem []memory.Turn) (Decision, error) {
	ctx, span := tracer.Start(ctx, "LLMClassifier.Classify")
	defer span.End()

	normalized := normalize(query)
	if normalized == "" {
		return Decision{Strategy: datatypes.FullRetrieval, Reasoning: "empty query"}, nil
	}

	// Deterministic cases skip the model entirely.
	if isGreeting(normalized) {
		span.SetAttributes(attribute.String("classifier.path", "rule_greeting"))
		return Decision{Strategy: datatypes.FullRetrieval, Reasoning: "greeting"}, nil
	}
	if len(mem) > 0 && containsAny(normalized, strictMemoryPhrases) {
		span.SetAttributes(attribute.String("classifier.path", "rule_memory"))
		return Decision{Strategy: datatypes.MemoryOnly, Reasoning: "explicit memory reference"}, nil
	}

	key := fmt.Sprintf("%s|%d", normalized, len(mem))

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		span.SetAttributes(attribute.String("classifier.path", "cache"))
		return cached, nil
	}
	c.mu.Unlock()

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.classifyWithLLM(ctx, query, mem)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, err.Error())
			return Decision{}, err
		}
		// Any other failure degrades rather than blocking the turn.
		slog.Warn("Classifier LLM call failed, degrading to full retrieval", "error", err)
		span.SetAttributes(attribute.String("classifier.path", "degraded"))
		return Decision{Strategy: datatypes.FullRetrieval, Reasoning: "classifier unavailable"}, nil
	}

	decision := result.(Decision)
	span.SetAttributes(
		attribute.String("classifier.path", "llm"),
		attribute.String("classifier.strategy", string(decision.Strategy)),
	)

	c.mu.Lock()
	if len(c.cache) >= maxClassifierCacheEntries {
		for k := range c.cache {
			delete(c.cache, k)
			break
		}
	}
	c.cache[key] = decision
	c.mu.Unlock()

	return decision, nil
}

func (c *LLMClassifier) classifyWithLLM(ctx context.Context, query string, mem []memory.Turn) (Decision, error) {
	prompt := fmt.Sprintf(controllerPromptTemplate, formatMemoryContext(mem), query)

	temp := float32(0.2)
	maxTokens := 200
	raw, err := c.llmClient.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return Decision{}, err
	}

	decision, ok := parseDecision(raw)
	if !ok {
		slog.Warn("Unparseable classifier output, degrading to full retrieval",
			"output", truncateForLog(raw))
		return Decision{Strategy: datatypes.FullRetrieval, Reasoning: "unparseable classifier output"}, nil
	}
	if decision.SearchTerms == "" {
		decision.SearchTerms = query
	}
	return decision, nil
}

// formatMemoryContext renders the last few turns for the controller prompt.
// The controller does not need the full window to judge follow-up intent.
func formatMemoryContext(mem []memory.Turn) string {
	if len(mem) == 0 {
		return "(no prior conversation)"
	}
	start := len(mem) - 3
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, turn := range mem[start:] {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.UserText, turn.AssistantText)
	}
	return strings.TrimSpace(b.String())
}

// parseDecision extracts the line-oriented controller output. Returns false
// when no QUERY_TYPE line with a known value is present.
func parseDecision(raw string) (Decision, bool) {
	var d Decision
	found := false
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(strings.ToUpper(key)) {
		case "QUERY_TYPE":
			upper := strings.ToUpper(value)
			switch {
			case strings.Contains(upper, "MEMORY_ONLY"), strings.Contains(upper, "MEMORY_PRIORITY"):
				d.Strategy = datatypes.MemoryOnly
				found = true
			case strings.Contains(upper, "BLENDED"), strings.Contains(upper, "CONTEXT_SEARCH"):
				d.Strategy = datatypes.Blended
				found = true
			case strings.Contains(upper, "FULL_RETRIEVAL"), strings.Contains(upper, "NORMAL_SEARCH"):
				d.Strategy = datatypes.FullRetrieval
				found = true
			}
		case "SEARCH_TERMS":
			d.SearchTerms = value
		case "REASONING":
			d.Reasoning = value
		}
	}
	return d, found
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

var _ Classifier = (*LLMClassifier)(nil)
