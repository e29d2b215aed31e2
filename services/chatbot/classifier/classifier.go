// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier decides the retrieval strategy for each user turn.
//
// # Description
//
// Two implementations share one interface: a deterministic rule classifier
// and an LLM-backed classifier that defers to the rules for the cases where
// the rules are unambiguous. Handlers and the engine depend only on the
// interface so tests can substitute a fixed classifier.
//
// # Failure Semantics
//
// Classification never fails open into silence. Any error from the
// underlying mechanism, or any unparseable output, degrades to
// FULL_RETRIEVAL so the user still gets a retrieval-backed answer.
package classifier

import (
	"context"
	"strings"

	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/memory"
)

// =============================================================================
// Interface
// =============================================================================

// Decision is the classifier output for one user turn.
//
// # Fields
//
//   - Strategy: Which retrieval path to take.
//   - SearchTerms: Optional rewritten query for the vector store; empty
//     means "use the raw message".
//   - Reasoning: Free-text explanation, logged for debugging only.
type Decision struct {
	Strategy    datatypes.RetrievalStrategy
	SearchTerms string
	Reasoning   string
}

// Classifier maps a user message plus the memory snapshot to a Decision.
type Classifier interface {
	// Classify inspects the latest message and the session memory.
	//
	// Implementations must return a usable Decision for every input except
	// context cancellation; internal failures degrade to FullRetrieval.
	Classify(ctx context.Context, query string, mem []memory.Turn) (Decision, error)
}

// =============================================================================
// Rule Classifier
// =============================================================================

// Phrase tables mirror the observed traffic: greetings must never trigger
// memory recall, and only explicit references to the conversation do.
var (
	greetingPhrases = []string{
		"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
		"thanks", "thank you", "bye", "goodbye", "how are you", "what's up",
	}

	strictMemoryPhrases = []string{
		"what did we discuss", "what did we talk about", "what have we discussed",
		"remind me", "what was our conversation", "summarize our conversation",
		"according to our conversation", "as we discussed", "from our conversation",
		"earlier you said", "you mentioned", "we talked about",
	}

	contextPronounPhrases = []string{
		"what about", "how about", "that one", "this one", "the other",
		"which one", "tell me more", "can you elaborate", "and the",
	}
)

// RuleClassifier is the deterministic fallback implementation.
//
// # Description
//
// Resolves the contract with fixed phrase tables:
//   - strict memory references with a non-empty memory -> MEMORY_ONLY
//   - greetings and small talk -> FULL_RETRIEVAL (never forced recall; the
//     retriever simply finds nothing useful for "hi there")
//   - pronoun follow-ups with memory context -> BLENDED
//   - everything else -> FULL_RETRIEVAL
type RuleClassifier struct{}

// NewRuleClassifier returns the deterministic classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify implements Classifier. It never returns an error.
func (r *RuleClassifier) Classify(_ context.Context, query string, mem []memory.Turn) (Decision, error) {
	normalized := normalize(query)

	if normalized == "" {
		return Decision{Strategy: datatypes.FullRetrieval, Reasoning: "empty query"}, nil
	}

	if isGreeting(normalized) {
		// A bare greeting carries no information need. Forcing a memory
		// summary here was a recurring defect in earlier iterations.
		return Decision{Strategy: datatypes.FullRetrieval, Reasoning: "greeting"}, nil
	}

	if len(mem) > 0 && containsAny(normalized, strictMemoryPhrases) {
		return Decision{Strategy: datatypes.MemoryOnly, Reasoning: "explicit memory reference"}, nil
	}

	if len(mem) > 0 && containsAny(normalized, contextPronounPhrases) {
		return Decision{
			Strategy:    datatypes.Blended,
			SearchTerms: expandWithRecentTopic(query, mem),
			Reasoning:   "context follow-up",
		}, nil
	}

	return Decision{Strategy: datatypes.FullRetrieval, Reasoning: "new information need"}, nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, "!?. ")
}

// isGreeting matches short messages that are entirely small talk. A long
// message that merely starts with "hi" still carries an information need.
func isGreeting(normalized string) bool {
	if len(strings.Fields(normalized)) > 4 {
		return false
	}
	for _, phrase := range greetingPhrases {
		if normalized == phrase || strings.HasPrefix(normalized, phrase+" ") {
			return true
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}

// expandWithRecentTopic appends the most recent non-summary user message so
// a pronoun follow-up ("what about the other one?") still embeds the topic
// words the vector store needs.
func expandWithRecentTopic(query string, mem []memory.Turn) string {
	for i := len(mem) - 1; i >= 0; i-- {
		if mem[i].IsSummary() {
			continue
		}
		return strings.TrimSpace(query + " " + mem[i].UserText)
	}
	return query
}

var _ Classifier = (*RuleClassifier)(nil)
