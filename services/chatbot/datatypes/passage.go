// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// RetrievalStrategy describes how a turn is answered.
type RetrievalStrategy string

const (
	// FullRetrieval queries the vector store with the full configured limits.
	FullRetrieval RetrievalStrategy = "FULL_RETRIEVAL"

	// MemoryOnly answers from the conversation memory digest. No retrieval
	// call is made and no video citations are rendered.
	MemoryOnly RetrievalStrategy = "MEMORY_ONLY"

	// Blended retrieves a reduced document set and combines it with memory
	// context. Used for follow-up questions that lean on pronouns.
	Blended RetrievalStrategy = "BLENDED"
)

// ParseRetrievalStrategy maps classifier output tokens onto a strategy.
// Unknown tokens map to FullRetrieval so a confused classifier can never
// cause an empty answer.
func ParseRetrievalStrategy(s string) RetrievalStrategy {
	switch s {
	case string(MemoryOnly), "MEMORY_PRIORITY":
		return MemoryOnly
	case string(Blended), "CONTEXT_SEARCH":
		return Blended
	default:
		return FullRetrieval
	}
}

// RetrievedPassage is one scored transcript chunk from the vector store.
//
// Request-scoped: built from a query response, consumed by the attribution
// and generation steps, never persisted and never written into memory.
type RetrievedPassage struct {
	Text             string  `json:"text"`
	SourceVideoID    string  `json:"source_video_id"`
	VideoTitle       string  `json:"video_title"`
	VideoURL         string  `json:"video_url"`
	StartTimeSeconds float64 `json:"start_time_seconds"`
	RelevanceScore   float64 `json:"relevance_score"`
}

// CitationTimestamp pairs a whole-second offset with the relevance score of
// the passage that produced it.
type CitationTimestamp struct {
	Seconds int     `json:"seconds"`
	Score   float64 `json:"score"`
}

// VideoCitation is the per-video grouping of retrieved passages.
//
// Derived by grouping RetrievedPassage entries by SourceVideoID; lifecycle is
// request-scoped (built, rendered into text, discarded).
type VideoCitation struct {
	VideoID    string              `json:"video_id"`
	VideoTitle string              `json:"video_title"`
	VideoURL   string              `json:"video_url"`
	Timestamps []CitationTimestamp `json:"timestamps"`
	MaxScore   float64             `json:"max_score"`
}
