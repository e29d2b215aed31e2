// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"testing"

	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passage(video string, start, score float64) datatypes.RetrievedPassage {
	return datatypes.RetrievedPassage{
		Text:             "chunk from " + video,
		SourceVideoID:    video,
		VideoTitle:       "Title " + video,
		VideoURL:         "https://youtube.com/watch?v=" + video,
		StartTimeSeconds: start,
		RelevanceScore:   score,
	}
}

func TestFilterAndRankAppliesThresholdAndCap(t *testing.T) {
	candidates := []datatypes.RetrievedPassage{
		passage("a", 10, 0.9),
		passage("b", 20, 0.15),
		passage("c", 30, 0.5),
		passage("d", 40, 0.7),
		passage("e", 50, 0.3),
	}

	got := filterAndRank(candidates, 3, 0.2)
	require.Len(t, got, 3)
	for _, p := range got {
		assert.GreaterOrEqual(t, p.RelevanceScore, 0.2)
	}
	assert.Equal(t, "a", got[0].SourceVideoID)
	assert.Equal(t, "d", got[1].SourceVideoID)
	assert.Equal(t, "c", got[2].SourceVideoID)
}

func TestFilterAndRankTieBreaksByLaterStartTime(t *testing.T) {
	candidates := []datatypes.RetrievedPassage{
		passage("early", 30, 0.8),
		passage("late", 300, 0.8),
	}

	got := filterAndRank(candidates, 5, 0.1)
	require.Len(t, got, 2)
	assert.Equal(t, "late", got[0].SourceVideoID)
	assert.Equal(t, "early", got[1].SourceVideoID)
}

func TestFilterAndRankAllBelowThreshold(t *testing.T) {
	candidates := []datatypes.RetrievedPassage{
		passage("a", 10, 0.05),
		passage("b", 20, 0.01),
	}
	assert.Empty(t, filterAndRank(candidates, 5, 0.2))
}

func TestFilterAndRankDeterministic(t *testing.T) {
	candidates := []datatypes.RetrievedPassage{
		passage("a", 10, 0.5),
		passage("b", 20, 0.5),
		passage("c", 30, 0.9),
	}

	first := filterAndRank(candidates, 3, 0.1)
	second := filterAndRank(candidates, 3, 0.1)
	assert.Equal(t, first, second)
}

func TestParsePassagesWalksGraphQLShape(t *testing.T) {
	data := map[string]interface{}{
		"Get": map[string]interface{}{
			TranscriptClass: []interface{}{
				map[string]interface{}{
					"text":        "Docker uses namespaces",
					"video_id":    "vid1",
					"video_title": "Docker Deep Dive",
					"video_url":   "https://youtube.com/watch?v=vid1",
					"start_time":  150.7,
					"_additional": map[string]interface{}{"certainty": 0.87},
				},
				// Malformed entry is skipped, not fatal.
				map[string]interface{}{"video_id": "vid2"},
			},
		},
	}

	got := parsePassages(data)
	require.Len(t, got, 1)
	assert.Equal(t, "vid1", got[0].SourceVideoID)
	assert.Equal(t, 150.7, got[0].StartTimeSeconds)
	assert.Equal(t, 0.87, got[0].RelevanceScore)
}

func TestParsePassagesEmptyResponse(t *testing.T) {
	assert.Empty(t, parsePassages(map[string]interface{}{}))
	assert.Empty(t, parsePassages(map[string]interface{}{"Get": map[string]interface{}{}}))
}

func TestRetrievalErrorFormatting(t *testing.T) {
	err := &RetrievalError{Message: "connection refused", Retryable: true}
	assert.Contains(t, err.Error(), "connection refused")

	re, ok := IsRetrievalError(err)
	require.True(t, ok)
	assert.True(t, re.Retryable)

	_, ok = IsRetrievalError(assert.AnError)
	assert.False(t, ok)
}
