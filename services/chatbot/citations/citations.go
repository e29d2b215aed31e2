// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package citations turns retrieved passages into deduplicated video links.
package citations

import (
	"fmt"
	"sort"
	"strings"

	"github.com/personacast/personacast/services/chatbot/datatypes"
)

const (
	// MaxVideos is the cap on distinct videos in one citation block.
	MaxVideos = 3

	// MaxTimestampsPerVideo is the cap on deep links per video.
	MaxTimestampsPerVideo = 2
)

// BuildCitations groups passages by source video and ranks the groups.
//
// # Description
//
// Each video appears once. Within a video the highest-scoring timestamps
// win, capped at MaxTimestampsPerVideo and re-sorted chronologically for
// display. Groups are ordered by their best passage score; at most
// MaxVideos groups survive. Start times arrive as floats from the vector
// store and are truncated to whole seconds here, at the boundary, so
// fractional seconds can never leak into rendered links.
func BuildCitations(passages []datatypes.RetrievedPassage) []datatypes.VideoCitation {
	if len(passages) == 0 {
		return nil
	}

	order := []string{}
	groups := map[string]*datatypes.VideoCitation{}

	for _, p := range passages {
		if p.SourceVideoID == "" || p.VideoURL == "" {
			continue
		}
		citation, ok := groups[p.SourceVideoID]
		if !ok {
			citation = &datatypes.VideoCitation{
				VideoID:    p.SourceVideoID,
				VideoTitle: p.VideoTitle,
				VideoURL:   p.VideoURL,
			}
			groups[p.SourceVideoID] = citation
			order = append(order, p.SourceVideoID)
		}
		citation.Timestamps = append(citation.Timestamps, datatypes.CitationTimestamp{
			Seconds: int(p.StartTimeSeconds),
			Score:   p.RelevanceScore,
		})
		if p.RelevanceScore > citation.MaxScore {
			citation.MaxScore = p.RelevanceScore
		}
	}

	result := make([]datatypes.VideoCitation, 0, len(order))
	for _, id := range order {
		citation := groups[id]

		// Keep the best-scoring timestamps, then show them in play order.
		sort.SliceStable(citation.Timestamps, func(i, j int) bool {
			return citation.Timestamps[i].Score > citation.Timestamps[j].Score
		})
		if len(citation.Timestamps) > MaxTimestampsPerVideo {
			citation.Timestamps = citation.Timestamps[:MaxTimestampsPerVideo]
		}
		sort.SliceStable(citation.Timestamps, func(i, j int) bool {
			return citation.Timestamps[i].Seconds < citation.Timestamps[j].Seconds
		})

		result = append(result, *citation)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].MaxScore > result[j].MaxScore
	})
	if len(result) > MaxVideos {
		result = result[:MaxVideos]
	}
	return result
}

// RenderBlock formats citations as the text block appended to an answer.
// Returns the empty string for an empty citation list.
func RenderBlock(citations []datatypes.VideoCitation) string {
	if len(citations) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n🎥 **Source Videos:**")
	for _, citation := range citations {
		title := citation.VideoTitle
		if title == "" {
			title = citation.VideoID
		}
		b.WriteString(fmt.Sprintf("\n- **%s**", title))
		for _, ts := range citation.Timestamps {
			b.WriteString(fmt.Sprintf(" [%s](%s)", FormatTime(ts.Seconds), DeepLink(citation.VideoURL, ts.Seconds)))
		}
	}
	return b.String()
}

// FormatTime renders whole seconds as M:SS.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// DeepLink appends a t= parameter, using & when the base URL already has a
// query string and ? when it does not.
func DeepLink(videoURL string, seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	sep := "?"
	if strings.Contains(videoURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%ds", videoURL, sep, seconds)
}
