// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/personacast/personacast/services/chatbot/retrieval"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	// transcriptChunkSize is the target chunk length in characters.
	transcriptChunkSize = 1000

	// transcriptChunkOverlap carries 10% of a chunk into its neighbor so a
	// sentence split across chunks still retrieves.
	transcriptChunkOverlap = transcriptChunkSize / 10
)

// TranscriptSegment is one timed piece of a video transcript, as produced
// by caption extraction.
type TranscriptSegment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
}

// TranscriptIngestRequest is the body for POST /v1/transcripts.
//
// # Fields
//
//   - VideoID, VideoTitle, VideoURL: Source video metadata, all required.
//   - Segments: Timed transcript segments. Preferred; timestamps survive.
//   - Content: Raw transcript text without timing. Used when Segments is
//     empty; chunks get start_time 0.
type TranscriptIngestRequest struct {
	VideoID    string              `json:"video_id" binding:"required"`
	VideoTitle string              `json:"video_title" binding:"required"`
	VideoURL   string              `json:"video_url" binding:"required"`
	Segments   []TranscriptSegment `json:"segments,omitempty"`
	Content    string              `json:"content,omitempty"`
}

// timedChunk is a chunk ready for embedding with its resolved start time.
type timedChunk struct {
	text      string
	startTime float64
}

// HandleTranscriptIngest serves POST /v1/transcripts.
//
// # Description
//
// Chunks a video transcript, embeds the chunks in one batch, and imports
// them into the vector store in one batch request. Chunk IDs are derived
// from a content hash, so re-ingesting the same video overwrites rather
// than duplicates.
func HandleTranscriptIngest(client *weaviate.Client,
	embedder retrieval.EmbeddingProvider) gin.HandlerFunc {

	return func(c *gin.Context) {
		var req TranscriptIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if len(req.Segments) == 0 && strings.TrimSpace(req.Content) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "either segments or content is required"})
			return
		}

		chunks, err := buildChunks(req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(chunks) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transcript produced no chunks"})
			return
		}
		slog.Info("Chunked transcript", "video_id", req.VideoID, "chunk_count", len(chunks))

		created, err := importChunks(c.Request.Context(), client, embedder, req, chunks)
		if err != nil {
			slog.Error("Transcript import failed", "video_id", req.VideoID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transcript import failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         "ingested",
			"video_id":       req.VideoID,
			"chunks_created": created,
		})
	}
}

// HandleListTranscripts serves GET /v1/transcripts.
//
// Returns the distinct video IDs that have chunks in the vector store, via a
// grouped aggregate over the transcript class.
func HandleListTranscripts(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		agg, err := client.GraphQL().Aggregate().
			WithClassName(retrieval.TranscriptClass).
			WithGroupBy("video_id").
			Do(c.Request.Context())
		if err != nil {
			slog.Error("Failed to aggregate transcripts", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query transcripts"})
			return
		}

		videos := []string{}
		if aggMap, ok := agg.Data["Aggregate"].(map[string]interface{}); ok {
			if groups, ok := aggMap[retrieval.TranscriptClass].([]interface{}); ok {
				for _, groupItem := range groups {
					groupMap, ok := groupItem.(map[string]interface{})
					if !ok {
						continue
					}
					groupedBy, ok := groupMap["groupedBy"].(map[string]interface{})
					if !ok {
						continue
					}
					if videoID, ok := groupedBy["value"].(string); ok {
						videos = append(videos, videoID)
					}
				}
			}
		}

		c.JSON(http.StatusOK, gin.H{"videos": videos})
	}
}

// HandleDeleteTranscript serves DELETE /v1/transcripts/:video_id.
//
// Removes every chunk belonging to the video in one batch delete.
func HandleDeleteTranscript(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		videoID := c.Param("video_id")
		slog.Info("Deleting transcript chunks", "video_id", videoID)

		whereFilter := filters.Where().
			WithPath([]string{"video_id"}).
			WithOperator(filters.Equal).
			WithValueString(videoID)

		resp, err := client.Batch().ObjectsBatchDeleter().
			WithClassName(retrieval.TranscriptClass).
			WithOutput("minimal").
			WithWhere(whereFilter).
			Do(c.Request.Context())
		if err != nil {
			slog.Error("Failed to delete transcript chunks", "video_id", videoID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete transcript"})
			return
		}

		var deleted int64
		if resp != nil && resp.Results != nil {
			deleted = resp.Results.Successful
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         "deleted",
			"video_id":       videoID,
			"chunks_deleted": deleted,
		})
	}
}

// buildChunks turns the request into timed chunks. Timed segments are
// merged up to the chunk size, keeping the earliest start time of each
// merge; raw content goes through the recursive splitter.
func buildChunks(req TranscriptIngestRequest) ([]timedChunk, error) {
	if len(req.Segments) > 0 {
		return mergeSegments(req.Segments), nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(transcriptChunkSize),
		textsplitter.WithChunkOverlap(transcriptChunkOverlap),
	)
	parts, err := splitter.SplitText(req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split transcript: %w", err)
	}

	chunks := make([]timedChunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, timedChunk{text: part})
	}
	return chunks, nil
}

func mergeSegments(segments []TranscriptSegment) []timedChunk {
	var chunks []timedChunk
	var sb strings.Builder
	start := -1.0

	flush := func() {
		if sb.Len() == 0 {
			return
		}
		chunks = append(chunks, timedChunk{text: sb.String(), startTime: start})
		sb.Reset()
		start = -1.0
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if start < 0 {
			start = seg.StartTime
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(text)
		if sb.Len() >= transcriptChunkSize {
			flush()
		}
	}
	flush()
	return chunks
}

func importChunks(ctx context.Context, client *weaviate.Client,
	embedder retrieval.EmbeddingProvider, req TranscriptIngestRequest,
	chunks []timedChunk) (int, error) {

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.text
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("batch embedding failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		// Hash-derived IDs make re-ingestion idempotent.
		hash := sha256.Sum256([]byte(req.VideoID + "|" + chunk.text))
		chunkUUID, _ := uuid.FromBytes(hash[:16])

		objects[i] = &models.Object{
			Class:  retrieval.TranscriptClass,
			ID:     strfmt.UUID(chunkUUID.String()),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"text":        chunk.text,
				"video_id":    req.VideoID,
				"video_title": req.VideoTitle,
				"video_url":   req.VideoURL,
				"start_time":  chunk.startTime,
			},
		}
	}

	resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to save chunks to Weaviate: %w", err)
	}

	created := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			created++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Weaviate batch item failed",
					"video_id", req.VideoID, "error", errItem.Message)
			}
		}
	}
	return created, nil
}
