// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// EnsureSchema creates the transcript chunk class if it does not exist.
//
// # Description
//
// The class stores pre-computed vectors (vectorizer "none"); embeddings are
// produced by the EmbeddingProvider at ingest and query time. Failure is
// logged but not fatal, matching service startup where Weaviate may come up
// after the chatbot.
func EnsureSchema(client *weaviate.Client) {
	ctx := context.Background()

	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(TranscriptClass).Do(ctx)
	if err != nil {
		slog.Warn("Failed to check vector schema", "class", TranscriptClass, "error", err)
		return
	}
	if exists {
		return
	}

	class := &models.Class{
		Class:      TranscriptClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}},
			{Name: "video_id", DataType: []string{"text"}},
			{Name: "video_title", DataType: []string{"text"}},
			{Name: "video_url", DataType: []string{"text"}},
			{Name: "start_time", DataType: []string{"number"}},
		},
	}

	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		slog.Warn("Failed to create vector schema", "class", TranscriptClass, "error", err)
		return
	}
	slog.Info("Created vector schema", "class", TranscriptClass)
}
