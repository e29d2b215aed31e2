// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generator builds answer prompts and runs the response model.
package generator

import (
	"fmt"
	"strings"

	"github.com/personacast/personacast/services/chatbot/datatypes"
	"github.com/personacast/personacast/services/chatbot/memory"
	"github.com/personacast/personacast/services/chatbot/personality"
)

// maxMemoryTurnsInPrompt caps how much raw conversation is replayed into
// the generation prompt.
const maxMemoryTurnsInPrompt = 5

// PromptBuilder assembles a generation prompt from typed sections.
//
// # Description
//
// Sections are appended in a fixed order regardless of the order the
// builder methods are called in: style, video context, memory digest,
// conversation history, constraints, then the user query. Empty sections
// are omitted. This keeps prompts byte-stable for a given input, which
// matters for caching and for debugging model behavior from logs.
type PromptBuilder struct {
	style        string
	videoContext string
	memoryDigest string
	conversation string
	constraints  []string
	query        string
}

// NewPromptBuilder returns an empty builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// WithStyle sets the personality style descriptor.
func (b *PromptBuilder) WithStyle(p personality.Profile) *PromptBuilder {
	b.style = strings.TrimSpace(p.Style)
	return b
}

// WithVideoContext renders retrieved passages into a context section. Each
// passage is labeled with its source video so the model can ground answers.
func (b *PromptBuilder) WithVideoContext(passages []datatypes.RetrievedPassage) *PromptBuilder {
	if len(passages) == 0 {
		return b
	}
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		title := p.VideoTitle
		if title == "" {
			title = p.SourceVideoID
		}
		fmt.Fprintf(&sb, "[From \"%s\"]\n%s", title, p.Text)
	}
	b.videoContext = sb.String()
	return b
}

// WithMemoryDigest sets the topic digest used for memory-only answers.
func (b *PromptBuilder) WithMemoryDigest(digest string) *PromptBuilder {
	b.memoryDigest = strings.TrimSpace(digest)
	return b
}

// WithConversation replays the most recent raw turns. Summary turns carry a
// compressed digest as the assistant text and are replayed as-is.
func (b *PromptBuilder) WithConversation(turns []memory.Turn) *PromptBuilder {
	if len(turns) == 0 {
		return b
	}
	if len(turns) > maxMemoryTurnsInPrompt {
		turns = turns[len(turns)-maxMemoryTurnsInPrompt:]
	}
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		if t.IsSummary() {
			fmt.Fprintf(&sb, "Earlier in this conversation: %s", t.AssistantText)
			continue
		}
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s", t.UserText, t.AssistantText)
	}
	b.conversation = sb.String()
	return b
}

// WithConstraint appends one answer constraint line.
func (b *PromptBuilder) WithConstraint(c string) *PromptBuilder {
	b.constraints = append(b.constraints, c)
	return b
}

// WithQuery sets the user question the model must answer.
func (b *PromptBuilder) WithQuery(query string) *PromptBuilder {
	b.query = strings.TrimSpace(query)
	return b
}

// Build renders the prompt.
func (b *PromptBuilder) Build() string {
	var sections []string

	if b.style != "" {
		sections = append(sections, b.style)
	}
	if b.videoContext != "" {
		sections = append(sections, "Relevant excerpts from the video library:\n\n"+b.videoContext)
	}
	if b.memoryDigest != "" {
		sections = append(sections, "Summary of this conversation so far:\n"+b.memoryDigest)
	}
	if b.conversation != "" {
		sections = append(sections, "Recent conversation:\n"+b.conversation)
	}
	if len(b.constraints) > 0 {
		sections = append(sections, "Answer constraints:\n- "+strings.Join(b.constraints, "\n- "))
	}
	if b.query != "" {
		sections = append(sections, "User question: "+b.query+"\n\nAnswer:")
	}

	return strings.Join(sections, "\n\n")
}
