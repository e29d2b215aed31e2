// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory implements the bounded per-session conversation store.
//
// # Description
//
// Each session owns one Store: an ordered log of (user, assistant) turn
// pairs with a configurable capacity. When an append would exceed the
// capacity, the oldest turns are folded into a single synthetic summary turn
// so older context remains recallable without unbounded growth. The store
// holds conversational text only; retrieval metadata (scores, citations,
// video IDs) is never written here, so one turn's retrieval results cannot
// contaminate the next turn's classification.
package memory

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// Configuration
// =============================================================================

// SummaryMarker is the user_text of the synthetic turn produced by
// compression. Classifiers and prompt builders can recognize it cheaply.
const SummaryMarker = "[earlier conversation]"

// excerptLen is how much of an assistant reply survives verbatim inside a
// compressed digest or a topic summary entry.
const excerptLen = 150

// Config holds the memory window knobs.
//
// # Fields
//
//   - WindowSize: Capacity K. The store never holds more than K entries.
//   - KeepRecent: How many of the newest turns stay verbatim when the
//     window overflows; everything older is folded into the summary turn.
type Config struct {
	WindowSize int
	KeepRecent int
}

// DefaultConfig returns the memory configuration with environment overrides.
//
// # Environment Variables
//
//   - MEMORY_WINDOW_SIZE: Capacity K (default: 10)
//   - MEMORY_KEEP_RECENT: Verbatim sub-window (default: K/2)
func DefaultConfig() Config {
	cfg := Config{
		WindowSize: getEnvInt("MEMORY_WINDOW_SIZE", 10),
	}
	cfg.KeepRecent = getEnvInt("MEMORY_KEEP_RECENT", cfg.WindowSize/2)
	return cfg.normalized()
}

// normalized clamps nonsense values so a bad env var cannot produce a store
// that drops turns or never compresses.
func (c Config) normalized() Config {
	if c.WindowSize < 2 {
		c.WindowSize = 2
	}
	if c.KeepRecent < 1 {
		c.KeepRecent = 1
	}
	if c.KeepRecent >= c.WindowSize {
		c.KeepRecent = c.WindowSize - 1
	}
	return c
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// =============================================================================
// Turns
// =============================================================================

// Turn is one completed (user, assistant) exchange. Immutable once appended.
type Turn struct {
	UserText      string `json:"user_text"`
	AssistantText string `json:"assistant_text"`
}

// IsSummary reports whether this turn is the synthetic compression turn.
func (t Turn) IsSummary() bool {
	return t.UserText == SummaryMarker
}

// =============================================================================
// Store
// =============================================================================

// Store is a bounded ordered log of conversation turns.
//
// # Thread Safety
//
// Store itself is NOT synchronized. The session registry hands out at most
// one store per session and serializes mutation per session; see registry.go.
type Store struct {
	cfg   Config
	turns []Turn
}

// NewStore creates an empty store with the given configuration.
func NewStore(cfg Config) *Store {
	cfg = cfg.normalized()
	return &Store{
		cfg:   cfg,
		turns: make([]Turn, 0, cfg.WindowSize),
	}
}

// Append adds a completed turn, compressing the oldest turns when the
// window overflows.
//
// # Description
//
// Always succeeds. After Append returns, Len() <= WindowSize and no raw
// text has been discarded without being folded into the summary digest.
func (s *Store) Append(userText, assistantText string) {
	s.turns = append(s.turns, Turn{UserText: userText, AssistantText: assistantText})
	if len(s.turns) > s.cfg.WindowSize {
		s.compress()
	}
}

// Snapshot returns a copy of the current turn sequence.
//
// # Description
//
// Read-only and idempotent: two Snapshot calls without an intervening
// Append return equal sequences. The returned slice is a copy; callers may
// hold it across the whole request without racing a concurrent session.
func (s *Store) Snapshot() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of entries currently held (summary turn included).
func (s *Store) Len() int {
	return len(s.turns)
}

// Clear empties the store. Used on explicit session reset.
func (s *Store) Clear() {
	s.turns = s.turns[:0]
}

// Restore replaces the store content with a persisted snapshot, re-applying
// the window bound in case the configuration shrank between restarts.
func (s *Store) Restore(turns []Turn) {
	s.turns = append(s.turns[:0], turns...)
	if len(s.turns) > s.cfg.WindowSize {
		s.compress()
	}
}

// compress folds the oldest (len - KeepRecent) entries, including any prior
// summary turn, into a single digest turn. The digest is LLM-free: truncated
// excerpts plus an explicit topic keyword line, so SummarizeTopics keeps
// working over compressed history.
func (s *Store) compress() {
	foldCount := len(s.turns) - s.cfg.KeepRecent
	if foldCount < 1 {
		return
	}

	folded := s.turns[:foldCount]
	var b strings.Builder
	topics := map[string]bool{}

	for _, turn := range folded {
		if turn.IsSummary() {
			// Carry an earlier digest forward instead of re-truncating it.
			b.WriteString(turn.AssistantText)
			b.WriteString(" | ")
			continue
		}
		b.WriteString("user asked: ")
		b.WriteString(truncate(turn.UserText, excerptLen))
		b.WriteString("; reply: ")
		b.WriteString(truncate(turn.AssistantText, excerptLen))
		b.WriteString(" | ")
		for _, kw := range detectTopics(turn.UserText + " " + turn.AssistantText) {
			topics[kw] = true
		}
	}

	digest := strings.TrimSuffix(b.String(), " | ")
	if len(topics) > 0 {
		keys := make([]string, 0, len(topics))
		for k := range topics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		digest += " [topics: " + strings.Join(keys, ", ") + "]"
	}

	kept := make([]Turn, 0, s.cfg.KeepRecent+1)
	kept = append(kept, Turn{UserText: SummaryMarker, AssistantText: digest})
	kept = append(kept, s.turns[foldCount:]...)
	s.turns = kept
}

func truncate(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	// Back off to a rune boundary so multi-byte characters survive.
	cut := n
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// =============================================================================
// Topic Summaries
// =============================================================================

// topicCatalog maps display names to the markers that signal the topic was
// discussed. Markers are matched case-insensitively against both sides of a
// turn.
var topicCatalog = []struct {
	Name    string
	Markers []string
}{
	{"Docker", []string{"docker"}},
	{"Docker Compose", []string{"compose", "docker-compose"}},
	{"Excel", []string{"excel", "vlookup", "spreadsheet"}},
	{"Python", []string{"python", "pip "}},
	{"Networking", []string{"network", "vpn", "dns", "subnet", "router"}},
	{"Linux", []string{"linux", "ubuntu", "bash"}},
}

// detectTopics returns the topic names whose markers appear in text.
func detectTopics(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, topic := range topicCatalog {
		for _, marker := range topic.Markers {
			if strings.Contains(lower, marker) {
				found = append(found, topic.Name)
				break
			}
		}
	}
	return found
}

// SummarizeTopics scans all turns, summary turn included, and produces a
// digest grouped by topic.
//
// # Description
//
// Used exclusively to answer memory-only queries ("what did we discuss").
// Each topic entry carries a short excerpt of the original assistant reply
// so the summary reads as recall, not as a bare keyword list. Turns matching
// no catalog topic fall into a trailing "Other things we covered" section.
// The query hint, when present, moves matching topics to the front.
//
// # Outputs
//
//   - string: Human-readable digest; empty string when the store is empty.
func (s *Store) SummarizeTopics(queryHint string) string {
	if len(s.turns) == 0 {
		return ""
	}

	type topicEntry struct {
		name     string
		excerpts []string
	}
	order := []string{}
	grouped := map[string]*topicEntry{}
	var other []string

	for _, turn := range s.turns {
		text := turn.UserText + " " + turn.AssistantText
		topics := detectTopics(text)
		excerpt := truncate(turn.AssistantText, excerptLen)
		if turn.IsSummary() {
			// Digest text already carries its own excerpts.
			excerpt = truncate(turn.AssistantText, excerptLen*2)
		}
		if len(topics) == 0 {
			if !turn.IsSummary() {
				other = append(other, truncate(turn.UserText, 60))
			}
			continue
		}
		for _, name := range topics {
			entry, ok := grouped[name]
			if !ok {
				entry = &topicEntry{name: name}
				grouped[name] = entry
				order = append(order, name)
			}
			entry.excerpts = append(entry.excerpts, excerpt)
		}
	}

	if len(order) == 0 && len(other) == 0 {
		return ""
	}

	// Topics matching the hint lead the summary.
	if queryHint != "" {
		hintTopics := map[string]bool{}
		for _, name := range detectTopics(queryHint) {
			hintTopics[name] = true
		}
		sort.SliceStable(order, func(i, j int) bool {
			return hintTopics[order[i]] && !hintTopics[order[j]]
		})
	}

	var b strings.Builder
	b.WriteString("Here's what we've covered in this conversation:\n")
	for _, name := range order {
		entry := grouped[name]
		b.WriteString(fmt.Sprintf("\n**%s:** %s", name, entry.excerpts[0]))
		for _, extra := range entry.excerpts[1:] {
			b.WriteString(fmt.Sprintf("\n  - %s", extra))
		}
	}
	if len(other) > 0 {
		b.WriteString("\n\nOther things we covered: ")
		b.WriteString(strings.Join(other, "; "))
	}
	return b.String()
}
