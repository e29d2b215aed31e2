// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendNeverExceedsWindow(t *testing.T) {
	store := NewStore(Config{WindowSize: 10, KeepRecent: 5})

	for i := 0; i < 50; i++ {
		store.Append(fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
		assert.LessOrEqual(t, store.Len(), 10, "window exceeded after append %d", i)
	}
}

func TestCompressionWindowFourKeepTwo(t *testing.T) {
	store := NewStore(Config{WindowSize: 4, KeepRecent: 2})

	for i := 1; i <= 6; i++ {
		store.Append(fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
	}

	turns := store.Snapshot()
	require.Len(t, turns, 4)
	assert.True(t, turns[0].IsSummary(), "oldest entry should be the summary turn")
	for _, turn := range turns[1:] {
		assert.False(t, turn.IsSummary())
	}
	// The three newest turns survive verbatim.
	assert.Equal(t, "question 4", turns[1].UserText)
	assert.Equal(t, "question 6", turns[3].UserText)
}

func TestCompressionPreservesTopicKeywords(t *testing.T) {
	store := NewStore(Config{WindowSize: 4, KeepRecent: 2})

	store.Append("How do docker containers work?", "Containers share the host kernel.")
	store.Append("What about excel vlookup?", "VLOOKUP searches the first column of a range.")
	for i := 0; i < 5; i++ {
		store.Append(fmt.Sprintf("filler %d", i), "nothing in particular")
	}

	// Both early topics were compressed away; the digest must still recall them.
	summary := store.SummarizeTopics("")
	assert.Contains(t, strings.ToLower(summary), "docker")
	assert.Contains(t, strings.ToLower(summary), "excel")
}

func TestCompressionFoldsExistingSummary(t *testing.T) {
	store := NewStore(Config{WindowSize: 3, KeepRecent: 1})

	for i := 0; i < 10; i++ {
		store.Append(fmt.Sprintf("docker question %d", i), "use docker compose")
	}

	turns := store.Snapshot()
	require.LessOrEqual(t, len(turns), 3)
	assert.True(t, turns[0].IsSummary())
	// Only one summary turn ever exists.
	summaryCount := 0
	for _, turn := range turns {
		if turn.IsSummary() {
			summaryCount++
		}
	}
	assert.Equal(t, 1, summaryCount)
}

func TestSnapshotIdempotent(t *testing.T) {
	store := NewStore(Config{WindowSize: 10, KeepRecent: 5})
	store.Append("hello", "hi there")
	store.Append("how are you", "doing fine")

	first := store.Snapshot()
	second := store.Snapshot()
	assert.Equal(t, first, second)

	// Mutating a snapshot must not touch the store.
	first[0].UserText = "mutated"
	assert.Equal(t, "hello", store.Snapshot()[0].UserText)
}

func TestSummarizeTopicsRecallsDiscussion(t *testing.T) {
	store := NewStore(DefaultConfig())
	store.Append("Tell me about Docker networking",
		"Docker networking uses bridge networks by default; containers on the same bridge can reach each other.")

	summary := store.SummarizeTopics("remind me what we discussed")
	require.NotEmpty(t, summary)
	assert.Contains(t, summary, "Docker")
	assert.Contains(t, summary, "bridge networks")
}

func TestSummarizeTopicsEmptyStore(t *testing.T) {
	store := NewStore(DefaultConfig())
	assert.Empty(t, store.SummarizeTopics("what did we discuss"))
}

func TestClear(t *testing.T) {
	store := NewStore(DefaultConfig())
	store.Append("hello", "hi")
	store.Clear()
	assert.Zero(t, store.Len())
	assert.Empty(t, store.Snapshot())
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// "héllo" is 6 bytes; cutting at byte 2 lands mid-rune.
	got := truncate("héllo", 2)
	assert.Equal(t, "h...", got)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "short", truncate("short", 10))
}

func TestConfigNormalization(t *testing.T) {
	cfg := Config{WindowSize: 1, KeepRecent: 9}.normalized()
	assert.Equal(t, 2, cfg.WindowSize)
	assert.Equal(t, 1, cfg.KeepRecent)
}

func TestRegistrySerializesAndExpires(t *testing.T) {
	reg := NewRegistry(Config{WindowSize: 4, KeepRecent: 2}, nil)

	sess := reg.GetOrCreate("abc")
	same := reg.GetOrCreate("abc")
	assert.Same(t, sess, same)
	assert.Equal(t, 1, reg.ActiveCount())

	sess.Lock()
	sess.Store.Append("hello", "hi")
	reg.Commit(sess)
	sess.Unlock()

	// A just-touched session survives an aggressive sweep.
	assert.Equal(t, 0, reg.ExpireIdle(time.Minute))
	assert.Equal(t, 1, reg.ActiveCount())

	// Backdate it and sweep again.
	sess.lastActive.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	assert.Equal(t, 1, reg.ExpireIdle(time.Hour))
	assert.Equal(t, 0, reg.ActiveCount())
}

func TestRegistryTouchConcurrentWithSweep(t *testing.T) {
	reg := NewRegistry(Config{WindowSize: 4, KeepRecent: 2}, nil)
	sess := reg.GetOrCreate("abc")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sess.Touch()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			reg.ExpireIdle(time.Hour)
			reg.List()
		}
	}()
	wg.Wait()

	assert.Equal(t, 1, reg.ActiveCount())
	assert.False(t, sess.LastActive().IsZero())
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry(DefaultConfig(), nil)
	reg.GetOrCreate("abc")
	assert.True(t, reg.Remove("abc"))
	assert.False(t, reg.Remove("abc"))
}
