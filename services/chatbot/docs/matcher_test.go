// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package docs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSpecificityOrder(t *testing.T) {
	links := Match("How do I write a docker compose file?")
	require.NotEmpty(t, links)
	assert.Equal(t, "https://docs.docker.com/compose/", links[0].URL)
}

func TestMatchMultipleTopicsCapped(t *testing.T) {
	links := Match("docker on kubernetes with python and excel and git")
	assert.Len(t, links, MaxLinks)
}

func TestMatchNoHits(t *testing.T) {
	assert.Empty(t, Match("tell me a joke about cats"))
}

func TestMatchCaseInsensitive(t *testing.T) {
	links := Match("What is VLOOKUP in Excel?")
	require.Len(t, links, 1)
	assert.Contains(t, links[0].URL, "microsoft.com")
}

func TestRenderBlock(t *testing.T) {
	block := RenderBlock(Match("install docker"))
	assert.True(t, strings.HasPrefix(block, "\n\n📚 **Official Docs:**"))
	assert.Contains(t, block, "docs.docker.com")

	assert.Empty(t, RenderBlock(nil))
}
