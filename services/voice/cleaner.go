// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package voice handles speech input and output for the chatbot.
package voice

import (
	"regexp"
	"strings"
)

// =============================================================================
// Speech text cleaning
// =============================================================================

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	bareURLRe      = regexp.MustCompile(`https?://\S+`)
	codeBlockRe    = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe   = regexp.MustCompile("`([^`]*)`")
	boldRe         = regexp.MustCompile(`\*\*([^*]*)\*\*`)
	italicRe       = regexp.MustCompile(`\*([^*]*)\*|_([^_]*)_`)
	headingRe      = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRe       = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	emojiRe        = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{FE0F}]`)
	multiSpaceRe   = regexp.MustCompile(`[ \t]{2,}`)
	multiNewlineRe = regexp.MustCompile(`\n{2,}`)
)

// CleanForSpeech strips formatting that reads badly when spoken aloud.
//
// # Description
//
// Markdown links keep their anchor text and lose the URL, bare URLs are
// dropped entirely, code fences are replaced with a short placeholder, and
// bullet markers become sentence pauses. Emoji are removed since TTS
// engines either skip them or read their names out loud. The citation block
// appended to answers is removed wholesale; spoken replies cite nothing.
func CleanForSpeech(text string) string {
	// Drop the appended source and docs blocks before anything else.
	if idx := strings.Index(text, "🎥 **Source Videos:**"); idx >= 0 {
		text = text[:idx]
	}
	if idx := strings.Index(text, "📚 **Official Docs:**"); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)

	text = codeBlockRe.ReplaceAllString(text, " see the code example on screen ")
	text = markdownLinkRe.ReplaceAllString(text, "$1")
	text = bareURLRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1$2")
	text = headingRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, ". ")
	text = emojiRe.ReplaceAllString(text, "")

	text = multiNewlineRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\n", " ")
	text = multiSpaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
