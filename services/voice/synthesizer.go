// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	ttsModelID      = "eleven_monolingual_v1"
	ttsOutputFormat = "mp3_44100_128"

	synthesizeTimeout = 90 * time.Second

	// maxSpokenChars bounds the text sent to TTS; long answers are cut at
	// the limit rather than billed in full.
	maxSpokenChars = 2500

	// ttsRequestsPerSecond throttles outbound TTS calls across all
	// sessions so one busy deployment cannot exhaust the API quota.
	ttsRequestsPerSecond = 2
	ttsBurst             = 4
)

// Synthesizer converts answer text to speech.
type Synthesizer interface {
	// Synthesize returns the audio as a data URI suitable for direct
	// playback in a browser audio element.
	Synthesize(ctx context.Context, text, voiceID string) (string, error)
}

// ElevenLabsSynthesizer implements Synthesizer over the ElevenLabs TTS API.
//
// # Thread Safety
//
// Safe for concurrent use. The shared rate limiter serializes bursts above
// the configured rate.
type ElevenLabsSynthesizer struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewElevenLabsSynthesizer builds the synthesizer.
func NewElevenLabsSynthesizer(apiKey string) *ElevenLabsSynthesizer {
	return &ElevenLabsSynthesizer{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: synthesizeTimeout},
		limiter:    rate.NewLimiter(rate.Limit(ttsRequestsPerSecond), ttsBurst),
	}
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize implements Synthesizer.
//
// The input is cleaned for speech first, so callers can pass the rendered
// answer verbatim, citation block and all.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	ctx, span := tracer.Start(ctx, "ElevenLabsSynthesizer.Synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("voice.voice_id", voiceID))

	spoken := CleanForSpeech(text)
	if spoken == "" {
		return "", fmt.Errorf("nothing speakable in answer")
	}
	spoken = truncateAtRune(spoken, maxSpokenChars)

	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(ttsRequest{
		Text:    spoken,
		ModelID: ttsModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		elevenLabsBaseURL, voiceID, ttsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("elevenlabs tts returned %d: %s", resp.StatusCode, string(detail))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading tts audio: %w", err)
	}

	slog.Debug("Synthesized speech", "voice_id", voiceID, "audio_bytes", len(audio))
	return "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio), nil
}

// truncateAtRune cuts s to at most limit bytes without splitting a
// multi-byte rune.
func truncateAtRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var _ Synthesizer = (*ElevenLabsSynthesizer)(nil)
