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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("personacast.voice")

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	sttModelID         = "scribe_v1"
	whisperFallbackMdl = openai.Whisper1

	transcribeTimeout = 60 * time.Second
)

// ErrUnintelligible is returned when no backend could extract words from
// the audio. The handler maps it to a friendly "could not understand audio"
// response instead of a server error.
var ErrUnintelligible = errors.New("could not understand audio")

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// DualTranscriber tries ElevenLabs speech-to-text first and falls back to
// OpenAI Whisper when ElevenLabs is unavailable or returns nothing usable.
type DualTranscriber struct {
	elevenLabsKey string
	openaiClient  *openai.Client
	httpClient    *http.Client
}

// NewDualTranscriber builds the transcriber. Either key may be empty; a
// backend without a key is skipped.
func NewDualTranscriber(elevenLabsKey, openaiKey string) *DualTranscriber {
	t := &DualTranscriber{
		elevenLabsKey: elevenLabsKey,
		httpClient:    &http.Client{Timeout: transcribeTimeout},
	}
	if openaiKey != "" {
		t.openaiClient = openai.NewClient(openaiKey)
	}
	return t
}

// Transcribe implements Transcriber.
func (t *DualTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	ctx, span := tracer.Start(ctx, "DualTranscriber.Transcribe")
	defer span.End()
	span.SetAttributes(attribute.Int("voice.audio_bytes", len(audio)))

	if len(audio) == 0 {
		return "", ErrUnintelligible
	}

	if t.elevenLabsKey != "" {
		text, err := t.transcribeElevenLabs(ctx, audio, filename)
		if err == nil && strings.TrimSpace(text) != "" {
			span.SetAttributes(attribute.String("voice.stt_backend", "elevenlabs"))
			return strings.TrimSpace(text), nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			slog.Warn("ElevenLabs transcription failed, trying Whisper", "error", err)
		}
	}

	if t.openaiClient != nil {
		text, err := t.transcribeWhisper(ctx, audio, filename)
		if err == nil && strings.TrimSpace(text) != "" {
			span.SetAttributes(attribute.String("voice.stt_backend", "whisper"))
			return strings.TrimSpace(text), nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Whisper transcription failed", "error", err)
		}
	}

	return "", ErrUnintelligible
}

func (t *DualTranscriber) transcribeElevenLabs(ctx context.Context, audio []byte, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("model_id", sttModelID); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		elevenLabsBaseURL+"/speech-to-text", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", t.elevenLabsKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("elevenlabs stt returned %d: %s", resp.StatusCode, string(payload))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding stt response: %w", err)
	}
	return parsed.Text, nil
}

func (t *DualTranscriber) transcribeWhisper(ctx context.Context, audio []byte, filename string) (string, error) {
	resp, err := t.openaiClient.CreateTranscription(ctx, openai.AudioRequest{
		Model:    whisperFallbackMdl,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

var _ Transcriber = (*DualTranscriber)(nil)
