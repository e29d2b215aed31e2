// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ttl expires idle conversation sessions in the background.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"
)

// =============================================================================
// Session TTL Sweeper
// =============================================================================

// SessionExpirer is the part of the session registry the sweeper needs.
type SessionExpirer interface {
	// ExpireIdle removes sessions idle longer than maxIdle and returns how
	// many were removed.
	ExpireIdle(maxIdle time.Duration) int

	// ActiveCount returns the number of live sessions.
	ActiveCount() int
}

// SweeperConfig holds configuration for the session TTL sweeper.
//
// # Fields
//
//   - Interval: How often to run sweep cycles. Default: 5 minutes.
//   - MaxIdle: Idle time after which a session expires. Default: 1 hour.
type SweeperConfig struct {
	Interval time.Duration
	MaxIdle  time.Duration
}

// DefaultSweeperConfig returns sweeper defaults, honoring the
// SESSION_TTL_SECONDS and SESSION_SWEEP_SECONDS environment variables.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: time.Duration(getEnvInt("SESSION_SWEEP_SECONDS", 300)) * time.Second,
		MaxIdle:  time.Duration(getEnvInt("SESSION_TTL_SECONDS", 3600)) * time.Second,
	}
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	Expired   int
	Remaining int
	Duration  time.Duration
}

// Sweeper periodically expires idle sessions.
//
// # Description
//
// Runs a background goroutine on the ticker + done channel pattern. One
// sweeper should run per chatbot instance; a second Start on a running
// sweeper returns an error.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Sweeper struct {
	registry SessionExpirer
	config   SweeperConfig
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper for the given registry.
func NewSweeper(registry SessionExpirer, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.MaxIdle <= 0 {
		config.MaxIdle = time.Hour
	}
	return &Sweeper{
		registry: registry,
		config:   config,
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep loop. The loop runs until Stop is
// called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // Reset for potential restart
	s.mu.Unlock()

	slog.Info("Session TTL sweeper starting",
		"interval", s.config.Interval.String(),
		"max_idle", s.config.MaxIdle.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the sweep loop to exit. Safe to call multiple times.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	slog.Info("Session TTL sweeper stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow performs one sweep cycle immediately, outside the schedule.
func (s *Sweeper) RunNow(_ context.Context) (SweepResult, error) {
	return s.sweep(), nil
}

func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session TTL sweeper context cancelled")
			return
		case <-s.done:
			return
		case <-ticker.C:
			result := s.sweep()
			if result.Expired > 0 {
				slog.Info("Expired idle sessions",
					"expired", result.Expired,
					"remaining", result.Remaining,
					"duration", result.Duration.String(),
				)
			}
		}
	}
}

func (s *Sweeper) sweep() SweepResult {
	start := time.Now()
	expired := s.registry.ExpireIdle(s.config.MaxIdle)
	return SweepResult{
		Expired:   expired,
		Remaining: s.registry.ActiveCount(),
		Duration:  time.Since(start),
	}
}

func getEnvInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
		slog.Warn("Invalid integer in environment variable, using fallback",
			"key", key, "fallback", fallback)
	}
	return fallback
}
