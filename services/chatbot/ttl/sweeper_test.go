// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ttl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	expired   atomic.Int64
	remaining int
}

func (f *fakeExpirer) ExpireIdle(time.Duration) int {
	f.expired.Add(1)
	return 2
}

func (f *fakeExpirer) ActiveCount() int { return f.remaining }

func TestSweeperRunNow(t *testing.T) {
	fake := &fakeExpirer{remaining: 7}
	s := NewSweeper(fake, SweeperConfig{Interval: time.Hour, MaxIdle: time.Hour})

	result, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Expired)
	assert.Equal(t, 7, result.Remaining)
	assert.Equal(t, int64(1), fake.expired.Load())
}

func TestSweeperDoubleStart(t *testing.T) {
	s := NewSweeper(&fakeExpirer{}, SweeperConfig{Interval: time.Hour, MaxIdle: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	// Restart after Stop is allowed.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestSweeperStopIdempotent(t *testing.T) {
	s := NewSweeper(&fakeExpirer{}, SweeperConfig{Interval: time.Hour, MaxIdle: time.Hour})
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestSweeperTicksOnInterval(t *testing.T) {
	fake := &fakeExpirer{}
	s := NewSweeper(fake, SweeperConfig{Interval: 10 * time.Millisecond, MaxIdle: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return fake.expired.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSweeperConfigDefaults(t *testing.T) {
	s := NewSweeper(&fakeExpirer{}, SweeperConfig{})
	assert.Equal(t, 5*time.Minute, s.config.Interval)
	assert.Equal(t, time.Hour, s.config.MaxIdle)
}
