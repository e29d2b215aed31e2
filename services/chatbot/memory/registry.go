// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Session Registry
// =============================================================================

// Session binds a conversation store to its per-session mutex.
//
// # Description
//
// The mutex enforces the at-most-one-in-flight rule: a stray double submit
// for the same session serializes here instead of interleaving two memory
// mutations. Sessions for different IDs never contend.
type Session struct {
	ID    string
	Store *Store

	mu sync.Mutex

	// lastActive is read by the TTL sweeper without the session mutex, so
	// it is atomic (unix nanoseconds) rather than mutex-guarded.
	lastActive atomic.Int64
}

// Lock acquires the session for one request-response cycle.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch records activity for idle-expiry accounting.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive reports the most recent activity time.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Registry owns all live sessions.
//
// # Description
//
// Maps session IDs to Session values, creating stores on first use. When a
// persister is attached, stores are hydrated from disk on first access and
// saved on Commit, so a restart does not lose conversations.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The registry mutex guards the
// map only; per-session serialization is the Session mutex's job.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	cfg       Config
	persister *PersistentStore
}

// NewRegistry creates a registry producing stores with the given config.
// persister may be nil.
func NewRegistry(cfg Config, persister *PersistentStore) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		cfg:       cfg,
		persister: persister,
	}
}

// GetOrCreate returns the session for id, creating it on first use.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok = r.sessions[id]; ok {
		return sess
	}

	sess = &Session{
		ID:    id,
		Store: NewStore(r.cfg),
	}
	sess.Touch()
	if r.persister != nil {
		if turns, err := r.persister.Load(id); err != nil {
			slog.Warn("Failed to load persisted session, starting empty",
				"session_id", id, "error", err)
		} else if len(turns) > 0 {
			sess.Store.Restore(turns)
			slog.Info("Restored persisted session", "session_id", id, "turns", len(turns))
		}
	}
	r.sessions[id] = sess
	return sess
}

// Commit persists the session transcript after a completed turn. No-op when
// persistence is disabled.
func (r *Registry) Commit(sess *Session) {
	sess.Touch()
	if r.persister == nil {
		return
	}
	if err := r.persister.Save(sess.ID, sess.Store.Snapshot()); err != nil {
		slog.Warn("Failed to persist session transcript",
			"session_id", sess.ID, "error", err)
	}
}

// Remove deletes a session and its persisted transcript.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.Delete(id); err != nil {
			slog.Warn("Failed to delete persisted session", "session_id", id, "error", err)
		}
	}
	return ok
}

// ActiveCount returns the number of live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns the IDs of all live sessions with their last activity time.
func (r *Registry) List() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]time.Time, len(r.sessions))
	for id, sess := range r.sessions {
		out[id] = sess.LastActive()
	}
	return out
}

// ExpireIdle removes sessions idle for longer than maxIdle, returning how
// many were dropped. Sessions mid-request hold their own mutex, not the
// registry mutex, so expiry only consults lastActive; a session that was
// active after the sweep started simply survives until the next cycle.
func (r *Registry) ExpireIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var expired []string
	for id, sess := range r.sessions {
		if sess.LastActive().Before(cutoff) {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		if r.persister != nil {
			if err := r.persister.Delete(id); err != nil {
				slog.Warn("Failed to delete expired session transcript",
					"session_id", id, "error", err)
			}
		}
	}
	if len(expired) > 0 {
		slog.Info("Expired idle sessions", "count", len(expired), "max_idle", maxIdle.String())
	}
	return len(expired)
}
