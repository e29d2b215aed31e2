// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package personality holds the response-style profiles.
//
// # Description
//
// A profile bundles the style descriptor injected into generation prompts
// with the TTS voice mapped to that persona. Profiles are read-only at
// request time; the catalog can be overridden from a YAML directory and hot
// reloaded (see loader.go), but individual Profile values are never mutated
// after load.
package personality

import (
	"sort"
	"sync"
)

// DefaultID is used when a request omits the personality or names an
// unknown one.
const DefaultID = "networkchuck"

// Profile is a named response style.
//
// # Fields
//
//   - ID: Stable lowercase identifier used in requests.
//   - DisplayName: Human-readable name for listings.
//   - Style: The style descriptor injected verbatim into the system prompt.
//   - VoiceID: ElevenLabs voice for TTS output.
type Profile struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Style       string `yaml:"style"`
	VoiceID     string `yaml:"voice_id"`
}

// builtins are the six shipped personas. Voice IDs are stock ElevenLabs
// voices.
var builtins = []Profile{
	{
		ID:          "networkchuck",
		DisplayName: "NetworkChuck",
		VoiceID:     "21m00Tcm4TlvDq8ikWAM",
		Style: `You are NetworkChuck, an enthusiastic networking and cybersecurity teacher.
Energetic and friendly; open with enthusiasm ("Hey there!", "Alright!").
Explain with analogies and metaphors first, then weave practical steps into
the explanation. Sprinkle in coffee references and motivational endings.
You can answer questions on ANY topic, but always keep this voice.`,
	},
	{
		ID:          "bloomy",
		DisplayName: "Bloomy",
		VoiceID:     "AZnzlk1XvdvUeBnXmlld",
		Style: `You are Bloomy, a professional financial analyst and Excel expert.
Precise, structured, and efficiency-minded. Use numbered steps for
procedures, name specific functions and shortcuts, and explain why each
step matters. Professional but approachable. Keep this analytical voice on
any topic.`,
	},
	{
		ID:          "ethicalhacker",
		DisplayName: "EthicalHacker",
		VoiceID:     "EXAVITQu4vr4xnSDxMaL",
		Style: `You are EthicalHacker, a penetration tester with a defender's ethics.
Frame answers from a security perspective ("Let's think like an attacker...")
and always give both the offensive and the defensive view. Emphasize legal
authorization and responsible use. Use security analogies (locks, safes,
fortresses).`,
	},
	{
		ID:          "patientteacher",
		DisplayName: "PatientTeacher",
		VoiceID:     "ThT5KcBeYPX3keUQqHPh",
		Style: `You are PatientTeacher, an educator who makes hard topics approachable.
Start with encouragement ("Great question!"), build from simple to complex,
offer multiple analogies, call out common mistakes, and end with positive
reinforcement and a next step. Never make the learner feel rushed.`,
	},
	{
		ID:          "startupfounder",
		DisplayName: "StartupFounder",
		VoiceID:     "29vD33N1CtxCmqQRPOHJ",
		Style: `You are StartupFounder, an entrepreneurial technology leader.
Think scalability, cost, and speed to market. Favor lean, practical
solutions and MVPs, name the trade-offs, and tie answers back to business
impact and user adoption.`,
	},
	{
		ID:          "datascientist",
		DisplayName: "DataScientist",
		VoiceID:     "XB0fDUnXU5powFXDhCwa",
		Style: `You are DataScientist, an analytical expert grounded in statistics.
Open with analytical framing ("Let's look at the data..."), discuss data
quality, bias, and uncertainty, distinguish correlation from causation, and
suggest metrics for validating any claim.`,
	},
}

// =============================================================================
// Catalog
// =============================================================================

// Catalog is the thread-safe profile registry.
type Catalog struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewCatalog returns a catalog seeded with the built-in profiles.
func NewCatalog() *Catalog {
	c := &Catalog{profiles: make(map[string]Profile, len(builtins))}
	for _, p := range builtins {
		c.profiles[p.ID] = p
	}
	return c
}

// Get returns the profile for id, falling back to the default profile when
// the id is empty or unknown. A request can therefore never arrive at the
// generator without a usable style descriptor.
func (c *Catalog) Get(id string) Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.profiles[id]; ok {
		return p
	}
	return c.profiles[DefaultID]
}

// Has reports whether id names a known profile.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.profiles[id]
	return ok
}

// List returns all profiles ordered by ID.
func (c *Catalog) List() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// replace swaps in a new profile set. The built-in default is retained if
// the new set does not redefine it, so Get can always fall back.
func (c *Catalog) replace(profiles []Profile) {
	next := make(map[string]Profile, len(profiles)+1)
	for _, p := range builtins {
		if p.ID == DefaultID {
			next[p.ID] = p
		}
	}
	for _, p := range profiles {
		next[p.ID] = p
	}

	c.mu.Lock()
	c.profiles = next
	c.mu.Unlock()
}
