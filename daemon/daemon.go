// Package daemon matches planned workers against pre-warmed ("daemon")
// execution contexts: a configured (socket_id, config_path) pair is
// parsed once through the Planner at load time into a signature; any
// later worker whose own channel/executable shape matches that signature
// gets routed to the daemon's socket via the x-zerovm-daemon header
// instead of a cold start.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package daemon

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/core"
)

// Pair is one configured daemon preload entry.
type Pair struct {
	SocketID   string
	ConfigPath string
}

// PlanOne reads and plans the single-node job description at configPath
// and returns the one resulting Worker. Supplied by the caller (cmd/zvmd
// wiring) so this package doesn't depend on how a config file is read off
// disk.
type PlanOne func(configPath string) (*core.Worker, error)

type entry struct {
	socketID  string
	signature string
}

// Matcher holds every accepted daemon signature, keyed by socket id.
// Immutable after Load; safe for concurrent Match calls.
type Matcher struct {
	mu      sync.RWMutex
	entries []entry
}

// Load parses every pair through planOne, validates the preload
// constraints (exactly one node, no network channels, executable in a
// configured system-image device), and records its signature. A pair that
// fails validation is skipped with a warning-worthy error rather than
// aborting the whole load - one bad daemon config shouldn't disable all
// the others.
func Load(pairs []Pair, planOne PlanOne) (*Matcher, error) {
	m := &Matcher{}
	errs := &cos.Errs{}
	for _, p := range pairs {
		w, err := planOne(p.ConfigPath)
		if err != nil {
			errs.Add(fmt.Errorf("daemon %s: %w", p.SocketID, err))
			continue
		}
		sig, err := validateAndSign(w)
		if err != nil {
			errs.Add(fmt.Errorf("daemon %s: %w", p.SocketID, err))
			continue
		}
		m.entries = append(m.entries, entry{socketID: p.SocketID, signature: sig})
	}
	if errs.Cnt() > 0 {
		return m, errs.JoinErr()
	}
	return m, nil
}

// validateAndSign enforces the daemon-preload constraints and derives a
// deterministic signature string from the worker's channel shape.
func validateAndSign(w *core.Worker) (string, error) {
	if len(w.Bind) > 0 || len(w.Connect) > 0 {
		return "", fmt.Errorf("daemon config must not declare network channels")
	}
	if w.Exe == nil || !core.IsImagePath(w.Exe) {
		return "", fmt.Errorf("daemon executable must reference a system-image member")
	}
	return Signature(w), nil
}

// Signature derives a worker's configuration fingerprint: its executable
// path plus its sorted device/access/mode triples. Two workers with the
// same signature are interchangeable for a daemon's purposes.
func Signature(w *core.Worker) string {
	parts := make([]string, 0, len(w.Channels)+1)
	if w.Exe != nil {
		parts = append(parts, "exe="+w.Exe.String())
	}
	for _, ch := range w.Channels {
		parts = append(parts, fmt.Sprintf("%s:%d:%s", ch.Device, ch.Access, ch.Mode))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Match returns the socket id of a daemon whose signature equals w's, if
// any.
func (m *Matcher) Match(w *core.Worker) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig := Signature(w)
	for _, e := range m.entries {
		if e.signature == sig {
			return e.socketID, true
		}
	}
	return "", false
}
