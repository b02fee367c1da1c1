/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core

import "github.com/NVIDIA/zvmd/cmn/cos"

// NodeDesc is one node entry of a submitted job description, before planning.
type NodeDesc struct {
	Name      string
	Exe       *Location
	Args      string
	Env       map[string]string
	Count     int
	Replicate int
	Files     []RawChannel
	Connect   []string // peer names declared in the "connect" stanza
}

// NewNodeDesc validates and constructs the fixed part of a job's node entry
// (name, executable, replicate); everything per-channel is classified
// separately.
func NewNodeDesc(name, execPath, execArgs string, execEnv map[string]string, count, replicate int) (*NodeDesc, error) {
	if name == "" {
		return nil, cos.NewErrConfigParse("must specify node name")
	}
	if HasControlChars(name) {
		return nil, cos.NewErrConfigParse("invalid node name %q", name)
	}
	if execPath == "" {
		return nil, cos.NewErrConfigParse("must specify executable path for node %s", name)
	}
	exe, err := Parse(execPath)
	if err != nil {
		return nil, cos.NewErrConfigParse("invalid executable path for node %s: %v", name, err)
	}
	if IsZvmPath(exe) {
		return nil, cos.NewErrConfigParse("executable path cannot be a node endpoint in node %s", name)
	}
	if HasControlChars(execArgs) {
		return nil, cos.NewErrConfigParse("invalid executable arguments for node %s", name)
	}
	for k, v := range execEnv {
		if HasControlChars(k) || HasControlChars(v) {
			return nil, cos.NewErrConfigParse("invalid environment entry for node %s", name)
		}
	}
	if replicate == 0 {
		replicate = 1
	}
	if count <= 0 {
		count = 1
	}
	return &NodeDesc{
		Name:      name,
		Exe:       exe,
		Args:      execArgs,
		Env:       execEnv,
		Count:     count,
		Replicate: replicate,
	}, nil
}

// Peer is one endpoint of a worker's bind or connect table: the peer
// worker's name, and the local (bind) or remote (connect) device path.
type Peer struct {
	Name   string
	Device string
}

// Worker is a Node after planning: fully expanded channels, a dense id, and
// a resolved connection graph. Workers are constructed and consumed within
// a single request; the Planner discards them once the Orchestrator has
// read node_list.
type Worker struct {
	ID        int
	Name      string
	Exe       *Location
	Args      string
	Env       map[string]string
	Replicate int

	Channels  []*Channel
	Wildcards []string

	Bind    []Peer
	Connect []Peer

	// RenderedBind/RenderedConnect hold the comma-separated connect strings
	// produced by the planner's render step; empty until
	// RenderConnectStrings has run.
	RenderedBind    []string
	RenderedConnect []string

	PathInfo    string
	NameService string

	Replicas []*Worker

	// Size is the precomputed Content-Length of the tar archive this
	// worker's backend connection will receive (orchestrator step 2).
	Size int64

	// LastData is an opaque cursor set by the orchestrator: the last data
	// source this worker is a fan-out target of, so the final member's
	// padding is flushed exactly once per connection.
	LastData any
}

// Channel returns the worker's channel bound to device, or nil.
func (w *Worker) Channel(device string) *Channel {
	for _, ch := range w.Channels {
		if ch.Device == device {
			return ch
		}
	}
	return nil
}

// AddChannel appends ch to the worker's channel list, optionally
// overriding its path and content type (used when expanding a shared
// RawChannel across replicated/wildcarded workers).
func (w *Worker) AddChannel(ch *Channel, path *Location, contentType string) *Channel {
	nc := *ch
	if path != nil {
		nc.Path = path
	}
	if contentType != "" {
		nc.ContentType = contentType
	}
	w.Channels = append(w.Channels, &nc)
	return &nc
}
