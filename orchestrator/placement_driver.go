/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/NVIDIA/zvmd/archive"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/cmn/nlog"
	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/fanout"
	"github.com/NVIDIA/zvmd/orchestrator/placement"
)

// connGroup is every backend connection opened for one planned worker -
// one per Worker.Replicate.
type connGroup struct {
	worker *core.Worker
	conns  []*placement.Conn
}

// placeAll resolves ring placement for every worker, dials its Replicate
// connections in parallel across candidate hosts, and fails the whole job
// with ErrNoCapacity if too few connections succeed.
func (o *Orchestrator) placeAll(ctx context.Context) ([]*connGroup, error) {
	groups := make([]*connGroup, len(o.req.Workers))
	var wg sync.WaitGroup

	for i, w := range o.req.Workers {
		i, w := i, w
		wg.Add(1)
		go func() {
			defer wg.Done()
			hosts := o.candidateHosts(ctx, w)
			conns := make([]*placement.Conn, 0, w.Replicate)
			var cg sync.WaitGroup
			var cmu sync.Mutex
			for r := 0; r < w.Replicate; r++ {
				cg.Add(1)
				go func() {
					defer cg.Done()
					c, err := o.dialOne(ctx, w, hosts)
					if err != nil {
						nlog.Warningf("orchestrator: placement for worker %s: %v", w.Name, err)
						return
					}
					cmu.Lock()
					conns = append(conns, c)
					cmu.Unlock()
				}()
			}
			cg.Wait()
			groups[i] = &connGroup{worker: w, conns: conns}
		}()
	}
	wg.Wait()

	got, want := 0, 0
	for _, g := range groups {
		got += len(g.conns)
		want += g.worker.Replicate
	}
	if got < want {
		for _, g := range groups {
			for _, c := range g.conns {
				c.Close()
			}
		}
		return nil, cos.NewErrNoCapacity(want, got)
	}
	return groups, nil
}

// candidateHosts derives the ring placement hint for w: a path-derived
// partition when PathInfo resolves to a ring location, otherwise a
// uniformly random one.
func (o *Orchestrator) candidateHosts(ctx context.Context, w *core.Worker) []core.Host {
	if w.PathInfo != "" {
		if parts, ok := splitPathInfo(w.PathInfo); ok {
			if _, hosts, found := o.req.Storage.Ring(ctx, parts[0], parts[1], parts[2]); found {
				return hosts
			}
		}
	}
	_, hosts := o.req.Storage.RandomPartition(ctx)
	return hosts
}

// splitPathInfo splits "/account/container/object" into its segments; the
// object segment keeps any embedded slashes.
func splitPathInfo(p string) ([3]string, bool) {
	if len(p) == 0 || p[0] != '/' {
		return [3]string{}, false
	}
	var parts [3]string
	rest := p[1:]
	for i := 0; i < 2 && rest != ""; i++ {
		idx := strings.IndexByte(rest, '/')
		if idx < 0 {
			parts[i] = rest
			rest = ""
		} else {
			parts[i] = rest[:idx]
			rest = rest[idx+1:]
		}
	}
	parts[2] = rest
	return parts, parts[0] != "" && parts[1] != ""
}

// dialOne tries candidate hosts in order, skipping any the ErrorLimiter
// has already marked 507, retrying the next candidate on any dial error.
func (o *Orchestrator) dialOne(ctx context.Context, w *core.Worker, hosts []core.Host) (*placement.Conn, error) {
	var lastErr error
	for _, h := range hosts {
		if o.limiter.IsLimited(h) {
			continue
		}
		c, err := placement.Dial(ctx, h, http.MethodPost, execPath(w), o.execHeaders(w), w.Size)
		if err == nil {
			c.Worker = w
			return c, nil
		}
		if _, ok := err.(*placement.ErrInsufficientStorage); ok {
			o.limiter.Limit(h)
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate hosts for worker %s", w.Name)
	}
	return nil, lastErr
}

func execPath(w *core.Worker) string {
	if w.PathInfo != "" {
		return w.PathInfo
	}
	return "/"
}

// execHeaders builds the execute request's headers, adding
// x-zerovm-daemon when w's configuration signature matches a preloaded
// daemon socket.
func (o *Orchestrator) execHeaders(w *core.Worker) http.Header {
	h := http.Header{}
	h.Set("X-Zerovm-Execute", "1.0")
	h.Set("Content-Type", "application/x-tar")
	h.Set("X-Nexe-Node", fmt.Sprintf("%d", w.ID))
	if o.req.Daemon != nil {
		if socketID, ok := o.req.Daemon.Match(w); ok {
			h.Set("X-Zerovm-Daemon", socketID)
			if o.req.Stats != nil {
				o.req.Stats.DaemonHit()
			}
		}
	}
	return h
}

// buildSinks wraps each worker's backend connections in a tar-framing
// fanout.Sink, keyed by connection so buildFanoutSources can resolve a
// target to a concrete sender.
func (o *Orchestrator) buildSinks(groups []*connGroup) map[*placement.Conn]*fanout.Sink {
	sinks := make(map[*placement.Conn]*fanout.Sink, o.req.TotalCount)
	for _, g := range groups {
		for _, c := range g.conns {
			c := c
			w := archive.NewWriter(c, false)
			// a connection whose handshake already produced a final
			// response has no body to stream
			sinks[c] = fanout.NewSink(w, func() bool { return c.Failed || !c.Proceed }, 8)
		}
	}
	return sinks
}

// buildFanoutSources resolves every sourceSpec's (worker, device) targets
// to the worker's concrete connections and marks - per connection - which
// source is the last one it is a target of, so the final member's padding
// is flushed exactly once.
func (o *Orchestrator) buildFanoutSources(specs []*sourceSpec, groups []*connGroup, sinks map[*placement.Conn]*fanout.Sink) []*fanout.Source {
	type resolved struct {
		conns   []*placement.Conn
		devices []string
	}
	perSpec := make([]resolved, len(specs))
	lastIdx := map[*placement.Conn]int{}

	for idx, spec := range specs {
		var r resolved
		for _, t := range spec.targets {
			for _, c := range groups[t.workerIdx].conns {
				r.conns = append(r.conns, c)
				r.devices = append(r.devices, t.device)
				lastIdx[c] = idx
			}
		}
		perSpec[idx] = r
	}

	out := make([]*fanout.Source, len(specs))
	for idx, spec := range specs {
		idx := idx
		r := perSpec[idx]
		targetSinks := make([]*fanout.Sink, len(r.conns))
		for i, c := range r.conns {
			targetSinks[i] = sinks[c]
		}
		conns := r.conns
		devices := r.devices
		out[idx] = &fanout.Source{
			ContentLength: spec.src.ContentLength(),
			Targets:       targetSinks,
			Device:        func(i int) string { return devices[i] },
			Last:          func(i int) bool { return lastIdx[conns[i]] == idx },
			Open:          spec.src.Open,
		}
	}
	return out
}
