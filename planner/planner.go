// Package planner expands a submitted job description into a fully wired
// set of Workers: channel classification, wildcard/count fan-out, inter-node
// connection graph, and the textual connect strings consumed by the
// manifest builder.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/NVIDIA/zvmd/cmn/config"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/cmn/debug"
	"github.com/NVIDIA/zvmd/core"
)

// ListAccountFunc lists containers in account matching mask (nil = all).
type ListAccountFunc func(account string, mask *regexp.Regexp) ([]string, error)

// ListContainerFunc lists objects in account/container matching mask.
type ListContainerFunc func(account, container string, mask *regexp.Regexp) ([]string, error)

type connDevice struct{ Local, Remote string }

// Planner turns one job into its worker list. It is constructed fresh per
// request and discarded once the Orchestrator has read the result.
type Planner struct {
	sysimageDevices map[string]string
	defaultCT       string
	limits          config.Limits
	listAccount     ListAccountFunc
	listContainer   ListContainerFunc

	nodes       map[string]*core.Worker   // worker name -> worker
	byDesc      map[string][]*core.Worker // node-desc name -> its expanded workers
	nodeList    []*core.Worker
	nextID      int
	connDevices map[string]map[string]connDevice // desc name -> peer name -> devices
}

// New builds a Planner. sysimageDevices maps a configured system-image
// device name to its mount path; defaultCT is the content type assumed for
// a channel whose path is given without one.
func New(sysimageDevices map[string]string, defaultCT string, limits config.Limits, listAccount ListAccountFunc, listContainer ListContainerFunc) *Planner {
	return &Planner{
		sysimageDevices: sysimageDevices,
		defaultCT:       defaultCT,
		limits:          limits,
		listAccount:     listAccount,
		listContainer:   listContainer,
	}
}

// Node looks up a planned worker by its final (possibly suffixed) name.
func (p *Planner) Node(name string) *core.Worker { return p.nodes[name] }

// Plan classifies, expands, and wires the job, returning the name-sorted
// worker list and the total replica count. Render connect strings
// separately with RenderConnectStrings once total node count and IDs are
// final.
func (p *Planner) Plan(job []*core.NodeDesc, addUserImage bool, account string, replicaCount int) ([]*core.Worker, int, error) {
	if len(job) == 0 {
		return nil, 0, cos.NewErrConfigParse("job must contain at least one node")
	}
	p.nodes = make(map[string]*core.Worker)
	p.byDesc = make(map[string][]*core.Worker, len(job))
	p.connDevices = make(map[string]map[string]connDevice, len(job))
	p.nodeList = nil
	p.nextID = 1

	seen := make(map[string]bool, len(job))
	for _, nd := range job {
		if seen[nd.Name] {
			return nil, 0, cos.NewErrConfigParse("duplicate node name %q", nd.Name)
		}
		seen[nd.Name] = true

		read, write, other, err := p.classifyChannels(nd)
		if err != nil {
			return nil, 0, err
		}
		workers, err := p.expandNode(nd, read, write, other)
		if err != nil {
			return nil, 0, err
		}
		for _, w := range workers {
			if _, dup := p.nodes[w.Name]; dup {
				return nil, 0, cos.NewErrConfigParse("duplicate worker name %q", w.Name)
			}
			p.nodes[w.Name] = w
			p.nodeList = append(p.nodeList, w)
		}
		p.byDesc[nd.Name] = workers
	}

	// Connection wiring runs over the original job order so peer lookups
	// see the complete p.nodes map regardless of declaration order.
	for _, nd := range job {
		if err := p.wireConnections(nd); err != nil {
			return nil, 0, err
		}
	}

	// Post-pass: image channel, path_info, replicate promotion.
	if addUserImage {
		for _, w := range p.nodeList {
			if w.Channel("image") != nil {
				continue
			}
			w.Channels = append(w.Channels, &core.Channel{
				Device:    "image",
				Access:    core.AccessAppend,
				Removable: "yes",
			})
		}
	}
	if account != "" {
		for _, w := range p.nodeList {
			if len(w.Channels) > 0 && core.IsSwiftPath(w.Channels[0].Path) {
				top := w.Channels[0]
				w.PathInfo = top.Path.Path()
				if top.Access.Has(core.AccessWritable) && w.Replicate > 0 {
					w.Replicate = replicaCount
				}
			} else {
				w.PathInfo = "/" + account
			}
		}
	}
	for _, w := range p.nodeList {
		if w.Replicate == 0 {
			w.Replicate = 1
		}
	}

	sort.Slice(p.nodeList, func(i, j int) bool { return p.nodeList[i].Name < p.nodeList[j].Name })

	total := 0
	for _, w := range p.nodeList {
		total += w.Replicate
	}
	debug.Assertf(len(p.nodes) == len(p.nodeList), "node map and node list diverged: %d vs %d", len(p.nodes), len(p.nodeList))
	assertConnectionSymmetry(p.nodeList)
	return p.nodeList, total, nil
}

// assertConnectionSymmetry is the debug-only connection-graph check: every
// A.connect(B, rdev) has a matching B.bind(A, ldev), and self-pairs never
// appear. Compiled out in release builds.
func assertConnectionSymmetry(workers []*core.Worker) {
	if !debug.ON() {
		return
	}
	byName := make(map[string]*core.Worker, len(workers))
	for _, w := range workers {
		byName[w.Name] = w
	}
	for _, w := range workers {
		for _, c := range w.Connect {
			debug.Assertf(c.Name != w.Name, "self-connect survived planning for worker %s", w.Name)
			peer, ok := byName[c.Name]
			debug.Assertf(ok, "worker %s connects to unknown peer %s", w.Name, c.Name)
			found := false
			for _, b := range peer.Bind {
				if b.Name == w.Name {
					found = true
					break
				}
			}
			debug.Assertf(found, "worker %s connects to %s but %s has no matching bind", w.Name, peer.Name, peer.Name)
		}
	}
}

// RenderConnectStrings fills RenderedBind/RenderedConnect for every planned
// worker. Call once totalNodeCount (= the worker list length) is final,
// i.e. after Plan has returned.
func (p *Planner) RenderConnectStrings(totalNodeCount int) {
	for _, w := range p.nodeList {
		w.RenderedBind = make([]string, len(w.Bind))
		for i, b := range w.Bind {
			// bind advertises listening slots (port 0) with read caps
			proto := p.renderProto(b.Name, "0", totalNodeCount)
			w.RenderedBind[i] = fmt.Sprintf("%s,%s,0,0,%d,%d,0,0", proto, b.Device, p.limits.Reads, p.limits.RBytes)
		}
		w.RenderedConnect = make([]string, len(w.Connect))
		for i, c := range w.Connect {
			// connect advertises dialing slots (port resolved by the name
			// service) with write caps
			proto := p.renderProto(c.Name, "", totalNodeCount)
			w.RenderedConnect[i] = fmt.Sprintf("%s,%s,0,0,0,0,%d,%d", proto, c.Device, p.limits.Writes, p.limits.WBytes)
		}
	}
}

// renderProto joins one "tcp:<peer_id + i*total>:<port>" slot per storage
// replica of the peer, semicolon-separated.
func (p *Planner) renderProto(peerName, port string, totalNodeCount int) string {
	peer := p.nodes[peerName]
	n, base := 1, 0
	if peer != nil {
		n, base = peer.Replicate, peer.ID
	}
	addrs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		addrs = append(addrs, fmt.Sprintf("tcp:%d:%s", base+i*totalNodeCount, port))
	}
	return strings.Join(addrs, ";")
}

// classifyChannels classifies every raw file entry, splits
// inter-node (NodeEndpoint) channels into the connection-device table, and
// partitions the rest into read (pure read, then append), write, and other.
func (p *Planner) classifyChannels(nd *core.NodeDesc) (read, write, other []*core.Channel, err error) {
	var readPure, readAppend []*core.Channel
	for _, raw := range nd.Files {
		ch, cerr := core.Classify(raw, nd.Name, p.defaultCT)
		if cerr != nil {
			return nil, nil, nil, cos.NewErrConfigParse("%v", cerr)
		}
		if core.IsZvmPath(ch.Path) {
			peer := ch.Path.NodeName
			if p.connDevices[nd.Name] == nil {
				p.connDevices[nd.Name] = make(map[string]connDevice)
			}
			p.connDevices[nd.Name][peer] = connDevice{
				Local:  "/dev/" + ch.Device,
				Remote: "/dev/" + ch.Path.DeviceName,
			}
			continue
		}
		switch {
		case ch.Access == core.AccessUnknown:
			other = append(other, ch)
		case ch.Access.Has(core.AccessAppend):
			readAppend = append(readAppend, ch)
		case ch.Access.Has(core.AccessReadable):
			readPure = append(readPure, ch)
		case ch.Access.Has(core.AccessWritable):
			write = append(write, ch)
		default:
			other = append(other, ch)
		}
	}
	read = append(readPure, readAppend...)
	return read, write, other, nil
}

func hasWildcard(l *core.Location) bool {
	return l != nil && (strings.Contains(l.Container, "*") || strings.Contains(l.Object, "*"))
}

// expandNode fans a node out into workers: the first wildcard read channel governs
// replication via find_objects; otherwise the node's declared count does.
func (p *Planner) expandNode(nd *core.NodeDesc, read, write, other []*core.Channel) ([]*core.Worker, error) {
	if nd.Count <= 0 {
		return nil, cos.NewErrConfigParse("invalid node count for node %s", nd.Name)
	}

	var wildcardCh *core.Channel
	for _, ch := range read {
		if hasWildcard(ch.Path) {
			wildcardCh = ch
			break
		}
	}

	var workers []*core.Worker
	var matches []*core.Location

	switch {
	case wildcardCh != nil:
		var err error
		matches, err = p.findObjects(wildcardCh.Path)
		if err != nil {
			return nil, err
		}
		workers = p.newWorkers(nd, len(matches), true)
		pattern := wildcardCh.Path.Path()
		for i, w := range workers {
			w.Wildcards = captureWildcards(pattern, matches[i].Path())
			w.AddChannel(wildcardCh, matches[i], "")
		}
	default:
		workers = p.newWorkers(nd, nd.Count, nd.Count > 1)
	}

	for _, ch := range read {
		if ch == wildcardCh {
			continue
		}
		for _, w := range workers {
			w.AddChannel(ch, nil, "")
		}
	}

	for _, ch := range write {
		if err := p.attachWrite(ch, workers); err != nil {
			return nil, err
		}
	}

	for _, ch := range other {
		if err := p.attachOther(nd, ch, workers); err != nil {
			return nil, err
		}
	}

	return workers, nil
}

func (p *Planner) newWorkers(nd *core.NodeDesc, n int, suffix bool) []*core.Worker {
	if n <= 0 {
		n = 1
	}
	workers := make([]*core.Worker, n)
	for i := 0; i < n; i++ {
		name := nd.Name
		if suffix {
			name = nd.Name + "-" + strconv.Itoa(i+1)
		}
		workers[i] = &core.Worker{
			ID:        p.nextID,
			Name:      name,
			Exe:       nd.Exe,
			Args:      nd.Args,
			Env:       nd.Env,
			Replicate: nd.Replicate,
		}
		p.nextID++
	}
	return workers
}

func (p *Planner) attachWrite(ch *core.Channel, workers []*core.Worker) error {
	if ch.Path == nil {
		if ch.Device != "stdout" && ch.Device != "stderr" {
			return cos.NewErrConfigParse("immediate response not allowed for device %s", ch.Device)
		}
		for _, w := range workers {
			w.AddChannel(ch, nil, "")
		}
		return nil
	}
	if !hasWildcard(ch.Path) {
		if len(workers) > 1 {
			return cos.NewErrConfigParse("ambiguous write path for device %s: node expands to %d workers", ch.Device, len(workers))
		}
		workers[0].AddChannel(ch, nil, "")
		return nil
	}
	combined := ch.Path.Account + "/" + ch.Path.Container + "/" + ch.Path.Object
	for _, w := range workers {
		wildcards := w.Wildcards
		if len(wildcards) == 0 {
			n := strings.Count(combined, "*")
			wildcards = make([]string, n)
			for i := range wildcards {
				wildcards[i] = w.Name
			}
		}
		resolved, err := projectWildcards(combined, wildcards)
		if err != nil {
			return err
		}
		parts := strings.SplitN(resolved, "/", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		w.AddChannel(ch, core.NewSwiftPath(parts[0], parts[1], parts[2]), "")
	}
	return nil
}

func (p *Planner) attachOther(nd *core.NodeDesc, ch *core.Channel, workers []*core.Worker) error {
	if _, sysimg := p.sysimageDevices[ch.Device]; sysimg {
		// sysimage devices mount a host-side image; no path needed.
		ch.Access = core.AccessRandom | core.AccessReadable
	} else {
		if ch.Access == core.AccessUnknown {
			return cos.NewErrConfigParse("unknown device %q in node %s", ch.Device, nd.Name)
		}
		if ch.Path == nil {
			return cos.NewErrConfigParse("must specify path for device %q in node %s", ch.Device, nd.Name)
		}
	}
	for _, w := range workers {
		w.AddChannel(ch, nil, "")
	}
	return nil
}

// wireConnections builds the bind/connect graph for every worker expanded
// from nd.
func (p *Planner) wireConnections(nd *core.NodeDesc) error {
	devices := p.connDevices[nd.Name]
	names := make(map[string]bool, len(nd.Connect)+len(devices))
	order := make([]string, 0, len(nd.Connect)+len(devices))
	for _, n := range nd.Connect {
		if !names[n] {
			names[n] = true
			order = append(order, n)
		}
	}
	for n := range devices {
		if !names[n] {
			names[n] = true
			order = append(order, n)
		}
	}

	for _, this := range p.byDesc[nd.Name] {
		for _, peerName := range order {
			dev := devices[peerName]
			peers := p.resolvePeers(peerName)
			if len(peers) == 0 {
				return cos.NewErrConfigParse("unknown peer %q referenced by node %s", peerName, nd.Name)
			}
			for _, pw := range peers {
				if pw == this {
					return cos.NewErrConfigParse("Cannot bind to itself")
				}
				bindDevice := dev.Local
				if bindDevice == "" {
					bindDevice = "/dev/in/" + this.Name
				}
				pw.Bind = append(pw.Bind, core.Peer{Name: this.Name, Device: bindDevice})

				connDeviceStr := dev.Remote
				if connDeviceStr == "" {
					connDeviceStr = "/dev/out/" + pw.Name
				} else {
					var err error
					connDeviceStr, err = projectWildcards(connDeviceStr, pw.Wildcards)
					if err != nil {
						return err
					}
				}
				this.Connect = append(this.Connect, core.Peer{Name: pw.Name, Device: connDeviceStr})
			}
		}
	}
	return nil
}

// resolvePeers resolves a connect/bind target name to either the single
// exact-named worker or the "name-1".."name-k" replicated group.
func (p *Planner) resolvePeers(name string) []*core.Worker {
	if w, ok := p.nodes[name]; ok {
		return []*core.Worker{w}
	}
	var group []*core.Worker
	for i := 1; ; i++ {
		w, ok := p.nodes[name+"-"+strconv.Itoa(i)]
		if !ok {
			break
		}
		group = append(group, w)
	}
	return group
}
