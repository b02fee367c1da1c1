// Package orchestrator ties the planner's output to the storage cluster:
// it assembles the tar data sources every worker connection needs, opens
// one backend connection per worker/replica, multiplexes the archive
// across all of them, demuxes each backend's response, and aggregates one
// client-visible response.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/NVIDIA/zvmd/cmn/config"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/cmn/nlog"
	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/daemon"
	"github.com/NVIDIA/zvmd/fanout"
	"github.com/NVIDIA/zvmd/manifest"
	"github.com/NVIDIA/zvmd/nameservice"
	"github.com/NVIDIA/zvmd/orchestrator/placement"
	"github.com/NVIDIA/zvmd/stats"
	"github.com/NVIDIA/zvmd/storage"
)

// DataSource is the capability set every data source shares - in-memory
// sysmap, client-supplied image, fetched storage object, reused
// executable response: a declared length and a one-shot byte stream.
// Open is called exactly once per source by the fan-out driver.
type DataSource interface {
	ContentLength() int64
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Request bundles everything the Orchestrator needs beyond the planner's
// worker list: the job-level image body (if any), preloaded executable
// responses the caller already fetched, and how to render each worker's
// manifest.
type Request struct {
	Workers      []*core.Worker
	TotalCount   int
	Account      string
	AddUserImage bool
	UserImage    DataSource // nil unless AddUserImage

	// PreloadedExe maps an executable's Location.Path() to a data source
	// the caller already fetched - reused instead of a redundant GET.
	PreloadedExe map[string]DataSource

	Storage  storage.Client
	Config   *config.Config
	Manifest func(w *core.Worker) manifest.Opts

	// Daemon, if set, is consulted for every planned worker before its
	// backend connection is dialed, to route it to a pre-warmed runner.
	Daemon *daemon.Matcher

	// LocalObject, if set, names the one device whose channel is this
	// request's own submitted/returned payload (manifest.Opts.LocalObject,
	// the nvram [env] block's CGI-style variables).
	LocalObject func(w *core.Worker) *core.Channel

	// Stats, if set, receives job/worker/name-service counters. Nil in
	// tests that don't care about metrics.
	Stats *stats.Registry
}

// WorkerResult is one worker's outcome: its diagnostic headers, whether it
// ran on a warm daemon, an error if the worker failed, and any
// immediate-response body segments it produced.
type WorkerResult struct {
	Worker   *core.Worker
	Headers  map[string]string
	Cached   bool
	Err      error
	Bodies   []io.Reader
}

// Response is the aggregated, client-visible result of one job.
type Response struct {
	Status  int
	Headers map[string]string
	Body    io.Reader
}

// Orchestrator runs one job end to end over an already-planned worker
// list. Constructed fresh per request.
type Orchestrator struct {
	req     Request
	limiter *placement.ErrorLimiter
	ns      *nameservice.Service
}

// New constructs an Orchestrator for req. If more than one worker is
// planned, a rendezvous Service is started immediately so NameService
// addresses can be stamped onto every worker before their manifests are
// built.
func New(req Request) (*Orchestrator, error) {
	o := &Orchestrator{req: req, limiter: placement.NewErrorLimiter()}
	if len(req.Workers) > 1 {
		ns, err := nameservice.Start(req.Config.NameServiceHost, len(req.Workers))
		if err != nil {
			return nil, fmt.Errorf("orchestrator: starting name service: %w", err)
		}
		o.ns = ns
		for _, w := range req.Workers {
			w.NameService = ns.Addr()
		}
		if req.Stats != nil {
			req.Stats.NameServiceStarted()
		}
	}
	return o, nil
}

// Stop tears down the name service, if one was started. Safe to call more
// than once; Run defers it so the service dies on every exit path,
// cancellation included.
func (o *Orchestrator) Stop() {
	if o.ns != nil {
		o.ns.Stop()
		o.ns = nil
		if o.req.Stats != nil {
			o.req.Stats.NameServiceStopped()
		}
	}
}

// Run executes the job - source assembly, placement, streaming, response
// collection - and returns the aggregated response.
func (o *Orchestrator) Run(ctx context.Context) (*Response, error) {
	defer o.Stop()

	sources, err := o.assembleSources(ctx)
	if err != nil {
		return nil, err
	}
	o.precomputeSizes(sources)

	groups, err := o.placeAll(ctx)
	if err != nil {
		return nil, err
	}
	defer closeGroups(groups)

	sinks := o.buildSinks(groups)
	fanoutSources := o.buildFanoutSources(sources, groups, sinks)

	chunkSize := o.req.Config.NetworkChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * cos.KiB
	}
	if err := fanout.Drive(ctx, fanoutSources, chunkSize, nil); err != nil {
		return nil, classifyDriveErr(err)
	}
	for conn, sink := range sinks {
		if err := sink.Close(); err != nil && !conn.Failed {
			nlog.Warningf("orchestrator: sender for worker %s: %v", conn.Worker.Name, err)
		}
	}

	results := o.collectResponses(ctx, groups)
	o.recordAccounting(ctx, results, time.Now())
	o.recordWorkerStats(results)
	return o.aggregate(results), nil
}

func (o *Orchestrator) recordWorkerStats(results []*WorkerResult) {
	if o.req.Stats == nil {
		return
	}
	jobOK := true
	for _, wr := range results {
		if wr.Err != nil {
			o.req.Stats.WorkerDone("error")
			jobOK = false
		} else {
			o.req.Stats.WorkerDone("ok")
		}
	}
	if jobOK {
		o.req.Stats.JobDone("ok")
	} else {
		o.req.Stats.JobDone("partial_error")
	}
}

func classifyDriveErr(err error) error {
	if _, ok := err.(*fanout.ErrUndersized); ok {
		return cos.NewErrClientDisconnect("data source ended before declared length")
	}
	if err == context.DeadlineExceeded {
		return &cos.ErrClientTimeout{}
	}
	return err
}

func closeGroups(groups []*connGroup) {
	for _, g := range groups {
		for _, c := range g.conns {
			c.Close()
		}
	}
}
