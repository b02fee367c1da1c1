// Response collection/demux and aggregation: each backend's tar reply is
// routed member by member into storage PUTs or the client-visible body,
// and the per-worker outcomes fold into one response.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/NVIDIA/zvmd/archive"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/cmn/nlog"
	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/orchestrator/placement"
)

// diagnosticHeaders are the per-worker headers merged into the aggregated
// response.
var diagnosticHeaders = [...]string{
	"x-nexe-system", "x-nexe-status", "x-nexe-retcode",
	"x-nexe-etag", "x-nexe-validation", "x-nexe-cdr-line",
}

// collectResponses drains every connection group: fetch the backend's
// final response, demux its tar body, and route each output member to
// storage or the immediate-response body. Only the first
// connection in a group (the "primary" replica) contributes headers and
// body segments to the worker's WorkerResult; the rest are drained and
// their PUTs applied the same way, since every replica independently
// writes the same storage object. An error from any replica is recorded
// as the worker's Err.
func (o *Orchestrator) collectResponses(ctx context.Context, groups []*connGroup) []*WorkerResult {
	results := make([]*WorkerResult, 0, len(groups))
	for _, g := range groups {
		wr := &WorkerResult{Worker: g.worker, Headers: map[string]string{}}
		for i, c := range g.conns {
			if err := o.collectOne(ctx, g.worker, c, wr, i == 0); err != nil {
				wr.Err = err
			}
		}
		results = append(results, wr)
	}
	return results
}

func (o *Orchestrator) collectOne(ctx context.Context, w *core.Worker, c *placement.Conn, wr *WorkerResult, primary bool) error {
	resp, err := c.FinalResponse()
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*cos.KiB))
		return &cos.ErrBackend{Status: resp.StatusCode, Reason: resp.Status, Body: string(body)}
	}

	if primary {
		for _, h := range diagnosticHeaders {
			if v := resp.Header.Get(h); v != "" {
				wr.Headers[h] = v
			}
		}
		wr.Cached = resp.Header.Get("x-zerovm-daemon-hit") == "true"
	}

	useLZ4 := resp.Header.Get("content-type") == "application/x-tar-lz4"
	r := archive.NewReader(resp.Body, useLZ4)

	name, _, err := r.Next()
	if err != nil {
		return fmt.Errorf("orchestrator: worker %s: reading sysmap member: %w", w.Name, err)
	}
	if name != core.TarMemberSysmap {
		return fmt.Errorf("orchestrator: worker %s: expected sysmap as first member, got %q", w.Name, name)
	}
	sysmapBody, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := applySysmapReply(w, sysmapBody); err != nil {
		nlog.Warningf("orchestrator: worker %s: bad sysmap reply: %v", w.Name, err)
	}

	for {
		name, size, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := o.routeOutputMember(ctx, w, name, size, r, wr, primary); err != nil {
			return err
		}
	}
	return nil
}

// routeOutputMember routes one demuxed member: a StorageObject channel is
// PUT to storage; a path-less stdout/stderr channel supplies (or appends
// to) the client-visible body; a member naming no declared channel is
// ErrUnknownChannel; any other declared channel's member is discarded.
func (o *Orchestrator) routeOutputMember(ctx context.Context, w *core.Worker, name string, size int64, r io.Reader, wr *WorkerResult, primary bool) error {
	ch := w.Channel(name)
	if ch == nil {
		return &cos.ErrUnknownChannel{Device: name}
	}
	body := io.LimitReader(r, size)

	if core.IsSwiftPath(ch.Path) {
		status, err := o.req.Storage.Put(ctx, ch.Path.Path(), ch.Meta, body, size)
		if err != nil {
			return err
		}
		if status >= 300 {
			return &cos.ErrPut{Path: ch.Path.Path(), Status: status}
		}
		return nil
	}

	if ch.Path == nil && (ch.Device == "stdout" || ch.Device == "stderr") {
		if primary {
			buf, err := io.ReadAll(body)
			if err != nil {
				return err
			}
			wr.Bodies = append(wr.Bodies, bytes.NewReader(buf))
		} else {
			io.Copy(io.Discard, body)
		}
		return nil
	}

	io.Copy(io.Discard, body)
	return nil
}

// aggregate merges every worker's diagnostic headers and
// immediate-response body into one client-visible Response, stamps a
// fresh Etag, and marks x-nexe-error for any worker that failed - a
// single worker's runtime failure is not fatal to its siblings.
func (o *Orchestrator) aggregate(results []*WorkerResult) *Response {
	sort.Slice(results, func(i, j int) bool { return results[i].Worker.Name < results[j].Worker.Name })

	headers := map[string]string{}
	var bodies []io.Reader
	cached := false
	for _, wr := range results {
		for k, v := range wr.Headers {
			headers[k] = v
		}
		if wr.Err != nil {
			headers["x-nexe-error"] = fmt.Sprintf("%s: %v", wr.Worker.Name, wr.Err)
		}
		if wr.Cached {
			cached = true
		}
		bodies = append(bodies, wr.Bodies...)
	}
	if cached {
		headers["x-nexe-cached"] = "true"
	}
	headers["Etag"] = etag()

	var body io.Reader
	if len(bodies) > 0 {
		body = io.MultiReader(bodies...)
	}
	return &Response{Status: http.StatusOK, Headers: headers, Body: body}
}

func etag() string {
	return fmt.Sprintf("%x", time.Now().UnixNano())
}
