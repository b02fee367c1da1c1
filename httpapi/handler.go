// Package httpapi is zvmd's submission surface: one HTTP handler
// accepting POST /<account>[/<container>[/<object>]] with
// x-zerovm-execute: 1.0, plus the /<command>/<account>/... URL-command
// form. It decodes whichever body shape the caller sent into a job
// description, drives it through the Planner and Orchestrator, and
// renders their result (or error) as an HTTP response.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/OneOfOne/xxhash"

	"github.com/NVIDIA/zvmd/cmn/config"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/cmn/nlog"
	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/daemon"
	"github.com/NVIDIA/zvmd/httpapi/regcache"
	"github.com/NVIDIA/zvmd/manifest"
	"github.com/NVIDIA/zvmd/orchestrator"
	"github.com/NVIDIA/zvmd/planner"
	"github.com/NVIDIA/zvmd/stats"
	"github.com/NVIDIA/zvmd/storage"
)

// defaultReplicaCount is the object write replication factor applied to a
// worker whose first channel is a writable storage path (planner.Plan's
// replicaCount argument). It applies to every such worker; no
// per-container value is looked up.
const defaultReplicaCount = 3

// Handler is zvmd's HTTP entrypoint. One Handler serves an entire daemon
// process; it holds no per-request state.
type Handler struct {
	Cfg       *config.Config
	Storage   storage.Client
	Templates *regcache.Cache
	Daemon    *daemon.Matcher
	Stats     *stats.Registry
}

// New constructs a Handler. templates may be nil to disable the open-with
// template cache (every lookup then falls through to storage); statsReg
// may be nil to disable metrics.
func New(cfg *config.Config, store storage.Client, templates *regcache.Cache, daemonMatcher *daemon.Matcher, statsReg *stats.Registry) *Handler {
	return &Handler{Cfg: cfg, Storage: store, Templates: templates, Daemon: daemonMatcher, Stats: statsReg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	segs := splitPath(r.URL.Path)
	if len(segs) == 0 {
		writeErr(w, cos.NewErrBadRequest("missing account in request path"))
		return
	}

	ctx := r.Context()

	if isCommand(segs[0]) {
		if len(segs) < 2 {
			writeErr(w, cos.NewErrBadRequest("command form requires an account"))
			return
		}
		account, container, object := segAt(segs, 1), segAt(segs, 2), segAt(segs, 3)
		tmpl, err := h.resolveTemplate(ctx, account, container, object, h.Cfg.MaxConfigBytes)
		if err != nil {
			writeErr(w, err)
			return
		}
		vars := ObjectTemplateVars(account, container, object)
		expanded := Expand(tmpl, vars)
		resp, err := h.submit(ctx, account, container, object, strings.NewReader(expanded),
			int64(len(expanded)), "application/json", "")
		h.respond(w, resp, err)
		return
	}

	if r.Header.Get("x-zerovm-execute") != "1.0" {
		writeErr(w, cos.NewErrBadRequest("missing x-zerovm-execute: 1.0 header"))
		return
	}
	account, container, object := segAt(segs, 0), segAt(segs, 1), segAt(segs, 2)
	if r.ContentLength <= 0 {
		writeErr(w, cos.NewErrBadRequest("missing Content-Length"))
		return
	}
	contentType := r.Header.Get("Content-Type")
	resp, err := h.submit(ctx, account, container, object, r.Body, r.ContentLength, contentType, r.Header.Get("Etag"))
	h.respond(w, resp, err)
}

// submit decodes body per contentType into a job, plans it, runs the
// orchestrator, and returns the aggregated response.
func (h *Handler) submit(ctx context.Context, account, container, object string, body io.Reader, contentLength int64, contentType, clientEtag string) (*orchestrator.Response, error) {
	nodes, userImage, addUserImage, err := h.decodeBody(body, contentLength, contentType, account, container, object, clientEtag)
	if err != nil {
		return nil, err
	}

	pl := planner.New(h.Cfg.SysimageDevices, h.Cfg.DefaultExeContent, h.Cfg.Limits,
		h.listAccountFunc(ctx), h.listContainerFunc(ctx))
	workers, totalCount, err := pl.Plan(nodes, addUserImage, account, defaultReplicaCount)
	if err != nil {
		return nil, err
	}
	pl.RenderConnectStrings(len(workers))

	localObjectDevice := func(w *core.Worker) *core.Channel {
		for _, ch := range w.Channels {
			if core.IsSwiftPath(ch.Path) && ch.Path.Path() == w.PathInfo {
				return ch
			}
		}
		return nil
	}

	req := orchestrator.Request{
		Workers:      workers,
		TotalCount:   totalCount,
		Account:      account,
		AddUserImage: addUserImage,
		UserImage:    userImage,
		Storage:      h.Storage,
		Config:       h.Cfg,
		Daemon:       h.Daemon,
		Stats:        h.Stats,
		LocalObject:  localObjectDevice,
		Manifest: func(w *core.Worker) manifest.Opts {
			return manifest.Opts{
				Version:         h.Cfg.Manifest.Version,
				Timeout:         h.Cfg.Manifest.Timeout,
				Memory:          h.Cfg.Manifest.Memory,
				UseSelf:         h.Cfg.Manifest.UseSelf,
				Limits:          h.Cfg.Limits,
				SysimageDevices: h.Cfg.SysimageDevices,
			}
		},
	}

	orch, err := orchestrator.New(req)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx)
}

// decodeBody branches on contentType into the three recognized submission
// shapes - JSON config, tar archive, shebang script - sniffing the body
// only when the header gives no other answer (the shebang case).
func (h *Handler) decodeBody(body io.Reader, contentLength int64, contentType, account, container, object, clientEtag string) ([]*core.NodeDesc, orchestrator.DataSource, bool, error) {
	maxBytes := h.Cfg.MaxConfigBytes
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))

	switch {
	case ct == "application/json":
		data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
		if err != nil {
			return nil, nil, false, cos.NewErrBadRequest("reading request body: %v", err)
		}
		if int64(len(data)) > maxBytes {
			return nil, nil, false, cos.NewErrConfigTooLarge(maxBytes)
		}
		if clientEtag != "" && clientEtag != jobEtag(data) {
			return nil, nil, false, cos.NewErrUnprocessable("Etag does not match submitted config")
		}
		nodes, err := DecodeJob(bytes.NewReader(data), maxBytes)
		return nodes, nil, false, err

	case ct == "application/x-tar" || strings.Contains(ct, "tar"):
		tj, err := parseTarSubmission(body, maxBytes)
		if err != nil {
			return nil, nil, false, err
		}
		if tj.image == nil {
			return tj.nodes, nil, false, nil
		}
		return tj.nodes, &tarImageSource{length: tj.imageLength, body: tj.image}, true, nil

	default:
		br := bufio.NewReaderSize(io.LimitReader(body, maxBytes+1), 2)
		peek, _ := br.Peek(2)
		if string(peek) != "#!" {
			return nil, nil, false, cos.NewErrBadRequest("unsupported content type %q", contentType)
		}
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, nil, false, cos.NewErrBadRequest("reading shebang body: %v", err)
		}
		if int64(len(data)) > maxBytes {
			return nil, nil, false, cos.NewErrConfigTooLarge(maxBytes)
		}
		nodes, err := parseShebang(data, account, container, object)
		if err != nil {
			return nil, nil, false, err
		}
		// The script itself ships as the user image: a one-member tar
		// archive named "script", sized to the submitted body.
		img, err := scriptImage(data)
		if err != nil {
			return nil, nil, false, cos.NewErrBadRequest("packing script: %v", err)
		}
		return nodes, img, true, nil
	}
}

// tarImageSource adapts a tar submission's concatenated non-config
// members into an orchestrator.DataSource for the shared user image.
type tarImageSource struct {
	length int64
	body   io.ReadCloser
}

func (t *tarImageSource) ContentLength() int64 { return t.length }
func (t *tarImageSource) Open(context.Context) (io.ReadCloser, error) { return t.body, nil }

func (h *Handler) listAccountFunc(ctx context.Context) planner.ListAccountFunc {
	return func(account string, mask *regexp.Regexp) ([]string, error) {
		return h.Storage.ListAccount(ctx, account, regexpPattern(mask))
	}
}

func (h *Handler) listContainerFunc(ctx context.Context) planner.ListContainerFunc {
	return func(account, container string, mask *regexp.Regexp) ([]string, error) {
		return h.Storage.ListContainer(ctx, account, container, regexpPattern(mask))
	}
}

func regexpPattern(mask *regexp.Regexp) string {
	if mask == nil {
		return ""
	}
	return mask.String()
}

// respond renders the orchestrator's outcome (or a failure from any
// earlier step) as the client response.
func (h *Handler) respond(w http.ResponseWriter, resp *orchestrator.Response, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.Status)
	if resp.Body != nil {
		if _, err := io.Copy(w, resp.Body); err != nil {
			nlog.Warningf("httpapi: writing response body: %v", err)
		}
	}
}

// writeErr maps a typed error to its HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *cos.ErrBadRequest, *cos.ErrConfigParse:
		status = http.StatusBadRequest
	case *cos.ErrConfigTooLarge, *cos.ErrTemplateTooLarge:
		status = http.StatusRequestEntityTooLarge
	case *cos.ErrUnprocessable:
		status = http.StatusUnprocessableEntity
	case *cos.ErrClientTimeout:
		status = http.StatusRequestTimeout
	case *cos.ErrClientDisconnect:
		status = 499
	case *cos.ErrNoCapacity:
		status = http.StatusInsufficientStorage
	case *cos.ErrBackend:
		status = http.StatusBadGateway
	case *cos.ErrPut:
		status = http.StatusBadGateway
	case *cos.ErrUnknownChannel:
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func segAt(segs []string, i int) string {
	if i < len(segs) {
		return segs[i]
	}
	return ""
}

// jobEtag derives a cheap content fingerprint for the Etag-enforcement
// check on a JSON submission: a client re-posting config it already holds
// an Etag for must be posting byte-identical content, not establishing a
// versioned identity with a separate store.
func jobEtag(data []byte) string {
	return fmt.Sprintf("%x", xxhash.Checksum64(data))
}
